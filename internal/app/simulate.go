package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"whalewatch/internal/alert"
	"whalewatch/internal/service"
	"whalewatch/internal/simulator"
	"whalewatch/internal/storage"
)

// SimulateAlert generates one synthetic whale alert and pushes it
// through the full admission path: store, persistence, notification.
func (a *App) SimulateAlert(ctx context.Context) error {
	notifier := a.newNotifier()
	if a.Config.Notifier.Enabled && notifier == nil {
		return errors.New("notifier enabled but no channel configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var history storage.AlertStore
	if store != nil {
		history = store
	}
	if closeStore != nil {
		defer closeStore()
	}

	settingsStore := a.newSettingsStore()
	alerts := alert.NewStore()

	svc := service.New(service.Options{}, service.Scanners{}, alerts, settingsStore,
		nil, nil, simulator.New(), notifier, history, a.Logger)

	recorded := svc.InjectSynthetic(ctx)

	// The normal loop never routes synthetic alerts outward; here the
	// operator asked for a dry-fire of the whole path.
	if notifier != nil {
		if err := notifier.Notify(ctx, recorded); err != nil {
			return fmt.Errorf("dispatch simulated alert: %w", err)
		}
	}

	fmt.Fprintf(os.Stdout, "simulated %s alert: $%s (%s)\n",
		recorded.Type, recorded.ValueUSD.StringFixed(0), recorded.Hash)
	return nil
}
