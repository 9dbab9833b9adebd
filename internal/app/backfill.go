package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whalewatch/internal/fetcher"
	"whalewatch/internal/service"
	"whalewatch/internal/storage"
)

// Backfill rescans a historical block range of one chain and persists
// the resulting whale alerts.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.FromHeight == 0 || opts.ToHeight == 0 || opts.FromHeight > opts.ToHeight {
		return errors.New("backfill range is empty, check --from-height/--to-height")
	}

	var store *storage.Store
	var closeStore func()
	var err error
	var history storage.AlertStore

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
		history = store
	}

	scanner, err := a.backfillScanner(opts.Chain)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	inserted := 0
	for height := opts.FromHeight; height <= opts.ToHeight; height++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		alerts, err := scanner.ScanHeight(ctx, height)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Uint64("height", height).Msg("backfill scan failed")
			continue
		}
		processed++

		for _, al := range alerts {
			if history == nil {
				inserted++
				continue
			}
			if _, err := history.InsertAlert(ctx, service.RecordFromAlert(al)); err != nil {
				a.Logger.Error().Err(err).Str("hash", al.Hash).Msg("backfill insert failed")
				continue
			}
			inserted++
		}
	}

	a.Logger.Info().
		Int("processed", processed).
		Int("failed", failed).
		Int("alerts", inserted).
		Msg("backfill finished")
	if failed > 0 {
		return fmt.Errorf("%d blocks failed to backfill, check logs", failed)
	}
	return nil
}

func (a *App) backfillScanner(chain string) (fetcher.HeightScanner, error) {
	priceSource := a.newPriceSource()
	scanners := a.newScanners(priceSource, a.Config.Ethereum.APIKey)

	switch strings.ToUpper(chain) {
	case "BTC":
		return scanners.Bitcoin.(fetcher.HeightScanner), nil
	case "ETH":
		return scanners.Ethereum.(fetcher.HeightScanner), nil
	default:
		return nil, fmt.Errorf("chain %q does not support height backfill", chain)
	}
}
