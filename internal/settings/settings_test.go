package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

func TestStoreDefaultsWithoutFile(t *testing.T) {
	store := NewStore("", Defaults(), zerolog.Nop())

	current := store.Current()
	if !current.MinValueUSD.Equal(decimal.NewFromInt(100_000)) {
		t.Fatalf("default floor mismatch: %s", current.MinValueUSD)
	}
	if current.CheckInterval != 30*time.Second {
		t.Fatalf("default interval mismatch: %s", current.CheckInterval)
	}
	if len(current.EnabledChains) != len(alert.AllChains) {
		t.Fatalf("all chains enabled by default, got %v", current.EnabledChains)
	}
}

func TestStorePersistsUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path, Defaults(), zerolog.Nop())

	updated, err := store.Update(func(next *Settings) {
		next.MinValueUSD = decimal.NewFromInt(500_000)
		next.CheckInterval = time.Minute
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.MinValueUSD.Equal(decimal.NewFromInt(500_000)) {
		t.Fatalf("update not applied: %s", updated.MinValueUSD)
	}

	// A fresh store picks the persisted values back up.
	reloaded := NewStore(path, Defaults(), zerolog.Nop()).Current()
	if !reloaded.MinValueUSD.Equal(decimal.NewFromInt(500_000)) {
		t.Fatalf("persisted floor mismatch: %s", reloaded.MinValueUSD)
	}
	if reloaded.CheckInterval != time.Minute {
		t.Fatalf("persisted interval mismatch: %s", reloaded.CheckInterval)
	}
}

func TestStoreToggleChain(t *testing.T) {
	store := NewStore("", Defaults(), zerolog.Nop())

	updated, err := store.ToggleChain(alert.ChainETH)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if updated.ChainEnabled(alert.ChainETH) {
		t.Fatal("toggle must disable an enabled chain")
	}

	updated, err = store.ToggleChain(alert.ChainETH)
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if !updated.ChainEnabled(alert.ChainETH) {
		t.Fatal("toggle must re-enable a disabled chain")
	}
}

func TestStoreToggleUnknownChain(t *testing.T) {
	store := NewStore("", Defaults(), zerolog.Nop())
	if _, err := store.ToggleChain(alert.Chain("DOGE")); err == nil {
		t.Fatal("unknown chains must be rejected")
	}
}

func TestStoreIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := NewStore(path, Defaults(), zerolog.Nop())
	if !store.Current().MinValueUSD.Equal(decimal.NewFromInt(100_000)) {
		t.Fatal("corrupt file must fall back to defaults")
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	store := NewStore("", Defaults(), zerolog.Nop())

	current := store.Current()
	current.EnabledChains[0] = alert.Chain("DOGE")

	if !store.Current().ChainEnabled(alert.AllChains[0]) {
		t.Fatal("mutating the returned settings must not affect the store")
	}
}
