package simulator

import (
	"strings"
	"testing"

	"whalewatch/internal/alert"
)

func TestAlertShape(t *testing.T) {
	gen := NewWithSeed(42)

	for i := 0; i < 100; i++ {
		a := gen.Alert()

		if !alert.Chain(a.Type).Valid() {
			t.Fatalf("generated chain must be valid, got %s", a.Type)
		}
		if !a.Synthetic {
			t.Fatal("generated alerts must be flagged synthetic")
		}
		if !strings.HasPrefix(a.Hash, "0x") || len(a.Hash) != 66 {
			t.Fatalf("hash must be 0x plus 64 hex chars, got %q", a.Hash)
		}
		if a.Amount.Sign() <= 0 || a.ValueUSD.Sign() <= 0 {
			t.Fatalf("amount and value must be positive: %s / %s", a.Amount, a.ValueUSD)
		}
		if a.From == "" || a.To == "" {
			t.Fatal("venue pair must be populated")
		}
		if a.Block < 18_000_000 || a.Block >= 19_000_000 {
			t.Fatalf("block out of range: %d", a.Block)
		}
	}
}

func TestDeterministicSeed(t *testing.T) {
	first := NewWithSeed(7).Alert()
	second := NewWithSeed(7).Alert()

	if first.Hash != second.Hash || first.Type != second.Type {
		t.Fatal("same seed must generate the same alert")
	}
}

func TestDemoAlertsCount(t *testing.T) {
	gen := NewWithSeed(1)
	if got := len(gen.DemoAlerts(8)); got != 8 {
		t.Fatalf("expected 8 demo alerts, got %d", got)
	}
}

func TestChanceBounds(t *testing.T) {
	gen := NewWithSeed(1)
	if gen.Chance(0) {
		t.Fatal("zero probability never fires")
	}
	if !gen.Chance(1) {
		t.Fatal("certain probability always fires")
	}

	hits := 0
	for i := 0; i < 1000; i++ {
		if gen.Chance(0.3) {
			hits++
		}
	}
	if hits < 200 || hits > 400 {
		t.Fatalf("30%% chance drifted too far: %d/1000", hits)
	}
}
