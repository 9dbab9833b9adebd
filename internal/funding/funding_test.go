package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

type fakeExchange struct {
	name     string
	readings []Reading
	err      error
}

func (f fakeExchange) Name() string { return f.name }

func (f fakeExchange) FundingRates(ctx context.Context, symbols []string) ([]Reading, error) {
	return f.readings, f.err
}

func TestClassifyRate(t *testing.T) {
	cases := []struct {
		pct  string
		want alert.Severity
	}{
		{"0.15", alert.SeverityCritical},
		{"-0.12", alert.SeverityCritical},
		{"0.1", alert.SeverityCritical},
		{"0.07", alert.SeverityHigh},
		{"-0.05", alert.SeverityHigh},
		{"0.03", alert.SeverityMedium},
		{"0.02", alert.SeverityMedium},
		{"0.01", alert.SeverityNormal},
		{"0", alert.SeverityNormal},
	}

	for _, tc := range cases {
		pct, err := decimal.NewFromString(tc.pct)
		if err != nil {
			t.Fatalf("bad case %q: %v", tc.pct, err)
		}
		if got := ClassifyRate(pct); got != tc.want {
			t.Fatalf("ClassifyRate(%s) = %s, want %s", tc.pct, got, tc.want)
		}
	}
}

func TestCollectMergesExchanges(t *testing.T) {
	binance := fakeExchange{name: "Binance", readings: []Reading{
		{Symbol: "BTCUSDT", RatePct: decimal.NewFromFloat(0.01), Exchange: "Binance"},
		{Symbol: "ETHUSDT", RatePct: decimal.NewFromFloat(0.02), Exchange: "Binance"},
	}}
	bybit := fakeExchange{name: "Bybit", readings: []Reading{
		{Symbol: "BTCUSDT", RatePct: decimal.NewFromFloat(0.03), Exchange: "Bybit"},
	}}

	agg := NewAggregator([]ExchangeClient{binance, bybit}, []string{"BTCUSDT", "ETHUSDT"}, zerolog.Nop())
	rates := agg.Collect(context.Background())

	if len(rates) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(rates))
	}

	btc := rates[0]
	if btc.Symbol != "BTCUSDT" {
		t.Fatalf("symbols must be sorted, got %s first", btc.Symbol)
	}
	if !btc.AvgPct.Equal(decimal.NewFromFloat(0.02)) {
		t.Fatalf("BTC average should be 0.02, got %s", btc.AvgPct)
	}
	if !btc.MinPct.Equal(decimal.NewFromFloat(0.01)) || !btc.MaxPct.Equal(decimal.NewFromFloat(0.03)) {
		t.Fatalf("min/max mismatch: %s/%s", btc.MinPct, btc.MaxPct)
	}
	if len(btc.Exchanges) != 2 {
		t.Fatalf("expected 2 exchanges, got %v", btc.Exchanges)
	}
}

func TestCollectSurvivesFailingExchange(t *testing.T) {
	healthy := fakeExchange{name: "Binance", readings: []Reading{
		{Symbol: "BTCUSDT", RatePct: decimal.NewFromFloat(0.01), Exchange: "Binance"},
	}}
	broken := fakeExchange{name: "OKX", err: errors.New("boom")}

	agg := NewAggregator([]ExchangeClient{healthy, broken}, []string{"BTCUSDT"}, zerolog.Nop())
	rates := agg.Collect(context.Background())

	if len(rates) != 1 {
		t.Fatalf("healthy exchange must still contribute, got %d symbols", len(rates))
	}
	if len(rates[0].Readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(rates[0].Readings))
	}
}

func TestAnalyzePatternsLongPressure(t *testing.T) {
	rates := []SymbolFunding{{
		Symbol:    "BTCUSDT",
		AvgPct:    decimal.NewFromFloat(0.08),
		MinPct:    decimal.NewFromFloat(0.08),
		MaxPct:    decimal.NewFromFloat(0.08),
		Level:     alert.SeverityHigh,
		Exchanges: []string{"Binance"},
	}}

	patterns := AnalyzePatterns(rates)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].Type != PatternHighPositive {
		t.Fatalf("expected %s, got %s", PatternHighPositive, patterns[0].Type)
	}
	if patterns[0].Severity != alert.SeverityHigh {
		t.Fatalf("severity must follow the classified level, got %s", patterns[0].Severity)
	}
}

func TestAnalyzePatternsShortPressureAndDivergence(t *testing.T) {
	rates := []SymbolFunding{{
		Symbol: "ETHUSDT",
		AvgPct: decimal.NewFromFloat(-0.06),
		MinPct: decimal.NewFromFloat(-0.09),
		MaxPct: decimal.NewFromFloat(-0.03),
		Level:  alert.SeverityHigh,
	}}

	patterns := AnalyzePatterns(rates)
	if len(patterns) != 2 {
		t.Fatalf("expected short pressure plus divergence, got %d", len(patterns))
	}

	types := map[string]bool{}
	for _, p := range patterns {
		types[p.Type] = true
	}
	if !types[PatternHighNegative] || !types[PatternDivergence] {
		t.Fatalf("pattern set mismatch: %v", types)
	}
}

func TestAnalyzePatternsQuietMarket(t *testing.T) {
	rates := []SymbolFunding{{
		Symbol: "SOLUSDT",
		AvgPct: decimal.NewFromFloat(0.01),
		MinPct: decimal.NewFromFloat(0.005),
		MaxPct: decimal.NewFromFloat(0.015),
		Level:  alert.SeverityNormal,
	}}

	if patterns := AnalyzePatterns(rates); len(patterns) != 0 {
		t.Fatalf("quiet market must produce no patterns, got %d", len(patterns))
	}
}

func TestOKXInstID(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT": "BTC-USDT-SWAP",
		"ETHUSDT": "ETH-USDT-SWAP",
		"XRP":     "",
	}
	for in, want := range cases {
		if got := OKXInstID(in); got != want {
			t.Fatalf("OKXInstID(%s) = %s, want %s", in, got, want)
		}
	}

	if got := NormalizeOKXSymbol("BTC-USDT-SWAP"); got != "BTCUSDT" {
		t.Fatalf("NormalizeOKXSymbol round trip failed: %s", got)
	}
}
