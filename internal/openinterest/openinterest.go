package openinterest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

// Pattern alert tags emitted by AnalyzePatterns.
const (
	PatternMassiveIncrease    = "OI_MASSIVE_INCREASE"
	PatternMassiveDecrease    = "OI_MASSIVE_DECREASE"
	PatternExtremelyHigh      = "OI_EXTREMELY_HIGH"
	PatternPlatformDivergence = "OI_PLATFORM_DIVERGENCE"
)

var (
	cutoffCritical   = decimal.NewFromInt(20)
	cutoffHigh       = decimal.NewFromInt(10)
	cutoffMedium     = decimal.NewFromInt(5)
	massiveSwing     = decimal.NewFromInt(15)
	notionalCeiling  = decimal.NewFromInt(1_000_000_000)
	divergenceCutoff = decimal.NewFromInt(25)
)

// Reading is one exchange's open interest snapshot for a symbol.
type Reading struct {
	Symbol       string
	OpenInterest decimal.Decimal
	ValueUSD     decimal.Decimal
	Exchange     string
	Timestamp    time.Time
}

// ExchangeClient fetches open interest for the tracked symbols from one
// derivatives venue.
type ExchangeClient interface {
	Name() string
	OpenInterest(ctx context.Context, symbols []string) ([]Reading, error)
}

// Change captures the delta against the cached reading for the same
// symbol and calendar day.
type Change struct {
	Absolute decimal.Decimal
	Percent  decimal.Decimal
	ValueUSD decimal.Decimal
	Trend    string
}

// SymbolOpenInterest aggregates all exchange readings for one symbol.
type SymbolOpenInterest struct {
	Symbol    string
	Total     decimal.Decimal
	Average   decimal.Decimal
	ValueUSD  decimal.Decimal
	Exchanges []string
	Readings  []Reading
	Change    *Change
	Level     alert.Severity
	Timestamp time.Time
}

// PatternAlert flags an open-interest pattern worth surfacing.
type PatternAlert struct {
	Type      string
	Symbol    string
	Message   string
	Severity  alert.Severity
	Trend     string
	Timestamp time.Time
}

type cachedReading struct {
	openInterest decimal.Decimal
	valueUSD     decimal.Decimal
}

// Aggregator polls multiple exchanges and tracks period-over-period change
// with an in-process cache holding one snapshot per symbol per UTC day.
type Aggregator struct {
	clients []ExchangeClient
	symbols []string
	logger  zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedReading
	now   func() time.Time
}

// NewAggregator wires exchange clients for the given symbol universe.
func NewAggregator(clients []ExchangeClient, symbols []string, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		clients: clients,
		symbols: symbols,
		logger:  logger.With().Str("component", "oi_aggregator").Logger(),
		cache:   make(map[string]cachedReading),
		now:     time.Now,
	}
}

// Collect fans out to every exchange concurrently, merges readings per
// symbol, and computes change against the day cache before overwriting it.
func (a *Aggregator) Collect(ctx context.Context) []SymbolOpenInterest {
	var (
		mu       sync.Mutex
		readings []Reading
		wg       sync.WaitGroup
	)

	for _, client := range a.clients {
		wg.Add(1)
		go func(client ExchangeClient) {
			defer wg.Done()
			snapshot, err := client.OpenInterest(ctx, a.symbols)
			if err != nil {
				a.logger.Warn().Err(err).Str("exchange", client.Name()).Msg("open interest fetch failed")
				return
			}
			mu.Lock()
			readings = append(readings, snapshot...)
			mu.Unlock()
		}(client)
	}
	wg.Wait()

	grouped := make(map[string][]Reading)
	for _, r := range readings {
		grouped[r.Symbol] = append(grouped[r.Symbol], r)
	}

	symbols := make([]string, 0, len(grouped))
	for symbol := range grouped {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	now := a.now().UTC()
	out := make([]SymbolOpenInterest, 0, len(symbols))
	for _, symbol := range symbols {
		group := grouped[symbol]
		total := decimal.Zero
		value := decimal.Zero
		exchanges := make([]string, 0, len(group))
		for _, r := range group {
			total = total.Add(r.OpenInterest)
			value = value.Add(r.ValueUSD)
			exchanges = append(exchanges, r.Exchange)
		}
		average := total.DivRound(decimal.NewFromInt(int64(len(group))), 8)

		change := a.rotateCache(symbol, now, cachedReading{openInterest: average, valueUSD: value})

		out = append(out, SymbolOpenInterest{
			Symbol:    symbol,
			Total:     total,
			Average:   average,
			ValueUSD:  value,
			Exchanges: exchanges,
			Readings:  group,
			Change:    change,
			Level:     ClassifyChange(change),
			Timestamp: now,
		})
	}
	return out
}

// rotateCache reads the previous same-day snapshot, derives the change,
// then overwrites the slot with the current reading (last write wins).
func (a *Aggregator) rotateCache(symbol string, now time.Time, current cachedReading) *Change {
	key := symbol + "_" + now.Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()

	previous, ok := a.cache[key]
	a.cache[key] = current
	if !ok || previous.openInterest.IsZero() {
		return nil
	}

	absolute := current.openInterest.Sub(previous.openInterest)
	percent := absolute.DivRound(previous.openInterest, 8).Mul(decimal.NewFromInt(100))

	trend := "stable"
	switch absolute.Sign() {
	case 1:
		trend = "increasing"
	case -1:
		trend = "decreasing"
	}

	return &Change{
		Absolute: absolute,
		Percent:  percent,
		ValueUSD: current.valueUSD.Sub(previous.valueUSD),
		Trend:    trend,
	}
}

// Monitor runs one aggregation round and derives pattern alerts from it.
func (a *Aggregator) Monitor(ctx context.Context) ([]SymbolOpenInterest, []PatternAlert) {
	snapshot := a.Collect(ctx)
	return snapshot, AnalyzePatterns(snapshot)
}

// ClassifyChange maps an open-interest percent change to a severity:
// >=20% critical, >=10% high, >=5% medium. Nil change is normal.
func ClassifyChange(change *Change) alert.Severity {
	if change == nil {
		return alert.SeverityNormal
	}
	abs := change.Percent.Abs()
	switch {
	case abs.GreaterThanOrEqual(cutoffCritical):
		return alert.SeverityCritical
	case abs.GreaterThanOrEqual(cutoffHigh):
		return alert.SeverityHigh
	case abs.GreaterThanOrEqual(cutoffMedium):
		return alert.SeverityMedium
	default:
		return alert.SeverityNormal
	}
}

// AnalyzePatterns flags large swings, extreme notional, and cross-exchange
// divergence.
func AnalyzePatterns(snapshot []SymbolOpenInterest) []PatternAlert {
	var alerts []PatternAlert
	now := time.Now().UTC()

	for _, oi := range snapshot {
		if oi.Change != nil {
			if oi.Change.Percent.GreaterThan(massiveSwing) {
				alerts = append(alerts, PatternAlert{
					Type:      PatternMassiveIncrease,
					Symbol:    oi.Symbol,
					Message:   fmt.Sprintf("massive open interest increase on %s: +%s%%", oi.Symbol, oi.Change.Percent.StringFixed(2)),
					Severity:  oi.Level,
					Trend:     "bullish",
					Timestamp: now,
				})
			}
			if oi.Change.Percent.LessThan(massiveSwing.Neg()) {
				alerts = append(alerts, PatternAlert{
					Type:      PatternMassiveDecrease,
					Symbol:    oi.Symbol,
					Message:   fmt.Sprintf("massive open interest decrease on %s: %s%% (deleveraging)", oi.Symbol, oi.Change.Percent.StringFixed(2)),
					Severity:  oi.Level,
					Trend:     "bearish",
					Timestamp: now,
				})
			}
		}

		if oi.ValueUSD.GreaterThan(notionalCeiling) {
			billions := oi.ValueUSD.DivRound(notionalCeiling, 2)
			alerts = append(alerts, PatternAlert{
				Type:      PatternExtremelyHigh,
				Symbol:    oi.Symbol,
				Message:   fmt.Sprintf("extremely high open interest on %s: $%sB", oi.Symbol, billions.StringFixed(2)),
				Severity:  alert.SeverityHigh,
				Trend:     "neutral",
				Timestamp: now,
			})
		}

		if divergence, ok := platformDivergence(oi.Readings); ok && divergence.GreaterThan(divergenceCutoff) {
			alerts = append(alerts, PatternAlert{
				Type:      PatternPlatformDivergence,
				Symbol:    oi.Symbol,
				Message:   fmt.Sprintf("open interest divergence on %s: %s%% between exchanges", oi.Symbol, divergence.StringFixed(1)),
				Severity:  alert.SeverityMedium,
				Trend:     "neutral",
				Timestamp: now,
			})
		}
	}
	return alerts
}

func platformDivergence(readings []Reading) (decimal.Decimal, bool) {
	if len(readings) < 2 {
		return decimal.Zero, false
	}
	min := readings[0].OpenInterest
	max := readings[0].OpenInterest
	for _, r := range readings[1:] {
		if r.OpenInterest.LessThan(min) {
			min = r.OpenInterest
		}
		if r.OpenInterest.GreaterThan(max) {
			max = r.OpenInterest
		}
	}
	if min.IsZero() {
		return decimal.Zero, false
	}
	return max.Sub(min).DivRound(min, 8).Mul(decimal.NewFromInt(100)), true
}
