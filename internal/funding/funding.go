package funding

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
	PatternHighPositive = "FUNDING_HIGH_POSITIVE"
	PatternHighNegative = "FUNDING_HIGH_NEGATIVE"
	PatternDivergence   = "FUNDING_DIVERGENCE"
)

// Severity and pattern cutoffs, in funding percent.
var (
	cutoffCritical  = decimal.NewFromFloat(0.1)
	cutoffHigh      = decimal.NewFromFloat(0.05)
	cutoffMedium    = decimal.NewFromFloat(0.02)
	pressureCutoff  = decimal.NewFromFloat(0.05)
	divergenceLimit = decimal.NewFromFloat(0.02)
)

// Reading is one exchange's funding rate for a normalized symbol, already
// converted to percent.
type Reading struct {
	Symbol      string
	RatePct     decimal.Decimal
	MarkPrice   decimal.Decimal
	NextFunding time.Time
	Exchange    string
}

// ExchangeClient fetches funding rates for the tracked symbols from one
// derivatives venue.
type ExchangeClient interface {
	Name() string
	FundingRates(ctx context.Context, symbols []string) ([]Reading, error)
}

// SymbolFunding aggregates all exchange readings for one symbol.
type SymbolFunding struct {
	Symbol    string
	AvgPct    decimal.Decimal
	MinPct    decimal.Decimal
	MaxPct    decimal.Decimal
	Exchanges []string
	Readings  []Reading
	Level     alert.Severity
	Timestamp time.Time
}

// PatternAlert flags a funding-rate pattern worth surfacing.
type PatternAlert struct {
	Type      string
	Symbol    string
	RatePct   decimal.Decimal
	Message   string
	Severity  alert.Severity
	Exchanges []string
	Timestamp time.Time
}

// Aggregator polls multiple exchanges and merges their funding readings.
type Aggregator struct {
	clients []ExchangeClient
	symbols []string
	logger  zerolog.Logger
}

// NewAggregator wires exchange clients for the given symbol universe.
func NewAggregator(clients []ExchangeClient, symbols []string, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		clients: clients,
		symbols: symbols,
		logger:  logger.With().Str("component", "funding_aggregator").Logger(),
	}
}

// Collect fans out to every exchange concurrently and groups the results
// by symbol. A failing exchange contributes nothing and is logged.
func (a *Aggregator) Collect(ctx context.Context) []SymbolFunding {
	var (
		mu       sync.Mutex
		readings []Reading
		wg       sync.WaitGroup
	)

	for _, client := range a.clients {
		wg.Add(1)
		go func(client ExchangeClient) {
			defer wg.Done()
			rates, err := client.FundingRates(ctx, a.symbols)
			if err != nil {
				a.logger.Warn().Err(err).Str("exchange", client.Name()).Msg("funding rate fetch failed")
				return
			}
			mu.Lock()
			readings = append(readings, rates...)
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

	now := time.Now().UTC()
	out := make([]SymbolFunding, 0, len(symbols))
	for _, symbol := range symbols {
		group := grouped[symbol]
		sum := decimal.Zero
		min := group[0].RatePct
		max := group[0].RatePct
		exchanges := make([]string, 0, len(group))
		for _, r := range group {
			sum = sum.Add(r.RatePct)
			if r.RatePct.LessThan(min) {
				min = r.RatePct
			}
			if r.RatePct.GreaterThan(max) {
				max = r.RatePct
			}
			exchanges = append(exchanges, r.Exchange)
		}
		avg := sum.DivRound(decimal.NewFromInt(int64(len(group))), 8)

		out = append(out, SymbolFunding{
			Symbol:    symbol,
			AvgPct:    avg,
			MinPct:    min,
			MaxPct:    max,
			Exchanges: exchanges,
			Readings:  group,
			Level:     ClassifyRate(avg),
			Timestamp: now,
		})
	}
	return out
}

// Monitor runs one aggregation round and derives pattern alerts from it.
func (a *Aggregator) Monitor(ctx context.Context) ([]SymbolFunding, []PatternAlert) {
	rates := a.Collect(ctx)
	return rates, AnalyzePatterns(rates)
}

// ClassifyRate maps an average funding rate to a severity by absolute
// magnitude: >=0.1% critical, >=0.05% high, >=0.02% medium.
func ClassifyRate(avgPct decimal.Decimal) alert.Severity {
	abs := avgPct.Abs()
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

// AnalyzePatterns flags long-pressure, short-pressure, and cross-exchange
// divergence patterns.
func AnalyzePatterns(rates []SymbolFunding) []PatternAlert {
	var alerts []PatternAlert
	now := time.Now().UTC()

	for _, rate := range rates {
		if rate.AvgPct.GreaterThan(pressureCutoff) {
			alerts = append(alerts, PatternAlert{
				Type:      PatternHighPositive,
				Symbol:    rate.Symbol,
				RatePct:   rate.AvgPct,
				Message:   fmt.Sprintf("elevated funding rate on %s: +%s%% (long pressure)", rate.Symbol, rate.AvgPct.StringFixed(4)),
				Severity:  rate.Level,
				Exchanges: rate.Exchanges,
				Timestamp: now,
			})
		}

		if rate.AvgPct.LessThan(pressureCutoff.Neg()) {
			alerts = append(alerts, PatternAlert{
				Type:      PatternHighNegative,
				Symbol:    rate.Symbol,
				RatePct:   rate.AvgPct,
				Message:   fmt.Sprintf("deeply negative funding rate on %s: %s%% (short pressure)", rate.Symbol, rate.AvgPct.StringFixed(4)),
				Severity:  rate.Level,
				Exchanges: rate.Exchanges,
				Timestamp: now,
			})
		}

		spread := rate.MaxPct.Sub(rate.MinPct)
		if spread.GreaterThan(divergenceLimit) {
			alerts = append(alerts, PatternAlert{
				Type:      PatternDivergence,
				Symbol:    rate.Symbol,
				RatePct:   rate.AvgPct,
				Message:   fmt.Sprintf("funding divergence on %s: %s%% spread across exchanges", rate.Symbol, spread.StringFixed(4)),
				Severity:  alert.SeverityMedium,
				Exchanges: rate.Exchanges,
				Timestamp: now,
			})
		}
	}
	return alerts
}
