package alert

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies one of the monitored asset networks.
type Chain string

const (
	ChainETH  Chain = "ETH"
	ChainBTC  Chain = "BTC"
	ChainSOL  Chain = "SOL"
	ChainRNDR Chain = "RNDR"
)

// AllChains lists every supported chain tag in display order.
var AllChains = []Chain{ChainETH, ChainBTC, ChainSOL, ChainRNDR}

// Valid reports whether the chain is one of the supported tags.
func (c Chain) Valid() bool {
	switch c {
	case ChainETH, ChainBTC, ChainSOL, ChainRNDR:
		return true
	}
	return false
}

// Severity classifies aggregate alerts by fixed magnitude cutoffs.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityNormal   Severity = "normal"
)

// Alert is a single detected whale event. Transaction alerts carry a chain
// tag in Type plus the native amount; funding/open-interest pattern alerts
// carry a pattern tag, a symbol, and a zero USD value.
type Alert struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	ValueUSD  decimal.Decimal `json:"value_usd"`
	Hash      string          `json:"hash"`
	Block     uint64          `json:"block,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Severity  Severity        `json:"severity,omitempty"`
	Message   string          `json:"message,omitempty"`
	Synthetic bool            `json:"is_test,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChainStat accumulates per-chain counters. Never decremented.
type ChainStat struct {
	Alerts int64           `json:"alerts"`
	Volume decimal.Decimal `json:"volume"`
}

// Stats aggregates every alert ever added, including entries already
// evicted from the capped list.
type Stats struct {
	TotalAlerts  int64               `json:"totalAlerts"`
	TotalValue   decimal.Decimal     `json:"totalValue"`
	AverageValue decimal.Decimal     `json:"averageValue"`
	LastAlert    *Alert              `json:"lastAlert,omitempty"`
	ChainStats   map[Chain]ChainStat `json:"chainStats"`
}

func zeroStats() Stats {
	stats := Stats{
		TotalValue:   decimal.Zero,
		AverageValue: decimal.Zero,
		ChainStats:   make(map[Chain]ChainStat, len(AllChains)),
	}
	for _, chain := range AllChains {
		stats.ChainStats[chain] = ChainStat{Volume: decimal.Zero}
	}
	return stats
}
