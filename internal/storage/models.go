package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is a persisted whale alert row. The in-memory session list
// is capped; the database keeps the full history for export and backfill.
type AlertRecord struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	ValueUSD  decimal.Decimal `json:"value_usd"`
	Hash      string          `json:"hash"`
	Block     *int64          `json:"block,omitempty"`
	FromAddr  string          `json:"from,omitempty"`
	ToAddr    string          `json:"to,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Severity  string          `json:"severity,omitempty"`
	Message   string          `json:"message,omitempty"`
	Synthetic bool            `json:"is_test,omitempty"`
	AlertTS   time.Time       `json:"timestamp"`
	CreatedAt time.Time       `json:"created_at"`
}
