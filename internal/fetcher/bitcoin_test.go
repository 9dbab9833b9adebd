package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
	"whalewatch/internal/prices"
)

type staticPrices struct {
	quotes prices.Prices
}

func (s staticPrices) Current(ctx context.Context) prices.Prices {
	return s.quotes
}

func testQuotes() prices.Prices {
	return prices.Prices{
		BTC:  decimal.NewFromInt(50_000),
		ETH:  decimal.NewFromInt(2_000),
		SOL:  decimal.NewFromInt(100),
		RNDR: decimal.NewFromInt(5),
	}
}

func esploraServer(t *testing.T, tipHeight string, txsJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tipHeight))
	})
	mux.HandleFunc("/block-height/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("000000000000000000021f4a0a1b2c3d"))
	})
	mux.HandleFunc("/block/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(txsJSON))
	})
	return httptest.NewServer(mux)
}

func TestBitcoinScanProducesAlerts(t *testing.T) {
	// Two outputs summing to 5 BTC at $50k = $250k, above the floor.
	txs := `[
		{"txid": "whale-tx", "vout": [{"value": 300000000}, {"value": 200000000}], "status": {"block_height": 900001}},
		{"txid": "dust-tx", "vout": [{"value": 1000}], "status": {"block_height": 900001}}
	]`
	srv := esploraServer(t, "900001", txs)
	defer srv.Close()

	scanner := NewBitcoin(BitcoinOptions{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MinValueUSD: decimal.NewFromInt(100_000),
	}, staticPrices{testQuotes()}, zerolog.Nop())

	alerts, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	a := alerts[0]
	if a.Type != string(alert.ChainBTC) {
		t.Fatalf("alert type mismatch: %s", a.Type)
	}
	if !a.Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("amount should be 5 BTC, got %s", a.Amount)
	}
	if !a.ValueUSD.Equal(decimal.NewFromInt(250_000)) {
		t.Fatalf("value should be $250000, got %s", a.ValueUSD)
	}
	if a.Hash != "whale-tx" || a.Block != 900001 {
		t.Fatalf("hash/block mismatch: %s %d", a.Hash, a.Block)
	}
}

func TestBitcoinScanSkipsRepeatedHeight(t *testing.T) {
	txs := `[{"txid": "whale-tx", "vout": [{"value": 500000000}], "status": {"block_height": 900002}}]`
	srv := esploraServer(t, "900002", txs)
	defer srv.Close()

	scanner := NewBitcoin(BitcoinOptions{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MinValueUSD: decimal.NewFromInt(100_000),
	}, staticPrices{testQuotes()}, zerolog.Nop())

	first, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first scan should alert, got %d", len(first))
	}

	second, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("unchanged tip must be skipped, got %d alerts", len(second))
	}
}

func TestBitcoinScanRespectsTxLimit(t *testing.T) {
	txs := `[
		{"txid": "a", "vout": [{"value": 500000000}], "status": {}},
		{"txid": "b", "vout": [{"value": 500000000}], "status": {}},
		{"txid": "c", "vout": [{"value": 500000000}], "status": {}}
	]`
	srv := esploraServer(t, "900003", txs)
	defer srv.Close()

	scanner := NewBitcoin(BitcoinOptions{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MinValueUSD: decimal.NewFromInt(100_000),
		TxLimit:     2,
	}, staticPrices{testQuotes()}, zerolog.Nop())

	alerts, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("tx limit must cap classification, got %d", len(alerts))
	}
}

func TestBitcoinClassifyBelowFloor(t *testing.T) {
	scanner := NewBitcoin(BitcoinOptions{
		MinValueUSD: decimal.NewFromInt(100_000),
	}, staticPrices{testQuotes()}, zerolog.Nop())

	tx := esploraTx{TxID: "small"}
	tx.Vout = append(tx.Vout, struct {
		Value int64 `json:"value"`
	}{Value: 100_000_000})

	if a := scanner.Classify(tx, 1, decimal.NewFromInt(50_000)); a != nil {
		t.Fatalf("1 BTC at $50k is below the floor, got alert %+v", a)
	}
}
