package funding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBybitFundingRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/funding/history" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("category") != "linear" {
			t.Fatalf("category must be linear, got %s", r.URL.Query().Get("category"))
		}
		symbol := r.URL.Query().Get("symbol")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"retCode": 0,
			"result": {"list": [{"symbol": "` + symbol + `", "fundingRate": "0.0006", "fundingRateTimestamp": "1"}]}
		}`))
	}))
	defer srv.Close()

	client := NewBybitClient(srv.URL, time.Second)
	readings, err := client.FundingRates(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("bybit fetch failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	// 0.0006 fraction = 0.06 percent.
	if !readings[0].RatePct.Equal(decimal.NewFromFloat(0.06)) {
		t.Fatalf("rate must be converted to percent, got %s", readings[0].RatePct)
	}
	if readings[0].Exchange != "Bybit" {
		t.Fatalf("exchange tag mismatch: %s", readings[0].Exchange)
	}
}

func TestBybitFundingRatesSkipsErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"retCode": 10001, "retMsg": "params error", "result": {"list": []}}`))
	}))
	defer srv.Close()

	client := NewBybitClient(srv.URL, time.Second)
	readings, err := client.FundingRates(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("error codes degrade to empty, got %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("expected no readings, got %d", len(readings))
	}
}

func TestOKXFundingRatesNormalizesSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/public/funding-rate-history" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		instID := r.URL.Query().Get("instId")
		if instID != "BTC-USDT-SWAP" {
			t.Fatalf("instId must be the OKX form, got %s", instID)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "0",
			"data": [{"instId": "BTC-USDT-SWAP", "fundingRate": "-0.0002", "fundingTime": "1"}]
		}`))
	}))
	defer srv.Close()

	client := NewOKXClient(srv.URL, time.Second)
	readings, err := client.FundingRates(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("okx fetch failed: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(readings))
	}
	if readings[0].Symbol != "BTCUSDT" {
		t.Fatalf("symbol must be normalized back, got %s", readings[0].Symbol)
	}
	if !readings[0].RatePct.Equal(decimal.NewFromFloat(-0.02)) {
		t.Fatalf("rate must be converted to percent, got %s", readings[0].RatePct)
	}
}

func TestOKXFundingRatesSkipsUnknownSymbols(t *testing.T) {
	client := NewOKXClient("http://127.0.0.1:1", time.Second)
	readings, err := client.FundingRates(context.Background(), []string{"BTCUSD"})
	if err != nil {
		t.Fatalf("unmappable symbols are skipped, got %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("expected no readings, got %d", len(readings))
	}
}
