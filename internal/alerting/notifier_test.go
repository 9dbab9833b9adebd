package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

func testAlert() alert.Alert {
	return alert.Alert{
		Type:      "BTC",
		Amount:    decimal.NewFromInt(12),
		ValueUSD:  decimal.NewFromInt(600_000),
		Hash:      "whale-tx",
		Block:     900_000,
		From:      "Binance",
		To:        "Cold Storage",
		Timestamp: time.Now().UTC(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id incorrect: %#v", received)
	}
	if !strings.Contains(received["text"], "whale-tx") {
		t.Fatalf("text should carry the tx hash: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false should error")
	}
}

func TestDiscordNotifierSuccess(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("discord notify should succeed: %v", err)
	}
	if !strings.Contains(received["content"], "$600000") {
		t.Fatalf("content should carry the USD value: %q", received["content"])
	}
}

func TestDiscordNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("error status should propagate")
	}
}

func TestMultiNotifierContinuesPastFailures(t *testing.T) {
	broken := NewDiscordNotifier("http://127.0.0.1:1", time.Millisecond*100, testLogger())

	delivered := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	healthy := NewDiscordNotifier(srv.URL, time.Second, testLogger())

	multi := NewMultiNotifier(testLogger(), broken, healthy)
	if err := multi.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("multi notifier should surface the channel failure")
	}
	if !delivered {
		t.Fatal("healthy channel must still receive the alert")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
