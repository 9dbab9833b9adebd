package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"whalewatch/internal/alert"
)

// Notifier delivers a whale alert to an outbound channel.
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) error
}

// TelegramNotifier pushes alert text through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered alert via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, a alert.Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(a),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("type", a.Type).
		Str("hash", a.Hash).
		Str("value_usd", a.ValueUSD.String()).
		Msg("alert sent (Telegram)")
	return nil
}

// DiscordNotifier posts alerts to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs the Discord webhook notifier.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Notify posts the rendered alert as webhook content.
func (n *DiscordNotifier) Notify(ctx context.Context, a alert.Alert) error {
	payload := map[string]string{
		"content": renderMessage(a),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord unexpected status: %d", resp.StatusCode)
	}

	n.logger.Info().Str("type", a.Type).
		Str("hash", a.Hash).
		Str("value_usd", a.ValueUSD.String()).
		Msg("alert sent (Discord)")
	return nil
}

// MultiNotifier fans one alert out to every configured channel. Channel
// failures are logged and do not block the remaining channels.
type MultiNotifier struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewMultiNotifier wraps the given channels.
func NewMultiNotifier(logger zerolog.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "alert_multi").Logger(),
	}
}

// Notify delivers to every channel, returning the last error seen.
func (n *MultiNotifier) Notify(ctx context.Context, a alert.Alert) error {
	var lastErr error
	for _, notifier := range n.notifiers {
		if err := notifier.Notify(ctx, a); err != nil {
			n.logger.Warn().Err(err).Str("hash", a.Hash).Msg("notifier channel failed")
			lastErr = err
		}
	}
	return lastErr
}

func renderMessage(a alert.Alert) string {
	builder := strings.Builder{}
	builder.WriteString("🐋 [Whale Alert]\n")
	builder.WriteString(fmt.Sprintf("Type: %s\n", a.Type))
	if !a.Amount.IsZero() {
		builder.WriteString(fmt.Sprintf("Amount: %s %s\n", a.Amount.String(), a.Type))
	}
	builder.WriteString(fmt.Sprintf("Value: $%s\n", a.ValueUSD.StringFixed(0)))
	if a.Hash != "" {
		builder.WriteString(fmt.Sprintf("Tx: %s\n", a.Hash))
	}
	if a.Block > 0 {
		builder.WriteString(fmt.Sprintf("Block: %d\n", a.Block))
	}
	if a.From != "" || a.To != "" {
		builder.WriteString(fmt.Sprintf("From: %s\nTo: %s\n", a.From, a.To))
	}
	if a.Message != "" {
		builder.WriteString(a.Message + "\n")
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC", a.Timestamp.UTC().Format(time.RFC3339)))
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*DiscordNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
)
