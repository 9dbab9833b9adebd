package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const simplePricePath = "/simple/price"

// Fallback prices used when the price API is unreachable. Classification
// keeps working at the cost of a stale conversion rate.
var (
	fallbackBTC  = decimal.NewFromInt(45000)
	fallbackETH  = decimal.NewFromInt(2000)
	fallbackSOL  = decimal.NewFromInt(100)
	fallbackRNDR = decimal.NewFromInt(5)
)

// Prices holds the latest USD quote per monitored asset.
type Prices struct {
	BTC  decimal.Decimal
	ETH  decimal.Decimal
	SOL  decimal.Decimal
	RNDR decimal.Decimal
}

// Fallback returns the hardcoded degraded-mode quotes.
func Fallback() Prices {
	return Prices{BTC: fallbackBTC, ETH: fallbackETH, SOL: fallbackSOL, RNDR: fallbackRNDR}
}

// Source supplies the latest asset prices to the chain fetchers.
type Source interface {
	Current(ctx context.Context) Prices
}

// Options parameterise the CoinGecko client.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches spot prices from the CoinGecko simple-price endpoint.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a price client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "price_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Current returns the latest quotes, substituting fallbacks on any failure.
// The degradation is logged but never surfaced to the caller.
func (c *Client) Current(ctx context.Context) Prices {
	quotes, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("price lookup failed, using fallback prices")
		return Fallback()
	}
	return quotes
}

func (c *Client) fetch(ctx context.Context) (Prices, error) {
	params := url.Values{}
	params.Set("ids", "bitcoin,ethereum,solana,render-token")
	params.Set("vs_currencies", "usd")
	if c.opts.APIKey != "" {
		params.Set("x_cg_demo_api_key", c.opts.APIKey)
	}

	endpoint := c.baseURL + simplePricePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Prices{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Prices{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prices{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Prices{}, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed map[string]struct {
		USD decimal.Decimal `json:"usd"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Prices{}, fmt.Errorf("decode simple price payload: %w", err)
	}

	quotes := Fallback()
	if entry, ok := parsed["bitcoin"]; ok && entry.USD.IsPositive() {
		quotes.BTC = entry.USD
	}
	if entry, ok := parsed["ethereum"]; ok && entry.USD.IsPositive() {
		quotes.ETH = entry.USD
	}
	if entry, ok := parsed["solana"]; ok && entry.USD.IsPositive() {
		quotes.SOL = entry.USD
	}
	if entry, ok := parsed["render-token"]; ok && entry.USD.IsPositive() {
		quotes.RNDR = entry.USD
	}
	return quotes, nil
}

var _ Source = (*Client)(nil)
