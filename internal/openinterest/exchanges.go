package openinterest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"whalewatch/internal/funding"
)

// BinanceClient reads open interest from the Binance USD-M futures API.
type BinanceClient struct {
	client *futures.Client
}

// NewBinanceClient builds the Binance open interest client. baseURL
// overrides the production endpoint (tests).
func NewBinanceClient(baseURL string) *BinanceClient {
	client := futures.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceClient{client: client}
}

func (c *BinanceClient) Name() string { return "Binance" }

// OpenInterest fetches the current open interest per tracked symbol.
// Binance reports contract units only; the USD notional stays zero.
func (c *BinanceClient) OpenInterest(ctx context.Context, symbols []string) ([]Reading, error) {
	readings := make([]Reading, 0, len(symbols))
	for _, symbol := range symbols {
		res, err := c.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance open interest %s: %w", symbol, err)
		}
		oi, err := decimal.NewFromString(res.OpenInterest)
		if err != nil {
			continue
		}
		readings = append(readings, Reading{
			Symbol:       res.Symbol,
			OpenInterest: oi,
			ValueUSD:     decimal.Zero,
			Exchange:     c.Name(),
			Timestamp:    time.Now().UTC(),
		})
	}
	return readings, nil
}

// BybitClient reads open interest from the Bybit v5 market API.
type BybitClient struct {
	baseURL string
	client  *http.Client
}

// NewBybitClient builds the Bybit open interest client.
func NewBybitClient(baseURL string, timeout time.Duration) *BybitClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	return &BybitClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *BybitClient) Name() string { return "Bybit" }

type bybitOIResponse struct {
	RetCode int `json:"retCode"`
	Result  struct {
		Symbol string `json:"symbol"`
		List   []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	} `json:"result"`
}

// OpenInterest fetches the latest hourly open interest point per symbol.
func (c *BybitClient) OpenInterest(ctx context.Context, symbols []string) ([]Reading, error) {
	readings := make([]Reading, 0, len(symbols))
	for _, symbol := range symbols {
		params := url.Values{}
		params.Set("category", "linear")
		params.Set("symbol", symbol)
		params.Set("intervalTime", "1h")
		params.Set("limit", "1")

		var parsed bybitOIResponse
		if err := c.getJSON(ctx, c.baseURL+"/v5/market/open-interest?"+params.Encode(), &parsed); err != nil {
			return nil, fmt.Errorf("bybit open interest %s: %w", symbol, err)
		}
		if parsed.RetCode != 0 || len(parsed.Result.List) == 0 {
			continue
		}

		oi, err := decimal.NewFromString(parsed.Result.List[0].OpenInterest)
		if err != nil {
			continue
		}
		readings = append(readings, Reading{
			Symbol:       symbol,
			OpenInterest: oi,
			ValueUSD:     decimal.Zero,
			Exchange:     c.Name(),
			Timestamp:    time.Now().UTC(),
		})
	}
	return readings, nil
}

func (c *BybitClient) getJSON(ctx context.Context, endpoint string, out any) error {
	return getJSON(ctx, c.client, endpoint, out)
}

// OKXClient reads open interest from the OKX v5 public API.
type OKXClient struct {
	baseURL string
	client  *http.Client
}

// NewOKXClient builds the OKX open interest client.
func NewOKXClient(baseURL string, timeout time.Duration) *OKXClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://www.okx.com"
	}
	return &OKXClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *OKXClient) Name() string { return "OKX" }

type okxOIResponse struct {
	Code string `json:"code"`
	Data []struct {
		InstID string `json:"instId"`
		OI     string `json:"oi"`
		OIUSD  string `json:"oiUsd"`
	} `json:"data"`
}

// OpenInterest fetches the current open interest per symbol. OKX also
// reports the USD notional, which feeds the extreme-notional pattern.
func (c *OKXClient) OpenInterest(ctx context.Context, symbols []string) ([]Reading, error) {
	readings := make([]Reading, 0, len(symbols))
	for _, symbol := range symbols {
		instID := funding.OKXInstID(symbol)
		if instID == "" {
			continue
		}
		params := url.Values{}
		params.Set("instId", instID)

		var parsed okxOIResponse
		if err := getJSON(ctx, c.client, c.baseURL+"/api/v5/public/open-interest?"+params.Encode(), &parsed); err != nil {
			return nil, fmt.Errorf("okx open interest %s: %w", instID, err)
		}
		if parsed.Code != "0" || len(parsed.Data) == 0 {
			continue
		}

		oi, err := decimal.NewFromString(parsed.Data[0].OI)
		if err != nil {
			continue
		}
		valueUSD := decimal.Zero
		if v, err := decimal.NewFromString(parsed.Data[0].OIUSD); err == nil {
			valueUSD = v
		}
		readings = append(readings, Reading{
			Symbol:       funding.NormalizeOKXSymbol(parsed.Data[0].InstID),
			OpenInterest: oi,
			ValueUSD:     valueUSD,
			Exchange:     c.Name(),
			Timestamp:    time.Now().UTC(),
		})
	}
	return readings, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

var (
	_ ExchangeClient = (*BinanceClient)(nil)
	_ ExchangeClient = (*BybitClient)(nil)
	_ ExchangeClient = (*OKXClient)(nil)
)
