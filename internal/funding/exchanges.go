package funding

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
)

const hundred = 100

var pctFactor = decimal.NewFromInt(hundred)

// BinanceClient reads funding rates from the Binance USD-M futures
// premium index endpoint.
type BinanceClient struct {
	client *futures.Client
}

// NewBinanceClient builds the Binance funding client. baseURL overrides
// the production endpoint (tests).
func NewBinanceClient(baseURL string) *BinanceClient {
	client := futures.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceClient{client: client}
}

func (c *BinanceClient) Name() string { return "Binance" }

// FundingRates fetches the full premium index and keeps tracked symbols.
func (c *BinanceClient) FundingRates(ctx context.Context, symbols []string) ([]Reading, error) {
	index, err := c.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance premium index: %w", err)
	}

	tracked := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		tracked[symbol] = true
	}

	readings := make([]Reading, 0, len(symbols))
	for _, item := range index {
		if !tracked[item.Symbol] {
			continue
		}
		rate, err := decimal.NewFromString(item.LastFundingRate)
		if err != nil {
			continue
		}
		mark, _ := decimal.NewFromString(item.MarkPrice)
		readings = append(readings, Reading{
			Symbol:      item.Symbol,
			RatePct:     rate.Mul(pctFactor),
			MarkPrice:   mark,
			NextFunding: time.UnixMilli(item.NextFundingTime).UTC(),
			Exchange:    c.Name(),
		})
	}
	return readings, nil
}

// BybitClient reads funding history from the Bybit v5 market API.
type BybitClient struct {
	baseURL string
	client  *http.Client
}

// NewBybitClient builds the Bybit funding client.
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

type bybitFundingResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol      string `json:"symbol"`
			FundingRate string `json:"fundingRate"`
			Timestamp   string `json:"fundingRateTimestamp"`
		} `json:"list"`
	} `json:"result"`
}

// FundingRates fetches the most recent funding record per symbol.
func (c *BybitClient) FundingRates(ctx context.Context, symbols []string) ([]Reading, error) {
	readings := make([]Reading, 0, len(symbols))
	for _, symbol := range symbols {
		params := url.Values{}
		params.Set("category", "linear")
		params.Set("symbol", symbol)
		params.Set("limit", "1")

		var parsed bybitFundingResponse
		if err := getJSON(ctx, c.client, c.baseURL+"/v5/market/funding/history?"+params.Encode(), &parsed); err != nil {
			return nil, fmt.Errorf("bybit funding history %s: %w", symbol, err)
		}
		if parsed.RetCode != 0 || len(parsed.Result.List) == 0 {
			continue
		}

		item := parsed.Result.List[0]
		rate, err := decimal.NewFromString(item.FundingRate)
		if err != nil {
			continue
		}
		readings = append(readings, Reading{
			Symbol:   item.Symbol,
			RatePct:  rate.Mul(pctFactor),
			Exchange: c.Name(),
		})
	}
	return readings, nil
}

// OKXClient reads funding history from the OKX v5 public API.
type OKXClient struct {
	baseURL string
	client  *http.Client
}

// NewOKXClient builds the OKX funding client.
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

type okxFundingResponse struct {
	Code string `json:"code"`
	Data []struct {
		InstID      string `json:"instId"`
		FundingRate string `json:"fundingRate"`
		FundingTime string `json:"fundingTime"`
	} `json:"data"`
}

// FundingRates fetches the most recent funding record per symbol. OKX
// instrument IDs are normalized back to the common symbol form.
func (c *OKXClient) FundingRates(ctx context.Context, symbols []string) ([]Reading, error) {
	readings := make([]Reading, 0, len(symbols))
	for _, symbol := range symbols {
		instID := OKXInstID(symbol)
		if instID == "" {
			continue
		}
		params := url.Values{}
		params.Set("instId", instID)
		params.Set("limit", "1")

		var parsed okxFundingResponse
		if err := getJSON(ctx, c.client, c.baseURL+"/api/v5/public/funding-rate-history?"+params.Encode(), &parsed); err != nil {
			return nil, fmt.Errorf("okx funding history %s: %w", instID, err)
		}
		if parsed.Code != "0" || len(parsed.Data) == 0 {
			continue
		}

		rate, err := decimal.NewFromString(parsed.Data[0].FundingRate)
		if err != nil {
			continue
		}
		readings = append(readings, Reading{
			Symbol:   NormalizeOKXSymbol(parsed.Data[0].InstID),
			RatePct:  rate.Mul(pctFactor),
			Exchange: c.Name(),
		})
	}
	return readings, nil
}

// OKXInstID converts a common symbol (BTCUSDT) to the OKX perpetual
// instrument ID (BTC-USDT-SWAP).
func OKXInstID(symbol string) string {
	base, ok := strings.CutSuffix(symbol, "USDT")
	if !ok || base == "" {
		return ""
	}
	return base + "-USDT-SWAP"
}

// NormalizeOKXSymbol converts an OKX instrument ID back to the common
// symbol form.
func NormalizeOKXSymbol(instID string) string {
	return strings.ReplaceAll(strings.TrimSuffix(instID, "-SWAP"), "-", "")
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
