package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
	"whalewatch/internal/prices"
)

const defaultBitcoinTxLimit = 10

// BitcoinOptions parameterise the Esplora-backed Bitcoin scanner.
type BitcoinOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MinValueUSD decimal.Decimal
	TxLimit     int
	UserAgent   string
}

// Bitcoin scans the chain tip via an Esplora-compatible block explorer.
type Bitcoin struct {
	opts       BitcoinOptions
	logger     zerolog.Logger
	client     *http.Client
	baseURL    string
	lastHeight uint64
	prices     prices.Source
}

// NewBitcoin builds a Bitcoin scanner.
func NewBitcoin(opts BitcoinOptions, priceSource prices.Source, logger zerolog.Logger) *Bitcoin {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.TxLimit <= 0 {
		opts.TxLimit = defaultBitcoinTxLimit
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://blockstream.info/api"
	}

	return &Bitcoin{
		opts:    opts,
		logger:  logger.With().Str("component", "bitcoin_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		prices:  priceSource,
	}
}

type esploraTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		Value int64 `json:"value"`
	} `json:"vout"`
	Status struct {
		BlockHeight uint64 `json:"block_height"`
	} `json:"status"`
}

// Scan reads the tip height, resolves its block hash, and classifies the
// first transactions of the block.
func (b *Bitcoin) Scan(ctx context.Context) ([]alert.Alert, error) {
	height, err := b.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	if height == b.lastHeight {
		return nil, nil
	}

	txs := b.Transactions(ctx, height)
	b.lastHeight = height
	if len(txs) == 0 {
		return nil, nil
	}

	quotes := b.prices.Current(ctx)

	var alerts []alert.Alert
	for i, tx := range txs {
		if i >= b.opts.TxLimit {
			break
		}
		if a := b.Classify(tx, height, quotes.BTC); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

// ScanHeight classifies one historical block without touching the tip
// cursor. Used by backfill.
func (b *Bitcoin) ScanHeight(ctx context.Context, height uint64) ([]alert.Alert, error) {
	txs := b.Transactions(ctx, height)
	if len(txs) == 0 {
		return nil, nil
	}

	quotes := b.prices.Current(ctx)

	var alerts []alert.Alert
	for i, tx := range txs {
		if i >= b.opts.TxLimit {
			break
		}
		if a := b.Classify(tx, height, quotes.BTC); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

// LatestHeight fetches the current chain tip height.
func (b *Bitcoin) LatestHeight(ctx context.Context) (uint64, error) {
	body, err := b.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tip height: %w", err)
	}
	return height, nil
}

// Transactions returns the transactions of the block at the given height.
// Any fetch or parse failure degrades to an empty slice.
func (b *Bitcoin) Transactions(ctx context.Context, height uint64) []esploraTx {
	hashBody, err := b.get(ctx, fmt.Sprintf("/block-height/%d", height))
	if err != nil {
		b.logger.Warn().Err(err).Uint64("height", height).Msg("failed to resolve block hash")
		return nil
	}
	blockHash := strings.TrimSpace(string(hashBody))

	txBody, err := b.get(ctx, "/block/"+blockHash+"/txs")
	if err != nil {
		b.logger.Warn().Err(err).Str("block", blockHash).Msg("failed to fetch block transactions")
		return nil
	}

	var txs []esploraTx
	if err := json.Unmarshal(txBody, &txs); err != nil {
		b.logger.Warn().Err(err).Str("block", blockHash).Msg("failed to decode block transactions")
		return nil
	}
	return txs
}

// Classify sums the transaction outputs and converts satoshis to BTC. The
// alert carries the total moved value, not per-output splits.
func (b *Bitcoin) Classify(tx esploraTx, height uint64, btcPrice decimal.Decimal) *alert.Alert {
	var totalSats int64
	for _, out := range tx.Vout {
		totalSats += out.Value
	}
	if totalSats <= 0 {
		return nil
	}

	amount := decimal.New(totalSats, -8)
	valueUSD := amount.Mul(btcPrice)
	if valueUSD.LessThan(b.opts.MinValueUSD) {
		return nil
	}

	block := tx.Status.BlockHeight
	if block == 0 {
		block = height
	}

	return &alert.Alert{
		Type:     string(alert.ChainBTC),
		Amount:   amount,
		ValueUSD: valueUSD,
		Hash:     tx.TxID,
		Block:    block,
	}
}

func (b *Bitcoin) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esplora status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

var _ WhaleScanner = (*Bitcoin)(nil)
