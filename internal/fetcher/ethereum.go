package fetcher

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
	"whalewatch/internal/prices"
)

const defaultEthereumTxLimit = 50

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256).
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// EthereumOptions parameterise the Ethereum whale scanner.
type EthereumOptions struct {
	RPCURL         string
	APIKey         string
	Timeout        time.Duration
	MinValueUSD    decimal.Decimal
	TxLimit        int
	RenderContract string
}

// Ethereum scans the newest Ethereum block for large value transfers and
// RNDR token transfers.
type Ethereum struct {
	opts       EthereumOptions
	logger     zerolog.Logger
	prices     prices.Source
	renderAddr common.Address

	clientMux  sync.Mutex
	client     *ethclient.Client
	lastHeight uint64
}

// NewEthereum builds an Ethereum scanner. The RPC connection is dialed
// lazily on first use.
func NewEthereum(opts EthereumOptions, priceSource prices.Source, logger zerolog.Logger) *Ethereum {
	if opts.TxLimit <= 0 {
		opts.TxLimit = defaultEthereumTxLimit
	}
	if opts.RenderContract == "" {
		opts.RenderContract = "0x6De037ef9aD2725EB40118Bb1702EBb27e4Aeb24"
	}
	return &Ethereum{
		opts:       opts,
		logger:     logger.With().Str("component", "ethereum_fetcher").Logger(),
		prices:     priceSource,
		renderAddr: common.HexToAddress(opts.RenderContract),
	}
}

// Scan fetches the latest block and classifies its transactions. Blocks
// already inspected in a previous cycle are skipped.
func (e *Ethereum) Scan(ctx context.Context) ([]alert.Alert, error) {
	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}

	height, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if height == e.lastHeight {
		return nil, nil
	}

	block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		e.logger.Warn().Err(err).Uint64("height", height).Msg("failed to fetch block transactions")
		return nil, nil
	}
	e.lastHeight = height

	quotes := e.prices.Current(ctx)

	var alerts []alert.Alert
	txs := block.Transactions()
	for i, tx := range txs {
		if i >= e.opts.TxLimit {
			break
		}
		if a := e.Classify(tx, height, quotes); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

// ScanHeight classifies one historical block without touching the tip
// cursor. Used by backfill.
func (e *Ethereum) ScanHeight(ctx context.Context, height uint64) ([]alert.Alert, error) {
	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}

	block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return nil, err
	}

	quotes := e.prices.Current(ctx)

	var alerts []alert.Alert
	for i, tx := range block.Transactions() {
		if i >= e.opts.TxLimit {
			break
		}
		if a := e.Classify(tx, height, quotes); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

// Classify converts a recognized transfer above the USD floor into an
// alert. Anything else yields nil.
func (e *Ethereum) Classify(tx *types.Transaction, height uint64, quotes prices.Prices) *alert.Alert {
	data := tx.Data()

	// Plain ETH value transfer.
	if len(data) == 0 && tx.Value() != nil && tx.Value().Sign() > 0 {
		amount := decimal.NewFromBigInt(tx.Value(), -18)
		valueUSD := amount.Mul(quotes.ETH)
		if valueUSD.LessThan(e.opts.MinValueUSD) {
			return nil
		}
		to := ""
		if tx.To() != nil {
			to = tx.To().Hex()
		}
		return &alert.Alert{
			Type:     string(alert.ChainETH),
			Amount:   amount,
			ValueUSD: valueUSD,
			Hash:     tx.Hash().Hex(),
			Block:    height,
			From:     e.senderOf(tx),
			To:       to,
		}
	}

	// ERC-20 transfer(address,uint256) against the RNDR contract.
	if len(data) >= 68 && bytes.Equal(data[:4], erc20TransferSelector) &&
		tx.To() != nil && *tx.To() == e.renderAddr {
		recipient := common.BytesToAddress(data[16:36])
		raw := new(big.Int).SetBytes(data[36:68])
		amount := decimal.NewFromBigInt(raw, -18)
		valueUSD := amount.Mul(quotes.RNDR)
		if valueUSD.LessThan(e.opts.MinValueUSD) {
			return nil
		}
		return &alert.Alert{
			Type:     string(alert.ChainRNDR),
			Amount:   amount,
			ValueUSD: valueUSD,
			Hash:     tx.Hash().Hex(),
			Block:    height,
			From:     e.senderOf(tx),
			To:       recipient.Hex(),
		}
	}

	return nil
}

func (e *Ethereum) senderOf(tx *types.Transaction) string {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return ""
	}
	return from.Hex()
}

func (e *Ethereum) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	rpcURL := e.dialURL()
	if rpcURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

func (e *Ethereum) dialURL() string {
	url := e.opts.RPCURL
	if strings.Contains(url, "{key}") {
		if e.opts.APIKey == "" {
			return ""
		}
		url = strings.ReplaceAll(url, "{key}", e.opts.APIKey)
	}
	return url
}

var _ WhaleScanner = (*Ethereum)(nil)
