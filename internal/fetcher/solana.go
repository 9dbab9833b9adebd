package fetcher

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
	"whalewatch/internal/prices"
)

const defaultSolanaTxLimit = 20

// renderMintAddress is the RNDR SPL token mint on mainnet.
const renderMintAddress = "rndrizKT3MK1iimdxRdWabcF7Zg7AR5T4nud4EkHBof"

// SolanaOptions parameterise the Solana whale scanner.
type SolanaOptions struct {
	RPCURL      string
	Timeout     time.Duration
	MinValueUSD decimal.Decimal
	TxLimit     int
	RenderMint  string
}

// Solana scans the latest finalized slot for large System Program
// transfers and RNDR SPL token movements.
type Solana struct {
	opts       SolanaOptions
	logger     zerolog.Logger
	client     *rpc.Client
	renderMint solana.PublicKey
	lastSlot   uint64
	prices     prices.Source
}

// NewSolana builds a Solana scanner.
func NewSolana(opts SolanaOptions, priceSource prices.Source, logger zerolog.Logger) *Solana {
	if opts.RPCURL == "" {
		opts.RPCURL = rpc.MainNetBeta_RPC
	}
	if opts.TxLimit <= 0 {
		opts.TxLimit = defaultSolanaTxLimit
	}
	mint := opts.RenderMint
	if mint == "" {
		mint = renderMintAddress
	}

	return &Solana{
		opts:       opts,
		logger:     logger.With().Str("component", "solana_fetcher").Logger(),
		client:     rpc.New(opts.RPCURL),
		renderMint: solana.MustPublicKeyFromBase58(mint),
		prices:     priceSource,
	}
}

// Scan fetches the latest finalized slot and classifies its transactions.
func (s *Solana) Scan(ctx context.Context) ([]alert.Alert, error) {
	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	slot, err := s.client.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, err
	}
	if slot == s.lastSlot {
		return nil, nil
	}

	maxVersion := uint64(0)
	includeRewards := false
	block, err := s.client.GetBlockWithOpts(ctx, slot, &rpc.GetBlockOpts{
		Encoding:                       solana.EncodingBase64,
		TransactionDetails:             rpc.TransactionDetailsFull,
		Rewards:                        &includeRewards,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint64("slot", slot).Msg("failed to fetch block")
		s.lastSlot = slot
		return nil, nil
	}
	s.lastSlot = slot

	quotes := s.prices.Current(ctx)

	var alerts []alert.Alert
	for i, txWithMeta := range block.Transactions {
		if i >= s.opts.TxLimit {
			break
		}
		parsed, err := txWithMeta.GetTransaction()
		if err != nil || parsed == nil {
			continue
		}
		if a := s.Classify(parsed, txWithMeta.Meta, slot, quotes); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

// Classify inspects the transaction instructions: System Program transfers
// become SOL alerts measured by lamport balance deltas, Token Program
// instructions touching the RNDR mint become RNDR alerts.
func (s *Solana) Classify(tx *solana.Transaction, meta *rpc.TransactionMeta, slot uint64, quotes prices.Prices) *alert.Alert {
	if tx == nil || meta == nil || meta.Err != nil || len(tx.Signatures) == 0 {
		return nil
	}

	signature := tx.Signatures[0].String()
	keys := tx.Message.AccountKeys

	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			continue
		}
		program := keys[inst.ProgramIDIndex]

		if program.Equals(solana.SystemProgramID) {
			if a := s.classifySystemTransfer(meta, signature, slot, quotes.SOL); a != nil {
				return a
			}
		}

		if program.Equals(solana.TokenProgramID) {
			if a := s.classifyTokenTransfer(meta, signature, slot, quotes.RNDR); a != nil {
				return a
			}
		}
	}

	return nil
}

func (s *Solana) classifySystemTransfer(meta *rpc.TransactionMeta, signature string, slot uint64, solPrice decimal.Decimal) *alert.Alert {
	var movedLamports uint64
	for i := 0; i < len(meta.PreBalances) && i < len(meta.PostBalances); i++ {
		if meta.PreBalances[i] > meta.PostBalances[i] {
			movedLamports += meta.PreBalances[i] - meta.PostBalances[i]
		}
	}
	if movedLamports == 0 {
		return nil
	}

	amount := decimal.New(int64(movedLamports), -9)
	valueUSD := amount.Mul(solPrice)
	if valueUSD.LessThan(s.opts.MinValueUSD) {
		return nil
	}

	return &alert.Alert{
		Type:     string(alert.ChainSOL),
		Amount:   amount,
		ValueUSD: valueUSD,
		Hash:     signature,
		Block:    slot,
	}
}

func (s *Solana) classifyTokenTransfer(meta *rpc.TransactionMeta, signature string, slot uint64, rndrPrice decimal.Decimal) *alert.Alert {
	post := make(map[uint16]float64, len(meta.PostTokenBalances))
	for _, balance := range meta.PostTokenBalances {
		if balance.Mint.Equals(s.renderMint) && balance.UiTokenAmount != nil && balance.UiTokenAmount.UiAmount != nil {
			post[balance.AccountIndex] = *balance.UiTokenAmount.UiAmount
		}
	}

	for _, balance := range meta.PreTokenBalances {
		if !balance.Mint.Equals(s.renderMint) || balance.UiTokenAmount == nil || balance.UiTokenAmount.UiAmount == nil {
			continue
		}
		diff := *balance.UiTokenAmount.UiAmount - post[balance.AccountIndex]
		if diff <= 0 {
			continue
		}

		amount := decimal.NewFromFloat(diff)
		valueUSD := amount.Mul(rndrPrice)
		if valueUSD.LessThan(s.opts.MinValueUSD) {
			continue
		}

		return &alert.Alert{
			Type:     string(alert.ChainRNDR),
			Amount:   amount,
			ValueUSD: valueUSD,
			Hash:     signature,
			Block:    slot,
		}
	}

	return nil
}

var _ WhaleScanner = (*Solana)(nil)
