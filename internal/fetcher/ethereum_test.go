package fetcher

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

func newEthScanner(t *testing.T) *Ethereum {
	t.Helper()
	return NewEthereum(EthereumOptions{
		MinValueUSD: decimal.NewFromInt(100_000),
	}, staticPrices{testQuotes()}, zerolog.Nop())
}

func ethValue(eth int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(eth))
}

func TestEthereumClassifyValueTransfer(t *testing.T) {
	scanner := newEthScanner(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	// 100 ETH at $2000 = $200k.
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &recipient,
		Value:    ethValue(100),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})

	a := scanner.Classify(tx, 19_000_000, testQuotes())
	if a == nil {
		t.Fatal("expected an ETH alert")
	}
	if a.Type != string(alert.ChainETH) {
		t.Fatalf("type mismatch: %s", a.Type)
	}
	if !a.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("amount should be 100 ETH, got %s", a.Amount)
	}
	if !a.ValueUSD.Equal(decimal.NewFromInt(200_000)) {
		t.Fatalf("value should be $200000, got %s", a.ValueUSD)
	}
	if a.To != recipient.Hex() {
		t.Fatalf("recipient mismatch: %s", a.To)
	}
	if a.Block != 19_000_000 {
		t.Fatalf("block mismatch: %d", a.Block)
	}
}

func TestEthereumClassifyBelowFloor(t *testing.T) {
	scanner := newEthScanner(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000ab")

	// 10 ETH at $2000 = $20k, below the floor.
	tx := types.NewTx(&types.LegacyTx{
		To:       &recipient,
		Value:    ethValue(10),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})

	if a := scanner.Classify(tx, 19_000_000, testQuotes()); a != nil {
		t.Fatalf("below-floor transfer must be ignored, got %+v", a)
	}
}

func TestEthereumClassifyRenderTransfer(t *testing.T) {
	scanner := newEthScanner(t)
	renderContract := common.HexToAddress("0x6De037ef9aD2725EB40118Bb1702EBb27e4Aeb24")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	// transfer(address,uint256): 50,000 RNDR at $5 = $250k.
	amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	amount.Mul(amount, big.NewInt(50_000))

	data := make([]byte, 0, 68)
	data = append(data, 0xa9, 0x05, 0x9c, 0xbb)
	data = append(data, common.LeftPadBytes(recipient.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	tx := types.NewTx(&types.LegacyTx{
		To:       &renderContract,
		Value:    big.NewInt(0),
		Gas:      60000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})

	a := scanner.Classify(tx, 19_000_001, testQuotes())
	if a == nil {
		t.Fatal("expected a RNDR alert")
	}
	if a.Type != string(alert.ChainRNDR) {
		t.Fatalf("type mismatch: %s", a.Type)
	}
	if !a.Amount.Equal(decimal.NewFromInt(50_000)) {
		t.Fatalf("amount should be 50000 RNDR, got %s", a.Amount)
	}
	if !a.ValueUSD.Equal(decimal.NewFromInt(250_000)) {
		t.Fatalf("value should be $250000, got %s", a.ValueUSD)
	}
	if a.To != recipient.Hex() {
		t.Fatalf("recipient must come from calldata, got %s", a.To)
	}
}

func TestEthereumScanRequiresAPIKey(t *testing.T) {
	scanner := NewEthereum(EthereumOptions{
		RPCURL:      "https://mainnet.example.org/v3/{key}",
		MinValueUSD: decimal.NewFromInt(100_000),
	}, staticPrices{testQuotes()}, zerolog.Nop())

	if _, err := scanner.Scan(context.Background()); err == nil {
		t.Fatal("scan must fail when the rpc url needs a key and none is set")
	}
}

func TestEthereumClassifyOtherContractIgnored(t *testing.T) {
	scanner := newEthScanner(t)
	otherContract := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	amount.Mul(amount, big.NewInt(50_000))

	data := make([]byte, 0, 68)
	data = append(data, 0xa9, 0x05, 0x9c, 0xbb)
	data = append(data, common.LeftPadBytes(recipient.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	tx := types.NewTx(&types.LegacyTx{
		To:       &otherContract,
		Value:    big.NewInt(0),
		Gas:      60000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})

	if a := scanner.Classify(tx, 19_000_002, testQuotes()); a != nil {
		t.Fatalf("transfers on other tokens must be ignored, got %+v", a)
	}
}
