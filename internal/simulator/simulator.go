package simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"whalewatch/internal/alert"
)

type assetProfile struct {
	chain     alert.Chain
	minAmount int64
	maxAmount int64
	basePrice float64
	jitter    float64
}

var assets = []assetProfile{
	{chain: alert.ChainBTC, minAmount: 1, maxAmount: 50, basePrice: 45000, jitter: 5000},
	{chain: alert.ChainETH, minAmount: 100, maxAmount: 5000, basePrice: 2400, jitter: 400},
	{chain: alert.ChainSOL, minAmount: 1000, maxAmount: 100000, basePrice: 100, jitter: 20},
	{chain: alert.ChainRNDR, minAmount: 10000, maxAmount: 1000000, basePrice: 4, jitter: 1},
}

type venuePair struct {
	from, to string
}

// Outflows from exchanges read as distribution, inflows as accumulation.
var venues = []venuePair{
	{"Binance", "Cold Storage"},
	{"Coinbase", "Unknown Wallet"},
	{"Kraken", "Hardware Wallet"},
	{"Unknown Wallet", "Binance"},
	{"Cold Storage", "Coinbase"},
	{"Whale Wallet", "OKX"},
	{"DEX Router", "Uniswap"},
	{"Bybit", "Gate.io"},
}

const hexDigits = "0123456789abcdef"

// Generator produces synthetic whale alerts for demos and testing. It has
// no connection to real chain data.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a generator seeded from the clock.
func New() *Generator {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed builds a deterministic generator.
func NewWithSeed(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Alert returns one synthetic whale alert with a plausible amount, venue
// pair, hash, and block height.
func (g *Generator) Alert() alert.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()

	asset := assets[g.rng.Intn(len(assets))]
	pair := venues[g.rng.Intn(len(venues))]

	amount := asset.minAmount + g.rng.Int63n(asset.maxAmount-asset.minAmount+1)
	price := asset.basePrice + (g.rng.Float64()-0.5)*asset.jitter

	amountDec := decimal.NewFromInt(amount)
	valueUSD := amountDec.Mul(decimal.NewFromFloat(price)).Round(0)

	return alert.Alert{
		Type:      string(asset.chain),
		Amount:    amountDec,
		ValueUSD:  valueUSD,
		Hash:      g.randomHash(),
		Block:     uint64(18_000_000 + g.rng.Intn(1_000_000)),
		From:      pair.from,
		To:        pair.to,
		Synthetic: true,
	}
}

// Chance rolls a uniform draw and reports whether it fell under p.
func (g *Generator) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

// DemoAlerts returns n synthetic alerts for seeding a fresh session.
func (g *Generator) DemoAlerts(n int) []alert.Alert {
	out := make([]alert.Alert, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Alert())
	}
	return out
}

func (g *Generator) randomHash() string {
	buf := make([]byte, 0, 66)
	buf = append(buf, '0', 'x')
	for i := 0; i < 64; i++ {
		buf = append(buf, hexDigits[g.rng.Intn(len(hexDigits))])
	}
	return string(buf)
}
