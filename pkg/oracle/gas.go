package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// DefaultGasTTL is how long a gas price reading stays fresh.
const DefaultGasTTL = 30 * time.Second

// relayGasLimit is the assumed gas consumption of one approve+relay pair.
const relayGasLimit = 150_000

// Hard-coded per-chain gas price defaults, in wei. They are upper bounds: a
// live reading below the default wins, a live reading above it is clamped.
var gasDefaults = map[uint64]*big.Int{
	1:     big.NewInt(20_000_000_000), // Ethereum, 20 gwei
	137:   big.NewInt(30_000_000_000), // Polygon, 30 gwei
	42161: big.NewInt(100_000_000),    // Arbitrum, 0.1 gwei
	10:    big.NewInt(1_000_000),      // Optimism, 0.001 gwei
}

var gasFallback = big.NewInt(20_000_000_000)

// DefaultGasPrice returns the static default for a chain.
func DefaultGasPrice(chainID uint64) *big.Int {
	if p, ok := gasDefaults[chainID]; ok {
		return new(big.Int).Set(p)
	}
	return new(big.Int).Set(gasFallback)
}

// LiveGasReader reads the current gas price from a node, e.g. a chain
// client's SuggestGasPrice.
type LiveGasReader func(ctx context.Context, chainID uint64) (*big.Int, error)

type gasEntry struct {
	value   *big.Int
	expires time.Time
}

// GasPrices answers per-chain gas price lookups with a 30 s cache. Without a
// live reader (or when it errors) the static defaults apply, so GasPrice
// never fails.
type GasPrices struct {
	live      LiveGasReader
	overrides map[uint64]*big.Int
	ttl       time.Duration

	mu      sync.Mutex
	entries map[uint64]gasEntry

	now func() time.Time
}

// NewGasPrices creates the gas source. live may be nil; overrides replace the
// built-in defaults per chain.
func NewGasPrices(live LiveGasReader, overrides map[uint64]*big.Int) *GasPrices {
	return &GasPrices{
		live:      live,
		overrides: overrides,
		ttl:       DefaultGasTTL,
		entries:   make(map[uint64]gasEntry),
		now:       time.Now,
	}
}

// GasPrice returns the wei-per-gas estimate for the chain.
func (g *GasPrices) GasPrice(ctx context.Context, chainID uint64) *big.Int {
	g.mu.Lock()
	if e, ok := g.entries[chainID]; ok && g.now().Before(e.expires) {
		g.mu.Unlock()
		return new(big.Int).Set(e.value)
	}
	g.mu.Unlock()

	bound := g.bound(chainID)
	price := bound
	if g.live != nil {
		if live, err := g.live(ctx, chainID); err == nil && live != nil && live.Cmp(bound) < 0 {
			price = live
		}
	}

	g.mu.Lock()
	g.entries[chainID] = gasEntry{value: new(big.Int).Set(price), expires: g.now().Add(g.ttl)}
	g.mu.Unlock()
	return new(big.Int).Set(price)
}

// RelayGasCost estimates the total gas cost of settling one trade on the
// chain: the assumed 150k gas at the current price.
func (g *GasPrices) RelayGasCost(ctx context.Context, chainID uint64) *big.Int {
	cost := g.GasPrice(ctx, chainID)
	return cost.Mul(cost, big.NewInt(relayGasLimit))
}

func (g *GasPrices) bound(chainID uint64) *big.Int {
	if p, ok := g.overrides[chainID]; ok {
		return new(big.Int).Set(p)
	}
	return DefaultGasPrice(chainID)
}
