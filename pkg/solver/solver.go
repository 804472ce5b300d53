// Package solver runs the per-chain block loops tying the state fetcher, the
// evaluator and the executor together.
package solver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/onlyswaps/solver/pkg/chain"
	"github.com/onlyswaps/solver/pkg/inflight"
	"github.com/onlyswaps/solver/pkg/services/metrics"
	"github.com/onlyswaps/solver/pkg/solver/evaluate"
	"github.com/onlyswaps/solver/pkg/swap"
)

// Chain is the slice of chain.Client the loop needs: a block event stream and
// the state snapshot.
type Chain interface {
	ChainID() uint64
	Blocks(ctx context.Context) <-chan chain.BlockEvent
	FetchState(ctx context.Context) (*swap.ChainState, error)
}

// TradeExecutor consumes the trades one evaluation emitted.
type TradeExecutor interface {
	Execute(ctx context.Context, trades []swap.Trade, cache *inflight.Cache)
}

// Config holds the solver collaborators.
type Config struct {
	Log       *zap.Logger
	Chains    map[uint64]Chain
	Evaluator evaluate.Evaluator
	Executor  TradeExecutor
	InFlight  *inflight.Cache

	// OnReady fires once every configured chain has delivered its first
	// snapshot. May be nil.
	OnReady func()
}

// Solver supervises one block loop per configured chain.
type Solver struct {
	log      *zap.Logger
	chains   map[uint64]Chain
	eval     evaluate.Evaluator
	exec     TradeExecutor
	inflight *inflight.Cache
	store    *Store
	onReady  func()

	// execMu serializes trade execution across chain loops; the wallet
	// nonce on a shared destination chain cannot take concurrent writers.
	execMu sync.Mutex

	primedMu  sync.Mutex
	primed    map[uint64]bool
	readyOnce sync.Once
}

// New creates the solver from the config.
func New(cfg Config) *Solver {
	return &Solver{
		log:      cfg.Log,
		chains:   cfg.Chains,
		eval:     cfg.Evaluator,
		exec:     cfg.Executor,
		inflight: cfg.InFlight,
		store:    NewStore(),
		onReady:  cfg.OnReady,
		primed:   make(map[uint64]bool),
	}
}

// Run primes the state store and then consumes block events until the context
// is cancelled. It always returns ctx.Err().
func (s *Solver) Run(ctx context.Context) error {
	s.prime(ctx)

	var wg sync.WaitGroup
	for _, c := range s.chains {
		wg.Add(1)
		go func(c Chain) {
			defer wg.Done()
			for ev := range c.Blocks(ctx) {
				s.tick(ctx, c, ev)
			}
		}(c)
	}
	wg.Wait()
	return ctx.Err()
}

// prime fetches one snapshot per chain before the loops start, so the first
// evaluation already sees every destination's inventory. A chain that cannot
// be read yet primes on its first successful tick instead.
func (s *Solver) prime(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range s.chains {
		wg.Add(1)
		go func(c Chain) {
			defer wg.Done()
			state, err := c.FetchState(ctx)
			if err != nil {
				s.log.Warn("initial state fetch failed",
					zap.Uint64("chain", c.ChainID()), zap.Error(err))
				return
			}
			s.store.Update(c.ChainID(), state)
			s.markPrimed(c.ChainID())
		}(c)
	}
	wg.Wait()
}

func (s *Solver) tick(ctx context.Context, c Chain, ev chain.BlockEvent) {
	state, err := c.FetchState(ctx)
	if err != nil {
		s.log.Warn("tick skipped, state fetch failed",
			zap.Uint64("chain", c.ChainID()),
			zap.Uint64("block", ev.Number),
			zap.Error(err))
		return
	}
	s.store.Update(c.ChainID(), state)
	s.markPrimed(c.ChainID())
	metrics.TickProcessed(c.ChainID())

	trades := s.eval.Evaluate(ctx, c.ChainID(), s.store.Snapshot(), s.inflight)
	if len(trades) == 0 {
		return
	}
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.exec.Execute(ctx, trades, s.inflight)
}

func (s *Solver) markPrimed(chainID uint64) {
	s.primedMu.Lock()
	s.primed[chainID] = true
	allPrimed := len(s.primed) == len(s.chains)
	s.primedMu.Unlock()

	if allPrimed && s.onReady != nil {
		s.readyOnce.Do(s.onReady)
	}
}
