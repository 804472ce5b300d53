// Package executor turns evaluator trades into on-chain transactions. Trades
// are processed one at a time since the destination wallet nonce is shared;
// each trade is reconciled against the router's stored parameters, approved
// and relayed under one deadline.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/onlyswaps/solver/pkg/inflight"
	"github.com/onlyswaps/solver/pkg/services/metrics"
	"github.com/onlyswaps/solver/pkg/swap"
)

// Defaults applied when Config leaves the durations zero.
const (
	DefaultTradeTimeout = 10 * time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
)

// Chain is the slice of chain.Client the executor needs on the destination
// side of a trade.
type Chain interface {
	ChainID() uint64
	Tokens() []common.Address
	StoredParameters(ctx context.Context, id common.Hash) (swap.Params, bool, error)
	Approve(ctx context.Context, token common.Address, amount *big.Int) error
	Relay(ctx context.Context, trade swap.Trade) error
}

// Config holds the executor collaborators and knobs.
type Config struct {
	Log    *zap.Logger
	Chains map[uint64]Chain

	// TradeTimeout bounds the reconcile, approve and relay of one trade
	// together. Defaults to DefaultTradeTimeout.
	TradeTimeout time.Duration
	// SettleDelay is the pause between the mined approval and the relay,
	// giving the node a beat to settle pending state. Defaults to
	// DefaultSettleDelay.
	SettleDelay time.Duration
	// InFlightTTL is passed to the cache on Set; zero means the cache
	// default.
	InFlightTTL time.Duration
}

// Executor executes trades sequentially against their destination chains.
type Executor struct {
	log    *zap.Logger
	chains map[uint64]Chain

	tradeTimeout time.Duration
	settleDelay  time.Duration
	inflightTTL  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor from the config.
func New(cfg Config) *Executor {
	if cfg.TradeTimeout <= 0 {
		cfg.TradeTimeout = DefaultTradeTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Executor{
		log:          cfg.Log,
		chains:       cfg.Chains,
		tradeTimeout: cfg.TradeTimeout,
		settleDelay:  cfg.SettleDelay,
		inflightTTL:  cfg.InFlightTTL,
		sleep:        sleepCtx,
	}
}

// Execute runs the trades in order. Every trade is marked in flight before
// its first RPC; a failed trade is unmarked so a later tick can retry it,
// a successful one stays marked until the entry expires, by which time the
// router reports it fulfilled.
func (e *Executor) Execute(ctx context.Context, trades []swap.Trade, cache *inflight.Cache) {
	for _, trade := range trades {
		if ctx.Err() != nil {
			return
		}
		if cache.Has(trade.RequestID) {
			e.log.Debug("trade already in flight",
				zap.String("request", swap.ShortRequestID(trade.RequestID)))
			continue
		}
		cache.Set(trade.RequestID, e.inflightTTL)

		if err := e.execute(ctx, trade); err != nil {
			fields := []zap.Field{
				zap.String("request", swap.ShortRequestID(trade.RequestID)),
				zap.Uint64("dst", trade.DstChainID),
				zap.Error(err),
			}
			if name := decodeRevert(err); name != "" {
				fields = append(fields, zap.String("revert", name))
			}
			e.log.Warn("trade failed", fields...)
			metrics.TradeFailed()
			cache.Delete(trade.RequestID)
			continue
		}
		metrics.TradeExecuted()
	}
}

func (e *Executor) execute(parent context.Context, trade swap.Trade) error {
	chain := e.chains[trade.DstChainID]
	if chain == nil {
		return fmt.Errorf("no client for chain %d", trade.DstChainID)
	}

	ctx, cancel := context.WithTimeout(parent, e.tradeTimeout)
	defer cancel()

	// The router's stored record is authoritative; the evaluator worked off
	// a snapshot that may predate verification.
	params, verified, err := chain.StoredParameters(ctx, trade.RequestID)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if verified {
		trade = reconcile(trade, params)
	}
	if !tokenConfigured(chain, trade.TokenOut) {
		return fmt.Errorf("token %s not configured on chain %d",
			swap.LowerAddress(trade.TokenOut), trade.DstChainID)
	}

	if err := chain.Approve(ctx, trade.TokenOut, trade.Amount); err != nil {
		return err
	}
	if err := e.sleep(ctx, e.settleDelay); err != nil {
		return err
	}
	return chain.Relay(ctx, trade)
}

// reconcile overwrites the trade with the router's verified record so that
// relayTokens matches what the contract expects byte for byte.
func reconcile(trade swap.Trade, p swap.Params) swap.Trade {
	trade.Sender = p.Sender
	trade.Recipient = p.Recipient
	trade.TokenIn = p.TokenIn
	trade.TokenOut = p.TokenOut
	trade.SrcChainID = swap.NormalizeChainID(p.SrcChainID)
	if p.AmountOut != nil {
		trade.Amount = new(big.Int).Set(p.AmountOut)
	}
	if p.Nonce != nil {
		trade.Nonce = new(big.Int).Set(p.Nonce)
	}
	return trade
}

func tokenConfigured(chain Chain, token common.Address) bool {
	for _, t := range chain.Tokens() {
		if t == token {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
