package evaluate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/onlyswaps/solver/pkg/swap"
)

// Simple is the v1 evaluator: direct balance and fee checks, source-chain
// order, first candidate wins contested inventory.
type Simple struct {
	log *zap.Logger
}

// NewSimple creates the simple evaluator.
func NewSimple(log *zap.Logger) *Simple {
	return &Simple{log: log}
}

var one = big.NewInt(1)

// Evaluate implements Evaluator.
func (e *Simple) Evaluate(_ context.Context, srcChain uint64, states States, inflight InFlight) []swap.Trade {
	src := states[srcChain]
	if src == nil {
		return nil
	}

	var trades []swap.Trade
	emitted := make(map[common.Hash]struct{})
	for _, tr := range prefilter(e.log, src.Transfers, states) {
		if _, dup := emitted[tr.RequestID]; dup {
			logSkip(e.log, tr.RequestID, skipInFlight)
			continue
		}
		if inflight.Has(tr.RequestID) {
			logSkip(e.log, tr.RequestID, skipInFlight)
			continue
		}
		if tr.Params.Executed {
			logSkip(e.log, tr.RequestID, skipExecuted)
			continue
		}
		reason, balance := checkInventory(states, tr)
		if reason != "" {
			logSkip(e.log, tr.RequestID, reason)
			continue
		}
		if tr.Params.SolverFee == nil || tr.Params.SolverFee.Cmp(one) < 0 {
			logSkip(e.log, tr.RequestID, skipFeeTooLow)
			continue
		}

		// Inventory commit: later candidates this tick see the debit.
		balance.Sub(balance, tr.Params.AmountOut)
		emitted[tr.RequestID] = struct{}{}
		trade := makeTrade(tr)
		e.log.Info("execute",
			zap.String("request", swap.ShortRequestID(tr.RequestID)),
			zap.Uint64("dst", trade.DstChainID),
			zap.String("amount", trade.Amount.String()))
		trades = append(trades, trade)
	}
	return trades
}
