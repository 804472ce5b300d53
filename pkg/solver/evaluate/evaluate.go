// Package evaluate turns a freshly fetched chain snapshot into the list of
// trades the solver is willing to execute this tick. Two variants ship: the
// simple evaluator applies direct balance and fee checks, the scored one adds
// condition evaluation, risk assessment and profit ranking. Both debit a
// per-tick clone of the state store as they commit inventory, so one balance
// is never promised to two candidates.
package evaluate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/onlyswaps/solver/pkg/services/metrics"
	"github.com/onlyswaps/solver/pkg/swap"
)

// States is the per-tick cloned view of the state store, keyed by normalized
// chain ID. Evaluators mutate only this view.
type States map[uint64]*swap.ChainState

// Clone deep-copies the balance side of every chain state.
func (s States) Clone() States {
	out := make(States, len(s))
	for id, st := range s {
		out[id] = st.Clone()
	}
	return out
}

// InFlight is the presence check evaluators consult before emitting.
type InFlight interface {
	Has(id common.Hash) bool
}

// Evaluator produces executable trades from the given source chain's
// transfers, in execution order.
type Evaluator interface {
	Evaluate(ctx context.Context, srcChain uint64, states States, inflight InFlight) []swap.Trade
}

// Candidate skip reasons, used in decision logs.
const (
	skipFulfilled       = "already fulfilled"
	skipInFlight        = "already in flight"
	skipExecuted        = "already executed"
	skipUnknownChain    = "destination chain unknown"
	skipNoNative        = "destination native balance is zero"
	skipTokenMissing    = "destination token balance unknown"
	skipTokenShort      = "destination token balance insufficient"
	skipFeeTooLow       = "solver fee below minimum"
	skipConditionFailed = "condition not met"
	skipRisky           = "risk above threshold"
)

// prefilter drops transfers already fulfilled on their destination chain. An
// unknown destination state keeps the transfer; later checks handle it.
func prefilter(log *zap.Logger, transfers []swap.Transfer, states States) []swap.Transfer {
	out := make([]swap.Transfer, 0, len(transfers))
	for _, tr := range transfers {
		dst := states[swap.NormalizeChainID(tr.Params.DstChainID)]
		if dst.IsFulfilled(tr.RequestID) {
			logSkip(log, tr.RequestID, skipFulfilled)
			continue
		}
		out = append(out, tr)
	}
	return out
}

func logSkip(log *zap.Logger, id common.Hash, reason string) {
	metrics.CandidateSkipped(reason)
	log.Info("skip", zap.String("request", swap.ShortRequestID(id)), zap.String("reason", reason))
}

// checkInventory runs the balance gates shared by both variants against the
// destination snapshot. It returns the skip reason, or "" when the transfer
// is executable, and the destination balance to debit on commit.
func checkInventory(states States, tr swap.Transfer) (reason string, balance *big.Int) {
	dst := states[swap.NormalizeChainID(tr.Params.DstChainID)]
	if dst == nil {
		return skipUnknownChain, nil
	}
	if dst.NativeBalance == nil || dst.NativeBalance.Sign() == 0 {
		return skipNoNative, nil
	}
	balance = dst.TokenBalance(tr.Params.TokenOut)
	if balance == nil {
		return skipTokenMissing, nil
	}
	if balance.Cmp(tr.Params.AmountOut) < 0 {
		return skipTokenShort, nil
	}
	return "", balance
}

// makeTrade converts an accepted transfer into its decision record.
func makeTrade(tr swap.Transfer) swap.Trade {
	return swap.Trade{
		RequestID:  tr.RequestID,
		Nonce:      tr.Params.Nonce,
		TokenIn:    tr.Params.TokenIn,
		TokenOut:   tr.Params.TokenOut,
		SrcChainID: swap.NormalizeChainID(tr.Params.SrcChainID),
		DstChainID: swap.NormalizeChainID(tr.Params.DstChainID),
		Sender:     tr.Params.Sender,
		Recipient:  tr.Params.Recipient,
		Amount:     new(big.Int).Set(tr.Params.AmountOut),
	}
}
