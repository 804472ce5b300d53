package evaluate

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/onlyswaps/solver/pkg/oracle"
	"github.com/onlyswaps/solver/pkg/services/metrics"
	"github.com/onlyswaps/solver/pkg/swap"
)

// ScoredConfig tunes the v2 evaluator.
type ScoredConfig struct {
	// MinSolverFee is the wei floor under which candidates are dropped.
	// Defaults to 1e15.
	MinSolverFee *big.Int
	// RiskThreshold drops candidates whose averaged risk score reaches it.
	// Defaults to 0.3.
	RiskThreshold float64
	// Opportunity-cost knobs, see opportunityCost.
	OpportunityRateBps     int64
	OpportunityHoldSeconds int64
	// RiskWeight scales risk against profit in the overall score.
	RiskWeight float64
}

func (c ScoredConfig) withDefaults() ScoredConfig {
	if c.MinSolverFee == nil {
		c.MinSolverFee = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	}
	if c.RiskThreshold == 0 {
		c.RiskThreshold = 0.3
	}
	if c.OpportunityRateBps == 0 {
		c.OpportunityRateBps = 1000
	}
	if c.OpportunityHoldSeconds == 0 {
		c.OpportunityHoldSeconds = 60
	}
	if c.RiskWeight == 0 {
		c.RiskWeight = 10
	}
	return c
}

// Scored is the v2 evaluator: the simple gates plus condition evaluation,
// risk assessment and profit ranking. Candidates are committed against the
// cloned inventory in score order; equal scores fall back to the transfer
// priority, then to source order.
type Scored struct {
	log    *zap.Logger
	cfg    ScoredConfig
	prices oracle.PriceSource
	gas    *oracle.GasPrices

	now func() time.Time
}

// NewScored creates the scored evaluator. prices may be nil when no oracle is
// configured; price conditions then fail closed.
func NewScored(log *zap.Logger, cfg ScoredConfig, prices oracle.PriceSource, gas *oracle.GasPrices) *Scored {
	if gas == nil {
		gas = oracle.NewGasPrices(nil, nil)
	}
	return &Scored{
		log:    log,
		cfg:    cfg.withDefaults(),
		prices: prices,
		gas:    gas,
		now:    time.Now,
	}
}

type scoredCandidate struct {
	transfer swap.Transfer
	order    int
	score    float64
}

// Evaluate implements Evaluator.
func (e *Scored) Evaluate(ctx context.Context, srcChain uint64, states States, inflight InFlight) []swap.Trade {
	src := states[srcChain]
	if src == nil {
		return nil
	}

	var ranked []scoredCandidate
	for i, tr := range prefilter(e.log, src.Transfers, states) {
		if inflight.Has(tr.RequestID) {
			logSkip(e.log, tr.RequestID, skipInFlight)
			continue
		}
		if tr.Params.Executed {
			logSkip(e.log, tr.RequestID, skipExecuted)
			continue
		}
		reason, _ := checkInventory(states, tr)
		if reason != "" {
			logSkip(e.log, tr.RequestID, reason)
			continue
		}
		if tr.Params.SolverFee == nil || tr.Params.SolverFee.Cmp(e.cfg.MinSolverFee) < 0 {
			logSkip(e.log, tr.RequestID, skipFeeTooLow)
			continue
		}

		met, err := e.evalConditions(ctx, states, tr.Conditions)
		if err != nil {
			e.log.Warn("condition evaluation failed",
				zap.String("request", swap.ShortRequestID(tr.RequestID)), zap.Error(err))
			logSkip(e.log, tr.RequestID, skipConditionFailed)
			continue
		}
		if !met {
			logSkip(e.log, tr.RequestID, skipConditionFailed)
			continue
		}

		risk := e.riskScore(states, tr)
		if risk >= e.cfg.RiskThreshold {
			metrics.CandidateSkipped(skipRisky)
			e.log.Info("skip",
				zap.String("request", swap.ShortRequestID(tr.RequestID)),
				zap.String("reason", skipRisky),
				zap.Float64("risk", risk))
			continue
		}

		profit := e.profitScore(ctx, tr)
		overall := profit - e.cfg.RiskWeight*risk
		e.log.Debug("scored",
			zap.String("request", swap.ShortRequestID(tr.RequestID)),
			zap.Float64("risk", risk),
			zap.Float64("profit", profit),
			zap.Float64("overall", overall))
		ranked = append(ranked, scoredCandidate{transfer: tr, order: i, score: overall})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].transfer.Priority != ranked[j].transfer.Priority {
			return ranked[i].transfer.Priority > ranked[j].transfer.Priority
		}
		return ranked[i].order < ranked[j].order
	})

	// Commit pass: best score claims inventory first.
	var trades []swap.Trade
	emitted := make(map[common.Hash]struct{})
	for _, cand := range ranked {
		tr := cand.transfer
		if _, dup := emitted[tr.RequestID]; dup {
			logSkip(e.log, tr.RequestID, skipInFlight)
			continue
		}
		dst := states[swap.NormalizeChainID(tr.Params.DstChainID)]
		balance := dst.TokenBalance(tr.Params.TokenOut)
		if balance == nil || balance.Cmp(tr.Params.AmountOut) < 0 {
			logSkip(e.log, tr.RequestID, skipTokenShort)
			continue
		}
		balance.Sub(balance, tr.Params.AmountOut)
		emitted[tr.RequestID] = struct{}{}
		trade := makeTrade(tr)
		e.log.Info("execute",
			zap.String("request", swap.ShortRequestID(tr.RequestID)),
			zap.Uint64("dst", trade.DstChainID),
			zap.String("amount", trade.Amount.String()),
			zap.Float64("score", cand.score))
		trades = append(trades, trade)
	}
	return trades
}
