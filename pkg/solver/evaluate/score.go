package evaluate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/onlyswaps/solver/pkg/swap"
)

// Risk axis scores, averaged into [0, 1]. Higher is riskier.
const (
	liquidityUnknown = 1.0
	liquidityShort   = 0.8
	liquidityTight   = 0.5
	liquidityAmple   = 0.1

	feeBelowMin = 0.9
	feeHealthy  = 0.1

	executionNoGas  = 1.0
	executionLowGas = 0.6
	executionReady  = 0.2

	counterpartyZeroAddr = 0.5
	counterpartyKnown    = 0.1
)

// lowGasThreshold is the native balance under which execution is considered
// gas-starved: 1e17 wei.
var lowGasThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)

// riskScore averages the four risk axes for a candidate.
func (e *Scored) riskScore(states States, tr swap.Transfer) float64 {
	dst := states[swap.NormalizeChainID(tr.Params.DstChainID)]

	liquidity := liquidityUnknown
	if dst != nil {
		if balance := dst.TokenBalance(tr.Params.TokenOut); balance != nil {
			required := tr.Params.AmountOut
			switch {
			case balance.Cmp(required) < 0:
				liquidity = liquidityShort
			case tightInventory(balance, required):
				liquidity = liquidityTight
			default:
				liquidity = liquidityAmple
			}
		}
	}

	fee := feeHealthy
	if tr.Params.SolverFee == nil || tr.Params.SolverFee.Cmp(e.cfg.MinSolverFee) < 0 {
		fee = feeBelowMin
	}

	execution := executionNoGas
	if dst != nil && dst.NativeBalance != nil && dst.NativeBalance.Sign() > 0 {
		if dst.NativeBalance.Cmp(lowGasThreshold) < 0 {
			execution = executionLowGas
		} else {
			execution = executionReady
		}
	}

	counterparty := counterpartyKnown
	if tr.Params.Sender == (common.Address{}) || tr.Params.Recipient == (common.Address{}) {
		counterparty = counterpartyZeroAddr
	}

	return (liquidity + fee + execution + counterparty) / 4
}

// tightInventory reports balance/required < 1.1 without leaving integer
// arithmetic: balance*10 < required*11.
func tightInventory(balance, required *big.Int) bool {
	lhs := new(big.Int).Mul(balance, big.NewInt(10))
	rhs := new(big.Int).Mul(required, big.NewInt(11))
	return lhs.Cmp(rhs) < 0
}

// profitScore estimates net profit relative to the solver fee: the fee minus
// gas and opportunity cost, floored at zero, over the fee.
func (e *Scored) profitScore(ctx context.Context, tr swap.Transfer) float64 {
	fee := tr.Params.SolverFee
	if fee == nil || fee.Sign() <= 0 {
		return 0
	}

	gasCost := e.gas.RelayGasCost(ctx, swap.NormalizeChainID(tr.Params.DstChainID))
	oppCost := e.opportunityCost(tr.Params.AmountOut)

	profit := new(big.Int).Sub(fee, gasCost)
	profit.Sub(profit, oppCost)
	if profit.Sign() < 0 {
		return 0
	}

	score, _ := new(big.Float).Quo(
		new(big.Float).SetInt(profit),
		new(big.Float).SetInt(fee),
	).Float64()
	return score
}

// opportunityCost prices the capital locked while the relay settles:
// amountOut x rateBps x holdSeconds / 3_600_000. The constants are tunable;
// they are not derived from a documented model.
func (e *Scored) opportunityCost(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	cost := new(big.Int).Mul(amount, big.NewInt(e.cfg.OpportunityRateBps))
	cost.Mul(cost, big.NewInt(e.cfg.OpportunityHoldSeconds))
	return cost.Div(cost, big.NewInt(3_600_000))
}
