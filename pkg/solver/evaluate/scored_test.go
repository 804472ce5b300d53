package evaluate

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/onlyswaps/solver/pkg/oracle"
	"github.com/onlyswaps/solver/pkg/swap"
)

type stubPrices struct {
	value float64
	err   error
}

func (s stubPrices) Price(context.Context, string, uint64, string) (float64, error) {
	return s.value, s.err
}

// cheapGas pins the destination gas price to 1 wei so that profit arithmetic
// in tests is dominated by the fee and the opportunity cost.
func cheapGas() *oracle.GasPrices {
	return oracle.NewGasPrices(nil, map[uint64]*big.Int{dstChain: big.NewInt(1)})
}

func newScored(t *testing.T, cfg ScoredConfig, prices oracle.PriceSource) *Scored {
	t.Helper()
	return NewScored(zaptest.NewLogger(t), cfg, prices, cheapGas())
}

func TestScoredHappyPath(t *testing.T) {
	// 1e17 fee comfortably clears the 1e15 minimum, the 150k gas at 1 wei
	// and the 1e18/60 opportunity cost.
	states := testStates(eth(1), eth(5), transfer(reqID1, eth(1), eth(1)))
	e := newScored(t, ScoredConfig{}, nil)

	trades := e.Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1)
	require.Equal(t, reqID1, trades[0].RequestID)
	require.Equal(t, eth(4), states[dstChain].TokenBalance(tokenOut))
}

func TestScoredFeeTooLow(t *testing.T) {
	states := testStates(eth(1), eth(5), transfer(reqID1, eth(1), big.NewInt(500)))
	e := newScored(t, ScoredConfig{}, nil)

	require.Empty(t, e.Evaluate(context.Background(), srcChain, states, fakeInflight{}),
		"a 500 wei fee is below the 1e15 default minimum")
}

func TestScoredRanking(t *testing.T) {
	// Second in source order but far more profitable: it must claim the
	// inventory first.
	small := transfer(reqID1, eth(2), big.NewInt(2_000_000_000_000_000))
	large := transfer(reqID2, eth(2), eth(1))
	states := testStates(eth(1), eth(3), small, large)

	trades := newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1, "only one fits the 3 token inventory")
	require.Equal(t, reqID2, trades[0].RequestID)
	require.Equal(t, eth(1), states[dstChain].TokenBalance(tokenOut))
}

func TestScoredPriorityBreaksScoreTies(t *testing.T) {
	// Identical economics, identical score; the higher-priority transfer
	// claims the inventory even though it is listed second.
	first := transfer(reqID1, eth(2), eth(1))
	second := transfer(reqID2, eth(2), eth(1))
	second.Priority = 5
	states := testStates(eth(1), eth(3), first, second)

	trades := newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1, "only one fits the 3 token inventory")
	require.Equal(t, reqID2, trades[0].RequestID)
}

func TestScoredRiskDropsCandidate(t *testing.T) {
	// Low destination gas (0.6), zero sender (0.5), tight inventory (0.5)
	// and a healthy fee (0.1) average to 0.425, above the 0.3 threshold.
	tr := transfer(reqID1, eth(1), eth(1))
	tr.Params.Sender = common.Address{}
	states := testStates(big.NewInt(1), eth(1), tr) // native 1 wei < 1e17

	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
}

func TestScoredInFlightAndFulfilled(t *testing.T) {
	states := testStates(eth(1), eth(5), transfer(reqID1, eth(1), eth(1)))
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{reqID1: true}))

	states = testStates(eth(1), eth(5), transfer(reqID1, eth(1), eth(1)))
	states[dstChain].Fulfilled[reqID1] = struct{}{}
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
}

func TestScoredTimeConditions(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		name string
		cond swap.Condition
		want bool
	}{
		{"after met", swap.Condition{Kind: swap.TimeCondition, Op: swap.OpAfter, Timestamp: now.Unix() - 10}, true},
		{"after unmet", swap.Condition{Kind: swap.TimeCondition, Op: swap.OpAfter, Timestamp: now.Unix() + 10}, false},
		{"before met", swap.Condition{Kind: swap.TimeCondition, Op: swap.OpBefore, Timestamp: now.Unix() + 10}, true},
		{"before unmet", swap.Condition{Kind: swap.TimeCondition, Op: swap.OpBefore, Timestamp: now.Unix() - 10}, false},
		{"between met", swap.Condition{Kind: swap.TimeCondition, Op: swap.OpBetween, Timestamp: now.Unix() - 10, EndTimestamp: now.Unix() + 10}, true},
		{"between unmet", swap.Condition{Kind: swap.TimeCondition, Op: swap.OpBetween, Timestamp: now.Unix() + 5, EndTimestamp: now.Unix() + 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := transfer(reqID1, eth(1), eth(1))
			tr.Conditions = []swap.Condition{tc.cond}
			states := testStates(eth(1), eth(5), tr)

			e := newScored(t, ScoredConfig{}, nil)
			e.now = func() time.Time { return now }

			trades := e.Evaluate(context.Background(), srcChain, states, fakeInflight{})
			if tc.want {
				require.Len(t, trades, 1)
			} else {
				require.Empty(t, trades)
			}
		})
	}
}

func TestScoredPriceCondition(t *testing.T) {
	cond := swap.Condition{
		Kind: swap.PriceCondition, Op: swap.OpGT,
		Token: "RUSD", ChainID: dstChain, Target: 1.0, Source: "test",
	}

	tr := transfer(reqID1, eth(1), eth(1))
	tr.Conditions = []swap.Condition{cond}

	states := testStates(eth(1), eth(5), tr)
	trades := newScored(t, ScoredConfig{}, stubPrices{value: 1.5}).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1)

	states = testStates(eth(1), eth(5), tr)
	trades = newScored(t, ScoredConfig{}, stubPrices{value: 0.5}).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Empty(t, trades)

	// Oracle failure fails the condition, not the tick.
	states = testStates(eth(1), eth(5), tr)
	trades = newScored(t, ScoredConfig{}, stubPrices{err: errors.New("oracle down")}).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Empty(t, trades)

	// No oracle configured at all also fails closed.
	states = testStates(eth(1), eth(5), tr)
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
}

func TestScoredBalanceCondition(t *testing.T) {
	tr := transfer(reqID1, eth(1), eth(1))
	tr.Conditions = []swap.Condition{{
		Kind: swap.BalanceCondition, Op: swap.OpGTE,
		ChainID: dstChain, BalanceToken: &tokenOut, Threshold: eth(5),
	}}
	states := testStates(eth(1), eth(5), tr)
	require.Len(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}), 1)

	tr.Conditions[0].Threshold = eth(6)
	states = testStates(eth(1), eth(5), tr)
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))

	// Native balance when no token is given.
	tr.Conditions[0] = swap.Condition{Kind: swap.BalanceCondition, Op: swap.OpGT, ChainID: dstChain, Threshold: big.NewInt(0)}
	states = testStates(eth(1), eth(5), tr)
	require.Len(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}), 1)
}

func TestScoredCustomAndUnknownConditions(t *testing.T) {
	tr := transfer(reqID1, eth(1), eth(1))
	tr.Conditions = []swap.Condition{{
		Kind: swap.CustomCondition,
		Eval: func(context.Context) (bool, error) { return true, nil },
	}}
	states := testStates(eth(1), eth(5), tr)
	require.Len(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}), 1)

	tr.Conditions[0].Eval = func(context.Context) (bool, error) { return false, nil }
	states = testStates(eth(1), eth(5), tr)
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))

	// A missing evaluator or an unknown tag skips the candidate, the loop
	// keeps running.
	tr.Conditions[0] = swap.Condition{Kind: swap.CustomCondition}
	states = testStates(eth(1), eth(5), tr)
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))

	tr.Conditions[0] = swap.Condition{Kind: swap.ConditionKind(99)}
	states = testStates(eth(1), eth(5), tr)
	require.Empty(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
}

func TestScoredEmptyConditionsMeansMet(t *testing.T) {
	tr := transfer(reqID1, eth(1), eth(1))
	tr.Conditions = []swap.Condition{}
	states := testStates(eth(1), eth(5), tr)
	require.Len(t, newScored(t, ScoredConfig{}, nil).Evaluate(context.Background(), srcChain, states, fakeInflight{}), 1)
}

func TestProfitScore(t *testing.T) {
	e := newScored(t, ScoredConfig{}, nil)
	ctx := context.Background()

	// fee 1e18, amountOut 1e18: opportunity cost is 1e18*1000*60/3.6e6 =
	// 1.666e16, gas 150000 wei. profit/fee just under 0.984.
	tr := transfer(reqID1, eth(1), eth(1))
	score := e.profitScore(ctx, tr)
	require.InDelta(t, 0.983, score, 0.001)

	// Unprofitable candidates floor at zero.
	tr = transfer(reqID1, eth(1), big.NewInt(2_000_000_000_000_000))
	require.Zero(t, e.profitScore(ctx, tr))

	tr = transfer(reqID1, eth(1), big.NewInt(0))
	require.Zero(t, e.profitScore(ctx, tr))
}

func TestOpportunityCostTunable(t *testing.T) {
	e := newScored(t, ScoredConfig{OpportunityRateBps: 2000, OpportunityHoldSeconds: 30}, nil)
	// 1e18 * 2000 * 30 / 3_600_000 = 1.666e16, same as the default product.
	require.Equal(t, "16666666666666666", e.opportunityCost(eth(1)).String())
}
