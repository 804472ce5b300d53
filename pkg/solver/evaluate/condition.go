package evaluate

import (
	"context"
	"fmt"

	"github.com/onlyswaps/solver/pkg/swap"
)

// evalConditions short-circuits on the first failing condition. An empty list
// means all conditions are met. Unknown tags and oracle errors fail the
// candidate, never the tick.
func (e *Scored) evalConditions(ctx context.Context, states States, conds []swap.Condition) (bool, error) {
	for i, cond := range conds {
		ok, err := e.evalCondition(ctx, states, cond)
		if err != nil {
			return false, fmt.Errorf("condition %d (%s): %w", i, cond.Kind, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Scored) evalCondition(ctx context.Context, states States, cond swap.Condition) (bool, error) {
	switch cond.Kind {
	case swap.TimeCondition:
		return e.evalTime(cond), nil
	case swap.PriceCondition:
		return e.evalPrice(ctx, cond)
	case swap.BalanceCondition:
		return evalBalance(states, cond), nil
	case swap.CustomCondition:
		if cond.Eval == nil {
			return false, fmt.Errorf("custom condition without evaluator")
		}
		return cond.Eval(ctx)
	default:
		return false, fmt.Errorf("unknown condition kind %d", cond.Kind)
	}
}

func (e *Scored) evalTime(cond swap.Condition) bool {
	now := e.now().Unix()
	switch cond.Op {
	case swap.OpAfter, swap.OpGT, swap.OpGTE:
		return now >= cond.Timestamp
	case swap.OpBefore, swap.OpLT, swap.OpLTE:
		return now <= cond.Timestamp
	case swap.OpBetween:
		return now >= cond.Timestamp && now <= cond.EndTimestamp
	default:
		return false
	}
}

func (e *Scored) evalPrice(ctx context.Context, cond swap.Condition) (bool, error) {
	if e.prices == nil {
		return false, fmt.Errorf("no price oracle configured")
	}
	price, err := e.prices.Price(ctx, cond.Token, cond.ChainID, cond.Source)
	if err != nil {
		// Fail closed: a missing price fails the condition.
		return false, err
	}
	return swap.CompareFloat(cond.Op, price, cond.Target), nil
}

func evalBalance(states States, cond swap.Condition) bool {
	state := states[cond.ChainID]
	if state == nil {
		return false
	}
	balance := state.NativeBalance
	if cond.BalanceToken != nil {
		balance = state.TokenBalance(*cond.BalanceToken)
	}
	return swap.CompareBig(cond.Op, balance, cond.Threshold)
}
