package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ConditionKind tags the condition variant attached to a transfer.
type ConditionKind uint8

const (
	// TimeCondition gates execution on wall-clock time.
	TimeCondition ConditionKind = iota + 1
	// PriceCondition gates execution on an oracle price.
	PriceCondition
	// BalanceCondition gates execution on a solver balance.
	BalanceCondition
	// CustomCondition delegates to a caller-supplied evaluator.
	CustomCondition
)

// String implements fmt.Stringer.
func (k ConditionKind) String() string {
	switch k {
	case TimeCondition:
		return "time"
	case PriceCondition:
		return "price"
	case BalanceCondition:
		return "balance"
	case CustomCondition:
		return "custom"
	default:
		return "unknown"
	}
}

// Operator is the comparison applied by a condition.
type Operator string

// Comparison operators understood by condition evaluation.
const (
	OpGT      Operator = "gt"
	OpLT      Operator = "lt"
	OpEQ      Operator = "eq"
	OpGTE     Operator = "gte"
	OpLTE     Operator = "lte"
	OpBetween Operator = "between"

	// Time operator aliases used by the wire format.
	OpAfter  Operator = "after"
	OpBefore Operator = "before"
)

// CustomEvaluator is the closure form of a custom condition.
type CustomEvaluator func(ctx context.Context) (bool, error)

// Condition is a tagged union over the four condition variants. Only the
// fields relevant to Kind are set.
type Condition struct {
	Kind ConditionKind
	Op   Operator

	// Time: unix seconds. EndTimestamp only for OpBetween.
	Timestamp    int64
	EndTimestamp int64

	// Price: oracle lookup key and target.
	Token   string
	ChainID uint64
	Target  float64
	Source  string

	// Balance: token is optional, nil means the native balance.
	BalanceToken *common.Address
	Threshold    *big.Int

	// Custom.
	Eval CustomEvaluator
}

// CompareBig applies op to (value, threshold) for 256-bit amounts. OpBetween
// is not meaningful for single-threshold comparisons and reports false.
func CompareBig(op Operator, value, threshold *big.Int) bool {
	if value == nil || threshold == nil {
		return false
	}
	switch op {
	case OpGT:
		return value.Cmp(threshold) > 0
	case OpLT:
		return value.Cmp(threshold) < 0
	case OpEQ:
		return value.Cmp(threshold) == 0
	case OpGTE:
		return value.Cmp(threshold) >= 0
	case OpLTE:
		return value.Cmp(threshold) <= 0
	default:
		return false
	}
}

// CompareFloat applies op to (value, target) for oracle prices.
func CompareFloat(op Operator, value, target float64) bool {
	switch op {
	case OpGT:
		return value > target
	case OpLT:
		return value < target
	case OpEQ:
		return value == target
	case OpGTE:
		return value >= target
	case OpLTE:
		return value <= target
	default:
		return false
	}
}
