package evaluate

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/onlyswaps/solver/pkg/swap"
)

const (
	srcChain = uint64(31337)
	dstChain = uint64(31338)
)

var (
	tokenOut  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenIn   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000bb")

	reqID1 = common.HexToHash("0xab00000000000000000000000000000000000000000000000000000000000001")
	reqID2 = common.HexToHash("0xab00000000000000000000000000000000000000000000000000000000000002")
)

type fakeInflight map[common.Hash]bool

func (f fakeInflight) Has(id common.Hash) bool { return f[id] }

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func transfer(id common.Hash, amountOut, solverFee *big.Int) swap.Transfer {
	return swap.Transfer{
		RequestID: id,
		Params: swap.Params{
			SrcChainID:      new(big.Int).SetUint64(srcChain),
			DstChainID:      new(big.Int).SetUint64(dstChain),
			Sender:          sender,
			Recipient:       recipient,
			TokenIn:         tokenIn,
			TokenOut:        tokenOut,
			AmountOut:       amountOut,
			VerificationFee: big.NewInt(0),
			SolverFee:       solverFee,
			Nonce:           big.NewInt(7),
			RequestedAt:     big.NewInt(1_700_000_000),
		},
	}
}

// testStates builds a source chain holding the transfers and a destination
// chain with the given inventory.
func testStates(native, tokenBalance *big.Int, transfers ...swap.Transfer) States {
	src := swap.NewChainState()
	src.NativeBalance.Set(eth(1))
	src.Transfers = transfers

	dst := swap.NewChainState()
	if native != nil {
		dst.NativeBalance.Set(native)
	}
	if tokenBalance != nil {
		dst.TokenBalances[tokenOut] = new(big.Int).Set(tokenBalance)
	}
	return States{srcChain: src, dstChain: dst}
}

func TestSimpleHappyPath(t *testing.T) {
	states := testStates(eth(1), eth(5),
		transfer(reqID1, eth(1), big.NewInt(10_000_000_000_000_000)))
	e := NewSimple(zaptest.NewLogger(t))

	trades := e.Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1)

	tr := trades[0]
	require.Equal(t, reqID1, tr.RequestID)
	require.Equal(t, srcChain, tr.SrcChainID)
	require.Equal(t, dstChain, tr.DstChainID)
	require.Equal(t, tokenOut, tr.TokenOut)
	require.Equal(t, eth(1), tr.Amount)
	require.Equal(t, eth(4), states[dstChain].TokenBalance(tokenOut), "inventory commit debits the clone")
}

func TestSimpleAlreadyFulfilled(t *testing.T) {
	states := testStates(eth(1), eth(5), transfer(reqID1, eth(1), big.NewInt(100)))
	states[dstChain].Fulfilled[reqID1] = struct{}{}

	trades := NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Empty(t, trades)
}

func TestSimpleSkipReasons(t *testing.T) {
	base := func() swap.Transfer { return transfer(reqID1, eth(1), big.NewInt(100)) }

	t.Run("in flight", func(t *testing.T) {
		states := testStates(eth(1), eth(5), base())
		trades := NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{reqID1: true})
		require.Empty(t, trades)
	})
	t.Run("executed", func(t *testing.T) {
		tr := base()
		tr.Params.Executed = true
		states := testStates(eth(1), eth(5), tr)
		require.Empty(t, NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
	})
	t.Run("destination unknown", func(t *testing.T) {
		states := testStates(eth(1), eth(5), base())
		delete(states, dstChain)
		require.Empty(t, NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
	})
	t.Run("no native balance", func(t *testing.T) {
		states := testStates(nil, eth(5), base())
		require.Empty(t, NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
	})
	t.Run("token missing", func(t *testing.T) {
		states := testStates(eth(1), nil, base())
		require.Empty(t, NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
	})
	t.Run("token short", func(t *testing.T) {
		states := testStates(eth(1), big.NewInt(1), base())
		require.Empty(t, NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
	})
	t.Run("zero fee", func(t *testing.T) {
		states := testStates(eth(1), eth(5), transfer(reqID1, eth(1), big.NewInt(0)))
		require.Empty(t, NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{}))
	})
}

func TestSimpleTwoCandidatesOneInventory(t *testing.T) {
	states := testStates(eth(1), eth(5),
		transfer(reqID1, eth(4), big.NewInt(100)),
		transfer(reqID2, eth(3), big.NewInt(100)))

	trades := NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1, "source order wins the contested inventory")
	require.Equal(t, reqID1, trades[0].RequestID)
	require.Equal(t, eth(4), trades[0].Amount)
	require.Equal(t, eth(1), states[dstChain].TokenBalance(tokenOut))
}

func TestSimpleExactBalanceBoundary(t *testing.T) {
	states := testStates(eth(1), eth(1),
		transfer(reqID1, eth(1), big.NewInt(100)),
		transfer(reqID2, eth(1), big.NewInt(100)))

	trades := NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1)
	require.Zero(t, states[dstChain].TokenBalance(tokenOut).Sign(), "debit leaves the balance at zero")
}

func TestSimpleNoDuplicateRequestIDsPerTick(t *testing.T) {
	states := testStates(eth(1), eth(5),
		transfer(reqID1, eth(1), big.NewInt(100)),
		transfer(reqID1, eth(1), big.NewInt(100)))

	trades := NewSimple(zaptest.NewLogger(t)).Evaluate(context.Background(), srcChain, states, fakeInflight{})
	require.Len(t, trades, 1, "a request listed twice by the source is emitted once")
	require.Equal(t, eth(4), states[dstChain].TokenBalance(tokenOut), "and debited once")
}
