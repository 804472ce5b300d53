package swap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestChainStateClone(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	s := NewChainState()
	s.NativeBalance.SetInt64(1_000_000)
	s.TokenBalances[token] = big.NewInt(500)
	s.Fulfilled[common.HexToHash("0x01")] = struct{}{}

	c := s.Clone()
	c.NativeBalance.SetInt64(0)
	c.TokenBalances[token].Sub(c.TokenBalances[token], big.NewInt(500))

	// Debits against the clone must not leak into the canonical snapshot.
	require.Equal(t, int64(1_000_000), s.NativeBalance.Int64())
	require.Equal(t, int64(500), s.TokenBalances[token].Int64())
	require.Equal(t, int64(0), c.TokenBalances[token].Int64())

	// Fulfilled set is shared, it is immutable within a tick.
	require.True(t, c.IsFulfilled(common.HexToHash("0x01")))
}

func TestChainStateNilReceivers(t *testing.T) {
	var s *ChainState
	require.Nil(t, s.Clone())
	require.False(t, s.IsFulfilled(common.Hash{}))
	require.Nil(t, s.TokenBalance(common.Address{}))
}

func TestParamsVerified(t *testing.T) {
	var p *Params
	require.False(t, p.Verified())

	p = &Params{}
	require.False(t, p.Verified())

	p.SrcChainID = big.NewInt(31337)
	require.False(t, p.Verified(), "zero sender means unverified")

	p.Sender = common.HexToAddress("0x0000000000000000000000000000000000000001")
	require.True(t, p.Verified())

	p.SrcChainID = big.NewInt(0)
	require.False(t, p.Verified())
}

func TestCompareBig(t *testing.T) {
	ten, twenty := big.NewInt(10), big.NewInt(20)
	require.True(t, CompareBig(OpLT, ten, twenty))
	require.True(t, CompareBig(OpGT, twenty, ten))
	require.True(t, CompareBig(OpEQ, ten, big.NewInt(10)))
	require.True(t, CompareBig(OpGTE, ten, ten))
	require.True(t, CompareBig(OpLTE, ten, ten))
	require.False(t, CompareBig(OpBetween, ten, twenty))
	require.False(t, CompareBig(OpGT, nil, twenty))
}

func TestCompareFloat(t *testing.T) {
	require.True(t, CompareFloat(OpGT, 1.5, 1.0))
	require.True(t, CompareFloat(OpLTE, 1.0, 1.0))
	require.False(t, CompareFloat(OpBetween, 1.0, 2.0))
}
