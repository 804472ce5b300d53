// Package swap holds the data model shared by the solver loop: swap request
// parameters as stored by the on-chain router, unfulfilled transfers observed
// on source chains, per-chain state snapshots and the trades derived from
// them.
package swap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Params mirrors the SwapRequestParameters struct stored by the router. Chain
// IDs are kept in their raw 256-bit form; use NormalizeChainID before keying
// any map on them.
type Params struct {
	SrcChainID      *big.Int
	DstChainID      *big.Int
	Sender          common.Address
	Recipient       common.Address
	TokenIn         common.Address
	TokenOut        common.Address
	AmountOut       *big.Int
	VerificationFee *big.Int
	SolverFee       *big.Int
	Nonce           *big.Int
	Executed        bool
	RequestedAt     *big.Int
}

// Verified reports whether p looks like a parameter set the destination
// router has actually stored. The router returns an all-zero struct for
// unknown request IDs, so a non-zero source chain and sender are the
// distinguishing marks.
func (p *Params) Verified() bool {
	if p == nil {
		return false
	}
	return p.SrcChainID != nil && p.SrcChainID.Sign() != 0 && p.Sender != (common.Address{})
}

// Transfer is one unfulfilled request observed on a source chain.
type Transfer struct {
	RequestID  common.Hash
	Params     Params
	Conditions []Condition
	Priority   int
}

// Trade is the evaluator's decision record for a single transfer. Chain IDs
// are already normalized to their 64-bit form.
type Trade struct {
	RequestID  common.Hash
	Nonce      *big.Int
	TokenIn    common.Address
	TokenOut   common.Address
	SrcChainID uint64
	DstChainID uint64
	Sender     common.Address
	Recipient  common.Address
	Amount     *big.Int
}

// ChainState is the per-chain snapshot assembled by one fetchState call.
type ChainState struct {
	NativeBalance *big.Int
	TokenBalances map[common.Address]*big.Int
	Transfers     []Transfer
	Fulfilled     map[common.Hash]struct{}
}

// NewChainState returns an empty snapshot with allocated maps.
func NewChainState() *ChainState {
	return &ChainState{
		NativeBalance: new(big.Int),
		TokenBalances: make(map[common.Address]*big.Int),
		Fulfilled:     make(map[common.Hash]struct{}),
	}
}

// IsFulfilled reports whether the canonical request ID is present in the
// snapshot's fulfilled set.
func (s *ChainState) IsFulfilled(id common.Hash) bool {
	if s == nil {
		return false
	}
	_, ok := s.Fulfilled[id]
	return ok
}

// TokenBalance returns the snapshot balance for the given token, or nil if
// the token was absent from the balance response.
func (s *ChainState) TokenBalance(token common.Address) *big.Int {
	if s == nil {
		return nil
	}
	return s.TokenBalances[token]
}

// Clone copies the snapshot so that intra-tick inventory commits can debit
// balances without touching the canonical store. Balance values are copied;
// the transfer list and fulfilled set are immutable per tick and shared.
func (s *ChainState) Clone() *ChainState {
	if s == nil {
		return nil
	}
	c := &ChainState{
		NativeBalance: new(big.Int),
		TokenBalances: make(map[common.Address]*big.Int, len(s.TokenBalances)),
		Transfers:     s.Transfers,
		Fulfilled:     s.Fulfilled,
	}
	if s.NativeBalance != nil {
		c.NativeBalance.Set(s.NativeBalance)
	}
	for token, bal := range s.TokenBalances {
		c.TokenBalances[token] = new(big.Int).Set(bal)
	}
	return c
}
