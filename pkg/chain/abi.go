package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/onlyswaps/solver/pkg/swap"
)

// Router and ERC-20 fragments the solver consumes. The faucet entrypoints are
// development helpers and intentionally absent.
const (
	routerABIJSON = `[
		{"type":"function","name":"getFulfilledTransfers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32[]"}]},
		{"type":"function","name":"getUnfulfilledSolverRefunds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32[]"}]},
		{"type":"function","name":"getSwapRequestParameters","stateMutability":"view","inputs":[{"name":"requestId","type":"bytes32"}],"outputs":[
			{"name":"srcChainId","type":"uint256"},
			{"name":"dstChainId","type":"uint256"},
			{"name":"sender","type":"address"},
			{"name":"recipient","type":"address"},
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"amountOut","type":"uint256"},
			{"name":"verificationFee","type":"uint256"},
			{"name":"solverFee","type":"uint256"},
			{"name":"nonce","type":"uint256"},
			{"name":"executed","type":"bool"},
			{"name":"requestedAt","type":"uint256"}]},
		{"type":"function","name":"relayTokens","stateMutability":"nonpayable","inputs":[
			{"name":"solver","type":"address"},
			{"name":"requestId","type":"bytes32"},
			{"name":"sender","type":"address"},
			{"name":"recipient","type":"address"},
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"amountOut","type":"uint256"},
			{"name":"srcChainId","type":"uint256"},
			{"name":"nonce","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	erc20ABIJSON = `[
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`
)

var (
	routerABI abi.ABI
	erc20ABI  abi.ABI

	// paramWords decodes the 12-word parameter tuple without committing to a
	// layout: every address-or-amount slot comes back as uint256 and is
	// mapped afterwards. Word 10 is the executed flag in both observed
	// encodings.
	paramWords abi.Arguments
)

func init() {
	var err error
	if routerABI, err = abi.JSON(strings.NewReader(routerABIJSON)); err != nil {
		panic(err)
	}
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic(err)
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	boolTy, err := abi.NewType("bool", "", nil)
	if err != nil {
		panic(err)
	}
	for i := 0; i < 12; i++ {
		ty := uint256Ty
		if i == 10 {
			ty = boolTy
		}
		paramWords = append(paramWords, abi.Argument{Type: ty})
	}
}

// asBig coerces an ABI-decoded word to a 256-bit integer. Addresses decoded
// into the wrong slot arrive as common.Address, amounts occasionally as hex
// strings.
func asBig(v interface{}) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		return x, nil
	case common.Address:
		return new(big.Int).SetBytes(x.Bytes()), nil
	case common.Hash:
		return new(big.Int).SetBytes(x.Bytes()), nil
	case string:
		if strings.HasPrefix(x, "0x") || strings.HasPrefix(x, "0X") {
			return hexutil.DecodeBig(strings.ToLower(x))
		}
		n, ok := new(big.Int).SetString(x, 10)
		if !ok {
			return nil, fmt.Errorf("cannot parse %q as integer", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", v)
	}
}

// asAddress coerces an ABI-decoded word to an address, taking the low 20
// bytes when the word arrives as a large integer.
func asAddress(v interface{}) (common.Address, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case *big.Int:
		return common.BigToAddress(x), nil
	case string:
		if !common.IsHexAddress(x) {
			return common.Address{}, fmt.Errorf("cannot parse %q as address", x)
		}
		return common.HexToAddress(x), nil
	default:
		return common.Address{}, fmt.Errorf("cannot coerce %T to address", v)
	}
}

// decodeSwapParams maps a raw getSwapRequestParameters return onto Params.
//
// The named-struct layout (srcChainId first) is canonical. Some router
// deployments return the raw positional tuple with the sender at index 0; the
// fallback is taken only when the canonical read yields implausible chain IDs
// and the caller is expected to log it. An all-zero tuple is the router's "no
// such request" answer and decodes to an unverified zero Params with no
// fallback.
func decodeSwapParams(output []byte) (p swap.Params, fallback bool, err error) {
	vals, err := paramWords.Unpack(output)
	if err != nil {
		return swap.Params{}, false, fmt.Errorf("parameter tuple of unexpected shape: %w", err)
	}

	if allZero(vals) {
		return zeroParams(), false, nil
	}

	src, _ := asBig(vals[0])
	dst, _ := asBig(vals[1])
	if swap.FitsChainID(src) && swap.FitsChainID(dst) && src.Sign() != 0 {
		p, err = mapNamedLayout(vals)
		return p, false, err
	}

	p, err = mapPositionalLayout(vals)
	if err != nil {
		return swap.Params{}, false, err
	}
	return p, true, nil
}

func allZero(vals []interface{}) bool {
	for _, v := range vals {
		switch x := v.(type) {
		case *big.Int:
			if x.Sign() != 0 {
				return false
			}
		case bool:
			if x {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func zeroParams() swap.Params {
	return swap.Params{
		SrcChainID:      new(big.Int),
		DstChainID:      new(big.Int),
		AmountOut:       new(big.Int),
		VerificationFee: new(big.Int),
		SolverFee:       new(big.Int),
		Nonce:           new(big.Int),
		RequestedAt:     new(big.Int),
	}
}

// mapNamedLayout follows the struct field order srcChainId..requestedAt.
func mapNamedLayout(vals []interface{}) (swap.Params, error) {
	var (
		p   swap.Params
		err error
	)
	if p.SrcChainID, err = asBig(vals[0]); err != nil {
		return p, err
	}
	if p.DstChainID, err = asBig(vals[1]); err != nil {
		return p, err
	}
	if p.Sender, err = asAddress(vals[2]); err != nil {
		return p, err
	}
	if p.Recipient, err = asAddress(vals[3]); err != nil {
		return p, err
	}
	if p.TokenIn, err = asAddress(vals[4]); err != nil {
		return p, err
	}
	if p.TokenOut, err = asAddress(vals[5]); err != nil {
		return p, err
	}
	if p.AmountOut, err = asBig(vals[6]); err != nil {
		return p, err
	}
	if p.VerificationFee, err = asBig(vals[7]); err != nil {
		return p, err
	}
	if p.SolverFee, err = asBig(vals[8]); err != nil {
		return p, err
	}
	if p.Nonce, err = asBig(vals[9]); err != nil {
		return p, err
	}
	p.Executed = vals[10].(bool)
	if p.RequestedAt, err = asBig(vals[11]); err != nil {
		return p, err
	}
	return p, nil
}

// mapPositionalLayout follows the raw tuple order with the sender at index 0.
func mapPositionalLayout(vals []interface{}) (swap.Params, error) {
	var (
		p   swap.Params
		err error
	)
	if p.Sender, err = asAddress(vals[0]); err != nil {
		return p, err
	}
	if p.Recipient, err = asAddress(vals[1]); err != nil {
		return p, err
	}
	if p.TokenIn, err = asAddress(vals[2]); err != nil {
		return p, err
	}
	if p.TokenOut, err = asAddress(vals[3]); err != nil {
		return p, err
	}
	if p.AmountOut, err = asBig(vals[4]); err != nil {
		return p, err
	}
	if p.VerificationFee, err = asBig(vals[5]); err != nil {
		return p, err
	}
	if p.SolverFee, err = asBig(vals[6]); err != nil {
		return p, err
	}
	if p.SrcChainID, err = asBig(vals[7]); err != nil {
		return p, err
	}
	if p.DstChainID, err = asBig(vals[8]); err != nil {
		return p, err
	}
	if p.Nonce, err = asBig(vals[9]); err != nil {
		return p, err
	}
	p.Executed = vals[10].(bool)
	if p.RequestedAt, err = asBig(vals[11]); err != nil {
		return p, err
	}
	if !swap.FitsChainID(p.SrcChainID) || !swap.FitsChainID(p.DstChainID) {
		return swap.Params{}, fmt.Errorf("implausible parameter tuple: chain id exceeds 64 bits in both layouts")
	}
	return p, nil
}
