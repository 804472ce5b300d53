package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// requestIDLength is the canonical textual length of a request ID:
// 0x prefix plus 64 hex digits.
const requestIDLength = 66

var chainIDMask = new(big.Int).SetUint64(^uint64(0))

// CanonicalRequestID normalizes a textual request ID to its canonical form:
// 0x-prefixed, lower-case, 66 characters. It is idempotent.
func CanonicalRequestID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != requestIDLength-2 {
		return "", fmt.Errorf("request id must be 32 bytes, got %d hex chars", len(s))
	}
	if _, err := hexutil.Decode("0x" + s); err != nil {
		return "", fmt.Errorf("request id is not valid hex: %w", err)
	}
	return "0x" + s, nil
}

// ParseRequestID converts a textual request ID to its 32-byte form, applying
// the same normalization as CanonicalRequestID.
func ParseRequestID(s string) (common.Hash, error) {
	canonical, err := CanonicalRequestID(s)
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(canonical), nil
}

// FormatRequestID renders the canonical textual form of a request ID.
func FormatRequestID(id common.Hash) string {
	return strings.ToLower(id.Hex())
}

// ShortRequestID is the log-friendly prefix of a request ID.
func ShortRequestID(id common.Hash) string {
	return FormatRequestID(id)[:10]
}

// NormalizeChainID reduces a raw 256-bit chain ID to the 64-bit form every
// internal map keys on: x mod 2^64.
func NormalizeChainID(x *big.Int) uint64 {
	if x == nil {
		return 0
	}
	return new(big.Int).And(x, chainIDMask).Uint64()
}

// FitsChainID reports whether the raw value fits in 64 bits, i.e. whether
// NormalizeChainID is lossless for it.
func FitsChainID(x *big.Int) bool {
	return x != nil && x.IsUint64()
}

// LowerAddress renders an address in the 0x-prefixed lower-case form used on
// the wire and in logs. common.Address.Hex would apply the EIP-55 mixed-case
// checksum, which the router comparisons do not want.
func LowerAddress(a common.Address) string {
	return hexutil.Encode(a.Bytes())
}
