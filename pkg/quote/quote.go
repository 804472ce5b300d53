// Package quote talks to a fee-quote endpoint. Amounts travel as decimal
// strings since 256-bit values do not fit JSON numbers.
package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/onlyswaps/solver/pkg/swap"
)

const defaultTimeout = 5 * time.Second

// Quote is the fee breakdown for one prospective transfer.
type Quote struct {
	SolverFee      *big.Int
	NetworkFee     *big.Int
	TotalFee       *big.Int
	TransferAmount *big.Int
	ApprovalAmount *big.Int
}

// Client queries one quote endpoint.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a quote client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

type quoteRequest struct {
	SourceToken        string `json:"sourceToken"`
	DestinationToken   string `json:"destinationToken"`
	SourceChainID      string `json:"sourceChainId"`
	DestinationChainID string `json:"destinationChainId"`
	Amount             string `json:"amount"`
}

type quoteResponse struct {
	Fees struct {
		Solver  string `json:"solver"`
		Network string `json:"network"`
		Total   string `json:"total"`
	} `json:"fees"`
	TransferAmount string `json:"transferAmount"`
	ApprovalAmount string `json:"approvalAmount"`
}

// Quote fetches the fee breakdown for moving amount from srcToken on the
// source chain to dstToken on the destination chain.
func (c *Client) Quote(ctx context.Context, srcChainID, dstChainID uint64, srcToken, dstToken common.Address, amount *big.Int) (Quote, error) {
	body, err := json.Marshal(quoteRequest{
		SourceToken:        swap.LowerAddress(srcToken),
		DestinationToken:   swap.LowerAddress(dstToken),
		SourceChainID:      fmt.Sprintf("%d", srcChainID),
		DestinationChainID: fmt.Sprintf("%d", dstChainID),
		Amount:             amount.String(),
	})
	if err != nil {
		return Quote{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quote request: status %d", resp.StatusCode)
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Quote{}, fmt.Errorf("quote response: %w", err)
	}
	return parseQuote(decoded)
}

func parseQuote(r quoteResponse) (Quote, error) {
	var q Quote
	for _, f := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"fees.solver", r.Fees.Solver, &q.SolverFee},
		{"fees.network", r.Fees.Network, &q.NetworkFee},
		{"fees.total", r.Fees.Total, &q.TotalFee},
		{"transferAmount", r.TransferAmount, &q.TransferAmount},
		{"approvalAmount", r.ApprovalAmount, &q.ApprovalAmount},
	} {
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok {
			return Quote{}, fmt.Errorf("quote response: bad %s value %q", f.name, f.raw)
		}
		*f.dst = v
	}
	return q, nil
}
