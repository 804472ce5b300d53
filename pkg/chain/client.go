// Package chain binds one EVM chain to one endpoint and the solver's wallet.
// It produces the block event stream driving the solver loop, assembles the
// per-chain state snapshot, and submits the approve and relay transactions.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/onlyswaps/solver/pkg/config"
	"github.com/onlyswaps/solver/pkg/swap"
)

// Backend is the slice of ethclient.Client the solver needs. Narrowed so that
// tests can stub the node.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ErrTxFailed is returned when a mined transaction has a failed receipt
// status.
var ErrTxFailed = errors.New("transaction reverted")

const (
	// pollInterval is the fallback block-polling cadence; the poller runs
	// even when a websocket subscription is live.
	pollInterval = 2 * time.Second

	// receiptInterval is the receipt-wait cadence.
	receiptInterval = 500 * time.Millisecond
)

// Client is the per-chain client. All methods are safe for concurrent use;
// transaction submission is expected to be serialized by the executor since
// the wallet nonce is shared.
type Client struct {
	log     *zap.Logger
	chainID uint64
	backend Backend
	closer  *rpc.Client

	router common.Address
	tokens []common.Address

	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer

	gasBuffer      uint64
	gasPriceBuffer uint64

	pollEvery time.Duration
}

// Dial connects the configured network and verifies the endpoint serves the
// expected chain ID.
func Dial(ctx context.Context, cfg config.Network, key *ecdsa.PrivateKey, log *zap.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain %d: dial %s: %w", cfg.ChainID, cfg.RPCURL, err)
	}
	ec := ethclient.NewClient(rc)
	remote, err := ec.ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("chain %d: read chain id: %w", cfg.ChainID, err)
	}
	if swap.NormalizeChainID(remote) != cfg.ChainID {
		rc.Close()
		return nil, fmt.Errorf("chain %d: endpoint %s serves chain %s", cfg.ChainID, cfg.RPCURL, remote)
	}
	c := New(cfg.ChainID, ec, cfg.Router(), cfg.TokenAddresses(), key, log)
	c.closer = rc
	c.gasBuffer = cfg.TxGasBuffer
	c.gasPriceBuffer = cfg.TxGasPriceBuffer
	return c, nil
}

// New builds a client over an existing backend. Used directly by tests.
func New(chainID uint64, backend Backend, router common.Address, tokens []common.Address, key *ecdsa.PrivateKey, log *zap.Logger) *Client {
	c := &Client{
		log:            log.With(zap.Uint64("chain", chainID)),
		chainID:        chainID,
		backend:        backend,
		router:         router,
		tokens:         tokens,
		key:            key,
		signer:         types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
		gasBuffer:      config.DefaultTxGasBuffer,
		gasPriceBuffer: config.DefaultTxGasPriceBuffer,
		pollEvery:      pollInterval,
	}
	if key != nil {
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c
}

// ChainID returns the 64-bit chain ID this client is bound to.
func (c *Client) ChainID() uint64 { return c.chainID }

// Router returns the router contract address on this chain.
func (c *Client) Router() common.Address { return c.router }

// Tokens returns the configured token addresses on this chain.
func (c *Client) Tokens() []common.Address { return c.tokens }

// SuggestGasPrice reads the node's current gas price estimate.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.backend.SuggestGasPrice(ctx)
}

// SolverAddress is the wallet address transactions are sent from.
func (c *Client) SolverAddress() common.Address { return c.from }

// Close tears down the underlying transport. Outstanding calls are cancelled
// by the transport shutdown.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer.Close()
	}
}

// FetchState assembles the chain snapshot: native balance, token balances
// (read concurrently), the fulfilled set and the open transfers. Partial
// results are fine; an error is returned only when nothing could be read,
// in which case the tick is skipped.
func (c *Client) FetchState(ctx context.Context) (*swap.ChainState, error) {
	state := swap.NewChainState()

	native, nativeErr := c.backend.BalanceAt(ctx, c.from, nil)
	if nativeErr != nil {
		c.log.Warn("native balance read failed", zap.Error(nativeErr))
	} else {
		state.NativeBalance.Set(native)
	}

	var g errgroup.Group
	balances := make([]*big.Int, len(c.tokens))
	for i, token := range c.tokens {
		i, token := i, token
		g.Go(func() error {
			bal, err := c.tokenBalance(ctx, token, c.from)
			if err != nil {
				c.log.Warn("token balance read failed",
					zap.String("token", swap.LowerAddress(token)), zap.Error(err))
				return nil
			}
			balances[i] = bal
			return nil
		})
	}
	_ = g.Wait()
	for i, bal := range balances {
		if bal != nil {
			state.TokenBalances[c.tokens[i]] = bal
		}
	}

	if nativeErr != nil && len(state.TokenBalances) == 0 {
		return nil, fmt.Errorf("no balances retrievable: %w", nativeErr)
	}

	fulfilled, err := c.fulfilledTransfers(ctx)
	if err != nil {
		// Without the fulfilled set the evaluator cannot tell settled
		// requests apart, so the snapshot carries balances only.
		c.log.Warn("fulfilled set read failed, skipping transfers", zap.Error(err))
		return state, nil
	}
	for _, id := range fulfilled {
		state.Fulfilled[id] = struct{}{}
	}

	open, err := c.unfulfilledSolverRefunds(ctx)
	if err != nil {
		c.log.Warn("unfulfilled refunds read failed", zap.Error(err))
		return state, nil
	}
	for _, id := range open {
		params, _, err := c.StoredParameters(ctx, id)
		if err != nil {
			c.log.Warn("dropping transfer, parameter lookup failed",
				zap.String("request", swap.ShortRequestID(id)), zap.Error(err))
			continue
		}
		state.Transfers = append(state.Transfers, swap.Transfer{RequestID: id, Params: params})
	}
	return state, nil
}

// StoredParameters reads getSwapRequestParameters for the given request ID.
// The second return reports whether the router has a verified record (the
// all-zero answer means it does not).
func (c *Client) StoredParameters(ctx context.Context, id common.Hash) (swap.Params, bool, error) {
	data, err := routerABI.Pack("getSwapRequestParameters", id)
	if err != nil {
		return swap.Params{}, false, err
	}
	out, err := c.call(ctx, c.router, data)
	if err != nil {
		return swap.Params{}, false, fmt.Errorf("getSwapRequestParameters: %w", err)
	}
	params, fallback, err := decodeSwapParams(out)
	if err != nil {
		return swap.Params{}, false, err
	}
	if fallback {
		c.log.Warn("positional parameter decode used, named layout implausible",
			zap.String("request", swap.ShortRequestID(id)))
	}
	return params, params.Verified(), nil
}

// Approve submits an ERC-20 approval for the router and waits for it to be
// mined successfully.
func (c *Client) Approve(ctx context.Context, token common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", c.router, amount)
	if err != nil {
		return err
	}
	receipt, err := c.transact(ctx, token, data)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	c.log.Debug("approve mined", zap.String("tx", receipt.TxHash.Hex()))
	return nil
}

// Relay submits relayTokens for the given trade and waits for the receipt.
// Addresses go out in their canonical 20-byte form, which the ABI encoder
// renders lower-case on the wire.
func (c *Client) Relay(ctx context.Context, trade swap.Trade) error {
	data, err := routerABI.Pack("relayTokens",
		c.from,
		trade.RequestID,
		trade.Sender,
		trade.Recipient,
		trade.TokenIn,
		trade.TokenOut,
		trade.Amount,
		new(big.Int).SetUint64(trade.SrcChainID),
		trade.Nonce,
	)
	if err != nil {
		return err
	}
	receipt, err := c.transact(ctx, c.router, data)
	if err != nil {
		return fmt.Errorf("relayTokens: %w", err)
	}
	c.log.Info("relay mined",
		zap.String("request", swap.ShortRequestID(trade.RequestID)),
		zap.String("tx", receipt.TxHash.Hex()))
	return nil
}

func (c *Client) tokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	var bal *big.Int
	if err := erc20ABI.UnpackIntoInterface(&bal, "balanceOf", out); err != nil {
		return nil, err
	}
	return bal, nil
}

func (c *Client) fulfilledTransfers(ctx context.Context) ([]common.Hash, error) {
	return c.requestIDList(ctx, "getFulfilledTransfers")
}

func (c *Client) unfulfilledSolverRefunds(ctx context.Context) ([]common.Hash, error) {
	return c.requestIDList(ctx, "getUnfulfilledSolverRefunds")
}

func (c *Client) requestIDList(ctx context.Context, method string) ([]common.Hash, error) {
	data, err := routerABI.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.router, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	var raw [][32]byte
	if err := routerABI.UnpackIntoInterface(&raw, method, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	ids := make([]common.Hash, len(raw))
	for i, b := range raw {
		ids[i] = common.Hash(b)
	}
	return ids, nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
}

// transact estimates, signs, submits and waits for one transaction, applying
// the configured gas buffers.
func (c *Client) transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gasPrice = applyPercent(gasPrice, c.gasPriceBuffer)

	msg := ethereum.CallMsg{From: c.from, To: &to, Data: data}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * c.gasBuffer / 100

	tx := types.NewTransaction(nonce, to, new(big.Int), gas, gasPrice, data)
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	c.log.Debug("transaction submitted", zap.String("tx", signed.Hash().Hex()))

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTxFailed, signed.Hash().Hex())
	}
	return receipt, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt not ready", zap.String("tx", hash.Hex()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func applyPercent(v *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(pct))
	return out.Div(out, big.NewInt(100))
}
