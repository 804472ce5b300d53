package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// BlockEvent is one tick of the solver loop: a new block on one chain.
type BlockEvent struct {
	ChainID uint64
	Number  uint64
}

// Blocks returns a lazy, non-restartable stream of block events, monotonic
// and gap-free from the block observed at subscription start. A websocket
// head subscription is combined with a polling fallback: whichever source
// reports a block first wins and duplicates are dropped, so a silent push
// subscription still advances on the poll cadence. The channel closes when
// ctx is cancelled.
func (c *Client) Blocks(ctx context.Context) <-chan BlockEvent {
	out := make(chan BlockEvent)
	go c.streamBlocks(ctx, out)
	return out
}

func (c *Client) streamBlocks(ctx context.Context, out chan<- BlockEvent) {
	defer close(out)

	heads := make(chan *types.Header, 16)
	sub, err := c.backend.SubscribeNewHead(ctx, heads)
	if err != nil {
		c.log.Debug("no push subscription, using polling only", zap.Error(err))
		sub = nil
	}
	if sub != nil {
		defer sub.Unsubscribe()
	}
	subErr := func() <-chan error {
		if sub == nil {
			return nil
		}
		return sub.Err()
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	var (
		last    uint64
		started bool
	)
	emit := func(n uint64) bool {
		if !started {
			started = true
			last = n
			return c.send(ctx, out, n)
		}
		if n <= last {
			return true
		}
		// Catch-up in order, no gaps.
		for b := last + 1; b <= n; b++ {
			if !c.send(ctx, out, b) {
				return false
			}
			last = b
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case head := <-heads:
			if head == nil || head.Number == nil {
				continue
			}
			if !emit(head.Number.Uint64()) {
				return
			}
		case err := <-subErr():
			c.log.Warn("head subscription dropped, resubscribing", zap.Error(err))
			sub.Unsubscribe()
			sub, err = c.backend.SubscribeNewHead(ctx, heads)
			if err != nil {
				c.log.Warn("resubscribe failed, polling continues", zap.Error(err))
				sub = nil
			}
		case <-ticker.C:
			n, err := c.backend.BlockNumber(ctx)
			if err != nil {
				c.log.Debug("block poll failed", zap.Error(err))
				continue
			}
			if !emit(n) {
				return
			}
		}
	}
}

func (c *Client) send(ctx context.Context, out chan<- BlockEvent, n uint64) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- BlockEvent{ChainID: c.chainID, Number: n}:
		return true
	}
}
