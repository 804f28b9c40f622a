package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/service/logger"
)

// ChainDispatcher owns one chain/network pair's BlockBuffer and Broadcast.
// It is the single task permitted to mutate the buffer; registration of new
// subscribers is safe from any goroutine.
type ChainDispatcher struct {
	Chain   model.Chain
	Network string

	buffer    *BlockBuffer
	Broadcast *Broadcast
	committed atomic.Uint64
}

// NewChainDispatcher constructs an idle dispatcher for one (chain, network).
func NewChainDispatcher(chain model.Chain, network string) *ChainDispatcher {
	return &ChainDispatcher{
		Chain:     chain,
		Network:   network,
		buffer:    NewBlockBuffer(),
		Broadcast: NewBroadcast(),
	}
}

// Run drains in until ctx is done, feeding every BlockInfo through the
// buffer and broadcasting each committed run to subscribers. It returns
// only when ctx is cancelled or in is closed.
func (d *ChainDispatcher) Run(ctx context.Context, in <-chan model.BlockInfo) {
	for {
		select {
		case <-ctx.Done():
			return
		case info, ok := <-in:
			if !ok {
				return
			}
			d.handle(ctx, info)
		}
	}
}

func (d *ChainDispatcher) handle(ctx context.Context, info model.BlockInfo) {
	switch v := info.(type) {
	case model.CurrentSlot:
		if len(d.buffer.pending) == 0 && d.buffer.expectedSlot == 0 {
			d.buffer.Bootstrap(v.Slot)
		}
	case model.BlockMsg:
		committed := d.buffer.Accept(v.Slot, v.Block)
		if len(committed) > 0 {
			d.Broadcast.SendBatch(committed)
			d.committed.Add(uint64(len(committed)))
			logger.For(ctx).Debugf("dispatcher %s/%s: committed %d block(s) up to slot %d",
				d.Chain, d.Network, len(committed), d.buffer.ExpectedSlot()-1)
		}
	}
}

// StatsLoop periodically logs the dispatcher's commit progress until ctx is
// done. Runs on its own goroutine; it only reads the atomic counter, never
// the single-owner buffer.
func (d *ChainDispatcher) StatsLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.For(ctx).Infof("dispatcher %s/%s: %d block(s) committed",
				d.Chain, d.Network, d.committed.Load())
		}
	}
}
