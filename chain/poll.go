package chain

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/service/logger"
)

// TipFunc returns the chain's current tip slot/block-number.
type TipFunc func(ctx context.Context) (uint64, error)

// FetchFunc fetches the block at slot, or (nil, nil) if the chain reports no
// block exists there (a permanent gap).
type FetchFunc func(ctx context.Context, slot uint64) (*model.Block, error)

// RunPollLoop drives the shared poll/fetch/emit algorithm common to every
// chain adapter: track the last processed slot, treat tip-finalityMargin as
// the highest safe slot, fan out a bounded batch of fetches per tick, and
// never drop a slot from the numeric sequence even when its fetch times out.
// cfg must carry resolved defaults; adapters apply Config.WithDefaults at
// construction. Callers seed last via StartSlot so a fresh process begins
// near the safe tip rather than walking the chain from genesis.
func RunPollLoop(ctx context.Context, cfg Config, last uint64, tip TipFunc, fetch FetchFunc, out chan<- model.BlockInfo) error {
	sem := semaphore.NewWeighted(int64(2 * cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t, err := tip(ctx)
		if err != nil {
			logger.For(ctx).Errorf("chain poll (%s): tip query failed: %s", cfg.Network, err)
			sleep(ctx, cfg.PollInterval)
			continue
		}

		// Announce the next slot this loop will emit, not the raw tip: the
		// buffer bootstraps its expected slot from this value, and every
		// fetched block must sort at or after it or it would be dropped as
		// stale.
		select {
		case out <- model.CurrentSlot{Slot: last + 1}:
		case <-ctx.Done():
			return ctx.Err()
		}

		safe := uint64(0)
		if t > cfg.FinalityMargin {
			safe = t - cfg.FinalityMargin
		}
		if safe <= last {
			sleep(ctx, cfg.PollInterval)
			continue
		}

		batchEnd := last + cfg.BatchSize
		if safe < batchEnd {
			batchEnd = safe
		}

		var wg sync.WaitGroup
		for slot := last + 1; slot <= batchEnd; slot++ {
			slot := slot
			if err := sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer sem.Release(1)
				defer wg.Done()
				fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
				defer cancel()

				blk, err := fetch(fetchCtx, slot)
				if err != nil {
					logger.For(ctx).Warnf("chain poll (%s): fetch slot %d failed: %s", cfg.Network, slot, err)
					blk = nil
				}
				select {
				case out <- model.BlockMsg{Slot: slot, Block: blk}:
				case <-ctx.Done():
				}
			}()
		}
		wg.Wait()

		last = batchEnd
	}
}

// StartSlot resolves the slot polling begins after: the configured start
// block when set, otherwise the chain's current safe tip (tip minus the
// finality margin), so a fresh process starts near the head instead of
// re-walking the whole chain from genesis. Tip errors are retried on the
// poll interval, matching the poll loop's own self-healing.
func StartSlot(ctx context.Context, cfg Config, tip TipFunc) (uint64, error) {
	if cfg.StartBlock > 0 {
		return cfg.StartBlock, nil
	}
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		t, err := tip(ctx)
		if err != nil {
			logger.For(ctx).Errorf("chain poll (%s): start tip query failed: %s", cfg.Network, err)
			sleep(ctx, cfg.PollInterval)
			continue
		}
		if t > cfg.FinalityMargin {
			return t - cfg.FinalityMargin, nil
		}
		return 0, nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
