// Package chain defines the ChainAdapter contract and shared polling
// constants; per-chain implementations live in the solana, ethereum, and
// substrate subpackages.
package chain

import (
	"context"
	"time"

	"github.com/chaingraph/indexer/model"
)

// Adapter polls a single chain's RPC for finalized blocks and emits them in
// increasing slot/block-number order onto out. Start never returns except
// via ctx cancellation or a permanent setup error.
type Adapter interface {
	Start(ctx context.Context, out chan<- model.BlockInfo) error
}

// HistoryFetcher is implemented by every concrete adapter to serve the
// runtime's backfill path: a single on-demand fetch of a known slot/block
// number, independent of the adapter's own poll loop.
type HistoryFetcher interface {
	FetchBlock(ctx context.Context, slot uint64) (*model.Block, error)
}

// Shared polling constants. Concrete values can be overridden per adapter
// instance via the Config each one accepts.
const (
	DefaultFinalityMargin = 100
	DefaultBatchSize      = 10
	DefaultPollInterval   = 500 * time.Millisecond
	FetchTimeout          = 60 * time.Second
)

// Config parameterizes a chain adapter's polling behavior. StartBlock, when
// nonzero, pins the slot polling begins after; zero means "seed from the
// chain's safe tip at startup" (see StartSlot).
type Config struct {
	Network        string
	StartBlock     uint64
	FinalityMargin uint64
	BatchSize      uint64
	PollInterval   time.Duration
}

// WithDefaults fills zero fields of c with the package defaults.
func (c Config) WithDefaults() Config {
	if c.FinalityMargin == 0 {
		c.FinalityMargin = DefaultFinalityMargin
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}
