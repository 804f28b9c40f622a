// Package runtime implements IndexerRuntime: the per-indexer worker that
// resolves manifest artifacts, loads the mapping plugin, streams blocks from
// the dispatcher, and drives the handler through to a persisted checkpoint.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/chaingraph/indexer/blob"
	"github.com/chaingraph/indexer/cache"
	"github.com/chaingraph/indexer/chain"
	"github.com/chaingraph/indexer/dispatcher"
	"github.com/chaingraph/indexer/env"
	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/plugin"
	"github.com/chaingraph/indexer/registry"
	"github.com/chaingraph/indexer/service/logger"
	"github.com/chaingraph/indexer/storelayout"
	"github.com/chaingraph/indexer/store/postgres"
)

const (
	streamRetryInterval = 30 * time.Second
	messageTimeout      = 60 * time.Second
)

// Runtime owns the lifecycle of a single indexer.
type Runtime struct {
	indexer       model.Indexer
	manifest      *model.Manifest
	dispatcherURL string
	history       chain.HistoryFetcher

	registry *registry.Registry
	store    *postgres.Store
	cache    *cache.Cache
	adapter  *storeAdapter
	mapping  *plugin.Loaded
}

// New runs the full startup sequence for indexer: fetch artifacts, parse and
// validate the manifest, build the relational store, and load the mapping
// plugin. On any failure up to and including loading the plugin the
// indexer's status is set to Invalid and the error is returned; a failure to
// persist the Deployed status is returned without changing the status. The
// caller must not start the steady-state loop after an error.
func New(
	ctx context.Context,
	indexer model.Indexer,
	fetcher *blob.Fetcher,
	pool *pgxpool.Pool,
	reg *registry.Registry,
	scratchDir string,
	dispatcherURL string,
	history chain.HistoryFetcher,
) (*Runtime, error) {
	mappingBlob, err := fetcher.CatAll(ctx, indexer.MappingCID)
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("fetch mapping: %w", err))
	}
	schemaBlob, err := fetcher.CatAll(ctx, indexer.SchemaCID)
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("fetch schema: %w", err))
	}
	manifestBlob, err := fetcher.CatAll(ctx, indexer.ManifestCID)
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("fetch manifest: %w", err))
	}

	mappingPath, err := writeScratchFile(scratchDir, ".so", mappingBlob)
	if err != nil {
		return invalidate(ctx, reg, indexer, err)
	}
	if _, err := writeScratchFile(scratchDir, ".graphql", schemaBlob); err != nil {
		return invalidate(ctx, reg, indexer, err)
	}

	manifest, err := model.ParseManifest(manifestBlob)
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("parse manifest: %w", err))
	}
	manifest.ID = indexer.Hash

	if maxAPI := env.GetString("MAX_API_VERSION"); maxAPI != "" {
		for _, ds := range manifest.DataSources {
			if ds.Mapping.APIVer > maxAPI {
				return invalidate(ctx, reg, indexer, fmt.Errorf("mapping apiVersion %q exceeds supported maximum %q", ds.Mapping.APIVer, maxAPI))
			}
		}
	}

	layout, err := storelayout.Derive(string(schemaBlob))
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("derive layout: %w", err))
	}
	layout.ResolveReferences(layout.Enums)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("acquire connection: %w", err))
	}
	namespace, err := reg.PrepareSchema(ctx, conn, indexer.Hash)
	conn.Release()
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("prepare schema: %w", err))
	}
	indexer.Namespace = namespace

	store := postgres.New(pool, namespace, indexer.Network, indexer.Hash, layout)
	if err := store.CreateSchema(ctx); err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("create schema: %w", err))
	}
	if metaURL := env.GetString("GRAPHQL_METADATA_URL"); metaURL != "" {
		if err := postgres.TrackLayout(ctx, metaURL, namespace, layout); err != nil {
			logger.For(ctx).Warnf("runtime %s: table tracking failed: %s", indexer.Hash, err)
		}
	}

	c := cache.New(store)
	adapter := &storeAdapter{ctx: ctx, cache: c}

	mapping, err := plugin.Load(mappingPath, adapter)
	if err != nil {
		return invalidate(ctx, reg, indexer, fmt.Errorf("load mapping plugin: %w", err))
	}

	if err := reg.SetStatus(ctx, indexer.Hash, model.StatusDeployed); err != nil {
		return nil, fmt.Errorf("mark indexer deployed: %w", err)
	}

	return &Runtime{
		indexer:       indexer,
		manifest:      manifest,
		dispatcherURL: dispatcherURL,
		history:       history,
		registry:      reg,
		store:         store,
		cache:         c,
		adapter:       adapter,
		mapping:       mapping,
	}, nil
}

func invalidate(ctx context.Context, reg *registry.Registry, indexer model.Indexer, cause error) (*Runtime, error) {
	if err := reg.SetStatus(ctx, indexer.Hash, model.StatusInvalid); err != nil {
		logger.For(ctx).Errorf("runtime %s: failed to persist Invalid status: %s", indexer.Hash, err)
	}
	return nil, cause
}

// chainKind reports the indexer's configured chain family, derived from its
// data sources.
func (r *Runtime) chainKind() model.Chain {
	if len(r.manifest.DataSources) == 0 {
		return model.ChainEthereum
	}
	kind, _ := model.ChainFromString(r.manifest.DataSources[0].Kind)
	return kind
}

// Run drives the steady-state loop until ctx is cancelled: subscribe to the
// dispatcher, process committed batches in order, backfilling history when
// the live stream starts ahead of the checkpoint, and persist got_block
// after every successfully applied batch.
func (r *Runtime) Run(ctx context.Context) error {
	got := r.indexer.GotBlock
	handler := r.mapping.Handler(r.chainKind())
	if handler == nil {
		return fmt.Errorf("mapping declares no handler for chain %s", r.chainKind())
	}

	var stream *streamClient
	defer func() {
		if stream != nil {
			stream.close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if stream == nil {
			s, err := r.openStream(ctx, got)
			if err != nil {
				logger.For(ctx).Errorf("runtime %s: open stream failed: %s", r.indexer.Hash, err)
				sleep(ctx, streamRetryInterval)
				continue
			}
			stream = s
		}

		blocks, err := stream.next(messageTimeout)
		if err != nil {
			logger.For(ctx).Warnf("runtime %s: stream read failed, reconnecting: %s", r.indexer.Hash, err)
			stream.close()
			stream = nil
			continue
		}
		if len(blocks) == 0 {
			continue
		}

		if first := blocks[0]; got >= 0 && int64(first.Slot) > got+1 {
			if err := r.backfill(ctx, handler, uint64(got), first.Slot); err != nil {
				if postgres.IsFatal(err) {
					return fmt.Errorf("fatal store error during backfill: %w", err)
				}
				logger.For(ctx).Errorf("runtime %s: backfill failed: %s", r.indexer.Hash, err)
			} else {
				got = int64(first.Slot) - 1
			}
		}

		newGot, err := r.applyBatch(ctx, handler, blocks)
		if err != nil {
			if postgres.IsFatal(err) {
				return fmt.Errorf("fatal store error on batch starting at slot %d: %w", blocks[0].Slot, err)
			}
			logger.For(ctx).Errorf("runtime %s: handler error on batch starting at slot %d: %s", r.indexer.Hash, blocks[0].Slot, err)
			continue
		}
		got = newGot
	}
}

func (r *Runtime) openStream(ctx context.Context, got int64) (*streamClient, error) {
	var start *uint64
	if got >= 0 {
		v := uint64(got) + 1
		start = &v
	}
	req := dispatcher.BlockRequest{
		IndexerHash:      r.indexer.Hash,
		StartBlockNumber: start,
		ChainType:        int32(r.chainKind()),
		Network:          r.indexer.Network,
		Filter:           dispatcher.SerializeAddresses(r.filterAddresses()),
	}
	return dialStream(ctx, r.dispatcherURL, req)
}

// filterAddresses collects the addresses named by the manifest's data
// sources, the set the dispatcher narrows each delivered block to.
func (r *Runtime) filterAddresses() []model.Address {
	var addrs []model.Address
	for _, ds := range r.manifest.DataSources {
		if ds.Address != "" {
			addrs = append(addrs, model.Address(ds.Address))
		}
	}
	return addrs
}

// backfillPoolSize bounds concurrent history fetches the same way a chain
// adapter bounds its own per-block fetch fan-out.
const backfillPoolSize = 8

// backfill closes the numeric gap (got, firstLiveSlot) chain-agnostically,
// applying each historical block through the same handler path as live
// blocks before the caller resumes processing the live batch. A slot whose
// fetch fails is treated as a permanent gap, the same as a live adapter's
// fetch timeout, rather than aborting the whole backfill.
func (r *Runtime) backfill(ctx context.Context, handler plugin.Handler, got, firstLiveSlot uint64) error {
	if r.history == nil {
		return fmt.Errorf("no history fetcher configured")
	}
	n := int(firstLiveSlot - got - 1)
	if n <= 0 {
		return nil
	}

	results := make([]*model.Block, n)
	wp := workerpool.New(backfillPoolSize)
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		slot := got + 1 + uint64(i)
		idx := i
		wp.Submit(func() {
			blk, err := r.history.FetchBlock(ctx, slot)
			if err != nil {
				logger.For(ctx).Warnf("runtime %s: backfill fetch slot %d failed: %s", r.indexer.Hash, slot, err)
				blk = nil
			}
			mu.Lock()
			results[idx] = blk
			mu.Unlock()
		})
	}
	wp.StopWait()

	var blocks []*model.Block
	for _, blk := range results {
		if blk != nil {
			blocks = append(blocks, blk)
		}
	}
	if len(blocks) == 0 {
		return nil
	}
	_, err := r.applyBatch(ctx, handler, blocks)
	return err
}

// applyBatch invokes handler on blocks, flushes the resulting modifications,
// and persists got_block. If the handler fails its writes are discarded; if
// computing or flushing the modifications fails, the pending updates stay
// in the cache uncommitted.
func (r *Runtime) applyBatch(ctx context.Context, handler plugin.Handler, blocks []*model.Block) (int64, error) {
	r.adapter.withContext(ctx)
	r.cache.EnterHandler()

	highest, err := handler.HandleBlocks(blocks)
	if err != nil {
		r.cache.ExitHandlerAndDiscardChanges()
		return 0, fmt.Errorf("handler: %w", err)
	}
	r.cache.ExitHandler()

	mods, err := r.cache.AsModifications(ctx)
	if err != nil {
		return 0, fmt.Errorf("compute modifications: %w", err)
	}
	if err := r.store.Flush(ctx, blocks[len(blocks)-1].Slot, mods); err != nil {
		// Pending updates stay in the cache so reprocessing this block
		// regenerates the same writes.
		return 0, fmt.Errorf("flush: %w", err)
	}
	r.cache.Commit()
	if err := r.registry.UpdateGotBlock(ctx, r.indexer.Hash, highest); err != nil {
		return 0, fmt.Errorf("checkpoint: %w", err)
	}
	return highest, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
