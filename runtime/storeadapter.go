package runtime

import (
	"context"

	"github.com/chaingraph/indexer/cache"
	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/plugin"
	"github.com/chaingraph/indexer/service/logger"
)

// storeAdapter exposes a cache.Cache as a plugin.IndexStore: the mapping ABI
// has no room for the context/error shape cache.Cache's methods need, so the
// adapter binds a fixed per-invocation context and logs (never panics) on a
// load error, leaving the entity effectively absent to the handler.
type storeAdapter struct {
	ctx   context.Context
	cache *cache.Cache
}

var _ plugin.IndexStore = (*storeAdapter)(nil)

func (s *storeAdapter) Set(key model.Key, data model.Entity) {
	s.cache.Set(key, data)
}

func (s *storeAdapter) Overwrite(key model.Key, data model.Entity) {
	s.cache.Overwrite(key, data)
}

func (s *storeAdapter) Remove(key model.Key) {
	s.cache.Remove(key)
}

func (s *storeAdapter) Get(key model.Key) (model.Entity, bool) {
	ent, ok, err := s.cache.Get(s.ctx, key)
	if err != nil {
		logger.For(s.ctx).Errorf("mapping store: get %s failed: %s", key, err)
		return nil, false
	}
	return ent, ok
}

// withContext rebinds the adapter's context for a new handler invocation;
// the plugin ABI is not context-aware, so the runtime refreshes this before
// every HandleBlocks call.
func (s *storeAdapter) withContext(ctx context.Context) { s.ctx = ctx }
