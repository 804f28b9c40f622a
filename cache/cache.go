// Package cache implements the entity write-buffer sitting between a mapping
// handler and the relational store: it accumulates per-handler writes and
// translates them into a minimal set of durable modifications at flush time.
package cache

import (
	"context"
	"fmt"

	"github.com/chaingraph/indexer/model"
)

// Loader fetches the current (pre-block) value of a batch of keys from the
// relational store. Missing keys are simply absent from the returned map.
type Loader interface {
	GetMany(ctx context.Context, keys []model.Key) (map[model.Key]model.Entity, error)
}

// OpKind identifies the shape of a pending EntityOp.
type OpKind int

const (
	OpRemove OpKind = iota
	OpUpdate
	OpOverwrite
)

// EntityOp is a pending, not-yet-flushed write against one key.
type EntityOp struct {
	Kind OpKind
	Data model.Entity // unused when Kind == OpRemove
}

// accumulate folds a newly issued op onto a prior pending op for the same
// key, per the merge rules: Remove and Overwrite always win outright;
// Update onto Remove becomes an Overwrite (a null base with the delta
// applied); Update onto Update/Overwrite merges the delta into the
// existing data in place.
func accumulate(prior *EntityOp, next EntityOp) EntityOp {
	if prior == nil {
		return next
	}
	switch next.Kind {
	case OpRemove:
		return EntityOp{Kind: OpRemove}
	case OpOverwrite:
		return EntityOp{Kind: OpOverwrite, Data: next.Data}
	case OpUpdate:
		switch prior.Kind {
		case OpRemove:
			return EntityOp{Kind: OpOverwrite, Data: next.Data}
		default:
			merged := merge(prior.Data, next.Data)
			return EntityOp{Kind: prior.Kind, Data: merged}
		}
	}
	return next
}

// merge applies delta on top of base, delta's fields taking precedence, and
// returns a new Entity (base and delta are never mutated).
func merge(base, delta model.Entity) model.Entity {
	out := base.Clone()
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// equal reports whether a and b hold the same fields and values.
func equal(a, b model.Entity) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}

// state is the cache's sequencing invariant: handler calls may only mutate
// handlerUpdates, and only while InHandler; boundary transitions are the
// only way in or out.
type state int

const (
	stateIdle state = iota
	stateInHandler
)

// Cache is a single-threaded, per-runtime write buffer. It is not safe for
// concurrent use; callers own exactly one goroutine driving it.
type Cache struct {
	loader Loader

	current        map[model.Key]*model.Entity // nil value means "confirmed absent"
	updates        map[model.Key]EntityOp
	handlerUpdates map[model.Key]EntityOp
	staged         map[model.Key]*model.Entity // post-flush values computed by AsModifications

	st state
}

// New builds an empty cache backed by loader for current-value lookups.
func New(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		current: make(map[model.Key]*model.Entity),
		updates: make(map[model.Key]EntityOp),
	}
}

// EnterHandler begins a handler invocation. Must be paired with ExitHandler
// or ExitHandlerAndDiscardChanges before the next EnterHandler.
func (c *Cache) EnterHandler() {
	if c.st != stateIdle {
		panic("cache: EnterHandler called while already in a handler")
	}
	c.st = stateInHandler
	c.handlerUpdates = make(map[model.Key]EntityOp)
}

// ExitHandler commits the handler's pending writes into the cache's
// block-level update set.
func (c *Cache) ExitHandler() {
	c.requireInHandler("ExitHandler")
	for k, op := range c.handlerUpdates {
		prior, ok := c.updates[k]
		if ok {
			c.updates[k] = accumulate(&prior, op)
		} else {
			c.updates[k] = op
		}
	}
	c.handlerUpdates = nil
	c.st = stateIdle
}

// ExitHandlerAndDiscardChanges rolls back a failed handler invocation: its
// pending writes are dropped and the cache returns to the state it was in
// before EnterHandler.
func (c *Cache) ExitHandlerAndDiscardChanges() {
	c.requireInHandler("ExitHandlerAndDiscardChanges")
	c.handlerUpdates = nil
	c.st = stateIdle
}

func (c *Cache) requireInHandler(op string) {
	if c.st != stateInHandler {
		panic(fmt.Sprintf("cache: %s called outside a handler", op))
	}
}

// Set records an Update (merge) against key, visible immediately to Get but
// not durable until the next flush. Must be called while InHandler.
func (c *Cache) Set(key model.Key, data model.Entity) {
	c.requireInHandler("Set")
	c.applyHandlerOp(key, EntityOp{Kind: OpUpdate, Data: data})
}

// Overwrite records an Overwrite against key: the new data entirely
// replaces whatever the key currently holds. Must be called while InHandler.
func (c *Cache) Overwrite(key model.Key, data model.Entity) {
	c.requireInHandler("Overwrite")
	c.applyHandlerOp(key, EntityOp{Kind: OpOverwrite, Data: data})
}

// Remove records a Remove against key. Must be called while InHandler.
func (c *Cache) Remove(key model.Key) {
	c.requireInHandler("Remove")
	c.applyHandlerOp(key, EntityOp{Kind: OpRemove})
}

func (c *Cache) applyHandlerOp(key model.Key, op EntityOp) {
	if prior, ok := c.handlerUpdates[key]; ok {
		c.handlerUpdates[key] = accumulate(&prior, op)
	} else {
		c.handlerUpdates[key] = op
	}
}

// Get resolves the effective value of key: the store's current value (cached
// after first load), with any pending block-level update and then any
// pending in-handler update applied on top.
func (c *Cache) Get(ctx context.Context, key model.Key) (model.Entity, bool, error) {
	base, err := c.load(ctx, key)
	if err != nil {
		return nil, false, err
	}

	var eff model.Entity
	present := base != nil
	if present {
		eff = (*base).Clone()
	}

	if op, ok := c.updates[key]; ok {
		eff, present = applyOp(eff, present, op)
	}
	if op, ok := c.handlerUpdates[key]; ok {
		eff, present = applyOp(eff, present, op)
	}
	return eff, present, nil
}

func applyOp(eff model.Entity, present bool, op EntityOp) (model.Entity, bool) {
	switch op.Kind {
	case OpRemove:
		return nil, false
	case OpOverwrite:
		return op.Data.Clone(), true
	case OpUpdate:
		if !present {
			return op.Data.Clone(), true
		}
		return merge(eff, op.Data), true
	}
	return eff, present
}

func (c *Cache) load(ctx context.Context, key model.Key) (*model.Entity, error) {
	if v, ok := c.current[key]; ok {
		return v, nil
	}
	loaded, err := c.loader.GetMany(ctx, []model.Key{key})
	if err != nil {
		return nil, err
	}
	if ent, ok := loaded[key]; ok {
		c.current[key] = &ent
		return &ent, nil
	}
	c.current[key] = nil
	return nil, nil
}

// AsModifications computes the minimal set of durable Modifications for the
// accumulated block-level updates, diffing each pending op against the
// store's current value so that no-op writes emit nothing. The cache itself
// is not advanced: callers apply the modifications and then call Commit once
// the flush transaction has committed. On a failed flush the pending update
// set is left intact, so reprocessing the same block regenerates the same
// writes instead of diffing them away against values that were never
// persisted.
func (c *Cache) AsModifications(ctx context.Context) ([]model.Modification, error) {
	var toLoad []model.Key
	for k := range c.updates {
		if _, ok := c.current[k]; !ok {
			toLoad = append(toLoad, k)
		}
	}
	if len(toLoad) > 0 {
		loaded, err := c.loader.GetMany(ctx, toLoad)
		if err != nil {
			return nil, err
		}
		for _, k := range toLoad {
			if ent, ok := loaded[k]; ok {
				e := ent
				c.current[k] = &e
			} else {
				c.current[k] = nil
			}
		}
	}

	var mods []model.Modification
	staged := make(map[model.Key]*model.Entity, len(c.updates))
	for k, op := range c.updates {
		cur := c.current[k]
		switch op.Kind {
		case OpRemove:
			if cur != nil {
				mods = append(mods, model.Modification{Kind: model.ModRemove, Key: k})
				staged[k] = nil
			}
		case OpUpdate:
			if cur == nil {
				data := merge(model.Entity{}, op.Data)
				mods = append(mods, model.Modification{Kind: model.ModInsert, Key: k, Entity: data})
				staged[k] = &data
			} else {
				merged := merge(*cur, op.Data)
				if !equal(*cur, merged) {
					mods = append(mods, model.Modification{Kind: model.ModOverwrite, Key: k, Entity: merged})
					staged[k] = &merged
				}
			}
		case OpOverwrite:
			if cur == nil {
				data := merge(model.Entity{}, op.Data)
				mods = append(mods, model.Modification{Kind: model.ModInsert, Key: k, Entity: data})
				staged[k] = &data
			} else if !equal(*cur, op.Data) {
				data := op.Data
				mods = append(mods, model.Modification{Kind: model.ModOverwrite, Key: k, Entity: data})
				staged[k] = &data
			}
		}
	}
	c.staged = staged
	return mods, nil
}

// Commit records a successful flush of the modifications returned by the
// last AsModifications call: the staged post-flush values become the cache's
// current view and the pending update set is cleared.
func (c *Cache) Commit() {
	for k, v := range c.staged {
		c.current[k] = v
	}
	c.staged = nil
	c.updates = make(map[model.Key]EntityOp)
}
