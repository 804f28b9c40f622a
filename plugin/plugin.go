// Package plugin defines the mapping handler ABI and the dynamic loader that
// binds a compiled mapping artifact (a Go shared library) to a runtime's
// store, using the standard library's plugin package.
package plugin

import (
	"fmt"
	"plugin"

	"github.com/chaingraph/indexer/model"
)

// IndexStore is the capability object a mapping handler uses to persist
// derived entities. The concrete implementation is cache.Cache backed by a
// relational store; the plugin only ever sees this interface.
type IndexStore interface {
	Set(key model.Key, data model.Entity)
	Overwrite(key model.Key, data model.Entity)
	Remove(key model.Key)
	Get(key model.Key) (model.Entity, bool)
}

// Handler is resolved from a mapping's AdapterDeclaration and invoked once
// per batch of blocks delivered to a runtime.
type Handler interface {
	// HandleBlocks processes blocks in order and returns the highest slot
	// successfully applied.
	HandleBlocks(blocks []*model.Block) (highestSlot int64, err error)
}

// Registrar is implemented by the host and passed to a mapping's Register
// function so it can declare which chain-specific handler it provides.
type Registrar interface {
	RegisterSolanaHandler(h Handler)
	RegisterEthereumHandler(h Handler)
	RegisterSubstrateHandler(h Handler)
}

// AdapterDeclaration is the symbol every mapping .so must export under the
// name "AdapterDeclaration": a struct whose Register field the host calls
// once, immediately after the store has been injected.
type AdapterDeclaration struct {
	Register func(Registrar)
}

// setStoreSymbol and declarationSymbol name the exported .so symbols this
// loader resolves. Go plugins cannot export a mutable pointer symbol the
// host can assign across the plugin boundary the way a C ABI's mutable
// static would allow, so the plugin instead exports a function the host
// calls with the store. The store-before-any-handler-call ordering
// guarantee is the same.
const (
	setStoreSymbol    = "SetStore"
	declarationSymbol = "AdapterDeclaration"
)

// Loaded is a mapping artifact opened and wired to one runtime's store. Its
// lifetime is tied to the runtime that opened it: the host never reclaims
// storage referenced by in-flight handler calls, and the library is never
// explicitly unloaded (the Go plugin package provides no Close).
type Loaded struct {
	path       string
	registrars registrarCollector
}

// Load opens the shared library at path, injects store via its exported
// SetStore function, and calls its AdapterDeclaration.Register with a
// Registrar that records whichever chain-specific handler the mapping
// declares.
func Load(path string, store IndexStore) (*Loaded, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping plugin %s: %w", path, err)
	}

	setStoreSym, err := p.Lookup(setStoreSymbol)
	if err != nil {
		return nil, fmt.Errorf("mapping plugin %s: missing %s: %w", path, setStoreSymbol, err)
	}
	setStore, ok := setStoreSym.(func(IndexStore))
	if !ok {
		return nil, fmt.Errorf("mapping plugin %s: %s has unexpected signature", path, setStoreSymbol)
	}
	setStore(store)

	declSym, err := p.Lookup(declarationSymbol)
	if err != nil {
		return nil, fmt.Errorf("mapping plugin %s: missing %s: %w", path, declarationSymbol, err)
	}
	decl, ok := declSym.(*AdapterDeclaration)
	if !ok {
		return nil, fmt.Errorf("mapping plugin %s: %s has unexpected type", path, declarationSymbol)
	}

	var collector registrarCollector
	decl.Register(&collector)

	return &Loaded{path: path, registrars: collector}, nil
}

// Handler returns the handler the mapping registered for chain, or nil if it
// declared none.
func (l *Loaded) Handler(chain model.Chain) Handler {
	switch chain {
	case model.ChainSolana:
		return l.registrars.solana
	case model.ChainEthereum:
		return l.registrars.ethereum
	case model.ChainSubstrate:
		return l.registrars.substrate
	default:
		return nil
	}
}

type registrarCollector struct {
	solana    Handler
	ethereum  Handler
	substrate Handler
}

func (r *registrarCollector) RegisterSolanaHandler(h Handler)    { r.solana = h }
func (r *registrarCollector) RegisterEthereumHandler(h Handler)  { r.ethereum = h }
func (r *registrarCollector) RegisterSubstrateHandler(h Handler) { r.substrate = h }
