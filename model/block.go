package model

import "time"

// Transaction is the chain-agnostic summary a ChainAdapter extracts from a
// raw transaction: enough to test filter membership without the broadcast
// path needing to understand the chain-specific payload.
type Transaction struct {
	Index       int
	AccountKeys []Address
	Raw         []byte
}

// ReferencesAny reports whether the transaction's account keys intersect keys.
func (t Transaction) ReferencesAny(keys map[Address]struct{}) bool {
	for _, k := range t.AccountKeys {
		if _, ok := keys[k]; ok {
			return true
		}
	}
	return false
}

// Block is the immutable record produced once a chain adapter has fetched
// a slot/block-number successfully. Payload is the opaque chain-specific
// serialized block handed to the mapping plugin; Transactions is the
// chain-agnostic summary used for filtering.
type Block struct {
	Chain        Chain
	Network      string
	Slot         uint64
	Hash         string
	ParentHash   string
	Timestamp    time.Time
	Transactions []Transaction
	Payload      []byte
}

// Filtered returns a shallow clone of b whose Transactions are restricted to
// those referencing keys. Payload is copied by reference: the mapping plugin
// still receives the full block payload, only the transaction list used for
// the empty-block skip check is narrowed.
func (b *Block) Filtered(keys map[Address]struct{}) *Block {
	if len(keys) == 0 {
		empty := *b
		empty.Transactions = nil
		return &empty
	}
	out := make([]Transaction, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		if tx.ReferencesAny(keys) {
			out = append(out, tx)
		}
	}
	clone := *b
	clone.Transactions = out
	return &clone
}

// BlockInfo is the sum type a ChainAdapter emits onto its output channel:
// either a CurrentSlot tip announcement or a (possibly missing) Block at a
// known slot.
type BlockInfo interface {
	isBlockInfo()
}

// CurrentSlot announces the next slot the adapter will emit, used to
// bootstrap the buffer's expected slot on start. The adapter begins at its
// safe tip, so this tracks tip minus the finality margin rather than the
// raw chain tip.
type CurrentSlot struct {
	Slot uint64
}

func (CurrentSlot) isBlockInfo() {}

// BlockMsg carries a fetched block at Slot. Block is nil when the fetch
// timed out or the chain reports a permanent gap at that slot.
type BlockMsg struct {
	Slot  uint64
	Block *Block
}

func (BlockMsg) isBlockInfo() {}
