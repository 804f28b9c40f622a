package model

// Filter is a set of account/contract identifiers. An empty filter matches
// no blocks.
type Filter struct {
	keys map[Address]struct{}
}

// NewFilter builds a Filter from a slice of addresses.
func NewFilter(addrs []Address) Filter {
	f := Filter{keys: make(map[Address]struct{}, len(addrs))}
	for _, a := range addrs {
		f.keys[a] = struct{}{}
	}
	return f
}

// Empty reports whether the filter has no addresses, and therefore matches nothing.
func (f Filter) Empty() bool { return len(f.keys) == 0 }

// Keys exposes the underlying set for use with Transaction.ReferencesAny / Block.Filtered.
func (f Filter) Keys() map[Address]struct{} { return f.keys }

// MatchesBlock reports whether any transaction in b references a key in f.
func (f Filter) MatchesBlock(b *Block) bool {
	if f.Empty() {
		return false
	}
	for _, tx := range b.Transactions {
		if tx.ReferencesAny(f.keys) {
			return true
		}
	}
	return false
}
