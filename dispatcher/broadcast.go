package dispatcher

import (
	"sync"

	"github.com/segmentio/ksuid"
	"github.com/sourcegraph/conc/iter"

	"github.com/chaingraph/indexer/model"
)

// subscriberChanCapacity bounds each subscriber's outbound channel; a full
// channel backpressures the broadcast send, which in turn throttles the
// chain adapter's fetch semaphore upstream.
const subscriberChanCapacity = 64

// Subscriber is one indexer runtime's live view onto a dispatcher stream.
type Subscriber struct {
	ID          string
	IndexerHash string
	Filter      model.Filter
	Out         chan *model.Block
	Done        chan struct{}
}

// closed reports whether the subscriber has disconnected.
func (s *Subscriber) closed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// NewSubscriber allocates a Subscriber ready to register with a Broadcast.
// ID is a fresh k-sortable identifier, used only to tell apart concurrent or
// reconnecting subscriptions from the same indexer in logs.
func NewSubscriber(indexerHash string, filter model.Filter) *Subscriber {
	return &Subscriber{
		ID:          ksuid.New().String(),
		IndexerHash: indexerHash,
		Filter:      filter,
		Out:         make(chan *model.Block, subscriberChanCapacity),
		Done:        make(chan struct{}),
	}
}

// Close terminates the subscriber's stream; subsequent broadcast passes will
// drop it lazily.
func (s *Subscriber) Close() {
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// Broadcast fans a dispatcher's committed block sequence out to every
// registered subscriber, filtered to that subscriber's address set.
type Broadcast struct {
	mu   sync.Mutex
	subs []*Subscriber
}

// NewBroadcast constructs an empty fan-out set.
func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

// Register adds sub to the active subscriber set. Safe to call concurrently
// with Send (e.g. from an RPC server task accepting new connections).
func (b *Broadcast) Register(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Send delivers one committed block to every live subscriber whose filter
// matches at least one of its transactions. blk may be nil (a chain gap);
// nil blocks never match any filter and are not delivered.
func (b *Broadcast) Send(blk *model.Block) {
	b.mu.Lock()
	live := b.subs[:0]
	for _, s := range b.subs {
		if s.closed() {
			continue
		}
		live = append(live, s)
	}
	b.subs = live
	subs := append([]*Subscriber(nil), live...)
	b.mu.Unlock()

	if blk == nil {
		return
	}
	// Per-subscriber transaction filtering is independent CPU work; bound it
	// across goroutines the same way conc/iter fans out per-block work
	// elsewhere in this codebase, rather than filtering every subscriber
	// serially on the dispatcher's single owning task.
	iter.ForEach(subs, func(sp **Subscriber) {
		s := *sp
		filtered := blk.Filtered(s.Filter.Keys())
		if len(filtered.Transactions) == 0 {
			return
		}
		select {
		case s.Out <- filtered:
		case <-s.Done:
		}
	})
}

// SendBatch delivers a committed run of blocks in order.
func (b *Broadcast) SendBatch(blocks []*model.Block) {
	for _, blk := range blocks {
		b.Send(blk)
	}
}
