package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraph/indexer/model"
)

func blockWithTx(slot uint64, addrs ...model.Address) *model.Block {
	var txs []model.Transaction
	for i, a := range addrs {
		txs = append(txs, model.Transaction{Index: i, AccountKeys: []model.Address{a}})
	}
	return &model.Block{Slot: slot, Transactions: txs}
}

func recvOrTimeout(t *testing.T, ch chan *model.Block) *model.Block {
	t.Helper()
	select {
	case blk := <-ch:
		return blk
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestBroadcast_DeliversMatchingBlockToSubscriber(t *testing.T) {
	b := NewBroadcast()
	sub := NewSubscriber("ix1", model.NewFilter([]model.Address{"0xabc"}))
	b.Register(sub)

	b.Send(blockWithTx(1, "0xabc"))

	got := recvOrTimeout(t, sub.Out)
	require.NotNil(t, got)
	assert.Len(t, got.Transactions, 1)
}

func TestBroadcast_SkipsSubscriberWithNoMatchingTransactions(t *testing.T) {
	b := NewBroadcast()
	sub := NewSubscriber("ix1", model.NewFilter([]model.Address{"0xdead"}))
	b.Register(sub)

	b.Send(blockWithTx(1, "0xabc"))

	select {
	case <-sub.Out:
		t.Fatal("a block with no matching transactions must not be delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_NilBlock_NeverDelivered(t *testing.T) {
	b := NewBroadcast()
	sub := NewSubscriber("ix1", model.NewFilter([]model.Address{"0xabc"}))
	b.Register(sub)

	b.Send(nil)

	select {
	case <-sub.Out:
		t.Fatal("a nil gap block must never be delivered to any subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_EachSubscriberFilteredIndependently(t *testing.T) {
	b := NewBroadcast()
	subA := NewSubscriber("ixA", model.NewFilter([]model.Address{"0xaaa"}))
	subB := NewSubscriber("ixB", model.NewFilter([]model.Address{"0xbbb"}))
	b.Register(subA)
	b.Register(subB)

	b.Send(blockWithTx(1, "0xaaa"))

	gotA := recvOrTimeout(t, subA.Out)
	assert.Len(t, gotA.Transactions, 1)

	select {
	case <-subB.Out:
		t.Fatal("subB's filter does not match this block's addresses")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_ClosedSubscriberRemovedLazily(t *testing.T) {
	b := NewBroadcast()
	sub := NewSubscriber("ix1", model.NewFilter([]model.Address{"0xabc"}))
	b.Register(sub)
	sub.Close()

	b.Send(blockWithTx(1, "0xabc"))

	assert.Empty(t, b.subs, "a closed subscriber must be pruned on the next Send")
}

func TestNewSubscriber_AssignsUniqueID(t *testing.T) {
	a := NewSubscriber("ix1", model.Filter{})
	b := NewSubscriber("ix1", model.Filter{})
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
