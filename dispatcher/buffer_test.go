package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraph/indexer/model"
)

func blockAt(slot uint64) *model.Block {
	return &model.Block{Slot: slot, Hash: "h"}
}

func TestBlockBuffer_InOrderArrival_CommitsImmediately(t *testing.T) {
	b := NewBlockBuffer()
	b.Bootstrap(10)

	committed := b.Accept(10, blockAt(10))
	require.Len(t, committed, 1)
	assert.EqualValues(t, 10, committed[0].Slot)
	assert.EqualValues(t, 11, b.ExpectedSlot())
}

func TestBlockBuffer_OutOfOrderArrival_BuffersUntilGapFills(t *testing.T) {
	b := NewBlockBuffer()
	b.Bootstrap(10)

	committed := b.Accept(12, blockAt(12))
	assert.Nil(t, committed, "a slot ahead of expected must wait, not commit")
	assert.EqualValues(t, 10, b.ExpectedSlot())

	committed = b.Accept(11, blockAt(11))
	assert.Nil(t, committed, "11 still leaves a gap at 10")

	committed = b.Accept(10, blockAt(10))
	require.Len(t, committed, 3, "arrival of the missing slot must release the whole contiguous run")
	assert.EqualValues(t, []uint64{10, 11, 12}, []uint64{committed[0].Slot, committed[1].Slot, committed[2].Slot})
	assert.EqualValues(t, 13, b.ExpectedSlot())
}

func TestBlockBuffer_GapBlockIsNil_StillAdvancesSequence(t *testing.T) {
	b := NewBlockBuffer()
	b.Bootstrap(5)

	committed := b.Accept(5, nil)
	require.Len(t, committed, 1)
	assert.Nil(t, committed[0], "a permanent gap must be carried through as a nil entry, not dropped")
	assert.EqualValues(t, 6, b.ExpectedSlot())
}

func TestBlockBuffer_StaleArrival_Ignored(t *testing.T) {
	b := NewBlockBuffer()
	b.Bootstrap(5)
	b.Accept(5, blockAt(5))
	require.EqualValues(t, 6, b.ExpectedSlot())

	committed := b.Accept(5, blockAt(5))
	assert.Nil(t, committed, "a slot already committed must not be re-delivered")
	assert.EqualValues(t, 6, b.ExpectedSlot())
}

func TestBlockBuffer_FullGapFill_LeavesNothingPending(t *testing.T) {
	b := NewBlockBuffer()
	b.Bootstrap(1)

	b.Accept(3, blockAt(3))
	b.Accept(2, blockAt(2))
	committed := b.Accept(1, blockAt(1))

	require.Len(t, committed, 3)
	assert.EqualValues(t, 4, b.ExpectedSlot())

	// Nothing left pending past slot 3: the next arrival should commit alone.
	committed = b.Accept(4, blockAt(4))
	require.Len(t, committed, 1)
}
