package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraph/indexer/model"
)

type fakeLoader struct {
	rows  map[model.Key]model.Entity
	calls int
}

func (f *fakeLoader) GetMany(_ context.Context, keys []model.Key) (map[model.Key]model.Entity, error) {
	f.calls++
	out := make(map[model.Key]model.Entity, len(keys))
	for _, k := range keys {
		if e, ok := f.rows[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func key(id string) model.Key {
	return model.Key{IndexerHash: "ix", EntityType: "Token", ID: id}
}

func TestCache_SetThenGet_VisibleInsideHandler(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"name": model.NewString("foo")})
	ent, present, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "foo", ent["name"].Str)
	c.ExitHandler()
}

func TestCache_UpdateMergesOntoPriorUpdate(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	c.EnterHandler()
	c.Set(k, model.Entity{"b": model.NewInt(2)})
	c.ExitHandler()

	ent, present, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	require.True(t, present)
	assert.EqualValues(t, 1, ent["a"].Int)
	assert.EqualValues(t, 2, ent["b"].Int)
}

func TestCache_OverwriteAlwaysWins(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1), "b": model.NewInt(2)})
	c.ExitHandler()

	c.EnterHandler()
	c.Overwrite(k, model.Entity{"a": model.NewInt(9)})
	c.ExitHandler()

	ent, present, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	require.True(t, present)
	assert.EqualValues(t, 9, ent["a"].Int)
	_, hasB := ent["b"]
	assert.False(t, hasB, "overwrite must drop fields absent from the new data")
}

func TestCache_RemoveThenUpdateBecomesOverwrite(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1), "b": model.NewInt(2)})
	c.ExitHandler()

	c.EnterHandler()
	c.Remove(k)
	c.ExitHandler()

	c.EnterHandler()
	c.Set(k, model.Entity{"c": model.NewInt(3)})
	c.ExitHandler()

	ent, present, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	require.True(t, present)
	assert.Len(t, ent, 1, "Update onto Remove must discard the old fields, not merge onto them")
	assert.EqualValues(t, 3, ent["c"].Int)
}

func TestCache_ExitHandlerAndDiscardChanges_RollsBack(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(999)})
	c.ExitHandlerAndDiscardChanges()

	ent, present, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	require.True(t, present)
	assert.EqualValues(t, 1, ent["a"].Int, "discarded handler writes must not be visible")
}

func TestCache_EnterHandlerTwice_Panics(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	c.EnterHandler()
	assert.Panics(t, func() { c.EnterHandler() })
}

func TestCache_SetOutsideHandler_Panics(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	assert.Panics(t, func() { c.Set(key("1"), model.Entity{}) })
}

func TestCache_AsModifications_SuppressesNoOpWrite(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{
		key("1"): {"a": model.NewInt(1)},
	}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mods, "writing back the already-current value must emit nothing")
}

func TestCache_AsModifications_EmitsInsertForNewKey(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModInsert, mods[0].Kind)
}

func TestCache_AsModifications_EmitsOverwriteForChangedKey(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{
		key("1"): {"a": model.NewInt(1)},
	}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(2)})
	c.ExitHandler()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModOverwrite, mods[0].Kind)
	assert.EqualValues(t, 2, mods[0].Entity["a"].Int)
}

func TestCache_AsModifications_EmitsRemove(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{
		key("1"): {"a": model.NewInt(1)},
	}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Remove(k)
	c.ExitHandler()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModRemove, mods[0].Kind)
}

func TestCache_AsModifications_RemoveOfAbsentKeyEmitsNothing(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Remove(k)
	c.ExitHandler()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestCache_Commit_ClearsPendingUpdates(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	_, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	c.Commit()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mods, "after a committed flush, a call with no new writes must be a no-op")
}

func TestCache_AsModifications_WithoutCommit_ReEmitsOnRetry(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	first, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A failed flush never calls Commit; recomputing must regenerate the
	// same write rather than diff it away against a value that was never
	// persisted.
	second, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Kind, second[0].Kind)
	assert.Equal(t, first[0].Key, second[0].Key)
}

func TestCache_Commit_MakesRepeatedWriteANoOp(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{}}
	c := New(loader)
	k := key("1")

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	_, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	c.Commit()

	c.EnterHandler()
	c.Set(k, model.Entity{"a": model.NewInt(1)})
	c.ExitHandler()

	mods, err := c.AsModifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mods, "re-writing the committed value must emit nothing")
}

func TestCache_Get_LoadsFromStoreOnce(t *testing.T) {
	loader := &fakeLoader{rows: map[model.Key]model.Entity{
		key("1"): {"a": model.NewInt(7)},
	}}
	c := New(loader)
	k := key("1")

	_, _, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	_, _, err = c.Get(context.Background(), k)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.calls, "current-value lookups must be cached after the first load")
}
