package postgres

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraph/indexer/storelayout"
)

func trackLayoutFixture() *storelayout.Layout {
	return &storelayout.Layout{Tables: map[string]*storelayout.Table{
		"Token": {
			Name: "token",
			Columns: []storelayout.Column{
				{Name: "owner", Kind: storelayout.ColString},
				{Name: "collection", Kind: storelayout.ColReference, RefTable: "collection"},
			},
		},
		"Collection": {Name: "collection"},
	}}
}

func TestBuildTrackDocument_TracksEveryTable(t *testing.T) {
	doc := buildTrackDocument("sgd1", trackLayoutFixture())
	assert.Equal(t, "bulk", doc["type"])

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pg_track_table"`)
	assert.Contains(t, string(raw), `"token"`)
	assert.Contains(t, string(raw), `"collection"`)
	assert.Contains(t, string(raw), `"sgd1"`)
}

func TestBuildTrackDocument_EmitsRelationshipForReferenceColumns(t *testing.T) {
	doc := buildTrackDocument("sgd1", trackLayoutFixture())
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pg_create_object_relationship"`)
	assert.Contains(t, string(raw), `"foreign_key_constraint_on":["collection","block_range"]`)
}

func TestBuildTrackDocument_NoReferences_NoRelationshipEntries(t *testing.T) {
	layout := &storelayout.Layout{Tables: map[string]*storelayout.Table{
		"Token": {Name: "token"},
	}}
	raw, err := json.Marshal(buildTrackDocument("sgd1", layout))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pg_create_object_relationship")
}
