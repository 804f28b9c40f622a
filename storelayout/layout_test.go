package storelayout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type Token {
  id: ID!
  owner: String!
  balance: BigInt!
  price: BigDecimal
  flagged: Boolean!
  metadata: Bytes
  tags: [String!]
  status: TokenStatus!
  collection: Collection!
}

enum TokenStatus {
  ACTIVE
  BURNED
}

type Collection {
  id: ID!
  name: String!
}
`

func TestDerive_BuildsOneTablePerObjectType(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	assert.Len(t, layout.Tables, 2)
	assert.Contains(t, layout.Tables, "Token")
	assert.Contains(t, layout.Tables, "Collection")
}

func TestDerive_SkipsIDField(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	table := layout.Tables["Token"]
	for _, c := range table.Columns {
		assert.NotEqual(t, "id", c.Name, "the implicit id column must not be re-derived from the schema")
	}
}

func TestDerive_SnakeCasesTableAndColumnNames(t *testing.T) {
	layout, err := Derive(`
type TokenHolder {
  id: ID!
  walletAddress: String!
}
`)
	require.NoError(t, err)
	table, ok := layout.Tables["TokenHolder"]
	require.True(t, ok)
	assert.Equal(t, "token_holder", table.Name)
	require.Len(t, table.Columns, 1)
	assert.Equal(t, "wallet_address", table.Columns[0].Name)
}

func TestDerive_ScalarColumnKinds(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	table := layout.Tables["Token"]

	byName := make(map[string]Column, len(table.Columns))
	for _, c := range table.Columns {
		byName[c.Name] = c
	}

	assert.Equal(t, ColString, byName["owner"].Kind)
	assert.Equal(t, ColBigInt, byName["balance"].Kind)
	assert.Equal(t, ColBigDecimal, byName["price"].Kind)
	assert.True(t, byName["price"].Nullable)
	assert.False(t, byName["balance"].Nullable)
	assert.Equal(t, ColBool, byName["flagged"].Kind)
	assert.Equal(t, ColBytes, byName["metadata"].Kind)
}

func TestDerive_ListColumn_CarriesElemKind(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	table := layout.Tables["Token"]
	for _, c := range table.Columns {
		if c.Name == "tags" {
			assert.Equal(t, ColList, c.Kind)
			assert.Equal(t, ColString, c.ElemKind)
			return
		}
	}
	t.Fatal("tags column not found")
}

func TestDerive_UnknownNamedType_StartsAsReferenceUntilResolved(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	table := layout.Tables["Token"]

	var statusCol, collectionCol Column
	for _, c := range table.Columns {
		switch c.Name {
		case "status":
			statusCol = c
		case "collection":
			collectionCol = c
		}
	}
	assert.Equal(t, ColReference, statusCol.Kind, "enum vs reference is undecided before ResolveReferences")
	assert.Equal(t, ColReference, collectionCol.Kind)
}

func TestDerive_RecordsEnumDefinitions(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	assert.True(t, layout.Enums["TokenStatus"])
	assert.NotContains(t, layout.Enums, "Token")
}

func TestResolveReferences_ReclassifiesEnumColumns(t *testing.T) {
	layout, err := Derive(testSDL)
	require.NoError(t, err)
	layout.ResolveReferences(map[string]bool{"TokenStatus": true})

	table := layout.Tables["Token"]
	var statusCol, collectionCol Column
	for _, c := range table.Columns {
		switch c.Name {
		case "status":
			statusCol = c
		case "collection":
			collectionCol = c
		}
	}
	assert.Equal(t, ColEnum, statusCol.Kind)
	assert.Empty(t, statusCol.RefTable)
	assert.Equal(t, ColReference, collectionCol.Kind, "Collection is a real derived table, not an enum")
	assert.Equal(t, "collection", collectionCol.RefTable)
}
