package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
specVersion: "0.0.2"
schema: Qm...schema
dataSources:
  - kind: ethereum
    network: mainnet
    source: "0xabc"
    startBlock: 100
    mapping:
      kind: wasm
      apiVersion: "0.0.5"
      language: go
      entities: [Token]
      file: mapping.so
`

func TestParseManifest_ValidDocument(t *testing.T) {
	m, err := ParseManifest([]byte(validManifest))
	require.NoError(t, err)
	assert.Equal(t, "0.0.2", m.SpecVersion)
	require.Len(t, m.DataSources, 1)
	assert.Equal(t, "ethereum", m.DataSources[0].Kind)
	assert.EqualValues(t, 100, m.DataSources[0].StartBlock)
}

func TestParseManifest_SpecVersionBelowMinimum_Rejected(t *testing.T) {
	_, err := ParseManifest([]byte(`
specVersion: "0.0.0"
dataSources:
  - kind: ethereum
    network: mainnet
    startBlock: 0
`))
	assert.Error(t, err)
}

func TestParseManifest_SpecVersionAboveMaximum_Rejected(t *testing.T) {
	_, err := ParseManifest([]byte(`
specVersion: "0.0.9"
dataSources:
  - kind: ethereum
    network: mainnet
    startBlock: 0
`))
	assert.Error(t, err)
}

func TestParseManifest_NoDataSources_Rejected(t *testing.T) {
	_, err := ParseManifest([]byte(`
specVersion: "0.0.2"
dataSources: []
`))
	assert.Error(t, err)
}

func TestParseManifest_UnknownChainKind_Rejected(t *testing.T) {
	_, err := ParseManifest([]byte(`
specVersion: "0.0.2"
dataSources:
  - kind: bitcoin
    network: mainnet
    startBlock: 0
`))
	assert.Error(t, err)
}

func TestParseManifest_MalformedYAML_Rejected(t *testing.T) {
	_, err := ParseManifest([]byte("not: valid: yaml: at: all: ["))
	assert.Error(t, err)
}

func TestChainFromString_CaseInsensitive(t *testing.T) {
	c, ok := ChainFromString("ETHEREUM")
	require.True(t, ok)
	assert.Equal(t, ChainEthereum, c)
}

func TestChainFromString_UnknownReturnsFalse(t *testing.T) {
	_, ok := ChainFromString("bitcoin")
	assert.False(t, ok)
}
