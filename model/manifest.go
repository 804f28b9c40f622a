package model

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// MinSpecVersion and MaxSpecVersion bound the manifest specVersion field
// this runtime knows how to run.
const (
	MinSpecVersion = "0.0.1"
	MaxSpecVersion = "0.0.4"
)

// Mapping describes the handler blob and the entities it is allowed to touch.
type Mapping struct {
	Kind     string   `yaml:"kind"`
	APIVer   string   `yaml:"apiVersion"`
	Language string   `yaml:"language"`
	Entities []string `yaml:"entities"`
	File     string   `yaml:"file"`
}

// DataSource is one chain/address/startBlock unit a manifest subscribes to.
type DataSource struct {
	Kind       string  `yaml:"kind"`
	Network    string  `yaml:"network"`
	Address    string  `yaml:"source,omitempty"`
	StartBlock uint64  `yaml:"startBlock"`
	Mapping    Mapping `yaml:"mapping"`
}

// Manifest is the parsed subgraph-style YAML manifest a deployment supplies
// alongside its compiled mapping and GraphQL schema. ID is not part of the
// YAML document itself; the runtime injects it from the owning indexer's
// hash after parsing.
type Manifest struct {
	ID          string       `yaml:"-"`
	SpecVersion string       `yaml:"specVersion"`
	Schema      string       `yaml:"schema"`
	DataSources []DataSource `yaml:"dataSources"`
	Templates   []DataSource `yaml:"templates"`
}

// ParseManifest decodes and validates raw manifest YAML.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks specVersion bounds and that at least one data source exists.
func (m *Manifest) Validate() error {
	if m.SpecVersion < MinSpecVersion || m.SpecVersion > MaxSpecVersion {
		return fmt.Errorf("manifest specVersion %q out of supported range [%s, %s]", m.SpecVersion, MinSpecVersion, MaxSpecVersion)
	}
	if len(m.DataSources) == 0 {
		return fmt.Errorf("manifest has no dataSources")
	}
	for i, ds := range m.DataSources {
		if _, ok := ChainFromString(ds.Kind); !ok {
			return fmt.Errorf("dataSources[%d]: unknown chain kind %q", i, ds.Kind)
		}
	}
	return nil
}
