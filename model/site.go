package model

// Site is the allocation record binding a deployed indexer to a physical
// storage shard and schema namespace.
type Site struct {
	ID             int32
	DeploymentHash string
	Shard          string
	Namespace      string
	Network        string
	Active         bool
}
