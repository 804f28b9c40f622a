// Package registry implements the DeploymentRegistry: catalog bookkeeping in
// the primary shard allocating namespaces and tracking indexer status.
package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/chaingraph/indexer/model"
)

var namespacePattern = regexp.MustCompile(`^sgd[0-9]+$`)

// Registry allocates and persists per-indexer site metadata in the primary
// shard, avoiding double-allocation of a (hash, network) deployment.
type Registry struct {
	pool *pgxpool.Pool
}

// New builds a Registry against the primary shard's connection pool.
func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// CreateIndexer inserts-or-selects an indexers row by name, returning its
// stable v_id.
func (r *Registry) CreateIndexer(ctx context.Context, name string) (int32, error) {
	var vID int32
	err := r.pool.QueryRow(ctx, `
		INSERT INTO indexers (name, status, got_block)
		VALUES ($1, $2, -1)
		ON CONFLICT (name) WHERE NOT deleted DO UPDATE SET name = EXCLUDED.name
		RETURNING v_id
	`, name, model.StatusDraft.String()).Scan(&vID)
	if err != nil {
		return 0, fmt.Errorf("create indexer %q: %w", name, err)
	}
	return vID, nil
}

// AllocateSite returns the existing site for hash if one exists, or inserts
// a new deployment_schemas row and derives its namespace from the new row's
// primary key as sgd{id}.
func (r *Registry) AllocateSite(ctx context.Context, shard, hash, network string) (*model.Site, error) {
	var site model.Site
	err := r.pool.QueryRow(ctx, `
		SELECT id, indexer, shard, name, network, active
		FROM deployment_schemas
		WHERE indexer = $1
	`, hash).Scan(&site.ID, &site.DeploymentHash, &site.Shard, &site.Namespace, &site.Network, &site.Active)
	if err == nil {
		return &site, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("allocate site: query existing: %w", err)
	}

	var id int32
	err = r.pool.QueryRow(ctx, `
		INSERT INTO deployment_schemas (indexer, shard, network, active, name)
		VALUES ($1, $2, $3, true, '')
		RETURNING id
	`, hash, shard, network).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("allocate site: insert: %w", err)
	}

	namespace := fmt.Sprintf("sgd%d", id)
	if _, err := r.pool.Exec(ctx, `UPDATE deployment_schemas SET name = $1 WHERE id = $2`, namespace, id); err != nil {
		return nil, fmt.Errorf("allocate site: persist namespace: %w", err)
	}

	return &model.Site{
		ID:             id,
		DeploymentHash: hash,
		Shard:          shard,
		Namespace:      namespace,
		Network:        network,
		Active:         true,
	}, nil
}

// Deploy is the synchronous entry point the HTTP control plane calls once
// an operator's mapping, schema, and manifest blobs have been published to
// the content-addressed fetcher and their CIDs attached to ix. It inserts
// or refreshes the catalog row and returns the indexer with its hash, v_id,
// and Draft status populated; it does not itself start a runtime. When
// ix.Hash is unset, the mapping CID is used as the external hash, since a
// content address is already a stable, globally unique identifier for one
// deployment.
func (r *Registry) Deploy(ctx context.Context, ix model.Indexer) (*model.Indexer, error) {
	if ix.Hash == "" {
		ix.Hash = ix.MappingCID
	}
	ix.Status = model.StatusDraft
	ix.GotBlock = -1

	err := r.pool.QueryRow(ctx, `
		INSERT INTO indexers (hash, name, network, manifest, graphql, mapping, status, got_block)
		VALUES ($1, $2, $3, $4, $5, $6, $7, -1)
		ON CONFLICT (hash) DO UPDATE SET
			name = EXCLUDED.name,
			network = EXCLUDED.network,
			manifest = EXCLUDED.manifest,
			graphql = EXCLUDED.graphql,
			mapping = EXCLUDED.mapping
		RETURNING v_id
	`, ix.Hash, ix.Name, ix.Network, ix.ManifestCID, ix.SchemaCID, ix.MappingCID, ix.Status.String()).Scan(&ix.VID)
	if err != nil {
		return nil, fmt.Errorf("deploy %q: %w", ix.Name, err)
	}
	return &ix, nil
}

// PrepareSchema upserts the indexers row for hash, assigning a namespace
// derived from the catalog's v_id if one is not already set, and creates the
// corresponding PostgreSQL schema if it does not yet exist.
func (r *Registry) PrepareSchema(ctx context.Context, conn *pgxpool.Conn, hash string) (string, error) {
	var vID int32
	var namespace string
	err := conn.QueryRow(ctx, `
		SELECT v_id, namespace FROM indexers WHERE hash = $1
	`, hash).Scan(&vID, &namespace)
	if err == pgx.ErrNoRows {
		err = conn.QueryRow(ctx, `
			INSERT INTO indexers (hash, namespace, status, got_block)
			VALUES ($1, '', $2, -1)
			RETURNING v_id, namespace
		`, hash, model.StatusDeploying.String()).Scan(&vID, &namespace)
	}
	if err != nil {
		return "", fmt.Errorf("prepare schema: %w", err)
	}

	if namespace == "" {
		namespace = fmt.Sprintf("sgd%d", vID)
		if _, err := conn.Exec(ctx, `UPDATE indexers SET namespace = $1 WHERE hash = $2`, namespace, hash); err != nil {
			return "", fmt.Errorf("prepare schema: persist namespace: %w", err)
		}
	}

	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", namespace)); err != nil {
		return "", fmt.Errorf("prepare schema: create schema: %w", err)
	}
	return namespace, nil
}

// ValidateNamespace enforces the sgd[0-9]+ namespace shape. PrepareSchema
// checks the namespace it reads from (or assigns in) the catalog before
// creating the schema; GetIndexer and AllocateSite do not check it.
func ValidateNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q: must match sgd[0-9]+", namespace)
	}
	return nil
}

// UpdateGotBlock persists the monotonic checkpoint for hash.
func (r *Registry) UpdateGotBlock(ctx context.Context, hash string, gotBlock int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE indexers SET got_block = $1 WHERE hash = $2`, gotBlock, hash)
	if err != nil {
		return fmt.Errorf("update got_block for %s: %w", hash, err)
	}
	return nil
}

// SetStatus persists an indexer's lifecycle status.
func (r *Registry) SetStatus(ctx context.Context, hash string, status model.Status) error {
	_, err := r.pool.Exec(ctx, `UPDATE indexers SET status = $1 WHERE hash = $2`, status.String(), hash)
	if err != nil {
		return fmt.Errorf("set status for %s: %w", hash, err)
	}
	return nil
}

// GetIndexer loads an indexer record by its external hash.
func (r *Registry) GetIndexer(ctx context.Context, hash string) (*model.Indexer, error) {
	var ix model.Indexer
	var status string
	var gotBlock int64
	err := r.pool.QueryRow(ctx, `
		SELECT hash, name, network, namespace, graphql, mapping, manifest, got_block, status, v_id
		FROM indexers WHERE hash = $1
	`, hash).Scan(&ix.Hash, &ix.Name, &ix.Network, &ix.Namespace, &ix.SchemaCID, &ix.MappingCID, &ix.ManifestCID, &gotBlock, &status, &ix.VID)
	if err != nil {
		return nil, fmt.Errorf("get indexer %s: %w", hash, err)
	}
	ix.GotBlock = gotBlock
	ix.Status = statusFromString(status)
	return &ix, nil
}

func statusFromString(s string) model.Status {
	switch s {
	case model.StatusDraft.String():
		return model.StatusDraft
	case model.StatusDeploying.String():
		return model.StatusDeploying
	case model.StatusDeployed.String():
		return model.StatusDeployed
	default:
		return model.StatusInvalid
	}
}
