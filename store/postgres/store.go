package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/service/logger"
	"github.com/chaingraph/indexer/service/retry"
	"github.com/chaingraph/indexer/storelayout"
)

// postgresMaxParams is the libpq/pgx bind-parameter ceiling per statement;
// bulk inserts chunk their VALUES rows to stay under it.
const postgresMaxParams = 65535

// Store materializes entity modifications into the block-ranged relational
// layout of one deployment's schema. One Store instance is owned exclusively
// by a single IndexerRuntime.
type Store struct {
	pool           *pgxpool.Pool
	schema         string
	network        string
	deploymentHash string
	layout         *storelayout.Layout
}

// New builds a Store writing into the given namespace, backed by layout.
func New(pool *pgxpool.Pool, namespace, network, deploymentHash string, layout *storelayout.Layout) *Store {
	return &Store{
		pool:           pool,
		schema:         namespace,
		network:        network,
		deploymentHash: deploymentHash,
		layout:         layout,
	}
}

// CreateSchema applies the layout's DDL, enabling best-effort relationship
// tracking to a metadata service to be layered on by callers as a
// post-step; failures there are logged, not fatal, and are not this
// method's concern.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s.schema))
	if err != nil {
		return NewStoreError(ErrQueryExecution, err)
	}
	for _, stmt := range s.layout.CreateSchemaSQL(s.schema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return NewStoreError(ErrQueryExecution, fmt.Errorf("%s: %w", stmt, err))
		}
	}
	return nil
}

// GetMany implements cache.Loader: it fetches the currently live (upper
// bound = infinity) row for each key, one table-grouped query per entity
// type present in keys.
func (s *Store) GetMany(ctx context.Context, keys []model.Key) (map[model.Key]model.Entity, error) {
	out := make(map[model.Key]model.Entity, len(keys))
	byType := make(map[string][]model.Key)
	for _, k := range keys {
		byType[k.EntityType] = append(byType[k.EntityType], k)
	}

	for entityType, ks := range byType {
		table, ok := s.layout.Tables[entityType]
		if !ok {
			return nil, NewStoreError(ErrUnknownTable, fmt.Errorf("unknown entity type %q", entityType))
		}
		ids := make([]string, len(ks))
		keyByID := make(map[string]model.Key, len(ks))
		for i, k := range ks {
			ids[i] = k.ID
			keyByID[k.ID] = k
		}

		colNames := make([]string, 0, len(table.Columns)+1)
		colNames = append(colNames, "id")
		for _, c := range table.Columns {
			colNames = append(colNames, c.Name)
		}

		query := fmt.Sprintf(
			"SELECT %s FROM %s.%s WHERE id = ANY($1) AND upper(block_range) = 'infinity'",
			strings.Join(colNames, ", "), s.schema, table.Name,
		)
		rows, err := s.pool.Query(ctx, query, pq.Array(ids))
		if err != nil {
			return nil, NewStoreError(ErrQueryExecution, err)
		}

		err = scanRows(rows, table, keyByID, out)
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRows(rows pgx.Rows, table *storelayout.Table, keyByID map[string]model.Key, out map[model.Key]model.Entity) error {
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return NewStoreError(ErrQueryExecution, err)
		}
		id, _ := vals[0].(string)
		key, ok := keyByID[id]
		if !ok {
			continue
		}
		ent := make(model.Entity, len(table.Columns))
		for i, c := range table.Columns {
			ent[c.Name] = fromSQL(c, vals[i+1])
		}
		out[key] = ent
	}
	return rows.Err()
}

// flushRetry bounds the retries Flush spends on a database that reports
// itself unavailable before the error surfaces to the runtime.
var flushRetry = retry.Retry{MinWait: 1, MaxWait: 4, MaxRetries: 2}

// Flush applies one block's worth of modifications inside a single
// transaction: inserts, clamp-then-insert overwrites, and clamp-only
// removes. The transaction is rolled back on any error so got_block is
// never advanced for a partially applied block. DatabaseUnavailable errors
// are retried with a bounded backoff; everything else surfaces immediately.
func (s *Store) Flush(ctx context.Context, blockNumber uint64, mods []model.Modification) error {
	if len(mods) == 0 {
		return nil
	}
	return retry.RetryFunc(ctx, func(ctx context.Context) error {
		return s.flushOnce(ctx, blockNumber, mods)
	}, IsRetryable, flushRetry)
}

func (s *Store) flushOnce(ctx context.Context, blockNumber uint64, mods []model.Modification) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NewStoreError(ErrDatabaseUnavailable, err)
	}
	defer tx.Rollback(ctx)

	byType := make(map[string][]model.Modification)
	for _, m := range mods {
		byType[m.Key.EntityType] = append(byType[m.Key.EntityType], m)
	}

	for entityType, group := range byType {
		table, ok := s.layout.Tables[entityType]
		if !ok {
			return NewStoreError(ErrUnknownTable, fmt.Errorf("unknown entity type %q", entityType))
		}
		if err := s.applyGroup(ctx, tx, table, blockNumber, group); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyExecError(err)
	}
	logger.For(ctx).Debugf("postgres store %s: flushed %d modification(s) at block %d", s.schema, len(mods), blockNumber)
	return nil
}

func (s *Store) applyGroup(ctx context.Context, tx pgx.Tx, table *storelayout.Table, block uint64, mods []model.Modification) error {
	var toInsert []model.Modification
	var toClamp []string

	for _, m := range mods {
		switch m.Kind {
		case model.ModInsert:
			toInsert = append(toInsert, m)
		case model.ModOverwrite:
			toClamp = append(toClamp, m.Key.ID)
			toInsert = append(toInsert, m)
		case model.ModRemove:
			toClamp = append(toClamp, m.Key.ID)
		}
	}

	if len(toClamp) > 0 {
		if err := s.clampRange(ctx, tx, table, block, toClamp); err != nil {
			return err
		}
	}
	if len(toInsert) > 0 {
		if err := s.bulkInsert(ctx, tx, table, block, toInsert); err != nil {
			return err
		}
	}
	return nil
}

// clampRange implements ClampRangeQuery: it sets upper(block_range) = block
// on the currently live row for each id in ids.
func (s *Store) clampRange(ctx context.Context, tx pgx.Tx, table *storelayout.Table, block uint64, ids []string) error {
	query := fmt.Sprintf(
		"UPDATE %s.%s SET block_range = int4range(lower(block_range), $1) WHERE id = ANY($2) AND upper(block_range) = 'infinity'",
		s.schema, table.Name,
	)
	if _, err := tx.Exec(ctx, query, int32(block), pq.Array(ids)); err != nil {
		return classifyExecError(err)
	}
	return nil
}

// bulkInsert issues chunked VALUES inserts for mods, chunked to stay under
// postgresMaxParams / columnsPerRow parameters per statement.
func (s *Store) bulkInsert(ctx context.Context, tx pgx.Tx, table *storelayout.Table, block uint64, mods []model.Modification) error {
	columnsPerRow := len(table.Columns) + 2 // id, block_range, + fields
	chunkSize := postgresMaxParams / columnsPerRow
	if chunkSize < 1 {
		chunkSize = 1
	}

	colNames := make([]string, 0, columnsPerRow)
	colNames = append(colNames, "id", "block_range")
	for _, c := range table.Columns {
		colNames = append(colNames, c.Name)
	}

	for start := 0; start < len(mods); start += chunkSize {
		end := start + chunkSize
		if end > len(mods) {
			end = len(mods)
		}
		chunk := mods[start:end]

		var placeholders []string
		var args []interface{}
		idx := 1
		for _, m := range chunk {
			row := make([]string, 0, columnsPerRow)
			row = append(row, fmt.Sprintf("$%d", idx))
			args = append(args, m.Key.ID)
			idx++
			row = append(row, fmt.Sprintf("$%d", idx))
			args = append(args, openRange(block))
			idx++
			for _, c := range table.Columns {
				row = append(row, bindExpr(c, idx))
				args = append(args, toSQL(c, m.Entity[c.Name]))
				idx++
			}
			placeholders = append(placeholders, "("+strings.Join(row, ", ")+")")
		}

		query := fmt.Sprintf(
			"INSERT INTO %s.%s (%s) VALUES %s",
			s.schema, table.Name, strings.Join(colNames, ", "), strings.Join(placeholders, ", "),
		)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return classifyExecError(err)
		}
	}
	return nil
}

// openRange builds the half-open [block, +∞) range bound to every freshly
// inserted row, using pgtype.Int4range rather than interpolating
// "int4range($1, NULL)" SQL text so the value round-trips through pgx's own
// binary encoding.
func openRange(block uint64) pgtype.Int4range {
	return pgtype.Int4range{
		Lower:     pgtype.Int4{Int: int32(block), Status: pgtype.Present},
		Upper:     pgtype.Int4{Status: pgtype.Null},
		LowerType: pgtype.Inclusive,
		UpperType: pgtype.Unbounded,
		Status:    pgtype.Present,
	}
}

// bindExpr renders the placeholder expression for column c at bind position
// idx, applying the numeric/TSVector casts the layout's column kinds require.
func bindExpr(c storelayout.Column, idx int) string {
	switch c.Kind {
	case storelayout.ColBigInt, storelayout.ColBigDecimal:
		return fmt.Sprintf("$%d::numeric", idx)
	case storelayout.ColTSVector:
		return fmt.Sprintf("to_tsvector('english', $%d)", idx)
	case storelayout.ColEnum:
		return fmt.Sprintf("$%d::text", idx)
	default:
		return fmt.Sprintf("$%d", idx)
	}
}

func toSQL(c storelayout.Column, v model.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind {
	case model.ValueString, model.ValueEnum:
		if v.Kind == model.ValueEnum {
			return v.Enum
		}
		return v.Str
	case model.ValueInt:
		return v.Int
	case model.ValueBigInt:
		if v.Big == nil {
			return nil
		}
		return v.Big.String()
	case model.ValueBigDecimal:
		if v.Dec == nil {
			return nil
		}
		return v.Dec.Text('f', -1)
	case model.ValueBool:
		return v.Bool
	case model.ValueBytes:
		return v.Bytes
	case model.ValueTSVector:
		return v.TSVec
	case model.ValueList:
		elems := make([]string, len(v.List))
		for i, e := range v.List {
			elems[i] = fmt.Sprint(toSQL(storelayout.Column{Kind: c.ElemKind}, e))
		}
		return pq.Array(elems)
	default:
		return nil
	}
}

func fromSQL(c storelayout.Column, raw interface{}) model.Value {
	if raw == nil {
		return model.Null()
	}
	switch c.Kind {
	case storelayout.ColBigInt:
		if num, ok := raw.(pgtype.Numeric); ok {
			return model.NewBigInt(numericToBigInt(num))
		}
		s, _ := raw.(string)
		n := new(big.Int)
		n.SetString(s, 10)
		return model.NewBigInt(n)
	case storelayout.ColBigDecimal:
		if num, ok := raw.(pgtype.Numeric); ok {
			return model.NewBigDecimal(numericToBigFloat(num))
		}
		s, _ := raw.(string)
		f := new(big.Float)
		f.SetString(s)
		return model.NewBigDecimal(f)
	case storelayout.ColInt:
		switch n := raw.(type) {
		case int32:
			return model.NewInt(n)
		case int64:
			return model.NewInt(int32(n))
		}
		return model.Null()
	case storelayout.ColBool:
		b, _ := raw.(bool)
		return model.NewBool(b)
	case storelayout.ColBytes:
		b, _ := raw.([]byte)
		return model.NewBytes(b)
	case storelayout.ColEnum:
		s, _ := raw.(string)
		return model.NewEnum(s)
	case storelayout.ColTSVector:
		s, _ := raw.(string)
		return model.NewTSVector(s)
	default:
		s, _ := raw.(string)
		return model.NewString(s)
	}
}

// numericToBigInt and numericToBigFloat recover the arbitrary-precision
// values pgx decodes numeric columns into; a Numeric is Int scaled by 10^Exp.
func numericToBigInt(n pgtype.Numeric) *big.Int {
	if n.Status != pgtype.Present || n.Int == nil {
		return new(big.Int)
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	}
	return v
}

func numericToBigFloat(n pgtype.Numeric) *big.Float {
	if n.Status != pgtype.Present || n.Int == nil {
		return new(big.Float)
	}
	f := new(big.Float).SetInt(n.Int)
	if n.Exp == 0 {
		return f
	}
	exp := int64(n.Exp)
	if exp < 0 {
		exp = -exp
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
	if n.Exp > 0 {
		return f.Mul(f, scale)
	}
	return f.Quo(f, scale)
}
