package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/storelayout"
)

// UpsertConflictFragment names the update expressions an Upsert applies when
// the target row's constraint already has a matching id: each entry is a
// field name plus the raw SQL expression computing its new value (e.g.
// "count" -> "count + EXCLUDED.count"). An empty Fields list means DO NOTHING.
type UpsertConflictFragment struct {
	Constraint string
	Fields     map[string]string
}

// Upsert issues INSERT ... ON CONFLICT ON CONSTRAINT <c> DO UPDATE for
// aggregate-style writes that accumulate in place rather than version by
// block range. The row still carries the table's block_range column, opened
// at block like any other insert, so the NOT NULL constraint every layout
// table declares is satisfied; the conflict action updates fields in place
// and leaves the range untouched.
func (s *Store) Upsert(ctx context.Context, entityType string, key model.Key, data model.Entity, block uint64, conflict UpsertConflictFragment) error {
	table, ok := s.layout.Tables[entityType]
	if !ok {
		return NewStoreError(ErrUnknownTable, fmt.Errorf("unknown entity type %q", entityType))
	}

	query, args := upsertSQL(s.schema, table, key, data, block, conflict)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return classifyExecError(err)
	}
	return nil
}

// upsertSQL renders the full upsert statement and its bind arguments. Update
// expressions are emitted in sorted field order so the statement text is
// deterministic.
func upsertSQL(schema string, table *storelayout.Table, key model.Key, data model.Entity, block uint64, conflict UpsertConflictFragment) (string, []interface{}) {
	colNames := []string{"id", "block_range"}
	placeholders := []string{"$1", "$2"}
	args := []interface{}{key.ID, openRange(block)}
	idx := 3
	for _, c := range table.Columns {
		colNames = append(colNames, c.Name)
		placeholders = append(placeholders, bindExpr(c, idx))
		args = append(args, toSQL(c, data[c.Name]))
		idx++
	}

	action := "DO NOTHING"
	if len(conflict.Fields) > 0 {
		fields := make([]string, 0, len(conflict.Fields))
		for field := range conflict.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		sets := make([]string, 0, len(fields))
		for _, field := range fields {
			sets = append(sets, fmt.Sprintf("%s = %s", field, conflict.Fields[field]))
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s.%s (%s) VALUES (%s) ON CONFLICT ON CONSTRAINT %s %s",
		schema, table.Name, strings.Join(colNames, ", "), strings.Join(placeholders, ", "),
		conflict.Constraint, action,
	)
	return query, args
}
