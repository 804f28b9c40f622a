package storelayout

import (
	"fmt"
	"strings"
)

// sqlType maps a column kind to its PostgreSQL column type, per the
// field-type-to-SQL mapping this layout derivation implements.
func sqlType(c Column) string {
	switch c.Kind {
	case ColString:
		return "text"
	case ColInt:
		return "int4"
	case ColBigInt, ColBigDecimal:
		return "numeric"
	case ColBool:
		return "bool"
	case ColBytes:
		return "bytea"
	case ColTSVector:
		return "tsvector"
	case ColEnum:
		return "text" // bound as ::text; no Postgres enum type is created or cast to
	case ColReference:
		return "text"
	case ColList:
		return sqlType(Column{Kind: c.ElemKind}) + "[]"
	default:
		return "text"
	}
}

// CreateTableSQL renders the DDL for one table in the given schema
// namespace: a text id column (not a primary key, since one id has one row
// per version), one column per field, and an implicit block_range int4range
// column with a unique index on (id, block_range).
func (t *Table) CreateTableSQL(schema string) []string {
	qualified := fmt.Sprintf("%s.%s", schema, t.Name)

	var cols []string
	cols = append(cols, "id text NOT NULL")
	for _, c := range t.Columns {
		nullability := "NOT NULL"
		if c.Nullable {
			nullability = ""
		}
		cols = append(cols, strings.TrimSpace(fmt.Sprintf("%s %s %s", c.Name, sqlType(c), nullability)))
	}
	cols = append(cols, "block_range int4range NOT NULL")

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", qualified, strings.Join(cols, ",\n  ")),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s_id_block_range_idx ON %s (id, block_range)", t.Name, qualified),
		fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s_id_block_range_excl EXCLUDE USING gist (id WITH =, block_range WITH &&)",
			qualified, t.Name,
		),
	}

	for _, c := range t.Columns {
		if c.Kind != ColReference || c.RefTable == "" {
			continue
		}
		refQualified := fmt.Sprintf("%s.%s", schema, c.RefTable)
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s_%s_fkey FOREIGN KEY (%s, block_range) REFERENCES %s (id, block_range)",
			qualified, t.Name, c.Name, c.Name, refQualified,
		))
	}

	return stmts
}

// CreateSchemaSQL renders DDL for every table in l, in Tables iteration
// order; callers needing determinism should sort the returned statements'
// owning type names themselves.
func (l *Layout) CreateSchemaSQL(schema string) []string {
	var stmts []string
	for _, t := range l.Tables {
		stmts = append(stmts, t.CreateTableSQL(schema)...)
	}
	return stmts
}
