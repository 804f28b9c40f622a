// Package storelayout derives a block-ranged relational layout from an
// indexer's GraphQL schema: the SDL is parsed with
// github.com/vektah/gqlparser/v2 and the resulting AST drives storage DDL.
package storelayout

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ColumnKind is the relational type a GraphQL scalar/list/reference field
// maps onto.
type ColumnKind int

const (
	ColString ColumnKind = iota
	ColInt
	ColBigInt
	ColBigDecimal
	ColBool
	ColBytes
	ColList
	ColEnum
	ColReference
	ColTSVector
)

// Column is one field of a derived table.
type Column struct {
	Name      string
	Kind      ColumnKind
	ElemKind  ColumnKind // meaningful when Kind == ColList
	EnumName  string     // meaningful when Kind == ColEnum
	RefTable  string     // meaningful when Kind == ColReference
	Nullable  bool
}

// Table is one GraphQL object type's relational shape: its unqualified table
// name plus its field columns. The implicit id and block_range columns are
// not in Columns; CreateTableSQL adds them.
type Table struct {
	Name    string // snake_case of the GraphQL type name
	Columns []Column
}

// Layout is the full set of tables derived from one GraphQL schema document.
// Enums records the enum type names the document defines, the input
// ResolveReferences needs to settle enum-vs-reference columns.
type Layout struct {
	Tables map[string]*Table // keyed by GraphQL type name
	Enums  map[string]bool
}

// Derive parses sdl and builds the relational layout for every object type
// it defines, skipping the built-in Query/Mutation/Subscription roots.
func Derive(sdl string) (*Layout, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	layout := &Layout{Tables: make(map[string]*Table), Enums: make(map[string]bool)}
	for _, def := range doc.Definitions {
		if def.Kind == ast.Enum {
			layout.Enums[def.Name] = true
			continue
		}
		if def.Kind != ast.Object {
			continue
		}
		if isRootType(def.Name) {
			continue
		}
		table, err := deriveTable(def)
		if err != nil {
			return nil, fmt.Errorf("derive table %s: %w", def.Name, err)
		}
		layout.Tables[def.Name] = table
	}
	return layout, nil
}

func isRootType(name string) bool {
	switch name {
	case "Query", "Mutation", "Subscription":
		return true
	default:
		return false
	}
}

func deriveTable(def *ast.Definition) (*Table, error) {
	t := &Table{Name: snakeCase(def.Name)}
	for _, f := range def.Fields {
		if f.Name == "id" {
			continue
		}
		col, err := deriveColumn(f)
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

func deriveColumn(f *ast.FieldDefinition) (Column, error) {
	col := Column{Name: snakeCase(f.Name)}
	typ := f.Type
	col.Nullable = !typ.NonNull

	if typ.NamedType == "" && typ.Elem != nil {
		col.Kind = ColList
		elem, err := scalarKind(typ.Elem.NamedType)
		if err != nil {
			return col, err
		}
		col.ElemKind = elem
		return col, nil
	}

	kind, err := scalarKind(typ.NamedType)
	if err == nil {
		col.Kind = kind
		return col, nil
	}

	// Not a known scalar: either an Enum or a Reference to another entity
	// type. Layout derivation cannot distinguish the two without the full
	// type map, so callers resolve Enum vs Reference via ResolveReferences.
	col.Kind = ColReference
	col.RefTable = snakeCase(typ.NamedType)
	col.EnumName = typ.NamedType
	return col, nil
}

func scalarKind(named string) (ColumnKind, error) {
	switch named {
	case "String", "ID":
		return ColString, nil
	case "Int":
		return ColInt, nil
	case "BigInt":
		return ColBigInt, nil
	case "BigDecimal":
		return ColBigDecimal, nil
	case "Boolean":
		return ColBool, nil
	case "Bytes":
		return ColBytes, nil
	case "TSVector":
		return ColTSVector, nil
	default:
		return 0, fmt.Errorf("not a known scalar: %s", named)
	}
}

// ResolveReferences walks l's columns a second time, reclassifying
// ColReference columns whose named type is a known enum. A field's named
// type can only be classified once every definition in the document has
// been seen, so this runs as a separate pass after Derive.
func (l *Layout) ResolveReferences(enumNames map[string]bool) {
	for _, t := range l.Tables {
		for i, c := range t.Columns {
			if c.Kind != ColReference {
				continue
			}
			if enumNames[c.EnumName] {
				t.Columns[i].Kind = ColEnum
				t.Columns[i].RefTable = ""
			}
		}
	}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
