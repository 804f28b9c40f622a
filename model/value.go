package model

import "math/big"

// ValueKind identifies the dynamic type carried by a Value.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInt
	ValueBigInt
	ValueBigDecimal
	ValueBool
	ValueBytes
	ValueList
	ValueEnum
	ValueTSVector
	ValueNull
)

// Value is a dynamically typed field value flowing out of a mapping handler
// and into the relational store. Only one of the fields matching Kind is
// meaningful; the others are zero.
type Value struct {
	Kind ValueKind

	Str    string
	Int    int32
	Big    *big.Int
	Dec    *big.Float
	Bool   bool
	Bytes  []byte
	List   []Value
	Enum   string
	TSVec  string
}

func NewString(s string) Value   { return Value{Kind: ValueString, Str: s} }
func NewInt(i int32) Value       { return Value{Kind: ValueInt, Int: i} }
func NewBigInt(b *big.Int) Value { return Value{Kind: ValueBigInt, Big: b} }
func NewBigDecimal(d *big.Float) Value {
	return Value{Kind: ValueBigDecimal, Dec: d}
}
func NewBool(b bool) Value    { return Value{Kind: ValueBool, Bool: b} }
func NewBytes(b []byte) Value { return Value{Kind: ValueBytes, Bytes: b} }
func NewList(vs []Value) Value {
	return Value{Kind: ValueList, List: vs}
}
func NewEnum(s string) Value    { return Value{Kind: ValueEnum, Enum: s} }
func NewTSVector(s string) Value { return Value{Kind: ValueTSVector, TSVec: s} }
func Null() Value                { return Value{Kind: ValueNull} }

// IsNull reports whether v carries no value.
func (v Value) IsNull() bool { return v.Kind == ValueNull }
