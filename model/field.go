// Package model re-architects the Python original's metaclass-driven ORM
// (spec §9) as a plain schema builder: a Field descriptor carries its wire
// name, index type, and sort directions, and produces kt.Expression
// values for QueryBuilder.Where rather than any runtime class
// construction. There is no model registry and no reflection over struct
// tags; a Schema is just a named, ordered list of Fields.
package model

import (
	"strconv"

	"github.com/coleifer/kt"
)

// IndexType selects which table-database index (if any) backs a Field,
// mirroring the index kinds the sibling server's table extension
// supports.
type IndexType int

const (
	// IndexNone: the field is not indexed; predicates against it still
	// work but require a full scan server-side.
	IndexNone IndexType = iota
	IndexLexical
	IndexDecimal
	IndexToken
)

// Opcodes mirror the Tokyo Cabinet table database's query opcodes
// (tctdb.h's TDBQC* constants): opaque integers the server interprets,
// passed through verbatim per spec §6's "Search opcodes ... are opaque
// integers passed through verbatim" note.
const (
	opStrEq   = 0
	opStrInc  = 1 // contains, case-sensitive
	opStrBw   = 2 // begins-with
	opStrEw   = 3 // ends-with
	opStrAnd  = 4 // all tokens present
	opStrOr   = 5 // any token present
	opStrOreq = 6 // equals one of a list
	opStrRx   = 7 // regular expression

	opNumEq   = 8
	opNumGt   = 9
	opNumGe   = 10
	opNumLt   = 11
	opNumLe   = 12
	opNumBt   = 13 // between, inclusive
	opNumOreq = 14 // equals one of a list

	// OpNegate inverts the opcode's sense; OR it in the same way
	// kt.OpNegate does at the QueryBuilder level.
	OpNegate = 1 << 24
)

// Field is the common descriptor surface every concrete field type
// (BytesField, TextField, IntegerField, FloatField) implements.
type Field interface {
	// WireName is the column name as stored in the record's TabMap.
	WireName() string
	// IndexType reports which index (if any) the schema expects the
	// server to maintain for this column.
	IndexType() IndexType
	// OrderAsc/OrderDesc build the QueryBuilder OrderBy directive for
	// this column in each direction.
	OrderAsc() (column string, orderType int)
	OrderDesc() (column string, orderType int)
}

type baseField struct {
	wireName string
	index    IndexType
}

func (f baseField) WireName() string         { return f.wireName }
func (f baseField) IndexType() IndexType     { return f.index }
func (f baseField) OrderAsc() (string, int)  { return f.wireName, kt.OrderAsc }
func (f baseField) OrderDesc() (string, int) { return f.wireName, kt.OrderDesc }

// BytesField is a raw-byte-string column, compared and indexed
// lexically.
type BytesField struct{ baseField }

// NewBytesField constructs a BytesField named wireName with the given
// index type.
func NewBytesField(wireName string, index IndexType) BytesField {
	return BytesField{baseField{wireName: wireName, index: index}}
}

func (f BytesField) expr(opcode int, value string) kt.Expression {
	return kt.Expression{Column: f.wireName, Opcode: opcode, Value: value}
}

// Eq matches records whose column equals value exactly.
func (f BytesField) Eq(value string) kt.Expression { return f.expr(opStrEq, value) }

// Ne matches records whose column does not equal value.
func (f BytesField) Ne(value string) kt.Expression { return f.expr(opStrEq|OpNegate, value) }

// Contains matches records whose column contains value as a substring.
func (f BytesField) Contains(value string) kt.Expression { return f.expr(opStrInc, value) }

// StartsWith matches records whose column begins with value.
func (f BytesField) StartsWith(value string) kt.Expression { return f.expr(opStrBw, value) }

// EndsWith matches records whose column ends with value.
func (f BytesField) EndsWith(value string) kt.Expression { return f.expr(opStrEw, value) }

// Regex matches records whose column matches the given regular
// expression.
func (f BytesField) Regex(pattern string) kt.Expression { return f.expr(opStrRx, pattern) }

// TextField is a UTF-8 text column. It shares BytesField's predicates
// plus a couple of token-oriented ones meaningful only for text.
type TextField struct{ baseField }

// NewTextField constructs a TextField named wireName with the given index
// type.
func NewTextField(wireName string, index IndexType) TextField {
	return TextField{baseField{wireName: wireName, index: index}}
}

func (f TextField) expr(opcode int, value string) kt.Expression {
	return kt.Expression{Column: f.wireName, Opcode: opcode, Value: value}
}

// Eq matches records whose column equals value exactly.
func (f TextField) Eq(value string) kt.Expression { return f.expr(opStrEq, value) }

// Ne matches records whose column does not equal value.
func (f TextField) Ne(value string) kt.Expression { return f.expr(opStrEq|OpNegate, value) }

// Contains matches records whose column contains value as a substring.
func (f TextField) Contains(value string) kt.Expression { return f.expr(opStrInc, value) }

// StartsWith matches records whose column begins with value.
func (f TextField) StartsWith(value string) kt.Expression { return f.expr(opStrBw, value) }

// EndsWith matches records whose column ends with value.
func (f TextField) EndsWith(value string) kt.Expression { return f.expr(opStrEw, value) }

// Regex matches records whose column matches the given regular
// expression.
func (f TextField) Regex(pattern string) kt.Expression { return f.expr(opStrRx, pattern) }

// ContainsAllTokens matches records whose column contains every
// whitespace-separated token in tokens.
func (f TextField) ContainsAllTokens(tokens string) kt.Expression { return f.expr(opStrAnd, tokens) }

// ContainsAnyToken matches records whose column contains at least one
// whitespace-separated token in tokens.
func (f TextField) ContainsAnyToken(tokens string) kt.Expression { return f.expr(opStrOr, tokens) }

// numericField is shared between IntegerField and FloatField, which
// differ only in how they stringify their operand.
type numericField struct {
	baseField
	format func(v float64) string
}

func (f numericField) expr(opcode int, v float64) kt.Expression {
	return kt.Expression{Column: f.wireName, Opcode: opcode, Value: f.format(v)}
}

func (f numericField) exprStr(opcode int, s string) kt.Expression {
	return kt.Expression{Column: f.wireName, Opcode: opcode, Value: s}
}

// Eq matches records whose column equals value exactly.
func (f numericField) Eq(v float64) kt.Expression { return f.expr(opNumEq, v) }

// Ne matches records whose column does not equal value.
func (f numericField) Ne(v float64) kt.Expression { return f.expr(opNumEq|OpNegate, v) }

// Gt matches records whose column is strictly greater than v.
func (f numericField) Gt(v float64) kt.Expression { return f.expr(opNumGt, v) }

// Ge matches records whose column is greater than or equal to v.
func (f numericField) Ge(v float64) kt.Expression { return f.expr(opNumGe, v) }

// Lt matches records whose column is strictly less than v.
func (f numericField) Lt(v float64) kt.Expression { return f.expr(opNumLt, v) }

// Le matches records whose column is less than or equal to v.
func (f numericField) Le(v float64) kt.Expression { return f.expr(opNumLe, v) }

// Between matches records whose column falls within [low, high]
// inclusive.
func (f numericField) Between(low, high float64) kt.Expression {
	return f.exprStr(opNumBt, f.format(low)+" "+f.format(high))
}

// IntegerField is a 64-bit signed integer column, indexed decimally.
type IntegerField struct{ numericField }

// NewIntegerField constructs an IntegerField named wireName with the
// given index type.
func NewIntegerField(wireName string, index IndexType) IntegerField {
	return IntegerField{numericField{
		baseField: baseField{wireName: wireName, index: index},
		format:    func(v float64) string { return strconv.FormatInt(int64(v), 10) },
	}}
}

// FloatField is a 64-bit floating-point column, indexed decimally.
type FloatField struct{ numericField }

// NewFloatField constructs a FloatField named wireName with the given
// index type.
func NewFloatField(wireName string, index IndexType) FloatField {
	return FloatField{numericField{
		baseField: baseField{wireName: wireName, index: index},
		format:    func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) },
	}}
}
