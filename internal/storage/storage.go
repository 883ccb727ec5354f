/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
// Package storage defines the value model shared by the query kernel:
// the closed set of primitive column kinds, the tagged Value carried
// between columns, predicates and the executor, and the comparison
// operators the scan engine understands.
package storage

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies one of the fixed primitive storage kinds a column can
// hold. The set is closed at table-definition time; all dispatch on Kind
// is an exhaustive switch, never reflection.
type Kind int8

const (
	// KindInt32 is a 32-bit signed integer column
	KindInt32 Kind = iota
	// KindInt64 is a 64-bit signed integer column
	KindInt64
	// KindFloat64 is a 64-bit floating point column
	KindFloat64
	// KindBool is a boolean column
	KindBool
	// KindString is a fixed-width string-handle column backed by a pool
	KindString
)

// String returns a string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "INT32"
	case KindInt64:
		return "INT64"
	case KindFloat64:
		return "FLOAT64"
	case KindBool:
		return "BOOL"
	case KindString:
		return "STRING"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Operator represents a comparison operator in a leaf predicate
type Operator int

const (
	// EQ represents equality (=)
	EQ Operator = iota
	// NE represents inequality (!=)
	NE
	// GT represents greater than (>)
	GT
	// GTE represents greater than or equal (>=)
	GTE
	// LT represents less than (<)
	LT
	// LTE represents less than or equal (<=)
	LTE
	// IN represents membership in a value set
	IN
	// ISNULL represents a NULL check
	ISNULL
	// ISNOTNULL represents a NOT NULL check
	ISNOTNULL
)

// String returns a string representation of the Operator
func (op Operator) String() string {
	switch op {
	case EQ:
		return "="
	case NE:
		return "!="
	case GT:
		return ">"
	case GTE:
		return ">="
	case LT:
		return "<"
	case LTE:
		return "<="
	case IN:
		return "IN"
	case ISNULL:
		return "IS NULL"
	case ISNOTNULL:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("Operator(%d)", op)
	}
}

// Value is the tagged variant carried between the column store, the
// predicate engine and the executor. Exactly one payload field is
// meaningful for a given Kind; Null values carry the Kind only.
type Value struct {
	K    Kind
	Null bool

	i64 int64
	f64 float64
	str string
}

// NewInt32 creates an INT32 value
func NewInt32(v int32) Value { return Value{K: KindInt32, i64: int64(v)} }

// NewInt64 creates an INT64 value
func NewInt64(v int64) Value { return Value{K: KindInt64, i64: v} }

// NewFloat64 creates a FLOAT64 value
func NewFloat64(v float64) Value { return Value{K: KindFloat64, f64: v} }

// NewBool creates a BOOL value
func NewBool(v bool) Value {
	val := Value{K: KindBool}
	if v {
		val.i64 = 1
	}
	return val
}

// NewString creates a STRING value
func NewString(v string) Value { return Value{K: KindString, str: v} }

// NewNull creates a NULL value of the given kind
func NewNull(k Kind) Value { return Value{K: k, Null: true} }

// Kind returns the value's kind
func (v Value) Kind() Kind { return v.K }

// IsNull reports whether the value is NULL
func (v Value) IsNull() bool { return v.Null }

// AsInt64 returns the value as an int64. Valid for INT32, INT64 and BOOL.
func (v Value) AsInt64() (int64, bool) {
	if v.Null {
		return 0, false
	}
	switch v.K {
	case KindInt32, KindInt64, KindBool:
		return v.i64, true
	default:
		return 0, false
	}
}

// AsFloat64 returns the value as a float64. Valid for FLOAT64 and the
// integer kinds (widening).
func (v Value) AsFloat64() (float64, bool) {
	if v.Null {
		return 0, false
	}
	switch v.K {
	case KindFloat64:
		return v.f64, true
	case KindInt32, KindInt64:
		return float64(v.i64), true
	default:
		return 0, false
	}
}

// AsBool returns the value as a bool
func (v Value) AsBool() (bool, bool) {
	if v.Null || v.K != KindBool {
		return false, false
	}
	return v.i64 != 0, true
}

// AsString returns the value as a string
func (v Value) AsString() (string, bool) {
	if v.Null || v.K != KindString {
		return "", false
	}
	return v.str, true
}

// AsInterface returns the underlying value boxed as an interface{}
func (v Value) AsInterface() interface{} {
	if v.Null {
		return nil
	}
	switch v.K {
	case KindInt32:
		return int32(v.i64)
	case KindInt64:
		return v.i64
	case KindFloat64:
		return v.f64
	case KindBool:
		return v.i64 != 0
	case KindString:
		return v.str
	default:
		return nil
	}
}

// Equals reports whether two values are equal. NULL never equals
// anything, including NULL.
func (v Value) Equals(other Value) bool {
	if v.Null || other.Null {
		return false
	}
	c, err := v.Compare(other)
	return err == nil && c == 0
}

// Compare compares two values of the same kind and returns -1, 0 or 1.
// Comparing values of different kinds (beyond integer widening) or NULL
// values is an error.
func (v Value) Compare(other Value) (int, error) {
	if v.Null || other.Null {
		return 0, fmt.Errorf("%w: cannot compare NULL values", ErrKindMismatch)
	}
	switch v.K {
	case KindInt32, KindInt64, KindBool:
		if other.K == KindFloat64 {
			return compareFloat(float64(v.i64), other.f64), nil
		}
		o, ok := other.AsInt64()
		if !ok {
			return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, v.K, other.K)
		}
		switch {
		case v.i64 < o:
			return -1, nil
		case v.i64 > o:
			return 1, nil
		default:
			return 0, nil
		}
	case KindFloat64:
		o, ok := other.AsFloat64()
		if !ok {
			return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, v.K, other.K)
		}
		return compareFloat(v.f64, o), nil
	case KindString:
		o, ok := other.AsString()
		if !ok {
			return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, v.K, other.K)
		}
		return strings.Compare(v.str, o), nil
	default:
		return 0, fmt.Errorf("%w: unsupported kind %s", ErrKindMismatch, v.K)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SortKey returns the value encoded as a sortable int64 for range-index
// keys. Integer kinds map directly; floats use the sortable bit encoding;
// bools map to 0/1. STRING kinds have no int64 sort key.
func (v Value) SortKey() (int64, bool) {
	if v.Null {
		return 0, false
	}
	switch v.K {
	case KindInt32, KindInt64, KindBool:
		return v.i64, true
	case KindFloat64:
		return FloatToSortableInt64(v.f64), true
	default:
		return 0, false
	}
}

// String implements fmt.Stringer for diagnostics
func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.K {
	case KindFloat64:
		return fmt.Sprintf("%g", v.f64)
	case KindBool:
		if v.i64 != 0 {
			return "true"
		}
		return "false"
	case KindString:
		return v.str
	default:
		return fmt.Sprintf("%d", v.i64)
	}
}

// Row is the tuple of values in all columns at one physical offset
type Row []Value

// FloatToSortableInt64 maps a float64 to an int64 whose natural ordering
// matches the float ordering (negative floats sort below positives, and
// within each sign magnitude ordering is preserved). Used as the range
// index key encoding for FLOAT64 columns.
func FloatToSortableInt64(f float64) int64 {
	bits := int64(math.Float64bits(f))
	if bits < 0 {
		bits ^= math.MaxInt64
	}
	return bits
}

// SortableInt64ToFloat inverts FloatToSortableInt64
func SortableInt64ToFloat(bits int64) float64 {
	if bits < 0 {
		bits ^= math.MaxInt64
	}
	return math.Float64frombits(uint64(bits))
}

// SchemaColumn describes one column of a table schema
type SchemaColumn struct {
	Name     string // Column name
	Kind     Kind   // Storage kind, fixed for the table's lifetime
	Nullable bool   // Whether the column accepts NULL
}

// Schema describes the structure of a table. The first column is the
// caller-visible row identity and must be an INT64 column.
type Schema struct {
	TableName string
	Columns   []SchemaColumn
}

// ColumnIndex returns the position of the named column, or -1
func (s Schema) ColumnIndex(name string) int {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// Validate checks the schema shape: a non-empty name, at least the id
// column, an INT64 non-nullable id in position zero, and unique names.
func (s Schema) Validate() error {
	if s.TableName == "" {
		return fmt.Errorf("%w: table name required", ErrInvalidQuery)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: at least one column required", ErrInvalidQuery)
	}
	if s.Columns[0].Kind != KindInt64 || s.Columns[0].Nullable {
		return fmt.Errorf("%w: first column %q must be a non-nullable INT64 id", ErrInvalidQuery, s.Columns[0].Name)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: column name required", ErrInvalidQuery)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidQuery, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}
