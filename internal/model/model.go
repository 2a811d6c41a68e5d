// Package model provides a small table-gateway layer over the SQLite
// database: rows travel as column maps and every table exposes the same
// CRUD surface, so behaviour can be layered on top of a table by wrapping
// its Model.
package model

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
)

var (
	// ErrUnknownColumn is returned when data names a column the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrNoData is returned when an insert or update carries no columns.
	ErrNoData = errors.New("no data")
	// ErrInvalidOrder is returned when a Query.OrderBy cannot be parsed.
	ErrInvalidOrder = errors.New("invalid order by")
)

// Data is a set of column values to write.
type Data map[string]any

// Clone returns a shallow copy of d.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

// Query narrows All and Count.
type Query struct {
	// Where is a raw SQL condition using ? placeholders bound to Args.
	Where string
	Args  []any
	// OrderBy is a comma separated list of "column [ASC|DESC]".
	OrderBy string
	Limit   int
	Offset  int

	// IgnorePrivateUserKey disables the owner filter that decorators such as
	// private.Model add. Plain tables ignore it.
	IgnorePrivateUserKey bool
}

// Clone returns a copy of q whose Args can be appended to without touching q.
func (q Query) Clone() Query {
	q.Args = append([]any(nil), q.Args...)
	return q
}

// Record is one row read from a table.
type Record struct {
	Values map[string]any
	// PrimaryKey names the column ID reads. Decorators may point it at a
	// different column than the table's real primary key.
	PrimaryKey string
}

// ID returns the value of the record's primary key column.
func (r *Record) ID() int64 {
	if r == nil {
		return 0
	}
	id, _ := ToInt64(r.Values[r.PrimaryKey])
	return id
}

// Int64 returns column as an integer, zero when absent or not numeric.
func (r *Record) Int64(column string) int64 {
	v, _ := ToInt64(r.Values[column])
	return v
}

// String returns column as a string.
func (r *Record) String(column string) string {
	switch v := r.Values[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns column as a boolean; SQLite stores these as 0/1.
func (r *Record) Bool(column string) bool {
	switch v := r.Values[column].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		n, _ := ToInt64(v)
		return n != 0
	}
}

// Model is the CRUD surface shared by tables and their decorators.
type Model interface {
	// Table returns the underlying table name.
	Table() string
	// PrimaryKey returns the column callers address rows by.
	PrimaryKey() string
	// ColumnNames returns every column of the table.
	ColumnNames() []string

	Insert(ctx context.Context, data Data) (int64, error)
	ReplaceInsert(ctx context.Context, data Data) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Update(ctx context.Context, id int64, data Data) (int64, error)
	Get(ctx context.Context, id int64) (*Record, error)
	Gets(ctx context.Context, ids []int64) ([]*Record, error)
	GetOneByWhere(ctx context.Context, where string, args ...any) (*Record, error)
	All(ctx context.Context, q Query) ([]*Record, error)
	Count(ctx context.Context, q Query) (int64, error)
}

// ToInt64 converts the integer-like values SQLite and callers hand around.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
