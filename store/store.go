// Package store defines the row storage contract the nested set engine is
// built on. Backends live in sub-packages (gormstore, memstore, pebblestore).
package store

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("row not found")

// Row is a single table row, keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Int reads an integer column out of the row.
func (r Row) Int(field string) (int64, error) {
	v, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("row has no column %q", field)
	}
	n, err := ToInt64(v)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", field, err)
	}
	return n, nil
}

// Query is an ordered, filtered scan. An empty Fields slice selects every
// column.
type Query struct {
	Where   []Cond
	Fields  []string
	OrderBy string
}

// Ops are the statements a nested set mutation is built from. Both Store and
// Tx implement them.
type Ops interface {
	// Scan returns the rows matching every condition in q.Where, ascending by
	// q.OrderBy.
	Scan(ctx context.Context, q Query) ([]Row, error)

	// Get looks up a single row by primary key. Returns ErrNotFound when
	// there is no such row.
	Get(ctx context.Context, pkField string, id int64) (Row, error)

	// Insert stores a row and returns its primary key. If the row does not
	// carry pkField the backend assigns one.
	Insert(ctx context.Context, pkField string, row Row) (int64, error)

	// Delete removes every row matching all conditions.
	Delete(ctx context.Context, where []Cond) (int64, error)

	// Update applies a ranged conditional update and returns the number of
	// rows in its scope.
	Update(ctx context.Context, u RangedUpdate) (int64, error)

	// Max returns the largest value of an integer column, or 0 for an empty
	// table.
	Max(ctx context.Context, field string) (int64, error)
}

type Store interface {
	Ops
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a store transaction. Commit is durable; Rollback undoes every
// statement issued since Begin. After either call the Tx must not be used.
type Tx interface {
	Ops
	Commit() error
	Rollback() error
}
