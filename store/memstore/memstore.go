package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bluesky-social/nestedset/store"
)

var ErrTxDone = errors.New("transaction already committed or rolled back")

// Memstore is a simple in-memory implementation of the store.Store
// interface. A transaction holds the store lock from Begin until Commit or
// Rollback, so transactions are fully serialized; statements issued on the
// Memstore itself from the goroutine holding an open transaction will block.
type Memstore struct {
	lk  sync.Mutex
	tbl *table
}

func NewMemstore() *Memstore {
	return &Memstore{
		tbl: newTable(),
	}
}

func (s *Memstore) Scan(ctx context.Context, q store.Query) ([]store.Row, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.tbl.scan(q)
}

func (s *Memstore) Get(ctx context.Context, pkField string, id int64) (store.Row, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.tbl.get(id)
}

func (s *Memstore) Insert(ctx context.Context, pkField string, row store.Row) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.tbl.insert(pkField, row)
}

func (s *Memstore) Delete(ctx context.Context, where []store.Cond) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.tbl.delete(where)
}

func (s *Memstore) Update(ctx context.Context, u store.RangedUpdate) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.tbl.update(u)
}

func (s *Memstore) Max(ctx context.Context, field string) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.tbl.max(field)
}

// Len returns the number of stored rows.
func (s *Memstore) Len() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.tbl.rows)
}

func (s *Memstore) Begin(ctx context.Context) (store.Tx, error) {
	s.lk.Lock()
	return &memTx{
		s:   s,
		tbl: s.tbl.clone(),
	}, nil
}

type memTx struct {
	s    *Memstore
	tbl  *table
	done bool
}

func (tx *memTx) check() error {
	if tx.done {
		return ErrTxDone
	}
	return nil
}

func (tx *memTx) Scan(ctx context.Context, q store.Query) ([]store.Row, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.tbl.scan(q)
}

func (tx *memTx) Get(ctx context.Context, pkField string, id int64) (store.Row, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.tbl.get(id)
}

func (tx *memTx) Insert(ctx context.Context, pkField string, row store.Row) (int64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	return tx.tbl.insert(pkField, row)
}

func (tx *memTx) Delete(ctx context.Context, where []store.Cond) (int64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	return tx.tbl.delete(where)
}

func (tx *memTx) Update(ctx context.Context, u store.RangedUpdate) (int64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	return tx.tbl.update(u)
}

func (tx *memTx) Max(ctx context.Context, field string) (int64, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	return tx.tbl.max(field)
}

func (tx *memTx) Commit() error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.done = true
	tx.s.tbl = tx.tbl
	tx.s.lk.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.done = true
	tx.s.lk.Unlock()
	return nil
}

// table is the unlocked row set shared by the store and its transactions.
type table struct {
	rows   map[int64]store.Row
	nextID int64
}

func newTable() *table {
	return &table{rows: make(map[int64]store.Row)}
}

func (t *table) clone() *table {
	out := &table{
		rows:   make(map[int64]store.Row, len(t.rows)),
		nextID: t.nextID,
	}
	for id, r := range t.rows {
		out.rows[id] = r.Clone()
	}
	return out
}

func (t *table) all() []store.Row {
	out := make([]store.Row, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	return out
}

func (t *table) scan(q store.Query) ([]store.Row, error) {
	return store.Filter(t.all(), q)
}

func (t *table) get(id int64) (store.Row, error) {
	r, ok := t.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

func (t *table) insert(pkField string, row store.Row) (int64, error) {
	r := row.Clone()
	var id int64
	if v, ok := r[pkField]; ok && v != nil {
		n, err := store.ToInt64(v)
		if err != nil {
			return 0, fmt.Errorf("primary key: %w", err)
		}
		if _, exists := t.rows[n]; exists {
			return 0, fmt.Errorf("duplicate primary key %d", n)
		}
		id = n
	} else {
		id = t.nextID + 1
	}
	if id > t.nextID {
		t.nextID = id
	}
	r[pkField] = id
	t.rows[id] = r
	return id, nil
}

func (t *table) delete(where []store.Cond) (int64, error) {
	var drop []int64
	for id, r := range t.rows {
		ok, err := store.MatchAll(where, r)
		if err != nil {
			return 0, err
		}
		if ok {
			drop = append(drop, id)
		}
	}
	for _, id := range drop {
		delete(t.rows, id)
	}
	return int64(len(drop)), nil
}

func (t *table) update(u store.RangedUpdate) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}

	// compute everything first so a failure leaves the table untouched
	updated := make(map[int64]store.Row)
	for id, r := range t.rows {
		ok, err := store.MatchAll(u.Where, r)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		nr, err := u.Apply(r)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", id, err)
		}
		updated[id] = nr
	}
	for id, r := range updated {
		t.rows[id] = r
	}
	return int64(len(updated)), nil
}

func (t *table) max(field string) (int64, error) {
	var out int64
	first := true
	for _, r := range t.rows {
		v, err := r.Int(field)
		if err != nil {
			return 0, err
		}
		if first || v > out {
			out = v
			first = false
		}
	}
	return out, nil
}
