package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluesky-social/nestedset/store"
	"github.com/cockroachdb/pebble"
)

// Inner schema:
// r{uint64 id} : {json row}
// s : {uint64 highest assigned id}
const (
	rowPrefix = 'r'
	seqKey    = 's'
)

var ErrTxDone = errors.New("transaction already committed or rolled back")

func makeRowKey(id int64) []byte {
	out := make([]byte, 9)
	out[0] = rowPrefix
	binary.BigEndian.PutUint64(out[1:], uint64(id))
	return out
}

// Pebblestore keeps a single table of rows in a pebble db. Every write
// statement and every transaction is applied as one indexed batch, and
// writers are serialized by a lock held from Begin until Commit or Rollback.
type Pebblestore struct {
	db *pebble.DB

	// held by the open transaction, or by a single write statement
	writeLk sync.Mutex

	log *slog.Logger
}

func Open(path string, opts *pebble.Options) (*Pebblestore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: could not open db, %w", path, err)
	}
	return &Pebblestore{
		db:  db,
		log: slog.Default().With("system", "pebblestore"),
	}, nil
}

func (s *Pebblestore) Close() error {
	err := s.db.Flush()
	if err != nil {
		s.log.Error("pebble flush", "err", err)
	}
	err = s.db.Close()
	if err != nil {
		s.log.Error("pebble close", "err", err)
	}
	return err
}

func (s *Pebblestore) Scan(ctx context.Context, q store.Query) ([]store.Row, error) {
	return batchOps{r: s.db}.Scan(ctx, q)
}

func (s *Pebblestore) Get(ctx context.Context, pkField string, id int64) (store.Row, error) {
	return batchOps{r: s.db}.Get(ctx, pkField, id)
}

func (s *Pebblestore) Max(ctx context.Context, field string) (int64, error) {
	return batchOps{r: s.db}.Max(ctx, field)
}

func (s *Pebblestore) Insert(ctx context.Context, pkField string, row store.Row) (int64, error) {
	var id int64
	err := s.autocommit(func(ops batchOps) error {
		var err error
		id, err = ops.Insert(ctx, pkField, row)
		return err
	})
	return id, err
}

func (s *Pebblestore) Delete(ctx context.Context, where []store.Cond) (int64, error) {
	var n int64
	err := s.autocommit(func(ops batchOps) error {
		var err error
		n, err = ops.Delete(ctx, where)
		return err
	})
	return n, err
}

func (s *Pebblestore) Update(ctx context.Context, u store.RangedUpdate) (int64, error) {
	var n int64
	err := s.autocommit(func(ops batchOps) error {
		var err error
		n, err = ops.Update(ctx, u)
		return err
	})
	return n, err
}

func (s *Pebblestore) autocommit(fn func(ops batchOps) error) error {
	s.writeLk.Lock()
	defer s.writeLk.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()
	if err := fn(batchOps{r: b, w: b}); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *Pebblestore) Begin(ctx context.Context) (store.Tx, error) {
	s.writeLk.Lock()
	b := s.db.NewIndexedBatch()
	return &pebbleTx{
		s:        s,
		b:        b,
		batchOps: batchOps{r: b, w: b},
	}, nil
}

type pebbleTx struct {
	batchOps
	s    *Pebblestore
	b    *pebble.Batch
	done bool
}

func (tx *pebbleTx) finish() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return nil
}

func (tx *pebbleTx) Commit() error {
	if err := tx.finish(); err != nil {
		return err
	}
	defer tx.s.writeLk.Unlock()
	defer tx.b.Close()
	if err := tx.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble batch commit: %w", err)
	}
	return nil
}

func (tx *pebbleTx) Rollback() error {
	if err := tx.finish(); err != nil {
		return err
	}
	defer tx.s.writeLk.Unlock()
	return tx.b.Close()
}

// batchOps runs statements against a reader and, for write statements, a
// writer. Both are the same indexed batch inside a transaction so reads see
// the transaction's own writes.
type batchOps struct {
	r pebble.Reader
	w pebble.Writer
}

func (o batchOps) writer() (pebble.Writer, error) {
	if o.w == nil {
		return nil, errors.New("write on a read-only pebble view")
	}
	return o.w, nil
}

func (o batchOps) all(ctx context.Context) ([]store.Row, error) {
	iter, err := o.r.NewIter(&pebble.IterOptions{
		LowerBound: []byte{rowPrefix},
		UpperBound: []byte{rowPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("row iter start, %w", err)
	}
	defer iter.Close()

	var out []store.Row
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("row iter, %w", err)
		}
		r, err := decodeRow(value)
		if err != nil {
			return nil, fmt.Errorf("row %x: %w", iter.Key(), err)
		}
		out = append(out, r)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o batchOps) Scan(ctx context.Context, q store.Query) ([]store.Row, error) {
	rows, err := o.all(ctx)
	if err != nil {
		return nil, err
	}
	return store.Filter(rows, q)
}

func (o batchOps) Get(ctx context.Context, pkField string, id int64) (store.Row, error) {
	value, closer, err := o.r.Get(makeRowKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return decodeRow(value)
}

func (o batchOps) readSeq() (int64, error) {
	value, closer, err := o.r.Get([]byte{seqKey})
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, fmt.Errorf("bad sequence value length %d", len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

func (o batchOps) Insert(ctx context.Context, pkField string, row store.Row) (int64, error) {
	w, err := o.writer()
	if err != nil {
		return 0, err
	}
	seq, err := o.readSeq()
	if err != nil {
		return 0, err
	}

	r := row.Clone()
	var id int64
	if v, ok := r[pkField]; ok && v != nil {
		id, err = store.ToInt64(v)
		if err != nil {
			return 0, fmt.Errorf("primary key: %w", err)
		}
		if _, err := o.Get(ctx, pkField, id); err == nil {
			return 0, fmt.Errorf("duplicate primary key %d", id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
	} else {
		id = seq + 1
	}
	if id <= 0 {
		return 0, fmt.Errorf("primary key must be positive, got %d", id)
	}
	r[pkField] = id

	if err := o.put(w, id, r); err != nil {
		return 0, err
	}
	if id > seq {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		if err := w.Set([]byte{seqKey}, buf[:], nil); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (o batchOps) put(w pebble.Writer, id int64, r store.Row) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding row %d: %w", id, err)
	}
	return w.Set(makeRowKey(id), value, nil)
}

// matching returns the rows satisfying every condition, keyed by primary
// key. Rows are located by the key they are stored under.
func (o batchOps) matching(ctx context.Context, where []store.Cond) (map[int64]store.Row, error) {
	iter, err := o.r.NewIter(&pebble.IterOptions{
		LowerBound: []byte{rowPrefix},
		UpperBound: []byte{rowPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("row iter start, %w", err)
	}
	defer iter.Close()

	out := make(map[int64]store.Row)
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := iter.Key()
		if len(key) != 9 {
			return nil, fmt.Errorf("bad row key %x", key)
		}
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("row iter, %w", err)
		}
		r, err := decodeRow(value)
		if err != nil {
			return nil, err
		}
		ok, err := store.MatchAll(where, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out[int64(binary.BigEndian.Uint64(key[1:]))] = r
		}
	}
	return out, iter.Error()
}

func (o batchOps) Delete(ctx context.Context, where []store.Cond) (int64, error) {
	w, err := o.writer()
	if err != nil {
		return 0, err
	}
	rows, err := o.matching(ctx, where)
	if err != nil {
		return 0, err
	}
	for id := range rows {
		if err := w.Delete(makeRowKey(id), nil); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

func (o batchOps) Update(ctx context.Context, u store.RangedUpdate) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	w, err := o.writer()
	if err != nil {
		return 0, err
	}
	rows, err := o.matching(ctx, u.Where)
	if err != nil {
		return 0, err
	}

	// evaluate against the pre-update rows before writing any of them
	updated := make(map[int64]store.Row, len(rows))
	for id, r := range rows {
		nr, err := u.Apply(r)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", id, err)
		}
		updated[id] = nr
	}
	for id, r := range updated {
		if err := o.put(w, id, r); err != nil {
			return 0, err
		}
	}
	return int64(len(updated)), nil
}

func (o batchOps) Max(ctx context.Context, field string) (int64, error) {
	rows, err := o.all(ctx)
	if err != nil {
		return 0, err
	}
	var out int64
	for i, r := range rows {
		v, err := r.Int(field)
		if err != nil {
			return 0, err
		}
		if i == 0 || v > out {
			out = v
		}
	}
	return out, nil
}

// decodeRow turns integral JSON numbers back into int64 and the rest into
// float64.
func decodeRow(value []byte) (store.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var r store.Row
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	for k, v := range r {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			r[k] = i
		} else if f, err := n.Float64(); err == nil {
			r[k] = f
		}
	}
	return r, nil
}
