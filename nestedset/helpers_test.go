package nestedset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/bluesky-social/nestedset/store"
	"github.com/bluesky-social/nestedset/store/gormstore"
	"github.com/bluesky-social/nestedset/store/memstore"
	"github.com/bluesky-social/nestedset/store/pebblestore"
	"github.com/bluesky-social/nestedset/util/cliutil"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

var backends = []backend{
	{name: "mem", open: func(t *testing.T) store.Store { return memstore.NewMemstore() }},
	{name: "sqlite", open: openSqlite},
	{name: "pebble", open: openPebble},
}

func openSqlite(t *testing.T) store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := cliutil.SetupDatabase(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name), 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	require.NoError(t, db.Exec(`CREATE TABLE categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		left_key INTEGER NOT NULL,
		right_key INTEGER NOT NULL,
		parent_id INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL,
		name TEXT
	)`).Error)
	return gormstore.NewGormstore(db, "categories")
}

func openPebble(t *testing.T) store.Store {
	t.Helper()
	s, err := pebblestore.Open("tree", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// forEachBackend runs fn once per store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, tr *Tree)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newTestTree(t, b.open(t)))
		})
	}
}

func newTestTree(t *testing.T, s store.Store) *Tree {
	t.Helper()
	tr, err := NewTree(s, DefaultConfig())
	require.NoError(t, err)
	return tr
}

func mustInsert(t *testing.T, tr *Tree, parent int64, name string, pos Position) int64 {
	t.Helper()
	n, err := tr.Insert(context.Background(), parent, map[string]any{"name": name}, pos)
	require.NoError(t, err)
	return n.ID
}

func snapshot(t *testing.T, tr *Tree) []Node {
	t.Helper()
	nodes, err := tr.GetTree(context.Background())
	require.NoError(t, err)
	return nodes
}

func mustVerify(t *testing.T, tr *Tree) {
	t.Helper()
	require.NoError(t, tr.Verify(context.Background()))
}

type placement struct {
	Left, Right, Level int64
	Parent             string
}

// layout describes every node by name, with its parent by name.
func layout(t *testing.T, tr *Tree) map[string]placement {
	t.Helper()
	nodes := snapshot(t, tr)
	names := make(map[int64]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = nodeName(n)
	}
	out := make(map[string]placement, len(nodes))
	for _, n := range nodes {
		out[nodeName(n)] = placement{Left: n.Left, Right: n.Right, Level: n.Level, Parent: names[n.Parent]}
	}
	return out
}

func nodeName(n Node) string {
	s, _ := n.Attrs["name"].(string)
	return s
}

func nodeNames(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = nodeName(n)
	}
	return out
}

// sampleTree builds
//
//	root
//	├── a
//	│   ├── a1
//	│   └── a2
//	├── b
//	│   └── b1
//	│       └── b11
//	└── c
//
// and returns the ids by name.
func sampleTree(t *testing.T, tr *Tree) map[string]int64 {
	t.Helper()
	ids := make(map[string]int64)
	ids["root"] = mustInsert(t, tr, RootParent, "root", Bottom)
	ids["a"] = mustInsert(t, tr, ids["root"], "a", Bottom)
	ids["b"] = mustInsert(t, tr, ids["root"], "b", Bottom)
	ids["c"] = mustInsert(t, tr, ids["root"], "c", Bottom)
	ids["a1"] = mustInsert(t, tr, ids["a"], "a1", Bottom)
	ids["a2"] = mustInsert(t, tr, ids["a"], "a2", Bottom)
	ids["b1"] = mustInsert(t, tr, ids["b"], "b1", Bottom)
	ids["b11"] = mustInsert(t, tr, ids["b1"], "b11", Bottom)
	mustVerify(t, tr)
	return ids
}

var errInjected = errors.New("injected storage failure")

// faultyStore fails the failAt'th write statement of every transaction.
type faultyStore struct {
	store.Store
	failAt int
}

func (s *faultyStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, failAt: s.failAt}, nil
}

type faultyTx struct {
	store.Tx
	failAt int
	writes int
}

func (tx *faultyTx) step() error {
	tx.writes++
	if tx.writes == tx.failAt {
		return errInjected
	}
	return nil
}

func (tx *faultyTx) Insert(ctx context.Context, pkField string, row store.Row) (int64, error) {
	if err := tx.step(); err != nil {
		return 0, err
	}
	return tx.Tx.Insert(ctx, pkField, row)
}

func (tx *faultyTx) Delete(ctx context.Context, where []store.Cond) (int64, error) {
	if err := tx.step(); err != nil {
		return 0, err
	}
	return tx.Tx.Delete(ctx, where)
}

func (tx *faultyTx) Update(ctx context.Context, u store.RangedUpdate) (int64, error) {
	if err := tx.step(); err != nil {
		return 0, err
	}
	return tx.Tx.Update(ctx, u)
}

// parkingStore holds one armed Get after it has read its row, until release
// is closed, and can run a hook before the next Begin.
type parkingStore struct {
	store.Store
	parked  chan struct{}
	release chan struct{}

	lk      sync.Mutex
	armed   bool
	onBegin func()
}

func newParkingStore(s store.Store) *parkingStore {
	return &parkingStore{
		Store:   s,
		parked:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *parkingStore) armGet() {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.armed = true
}

func (s *parkingStore) beforeNextBegin(fn func()) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.onBegin = fn
}

func (s *parkingStore) Get(ctx context.Context, pkField string, id int64) (store.Row, error) {
	r, err := s.Store.Get(ctx, pkField, id)
	s.lk.Lock()
	park := s.armed
	s.armed = false
	s.lk.Unlock()
	if park {
		close(s.parked)
		<-s.release
	}
	return r, err
}

func (s *parkingStore) Begin(ctx context.Context) (store.Tx, error) {
	s.lk.Lock()
	fn := s.onBegin
	s.onBegin = nil
	s.lk.Unlock()
	if fn != nil {
		fn()
	}
	return s.Store.Begin(ctx)
}
