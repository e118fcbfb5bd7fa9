// Package storetest holds the conformance suite every store backend runs.
package storetest

import (
	"context"
	"testing"

	"github.com/bluesky-social/nestedset/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Column layout the suite expects the backend table to have. All columns but
// Name are integers; Name is text.
const (
	ID     = "id"
	Left   = "lft"
	Right  = "rgt"
	Parent = "parent"
	Level  = "lvl"
	Name   = "name"
)

// RunStoreTests exercises a backend. open must return an empty store with the
// column layout above, fresh for every call.
func RunStoreTests(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("InsertGet", func(t *testing.T) { testInsertGet(t, open(t)) })
	t.Run("Scan", func(t *testing.T) { testScan(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("RangedUpdate", func(t *testing.T) { testRangedUpdate(t, open(t)) })
	t.Run("RangedUpdateSet", func(t *testing.T) { testRangedUpdateSet(t, open(t)) })
	t.Run("Max", func(t *testing.T) { testMax(t, open(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, open(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, open(t)) })
}

func row(left, right, parent, level int64, name string) store.Row {
	return store.Row{
		Left:   left,
		Right:  right,
		Parent: parent,
		Level:  level,
		Name:   name,
	}
}

// seed loads a small tree: root(1,8) > a(2,3), b(4,7) > c(5,6)
func seed(t *testing.T, ops store.Ops) map[string]int64 {
	t.Helper()
	ctx := context.Background()

	ids := make(map[string]int64)
	var err error
	ids["root"], err = ops.Insert(ctx, ID, row(1, 8, 0, 1, "root"))
	require.NoError(t, err)
	ids["a"], err = ops.Insert(ctx, ID, row(2, 3, ids["root"], 2, "a"))
	require.NoError(t, err)
	ids["b"], err = ops.Insert(ctx, ID, row(4, 7, ids["root"], 2, "b"))
	require.NoError(t, err)
	ids["c"], err = ops.Insert(ctx, ID, row(5, 6, ids["b"], 3, "c"))
	require.NoError(t, err)
	return ids
}

func mustInt(t *testing.T, r store.Row, field string) int64 {
	t.Helper()
	v, err := r.Int(field)
	require.NoError(t, err)
	return v
}

func names(rows []store.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i], _ = r[Name].(string)
	}
	return out
}

func testInsertGet(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()

	ids := seed(t, s)
	assert.Len(ids, 4)
	assert.NotEqual(ids["a"], ids["b"])

	r, err := s.Get(ctx, ID, ids["b"])
	require.NoError(t, err)
	assert.Equal("b", r[Name])
	assert.Equal(int64(4), mustInt(t, r, Left))
	assert.Equal(int64(7), mustInt(t, r, Right))
	assert.Equal(ids["root"], mustInt(t, r, Parent))
	assert.Equal(ids["b"], mustInt(t, r, ID))

	_, err = s.Get(ctx, ID, 9999)
	assert.ErrorIs(err, store.ErrNotFound)

	// explicit primary key
	explicit := row(9, 10, 0, 1, "explicit")
	explicit[ID] = int64(500)
	id, err := s.Insert(ctx, ID, explicit)
	require.NoError(t, err)
	assert.Equal(int64(500), id)
}

func testScan(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()
	ids := seed(t, s)

	all, err := s.Scan(ctx, store.Query{OrderBy: Left})
	require.NoError(t, err)
	assert.Equal([]string{"root", "a", "b", "c"}, names(all))

	inner, err := s.Scan(ctx, store.Query{
		Where:   []store.Cond{store.Gt(Left, 1), store.Lt(Right, 8)},
		OrderBy: Left,
	})
	require.NoError(t, err)
	assert.Equal([]string{"a", "b", "c"}, names(inner))

	children, err := s.Scan(ctx, store.Query{
		Where:   []store.Cond{store.Eq(Parent, ids["root"])},
		OrderBy: Left,
	})
	require.NoError(t, err)
	assert.Equal([]string{"a", "b"}, names(children))

	projected, err := s.Scan(ctx, store.Query{
		Where:   []store.Cond{store.Eq(ID, ids["c"])},
		Fields:  []string{Left, Right},
		OrderBy: Left,
	})
	require.NoError(t, err)
	require.Len(t, projected, 1)
	assert.Len(projected[0], 2)
	assert.Equal(int64(5), mustInt(t, projected[0], Left))

	none, err := s.Scan(ctx, store.Query{Where: []store.Cond{store.Gt(Left, 100)}, OrderBy: Left})
	require.NoError(t, err)
	assert.Empty(none)
}

func testDelete(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()
	seed(t, s)

	n, err := s.Delete(ctx, []store.Cond{store.Ge(Left, 4), store.Le(Right, 7)})
	require.NoError(t, err)
	assert.Equal(int64(2), n)

	rest, err := s.Scan(ctx, store.Query{OrderBy: Left})
	require.NoError(t, err)
	assert.Equal([]string{"root", "a"}, names(rest))
}

func testRangedUpdate(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()
	ids := seed(t, s)

	// open a gap of 2 at key 4, the same statement an insert issues
	n, err := s.Update(ctx, store.RangedUpdate{
		Where: []store.Cond{store.Ge(Right, 4)},
		Sets: []store.Assignment{
			{Field: Right, Cases: []store.Case{{Add: 2}}},
			{Field: Left, Cases: []store.Case{{When: []store.Cond{store.Ge(Left, 4)}, Add: 2}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(int64(3), n)

	expect := map[string][2]int64{
		"root": {1, 10},
		"a":    {2, 3},
		"b":    {6, 9},
		"c":    {7, 8},
	}
	for name, want := range expect {
		r, err := s.Get(ctx, ID, ids[name])
		require.NoError(t, err)
		assert.Equal(want[0], mustInt(t, r, Left), name)
		assert.Equal(want[1], mustInt(t, r, Right), name)
	}

	// conditions must see the values from before the statement: the right
	// case tests the old left, which this same statement moves
	_, err = s.Update(ctx, store.RangedUpdate{
		Where: []store.Cond{store.Ge(Left, 6)},
		Sets: []store.Assignment{
			{Field: Left, Cases: []store.Case{{Add: 100}}},
			{Field: Right, Cases: []store.Case{
				{When: []store.Cond{store.Lt(Left, 7)}, Add: 1000},
				{When: []store.Cond{store.Lt(Left, 50)}, Add: 10},
			}},
		},
	})
	require.NoError(t, err)

	b, err := s.Get(ctx, ID, ids["b"])
	require.NoError(t, err)
	assert.Equal(int64(106), mustInt(t, b, Left))
	assert.Equal(int64(1009), mustInt(t, b, Right))

	c, err := s.Get(ctx, ID, ids["c"])
	require.NoError(t, err)
	assert.Equal(int64(107), mustInt(t, c, Left))
	assert.Equal(int64(18), mustInt(t, c, Right))

	_, err = s.Update(ctx, store.RangedUpdate{Sets: []store.Assignment{{Field: Left, Cases: []store.Case{{Add: 1}}}}})
	assert.Error(err, "update without where must be refused")
}

func testRangedUpdateSet(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()
	ids := seed(t, s)

	_, err := s.Update(ctx, store.RangedUpdate{
		Where: []store.Cond{store.Gt(Right, 0)},
		Sets: []store.Assignment{
			{Field: Parent, Cases: []store.Case{{When: []store.Cond{store.Eq(ID, ids["c"])}, Set: true, Value: ids["a"]}}},
			{Field: Level, Cases: []store.Case{{When: []store.Cond{store.Ge(Left, 5)}, Add: -1}}},
		},
	})
	require.NoError(t, err)

	c, err := s.Get(ctx, ID, ids["c"])
	require.NoError(t, err)
	assert.Equal(ids["a"], mustInt(t, c, Parent))
	assert.Equal(int64(2), mustInt(t, c, Level))

	b, err := s.Get(ctx, ID, ids["b"])
	require.NoError(t, err)
	assert.Equal(ids["root"], mustInt(t, b, Parent))
	assert.Equal(int64(2), mustInt(t, b, Level))
	assert.Equal("b", b[Name])
}

func testMax(t *testing.T, s store.Store) {
	ctx := context.Background()

	m, err := s.Max(ctx, Right)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m)

	seed(t, s)
	m, err = s.Max(ctx, Right)
	require.NoError(t, err)
	assert.Equal(t, int64(8), m)
}

func testTxCommit(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	ids := seed(t, tx)

	// reads inside the transaction see its own writes
	r, err := tx.Get(ctx, ID, ids["c"])
	require.NoError(t, err)
	assert.Equal("c", r[Name])
	m, err := tx.Max(ctx, Right)
	require.NoError(t, err)
	assert.Equal(int64(8), m)

	require.NoError(t, tx.Commit())

	all, err := s.Scan(ctx, store.Query{OrderBy: Left})
	require.NoError(t, err)
	assert.Len(all, 4)
}

func testTxRollback(t *testing.T, s store.Store) {
	assert := assert.New(t)
	ctx := context.Background()
	ids := seed(t, s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Delete(ctx, []store.Cond{store.Ge(Left, 4), store.Le(Right, 7)})
	require.NoError(t, err)
	_, err = tx.Update(ctx, store.RangedUpdate{
		Where: []store.Cond{store.Gt(Right, 7)},
		Sets:  []store.Assignment{{Field: Right, Cases: []store.Case{{Add: -4}}}},
	})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, ID, row(20, 21, 0, 1, "late"))
	require.NoError(t, err)

	gone, err := tx.Scan(ctx, store.Query{OrderBy: Left})
	require.NoError(t, err)
	assert.Equal([]string{"root", "a", "late"}, names(gone))

	require.NoError(t, tx.Rollback())

	all, err := s.Scan(ctx, store.Query{OrderBy: Left})
	require.NoError(t, err)
	assert.Equal([]string{"root", "a", "b", "c"}, names(all))

	root, err := s.Get(ctx, ID, ids["root"])
	require.NoError(t, err)
	assert.Equal(int64(8), mustInt(t, root, Right))
}
