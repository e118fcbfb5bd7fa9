package nestedset

import (
	"context"
	"testing"

	"github.com/bluesky-social/nestedset/store"
	"github.com/bluesky-social/nestedset/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTreeRejectsBadConfig(t *testing.T) {
	assert := assert.New(t)

	_, err := NewTree(nil, DefaultConfig())
	assert.ErrorIs(err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.RightField = cfg.LeftField
	_, err = NewTree(memstore.NewMemstore(), cfg)
	assert.ErrorIs(err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.LevelField = ""
	_, err = NewTree(memstore.NewMemstore(), cfg)
	assert.ErrorIs(err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.CacheSize = -1
	_, err = NewTree(memstore.NewMemstore(), cfg)
	assert.ErrorIs(err, ErrInvalidConfig)
}

func TestCustomFieldNames(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cfg := Config{
		LeftField:       "lft",
		RightField:      "rgt",
		ParentField:     "up",
		LevelField:      "depth",
		PrimaryKeyField: "key",
		CacheSize:       2,
	}
	s := memstore.NewMemstore()
	tr, err := NewTree(s, cfg)
	require.NoError(t, err)
	assert.Equal(cfg, tr.Config())

	a := mustInsert(t, tr, RootParent, "A", Top)
	b := mustInsert(t, tr, a, "B", Top)

	r, err := s.Get(ctx, "key", b)
	require.NoError(t, err)
	assert.Equal(store.Row{"key": b, "lft": int64(2), "rgt": int64(3), "up": a, "depth": int64(2), "name": "B"}, r)
	mustVerify(t, tr)
}

func TestInsertIntoEmptyTree(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr *Tree) {
		assert := assert.New(t)
		ctx := context.Background()

		nodes, err := tr.GetTree(ctx)
		require.NoError(t, err)
		assert.Empty(nodes)

		a, err := tr.Insert(ctx, RootParent, map[string]any{"name": "A"}, Top)
		require.NoError(t, err)
		assert.Equal(int64(1), a.Left)
		assert.Equal(int64(2), a.Right)
		assert.Equal(RootLevel, a.Level)
		assert.Equal(RootParent, a.Parent)
		assert.Equal("A", nodeName(*a))

		b, err := tr.Insert(ctx, a.ID, map[string]any{"name": "B"}, Top)
		require.NoError(t, err)
		assert.Equal(int64(2), b.Left)
		assert.Equal(int64(3), b.Right)
		assert.Equal(int64(2), b.Level)
		assert.Equal(a.ID, b.Parent)

		assert.Equal(map[string]placement{
			"A": {Left: 1, Right: 4, Level: 1},
			"B": {Left: 2, Right: 3, Level: 2, Parent: "A"},
		}, layout(t, tr))

		children, err := tr.GetChildren(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal([]string{"B"}, nodeNames(children))
		mustVerify(t, tr)
	})
}

func TestInsertPositions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr *Tree) {
		assert := assert.New(t)
		ctx := context.Background()

		root := mustInsert(t, tr, RootParent, "root", Top)
		mustInsert(t, tr, root, "middle", Top)
		mustInsert(t, tr, root, "first", Top)
		mustInsert(t, tr, root, "last", Bottom)

		children, err := tr.GetChildren(ctx, root)
		require.NoError(t, err)
		assert.Equal([]string{"first", "middle", "last"}, nodeNames(children))

		// new roots go before or after every existing tree
		mustInsert(t, tr, RootParent, "second-root", Bottom)
		mustInsert(t, tr, RootParent, "zeroth-root", Top)
		roots, err := tr.GetChildren(ctx, RootParent)
		require.NoError(t, err)
		assert.Equal([]string{"zeroth-root", "root", "second-root"}, nodeNames(roots))

		assert.Equal(map[string]placement{
			"zeroth-root": {Left: 1, Right: 2, Level: 1},
			"root":        {Left: 3, Right: 10, Level: 1},
			"first":       {Left: 4, Right: 5, Level: 2, Parent: "root"},
			"middle":      {Left: 6, Right: 7, Level: 2, Parent: "root"},
			"last":        {Left: 8, Right: 9, Level: 2, Parent: "root"},
			"second-root": {Left: 11, Right: 12, Level: 1},
		}, layout(t, tr))
		mustVerify(t, tr)
	})
}

func TestInsertErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tr := newTestTree(t, memstore.NewMemstore())
	root := mustInsert(t, tr, RootParent, "root", Top)
	before := snapshot(t, tr)

	_, err := tr.Insert(ctx, 999, map[string]any{"name": "orphan"}, Top)
	assert.ErrorIs(err, ErrNotFound)

	_, err = tr.Insert(ctx, root, nil, Position("middle"))
	assert.ErrorIs(err, ErrInvalidPosition)

	assert.Equal(before, snapshot(t, tr))
}

func TestInsertPayloadOverridesStructuralFields(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tr := newTestTree(t, memstore.NewMemstore())

	n, err := tr.Insert(ctx, RootParent, map[string]any{"name": "A", "level": 7}, Top)
	require.NoError(t, err)
	assert.Equal(int64(7), n.Level)
	assert.NotContains(n.Attrs, "level")

	got, err := tr.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(int64(7), got.Level)
	assert.ErrorIs(tr.Verify(ctx), ErrCorrupt)
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr *Tree) {
		assert := assert.New(t)
		ctx := context.Background()

		root := mustInsert(t, tr, RootParent, "root", Top)
		mustInsert(t, tr, root, "x", Bottom)
		y := mustInsert(t, tr, root, "y", Bottom)
		mustInsert(t, tr, root, "z", Bottom)
		assert.Equal(placement{Left: 4, Right: 5, Level: 2, Parent: "root"}, layout(t, tr)["y"])

		require.NoError(t, tr.Delete(ctx, y))
		assert.Equal(map[string]placement{
			"root": {Left: 1, Right: 6, Level: 1},
			"x":    {Left: 2, Right: 3, Level: 2, Parent: "root"},
			"z":    {Left: 4, Right: 5, Level: 2, Parent: "root"},
		}, layout(t, tr))
		mustVerify(t, tr)

		assert.ErrorIs(tr.Delete(ctx, y), ErrNotFound)
	})
}

func TestDeleteSubtree(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr *Tree) {
		assert := assert.New(t)
		ctx := context.Background()
		ids := sampleTree(t, tr)

		require.NoError(t, tr.Delete(ctx, ids["b"]))
		assert.Equal(map[string]placement{
			"root": {Left: 1, Right: 10, Level: 1},
			"a":    {Left: 2, Right: 7, Level: 2, Parent: "root"},
			"a1":   {Left: 3, Right: 4, Level: 3, Parent: "a"},
			"a2":   {Left: 5, Right: 6, Level: 3, Parent: "a"},
			"c":    {Left: 8, Right: 9, Level: 2, Parent: "root"},
		}, layout(t, tr))
		mustVerify(t, tr)

		for _, gone := range []string{"b", "b1", "b11"} {
			_, err := tr.GetNode(ctx, ids[gone])
			assert.ErrorIs(err, ErrNotFound, gone)
		}

		require.NoError(t, tr.Delete(ctx, ids["root"]))
		assert.Empty(snapshot(t, tr))
	})
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr *Tree) {
		ctx := context.Background()
		ids := sampleTree(t, tr)
		before := snapshot(t, tr)

		for _, parent := range []int64{RootParent, ids["root"], ids["a"], ids["b11"], ids["c"]} {
			for _, pos := range []Position{Top, Bottom} {
				n, err := tr.Insert(ctx, parent, map[string]any{"name": "tmp"}, pos)
				require.NoError(t, err)
				mustVerify(t, tr)
				require.NoError(t, tr.Delete(ctx, n.ID))
				assert.Equal(t, before, snapshot(t, tr), "parent %d %s", parent, pos)
			}
		}
	})
}

func TestReads(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr *Tree) {
		assert := assert.New(t)
		ctx := context.Background()
		ids := sampleTree(t, tr)

		all, err := tr.GetTree(ctx)
		require.NoError(t, err)
		assert.Equal([]string{"root", "a", "a1", "a2", "b", "b1", "b11", "c"}, nodeNames(all))

		n, err := tr.GetNode(ctx, ids["b1"])
		require.NoError(t, err)
		assert.Equal(int64(9), n.Left)
		assert.Equal(int64(12), n.Right)
		assert.Equal(ids["b"], n.Parent)
		assert.Equal(int64(2), n.Size())

		sub, err := tr.GetSubtree(ctx, ids["b"], false)
		require.NoError(t, err)
		assert.Equal([]string{"b1", "b11"}, nodeNames(sub))

		sub, err = tr.GetSubtree(ctx, ids["b"], true)
		require.NoError(t, err)
		assert.Equal([]string{"b", "b1", "b11"}, nodeNames(sub))

		sub, err = tr.GetSubtree(ctx, ids["c"], false)
		require.NoError(t, err)
		assert.Empty(sub)

		children, err := tr.GetChildren(ctx, ids["root"])
		require.NoError(t, err)
		assert.Equal([]string{"a", "b", "c"}, nodeNames(children))

		anc, err := tr.GetAncestors(ctx, ids["b11"], false)
		require.NoError(t, err)
		assert.Equal([]string{"root", "b", "b1"}, nodeNames(anc))

		anc, err = tr.GetAncestors(ctx, ids["b11"], true)
		require.NoError(t, err)
		assert.Equal([]string{"root", "b", "b1", "b11"}, nodeNames(anc))

		anc, err = tr.GetAncestors(ctx, ids["root"], false)
		require.NoError(t, err)
		assert.Empty(anc)

		_, err = tr.GetNode(ctx, 999)
		assert.ErrorIs(err, ErrNotFound)
		_, err = tr.GetSubtree(ctx, 999, true)
		assert.ErrorIs(err, ErrNotFound)
		_, err = tr.GetAncestors(ctx, 999, true)
		assert.ErrorIs(err, ErrNotFound)
	})
}

func TestCacheFollowsMutations(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tr := newTestTree(t, memstore.NewMemstore())

	a := mustInsert(t, tr, RootParent, "A", Top)
	sub, err := tr.GetSubtree(ctx, a, false)
	require.NoError(t, err)
	assert.Empty(sub)
	assert.Equal(1, tr.cache.len())

	mustInsert(t, tr, a, "B", Top)
	assert.Equal(0, tr.cache.len())

	sub, err = tr.GetSubtree(ctx, a, false)
	require.NoError(t, err)
	assert.Equal([]string{"B"}, nodeNames(sub))
}

func TestInvalidateAfterExternalWrite(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := memstore.NewMemstore()
	tr := newTestTree(t, s)

	a := mustInsert(t, tr, RootParent, "A", Top)
	_, err := tr.GetSubtree(ctx, a, true)
	require.NoError(t, err)

	// grow A and add a child behind the tree's back
	_, err = s.Update(ctx, store.RangedUpdate{
		Where: []store.Cond{store.Eq("id", a)},
		Sets:  []store.Assignment{{Field: "right_key", Cases: []store.Case{{Add: 2}}}},
	})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "id", store.Row{"left_key": int64(2), "right_key": int64(3), "parent_id": a, "level": int64(2), "name": "B"})
	require.NoError(t, err)

	// the cached interval [1,2] no longer matches A itself
	sub, err := tr.GetSubtree(ctx, a, true)
	require.NoError(t, err)
	assert.Empty(sub)

	tr.Invalidate()
	sub, err = tr.GetSubtree(ctx, a, true)
	require.NoError(t, err)
	assert.Equal([]string{"A", "B"}, nodeNames(sub))
	mustVerify(t, tr)
}

func TestSlowReaderDoesNotCacheAcrossMutation(t *testing.T) {
	ctx := context.Background()

	// start a subtree read of A that stops right after loading A's row
	startReader := func(tr *Tree, ps *parkingStore, a int64) chan struct{} {
		done := make(chan struct{})
		ps.armGet()
		go func() {
			defer close(done)
			tr.GetSubtree(ctx, a, false)
		}()
		<-ps.parked
		return done
	}

	t.Run("released after commit", func(t *testing.T) {
		ps := newParkingStore(memstore.NewMemstore())
		tr := newTestTree(t, ps)
		a := mustInsert(t, tr, RootParent, "A", Top)

		done := startReader(tr, ps, a)
		mustInsert(t, tr, a, "B", Top)
		close(ps.release)
		<-done

		sub, err := tr.GetSubtree(ctx, a, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, nodeNames(sub))
	})

	t.Run("released inside next mutation", func(t *testing.T) {
		ps := newParkingStore(memstore.NewMemstore())
		tr := newTestTree(t, ps)
		a := mustInsert(t, tr, RootParent, "A", Top)

		done := startReader(tr, ps, a)
		mustInsert(t, tr, a, "B", Top)
		ps.beforeNextBegin(func() {
			close(ps.release)
			<-done
		})
		mustInsert(t, tr, a, "C", Bottom)

		assert.Equal(t, map[string]placement{
			"A": {Left: 1, Right: 6, Level: 1},
			"B": {Left: 2, Right: 3, Level: 2, Parent: "A"},
			"C": {Left: 4, Right: 5, Level: 2, Parent: "A"},
		}, layout(t, tr))
		mustVerify(t, tr)
	})
}

func TestStorageFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		failAt int
		op     func(tr *Tree, ids map[string]int64) error
	}{
		{"insert-shift", 1, func(tr *Tree, ids map[string]int64) error {
			_, err := tr.Insert(ctx, ids["a"], map[string]any{"name": "n"}, Top)
			return err
		}},
		{"insert-row", 2, func(tr *Tree, ids map[string]int64) error {
			_, err := tr.Insert(ctx, ids["a"], map[string]any{"name": "n"}, Bottom)
			return err
		}},
		{"delete-rows", 1, func(tr *Tree, ids map[string]int64) error {
			return tr.Delete(ctx, ids["b"])
		}},
		{"delete-close-gap", 2, func(tr *Tree, ids map[string]int64) error {
			return tr.Delete(ctx, ids["b"])
		}},
		{"move-forward", 1, func(tr *Tree, ids map[string]int64) error {
			return tr.MoveUnder(ctx, ids["b1"], ids["c"], Top)
		}},
		{"move-backward", 1, func(tr *Tree, ids map[string]int64) error {
			return tr.MoveNear(ctx, ids["c"], ids["a1"], Before)
		}},
	} {
		for _, b := range backends {
			t.Run(tc.name+"/"+b.name, func(t *testing.T) {
				fs := &faultyStore{Store: b.open(t)}
				tr := newTestTree(t, fs)
				ids := sampleTree(t, tr)
				before := snapshot(t, tr)

				fs.failAt = tc.failAt
				err := tc.op(tr, ids)
				assert.ErrorIs(t, err, ErrTransaction)
				assert.ErrorIs(t, err, errInjected)
				assert.Equal(t, before, snapshot(t, tr))
				mustVerify(t, tr)
			})
		}
	}
}
