package nestedset

import (
	"context"
	"testing"

	"github.com/bluesky-social/nestedset/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutationCounters(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tree, err := NewTree(memstore.NewMemstore(), DefaultConfig())
	require.NoError(t, err)

	okBefore := counterValue(mutationsTotal.WithLabelValues("insert", "ok"))
	errBefore := counterValue(mutationsTotal.WithLabelValues("insert", "error"))
	deletedBefore := counterValue(rowsDeleted)

	root, err := tree.Insert(ctx, RootParent, map[string]any{"name": "root"}, Bottom)
	require.NoError(t, err)
	_, err = tree.Insert(ctx, root.ID, map[string]any{"name": "child"}, Bottom)
	require.NoError(t, err)
	_, err = tree.Insert(ctx, 404, nil, Bottom)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(okBefore+2, counterValue(mutationsTotal.WithLabelValues("insert", "ok")))
	assert.Equal(errBefore+1, counterValue(mutationsTotal.WithLabelValues("insert", "error")))

	moveErrBefore := counterValue(mutationsTotal.WithLabelValues("move_near", "error"))
	require.ErrorIs(t, tree.MoveNear(ctx, root.ID, root.ID, After), ErrInvalidMove)
	assert.Equal(moveErrBefore+1, counterValue(mutationsTotal.WithLabelValues("move_near", "error")))

	require.NoError(t, tree.Delete(ctx, root.ID))
	assert.Equal(deletedBefore+2, counterValue(rowsDeleted))
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	tree, err := NewTree(memstore.NewMemstore(), DefaultConfig())
	require.NoError(t, err)
	root, err := tree.Insert(ctx, RootParent, nil, Bottom)
	require.NoError(t, err)

	hits, misses := CacheStats()
	_, err = tree.GetSubtree(ctx, root.ID, true)
	require.NoError(t, err)
	_, err = tree.GetSubtree(ctx, root.ID, true)
	require.NoError(t, err)

	h, m := CacheStats()
	assert.Equal(t, hits+1, h)
	assert.Equal(t, misses+1, m)
}
