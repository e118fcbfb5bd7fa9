package nestedset

import (
	"context"

	"github.com/bluesky-social/nestedset/store"
	"go.opentelemetry.io/otel/attribute"
)

// GetTree returns every node ordered by left bound: a depth-first preorder
// walk of the whole forest.
func (t *Tree) GetTree(ctx context.Context) ([]Node, error) {
	ctx, span := t.startSpan(ctx, "GetTree")
	defer span.End()

	rows, err := t.store.Scan(ctx, store.Query{OrderBy: t.cfg.LeftField})
	if err != nil {
		return nil, err
	}
	return t.cfg.nodesFromRows(rows)
}

// GetNode returns a single node with its payload.
func (t *Tree) GetNode(ctx context.Context, id int64) (*Node, error) {
	ctx, span := t.startSpan(ctx, "GetNode", attribute.Int64("id", id))
	defer span.End()

	rows, err := t.store.Scan(ctx, store.Query{
		Where:   []store.Cond{store.Eq(t.cfg.PrimaryKeyField, id)},
		OrderBy: t.cfg.LeftField,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(id)
	}
	n, err := t.cfg.nodeFromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetSubtree returns the descendants of id in preorder, and id itself first
// when includeSelf is set. Ancestors are never part of the result; see
// GetAncestors for the path from the root.
func (t *Tree) GetSubtree(ctx context.Context, id int64, includeSelf bool) ([]Node, error) {
	ctx, span := t.startSpan(ctx, "GetSubtree", attribute.Int64("id", id), attribute.Bool("self", includeSelf))
	defer span.End()

	n, err := t.cache.get(ctx, t.store, id)
	if err != nil {
		return nil, err
	}

	where := []store.Cond{store.Gt(t.cfg.LeftField, n.left), store.Lt(t.cfg.RightField, n.right)}
	if includeSelf {
		where = []store.Cond{store.Ge(t.cfg.LeftField, n.left), store.Le(t.cfg.RightField, n.right)}
	}
	rows, err := t.store.Scan(ctx, store.Query{Where: where, OrderBy: t.cfg.LeftField})
	if err != nil {
		return nil, err
	}
	return t.cfg.nodesFromRows(rows)
}

// GetChildren returns the direct children of id ordered by left bound.
// GetChildren(ctx, RootParent) lists the roots of the forest.
func (t *Tree) GetChildren(ctx context.Context, id int64) ([]Node, error) {
	ctx, span := t.startSpan(ctx, "GetChildren", attribute.Int64("id", id))
	defer span.End()

	rows, err := t.store.Scan(ctx, store.Query{
		Where:   []store.Cond{store.Eq(t.cfg.ParentField, id)},
		OrderBy: t.cfg.LeftField,
	})
	if err != nil {
		return nil, err
	}
	return t.cfg.nodesFromRows(rows)
}

// GetAncestors returns the path from the root down to id's parent, or down to
// id itself when includeSelf is set.
func (t *Tree) GetAncestors(ctx context.Context, id int64, includeSelf bool) ([]Node, error) {
	ctx, span := t.startSpan(ctx, "GetAncestors", attribute.Int64("id", id), attribute.Bool("self", includeSelf))
	defer span.End()

	n, err := t.cache.get(ctx, t.store, id)
	if err != nil {
		return nil, err
	}

	where := []store.Cond{store.Lt(t.cfg.LeftField, n.left), store.Gt(t.cfg.RightField, n.right)}
	if includeSelf {
		where = []store.Cond{store.Le(t.cfg.LeftField, n.left), store.Ge(t.cfg.RightField, n.right)}
	}
	rows, err := t.store.Scan(ctx, store.Query{Where: where, OrderBy: t.cfg.LeftField})
	if err != nil {
		return nil, err
	}
	return t.cfg.nodesFromRows(rows)
}
