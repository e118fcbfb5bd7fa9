package nestedset

import (
	"context"

	"github.com/bluesky-social/nestedset/store"
	"go.opentelemetry.io/otel/attribute"
)

// MoveUnder makes id the first (Top) or last (Bottom) child of parentID,
// carrying its subtree along. parentID == RootParent moves it to the start or
// the end of the forest.
func (t *Tree) MoveUnder(ctx context.Context, id, parentID int64, pos Position) error {
	ctx, span := t.startSpan(ctx, "MoveUnder",
		attribute.Int64("id", id), attribute.Int64("parent", parentID), attribute.String("position", string(pos)))
	defer span.End()

	if err := pos.validate(); err != nil {
		return err
	}

	return t.mutate(ctx, "move_under", func(ops store.Ops) error {
		n, err := t.cache.load(ctx, ops, id)
		if err != nil {
			return err
		}

		var nearKey, level int64
		if parentID == RootParent {
			level = RootLevel
			if pos == Top {
				nearKey = 0
			} else {
				maxRight, err := ops.Max(ctx, t.cfg.RightField)
				if err != nil {
					return err
				}
				nearKey = maxRight
			}
		} else {
			parent, err := t.cache.load(ctx, ops, parentID)
			if err != nil {
				return err
			}
			level = parent.level + 1
			if pos == Top {
				nearKey = parent.left
			} else {
				nearKey = parent.right - 1
			}
		}
		return t.move(ctx, ops, id, n, parentID, nearKey, level)
	})
}

// MoveNear places id, with its subtree, right before or right after the
// sibling nearID, adopting nearID's parent and level.
func (t *Tree) MoveNear(ctx context.Context, id, nearID int64, pos NearPosition) error {
	ctx, span := t.startSpan(ctx, "MoveNear",
		attribute.Int64("id", id), attribute.Int64("near", nearID), attribute.String("position", string(pos)))
	defer span.End()

	if err := pos.validate(); err != nil {
		return err
	}

	return t.mutate(ctx, "move_near", func(ops store.Ops) error {
		// resolve the moving node first so an unknown id wins over an
		// unknown anchor
		n, err := t.cache.load(ctx, ops, id)
		if err != nil {
			return err
		}
		near, err := t.cache.load(ctx, ops, nearID)
		if err != nil {
			return err
		}
		if id == nearID {
			return ErrInvalidMove
		}

		nearKey := near.right
		if pos == Before {
			nearKey = near.left - 1
		}
		return t.move(ctx, ops, id, n, near.parent, nearKey, near.level)
	})
}

// move relocates id's subtree, currently at n, so that it starts right after
// nearKey, at level destLevel, under newParent. It is a single ranged update:
// the subtree shifts by treeEdit while the rows between the old and the new
// position shift the other way by the subtree width. Only id's own parent
// pointer changes; descendants keep theirs.
func (t *Tree) move(ctx context.Context, ops store.Ops, id int64, n tuple, newParent, nearKey, destLevel int64) error {
	if n.encloses(nearKey) {
		return ErrInvalidMove
	}

	var (
		f          = &t.cfg
		keyWidth   = n.width()
		levelWidth = destLevel - n.level
		u          store.RangedUpdate
	)

	if n.right < nearKey {
		// forward: rows with right <= n.right are the subtree
		treeEdit := nearKey - n.left + 1 - keyWidth
		inTree := []store.Cond{store.Le(f.RightField, n.right)}
		u = store.RangedUpdate{
			Where: []store.Cond{store.Gt(f.RightField, n.left), store.Le(f.LeftField, nearKey)},
			Sets: []store.Assignment{
				{Field: f.LeftField, Cases: []store.Case{
					{When: inTree, Add: treeEdit},
					{When: []store.Cond{store.Gt(f.LeftField, n.right)}, Add: -keyWidth},
				}},
				{Field: f.LevelField, Cases: []store.Case{
					{When: inTree, Add: levelWidth},
				}},
				{Field: f.RightField, Cases: []store.Case{
					{When: inTree, Add: treeEdit},
					{When: []store.Cond{store.Le(f.RightField, nearKey)}, Add: -keyWidth},
				}},
				t.reparent(id, newParent),
			},
		}
	} else {
		// backward: rows with left >= n.left are the subtree
		treeEdit := nearKey - n.left + 1
		inTree := []store.Cond{store.Ge(f.LeftField, n.left)}
		u = store.RangedUpdate{
			Where: []store.Cond{store.Gt(f.RightField, nearKey), store.Lt(f.LeftField, n.right)},
			Sets: []store.Assignment{
				{Field: f.RightField, Cases: []store.Case{
					{When: inTree, Add: treeEdit},
					{When: []store.Cond{store.Lt(f.RightField, n.left)}, Add: keyWidth},
				}},
				{Field: f.LevelField, Cases: []store.Case{
					{When: inTree, Add: levelWidth},
				}},
				{Field: f.LeftField, Cases: []store.Case{
					{When: inTree, Add: treeEdit},
					{When: []store.Cond{store.Gt(f.LeftField, nearKey)}, Add: keyWidth},
				}},
				t.reparent(id, newParent),
			},
		}
	}

	shifted, err := ops.Update(ctx, u)
	if err != nil {
		return err
	}
	rowsShifted.WithLabelValues("move").Add(float64(shifted))

	t.log.Debug("moved subtree", "id", id, "parent", newParent, "near_key", nearKey, "level", destLevel, "shifted", shifted)
	return nil
}

func (t *Tree) reparent(id, newParent int64) store.Assignment {
	return store.Assignment{
		Field: t.cfg.ParentField,
		Cases: []store.Case{{
			When:  []store.Cond{store.Eq(t.cfg.PrimaryKeyField, id)},
			Set:   true,
			Value: newParent,
		}},
	}
}
