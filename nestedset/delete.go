package nestedset

import (
	"context"

	"github.com/bluesky-social/nestedset/store"
	"go.opentelemetry.io/otel/attribute"
)

// Delete removes id and its whole subtree, then closes the gap it leaves in
// every later and enclosing interval.
func (t *Tree) Delete(ctx context.Context, id int64) error {
	ctx, span := t.startSpan(ctx, "Delete", attribute.Int64("id", id))
	defer span.End()

	return t.mutate(ctx, "delete", func(ops store.Ops) error {
		n, err := t.cache.load(ctx, ops, id)
		if err != nil {
			return err
		}
		width := n.width()

		removed, err := ops.Delete(ctx, []store.Cond{
			store.Ge(t.cfg.LeftField, n.left),
			store.Le(t.cfg.RightField, n.right),
		})
		if err != nil {
			return err
		}
		rowsDeleted.Add(float64(removed))

		shifted, err := ops.Update(ctx, store.RangedUpdate{
			Where: []store.Cond{store.Gt(t.cfg.RightField, n.right)},
			Sets: []store.Assignment{
				{Field: t.cfg.LeftField, Cases: []store.Case{{When: []store.Cond{store.Gt(t.cfg.LeftField, n.left)}, Add: -width}}},
				{Field: t.cfg.RightField, Cases: []store.Case{{Add: -width}}},
			},
		})
		if err != nil {
			return err
		}
		rowsShifted.WithLabelValues("delete").Add(float64(shifted))

		t.log.Debug("deleted subtree", "id", id, "left", n.left, "right", n.right, "removed", removed, "shifted", shifted)
		return nil
	})
}
