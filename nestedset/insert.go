package nestedset

import (
	"context"
	"sort"

	"github.com/bluesky-social/nestedset/store"
	"go.opentelemetry.io/otel/attribute"
)

// Insert adds a leaf under parentID, as its first child for Top or its last
// child for Bottom. parentID == RootParent inserts a new root at the start or
// the end of the forest. Payload columns are stored alongside the structural
// ones and win when they share a name, so payloads must not use the
// structural field names.
func (t *Tree) Insert(ctx context.Context, parentID int64, payload map[string]any, pos Position) (*Node, error) {
	ctx, span := t.startSpan(ctx, "Insert", attribute.Int64("parent", parentID), attribute.String("position", string(pos)))
	defer span.End()

	if err := pos.validate(); err != nil {
		return nil, err
	}

	var out Node
	err := t.mutate(ctx, "insert", func(ops store.Ops) error {
		var key, level int64
		if parentID == RootParent {
			level = RootLevel
			if pos == Top {
				key = 1
			} else {
				maxRight, err := ops.Max(ctx, t.cfg.RightField)
				if err != nil {
					return err
				}
				key = maxRight + 1
			}
		} else {
			parent, err := t.cache.load(ctx, ops, parentID)
			if err != nil {
				return err
			}
			level = parent.level + 1
			if pos == Top {
				key = parent.left + 1
			} else {
				key = parent.right
			}
		}

		n, err := ops.Update(ctx, t.openGap(key))
		if err != nil {
			return err
		}
		rowsShifted.WithLabelValues("insert").Add(float64(n))

		row := store.Row{
			t.cfg.LeftField:   key,
			t.cfg.RightField:  key + 1,
			t.cfg.ParentField: parentID,
			t.cfg.LevelField:  level,
		}
		var overridden []string
		for k, v := range payload {
			if _, ok := row[k]; ok {
				overridden = append(overridden, k)
			}
			row[k] = v
		}
		if len(overridden) > 0 {
			sort.Strings(overridden)
			t.log.Warn("insert payload overrides structural fields", "fields", overridden, "parent", parentID)
		}

		id, err := ops.Insert(ctx, t.cfg.PrimaryKeyField, row)
		if err != nil {
			return err
		}
		row[t.cfg.PrimaryKeyField] = id

		out, err = t.cfg.nodeFromRow(row)
		if err != nil {
			return err
		}
		t.log.Debug("inserted node", "id", id, "parent", parentID, "key", key, "level", level, "shifted", n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("id", out.ID))
	return &out, nil
}

// openGap makes room for a two-wide interval at key: every bound at or after
// key moves up by two.
func (t *Tree) openGap(key int64) store.RangedUpdate {
	return store.RangedUpdate{
		Where: []store.Cond{store.Ge(t.cfg.RightField, key)},
		Sets: []store.Assignment{
			{Field: t.cfg.RightField, Cases: []store.Case{{Add: 2}}},
			{Field: t.cfg.LeftField, Cases: []store.Case{{When: []store.Cond{store.Ge(t.cfg.LeftField, key)}, Add: 2}}},
		},
	}
}
