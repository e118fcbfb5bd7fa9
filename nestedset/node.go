package nestedset

import (
	"fmt"

	"github.com/bluesky-social/nestedset/store"
)

const (
	// RootParent is the parent value of root level nodes.
	RootParent int64 = 0

	// RootLevel is the level of root level nodes.
	RootLevel int64 = 1
)

// Position picks where a node lands among its new siblings.
type Position string

const (
	Top    Position = "top"
	Bottom Position = "bottom"
)

func (p Position) validate() error {
	switch p {
	case Top, Bottom:
		return nil
	}
	return fmt.Errorf("%w: %q (want top or bottom)", ErrInvalidPosition, string(p))
}

// NearPosition picks which side of an anchor sibling a node lands on.
type NearPosition string

const (
	Before NearPosition = "before"
	After  NearPosition = "after"
)

func (p NearPosition) validate() error {
	switch p {
	case Before, After:
		return nil
	}
	return fmt.Errorf("%w: %q (want before or after)", ErrInvalidPosition, string(p))
}

type Node struct {
	ID     int64          `json:"id"`
	Left   int64          `json:"left"`
	Right  int64          `json:"right"`
	Parent int64          `json:"parent"`
	Level  int64          `json:"level"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Size is the number of nodes in the subtree rooted at n, n included.
func (n *Node) Size() int64 {
	return (n.Right - n.Left + 1) / 2
}

// Contains reports whether o is a strict descendant of n.
func (n *Node) Contains(o *Node) bool {
	return n.Left < o.Left && n.Right > o.Right
}

// tuple is the structural part of a node, as held by the node cache.
type tuple struct {
	left   int64
	right  int64
	parent int64
	level  int64
}

func (t tuple) width() int64 {
	return t.right - t.left + 1
}

func (t tuple) encloses(key int64) bool {
	return key >= t.left && key <= t.right
}

func (c *Config) tupleFromRow(r store.Row) (tuple, error) {
	var out tuple
	var err error
	if out.left, err = r.Int(c.LeftField); err != nil {
		return out, err
	}
	if out.right, err = r.Int(c.RightField); err != nil {
		return out, err
	}
	if out.level, err = r.Int(c.LevelField); err != nil {
		return out, err
	}
	// a NULL parent is treated as root level
	if v, ok := r[c.ParentField]; ok && v != nil {
		if out.parent, err = store.ToInt64(v); err != nil {
			return out, fmt.Errorf("column %q: %w", c.ParentField, err)
		}
	}
	return out, nil
}

func (c *Config) nodeFromRow(r store.Row) (Node, error) {
	t, err := c.tupleFromRow(r)
	if err != nil {
		return Node{}, err
	}
	id, err := r.Int(c.PrimaryKeyField)
	if err != nil {
		return Node{}, err
	}
	n := Node{
		ID:     id,
		Left:   t.left,
		Right:  t.right,
		Parent: t.parent,
		Level:  t.level,
	}
	for k, v := range r {
		if c.isStructural(k) {
			continue
		}
		if n.Attrs == nil {
			n.Attrs = make(map[string]any)
		}
		n.Attrs[k] = v
	}
	return n, nil
}

func (c *Config) nodesFromRows(rows []store.Row) ([]Node, error) {
	out := make([]Node, 0, len(rows))
	for _, r := range rows {
		n, err := c.nodeFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
