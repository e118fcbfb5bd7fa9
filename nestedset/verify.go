package nestedset

import (
	"context"
	"fmt"

	"github.com/bluesky-social/nestedset/store"
)

// Verify scans the whole table and checks the nested set invariants: every
// interval is well formed and odd-width, intervals nest without partial
// overlap, parent pointers and levels agree with the nesting, and the bounds
// are exactly 1..2n with no gaps or duplicates. It returns an error wrapping
// ErrCorrupt describing the first violation found.
func (t *Tree) Verify(ctx context.Context) error {
	ctx, span := t.startSpan(ctx, "Verify")
	defer span.End()

	rows, err := t.store.Scan(ctx, store.Query{OrderBy: t.cfg.LeftField})
	if err != nil {
		return err
	}
	nodes, err := t.cfg.nodesFromRows(rows)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return verifyNodes(nodes)
}

// verifyNodes expects nodes ordered by left bound.
func verifyNodes(nodes []Node) error {
	bounds := make([]bool, 2*len(nodes)+1)
	mark := func(n *Node, b int64) error {
		if b < 1 || b >= int64(len(bounds)) {
			return fmt.Errorf("%w: node %d bound %d outside 1..%d", ErrCorrupt, n.ID, b, len(bounds)-1)
		}
		if bounds[b] {
			return fmt.Errorf("%w: node %d bound %d used twice", ErrCorrupt, n.ID, b)
		}
		bounds[b] = true
		return nil
	}

	var stack []*Node
	for i := range nodes {
		n := &nodes[i]
		if n.Left >= n.Right {
			return fmt.Errorf("%w: node %d has left %d >= right %d", ErrCorrupt, n.ID, n.Left, n.Right)
		}
		if (n.Right-n.Left)%2 == 0 {
			return fmt.Errorf("%w: node %d has even width interval [%d,%d]", ErrCorrupt, n.ID, n.Left, n.Right)
		}
		if err := mark(n, n.Left); err != nil {
			return err
		}
		if err := mark(n, n.Right); err != nil {
			return err
		}

		for len(stack) > 0 && stack[len(stack)-1].Right < n.Left {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			if n.Parent != RootParent {
				return fmt.Errorf("%w: node %d is not nested in any node but has parent %d", ErrCorrupt, n.ID, n.Parent)
			}
			if n.Level != RootLevel {
				return fmt.Errorf("%w: root node %d has level %d", ErrCorrupt, n.ID, n.Level)
			}
		} else {
			p := stack[len(stack)-1]
			if !p.Contains(n) {
				return fmt.Errorf("%w: node %d [%d,%d] overlaps node %d [%d,%d]", ErrCorrupt, n.ID, n.Left, n.Right, p.ID, p.Left, p.Right)
			}
			if n.Parent != p.ID {
				return fmt.Errorf("%w: node %d is nested in %d but has parent %d", ErrCorrupt, n.ID, p.ID, n.Parent)
			}
			if n.Level != p.Level+1 {
				return fmt.Errorf("%w: node %d has level %d under node %d at level %d", ErrCorrupt, n.ID, n.Level, p.ID, p.Level)
			}
		}
		stack = append(stack, n)
	}
	return nil
}
