package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bluesky-social/nestedset/nestedset"
	"github.com/xlab/treeprint"
)

func nodeLabel(n nestedset.Node) string {
	name, ok := n.Attrs["name"]
	if !ok {
		return fmt.Sprintf("#%d [%d,%d]", n.ID, n.Left, n.Right)
	}
	return fmt.Sprintf("%v #%d [%d,%d]", name, n.ID, n.Left, n.Right)
}

// renderTree draws nodes, which must be in preorder, as an indented tree.
// Nodes whose enclosing node is not in the list hang off the root.
func renderTree(root string, nodes []nestedset.Node) string {
	type frame struct {
		right  int64
		branch treeprint.Tree
	}

	tp := treeprint.NewWithRoot(root)
	var stack []frame
	for _, n := range nodes {
		for len(stack) > 0 && stack[len(stack)-1].right < n.Left {
			stack = stack[:len(stack)-1]
		}
		parent := tp
		if len(stack) > 0 {
			parent = stack[len(stack)-1].branch
		}
		stack = append(stack, frame{right: n.Right, branch: parent.AddBranch(nodeLabel(n))})
	}
	return tp.String()
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}
