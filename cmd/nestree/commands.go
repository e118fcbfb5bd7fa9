package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluesky-social/nestedset/nestedset"
	"github.com/urfave/cli/v2"
)

var cmdInit = &cli.Command{
	Name:   "init",
	Usage:  "create the tree table with the default column layout",
	Action: runInit,
}

var cmdTree = &cli.Command{
	Name:  "tree",
	Usage: "print the whole forest",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print nodes as JSON"},
	},
	Action: runTree,
}

var cmdSubtree = &cli.Command{
	Name:      "subtree",
	Usage:     "print the descendants of a node",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "self", Usage: "include the node itself"},
		&cli.BoolFlag{Name: "json", Usage: "print nodes as JSON"},
	},
	Action: runSubtree,
}

var cmdChildren = &cli.Command{
	Name:      "children",
	Usage:     "list the direct children of a node (0 lists the roots)",
	ArgsUsage: "<id>",
	Action:    runChildren,
}

var cmdAncestors = &cli.Command{
	Name:      "ancestors",
	Usage:     "list the path from the root down to a node",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "self", Usage: "include the node itself"},
	},
	Action: runAncestors,
}

var cmdInsert = &cli.Command{
	Name:  "insert",
	Usage: "insert a leaf node",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "parent", Usage: "parent node id (0 for a new root)"},
		&cli.StringFlag{Name: "position", Value: string(nestedset.Bottom), Usage: "top or bottom"},
		&cli.StringFlag{Name: "name", Usage: "value of the name column"},
		&cli.StringSliceFlag{Name: "attr", Usage: "extra payload column as key=value"},
	},
	Action: runInsert,
}

var cmdDelete = &cli.Command{
	Name:      "delete",
	Usage:     "delete a node and its whole subtree",
	ArgsUsage: "<id>",
	Action:    runDelete,
}

var cmdMoveUnder = &cli.Command{
	Name:      "move-under",
	Usage:     "make a node the first or last child of another (0 for the root level)",
	ArgsUsage: "<id> <parent>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "position", Value: string(nestedset.Bottom), Usage: "top or bottom"},
	},
	Action: runMoveUnder,
}

var cmdMoveNear = &cli.Command{
	Name:      "move-near",
	Usage:     "place a node right before or after a sibling",
	ArgsUsage: "<id> <near>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "position", Value: string(nestedset.After), Usage: "before or after"},
	},
	Action: runMoveNear,
}

var cmdCheck = &cli.Command{
	Name:   "check",
	Usage:  "verify the nested set invariants of the whole table",
	Action: runCheck,
}

func argID(cctx *cli.Context, idx int, name string) (int64, error) {
	s := cctx.Args().Get(idx)
	if s == "" {
		return 0, fmt.Errorf("need to provide %s as argument %d", name, idx+1)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return id, nil
}

// parseAttr turns key=value into a payload column. Integer values are
// stored as integers.
func parseAttr(s string) (string, any, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", nil, fmt.Errorf("attribute %q is not key=value", s)
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return k, n, nil
	}
	return k, v, nil
}

func runInit(cctx *cli.Context) error {
	b, err := openBacking(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.db == nil {
		fmt.Fprintln(cctx.App.Writer, "pebble stores need no schema")
		return nil
	}
	cfg, def := treeConfig(cctx), nestedset.DefaultConfig()
	if cfg.LeftField != def.LeftField || cfg.RightField != def.RightField || cfg.ParentField != def.ParentField ||
		cfg.LevelField != def.LevelField || cfg.PrimaryKeyField != def.PrimaryKeyField {
		return fmt.Errorf("init only creates the default column layout")
	}
	return b.db.Table(cctx.String("table")).AutoMigrate(&Category{})
}

func runTree(cctx *cli.Context) error {
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	nodes, err := tree.GetTree(cctx.Context)
	if err != nil {
		return err
	}
	if cctx.Bool("json") {
		return printJSON(cctx.App.Writer, nodes)
	}
	fmt.Fprint(cctx.App.Writer, renderTree(".", nodes))
	return nil
}

func runSubtree(cctx *cli.Context) error {
	id, err := argID(cctx, 0, "node id")
	if err != nil {
		return err
	}
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	nodes, err := tree.GetSubtree(cctx.Context, id, cctx.Bool("self"))
	if err != nil {
		return err
	}
	if cctx.Bool("json") {
		return printJSON(cctx.App.Writer, nodes)
	}
	fmt.Fprint(cctx.App.Writer, renderTree(fmt.Sprintf("#%d", id), nodes))
	return nil
}

func runChildren(cctx *cli.Context) error {
	id, err := argID(cctx, 0, "node id")
	if err != nil {
		return err
	}
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	nodes, err := tree.GetChildren(cctx.Context, id)
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, nodes)
}

func runAncestors(cctx *cli.Context) error {
	id, err := argID(cctx, 0, "node id")
	if err != nil {
		return err
	}
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	nodes, err := tree.GetAncestors(cctx.Context, id, cctx.Bool("self"))
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, nodes)
}

func runInsert(cctx *cli.Context) error {
	payload := map[string]any{}
	if name := cctx.String("name"); name != "" {
		payload["name"] = name
	}
	for _, a := range cctx.StringSlice("attr") {
		k, v, err := parseAttr(a)
		if err != nil {
			return err
		}
		payload[k] = v
	}

	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := tree.Insert(cctx.Context, cctx.Int64("parent"), payload, nestedset.Position(cctx.String("position")))
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, n)
}

func runDelete(cctx *cli.Context) error {
	id, err := argID(cctx, 0, "node id")
	if err != nil {
		return err
	}
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	return tree.Delete(cctx.Context, id)
}

func runMoveUnder(cctx *cli.Context) error {
	id, err := argID(cctx, 0, "node id")
	if err != nil {
		return err
	}
	parent, err := argID(cctx, 1, "parent id")
	if err != nil {
		return err
	}
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	return tree.MoveUnder(cctx.Context, id, parent, nestedset.Position(cctx.String("position")))
}

func runMoveNear(cctx *cli.Context) error {
	id, err := argID(cctx, 0, "node id")
	if err != nil {
		return err
	}
	near, err := argID(cctx, 1, "sibling id")
	if err != nil {
		return err
	}
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	return tree.MoveNear(cctx.Context, id, near, nestedset.NearPosition(cctx.String("position")))
}

func runCheck(cctx *cli.Context) error {
	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := tree.Verify(cctx.Context); err != nil {
		return err
	}
	cfg := tree.Config()
	fmt.Fprintf(cctx.App.Writer, "ok (%s: %s/%s parent=%s level=%s)\n",
		cctx.String("table"), cfg.LeftField, cfg.RightField, cfg.ParentField, cfg.LevelField)
	return nil
}
