package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/nestedset/nestedset"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/urfave/cli/v2"
)

var cmdSeed = &cli.Command{
	Name:  "seed",
	Usage: "fill the tree with random nodes, for testing and demos",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Value: 100, Usage: "number of nodes to insert"},
		&cli.Int64Flag{Name: "seed", Usage: "random seed (0 picks one from the clock)"},
		&cli.IntFlag{Name: "roots", Value: 1, Usage: "number of root nodes to start from"},
	},
	Action: runSeed,
}

func runSeed(cctx *cli.Context) error {
	seed := cctx.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	tree, b, err := openTree(cctx)
	if err != nil {
		return err
	}
	defer b.Close()

	start := time.Now()
	ids, err := seedTree(cctx.Context, tree, gofakeit.New(seed), cctx.Int("roots"), cctx.Int("count"))
	if err != nil {
		return err
	}
	slog.Info("seeded tree", "seed", seed, "nodes", len(ids), "took", time.Since(start))
	fmt.Fprintf(cctx.App.Writer, "inserted %d nodes (seed %d)\n", len(ids), seed)
	return nil
}

// seedTree inserts count nodes. The first roots of them are roots, the rest
// hang off a randomly chosen earlier node at its top or bottom.
func seedTree(ctx context.Context, tree *nestedset.Tree, f *gofakeit.Faker, roots, count int) ([]int64, error) {
	if roots < 1 {
		return nil, fmt.Errorf("need at least one root")
	}
	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		parent := nestedset.RootParent
		if i >= roots {
			parent = ids[f.IntRange(0, len(ids)-1)]
		}
		pos := nestedset.Bottom
		if f.Bool() {
			pos = nestedset.Top
		}

		n, err := tree.Insert(ctx, parent, map[string]any{"name": f.Noun()}, pos)
		if err != nil {
			return ids, fmt.Errorf("inserting node %d: %w", i, err)
		}
		ids = append(ids, n.ID)
	}
	return ids, nil
}
