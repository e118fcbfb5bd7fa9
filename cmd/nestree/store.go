package main

import (
	"fmt"
	"log/slog"

	"github.com/bluesky-social/nestedset/nestedset"
	"github.com/bluesky-social/nestedset/store"
	"github.com/bluesky-social/nestedset/store/gormstore"
	"github.com/bluesky-social/nestedset/store/pebblestore"
	"github.com/bluesky-social/nestedset/util/cliutil"
	"github.com/cockroachdb/pebble"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// backing is whatever the tree was opened on; exactly one of db and pebble
// is set.
type backing struct {
	store  store.Store
	db     *gorm.DB
	pebble *pebblestore.Pebblestore
}

func (b *backing) Close() error {
	if b.pebble != nil {
		return b.pebble.Close()
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func openBacking(cctx *cli.Context) (*backing, error) {
	if path := cctx.String("pebble-path"); path != "" {
		s, err := pebblestore.Open(path, &pebble.Options{})
		if err != nil {
			return nil, err
		}
		slog.Debug("opened pebble store", "path", path)
		return &backing{store: s, pebble: s}, nil
	}

	db, err := cliutil.SetupDatabase(cctx.String("db-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return nil, err
	}
	if cctx.Bool("db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	return &backing{store: gormstore.NewGormstore(db, cctx.String("table")), db: db}, nil
}

func treeConfig(cctx *cli.Context) nestedset.Config {
	return nestedset.Config{
		LeftField:       cctx.String("left-field"),
		RightField:      cctx.String("right-field"),
		ParentField:     cctx.String("parent-field"),
		LevelField:      cctx.String("level-field"),
		PrimaryKeyField: cctx.String("pk-field"),
		CacheSize:       cctx.Int("cache-size"),
		Logger:          slog.Default(),
	}
}

func openTree(cctx *cli.Context) (*nestedset.Tree, *backing, error) {
	b, err := openBacking(cctx)
	if err != nil {
		return nil, nil, err
	}
	tree, err := nestedset.NewTree(b.store, treeConfig(cctx))
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("opening tree: %w", err)
	}
	return tree, b, nil
}
