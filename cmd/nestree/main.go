package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	_ "go.uber.org/automaxprocs"

	"github.com/bluesky-social/nestedset/util/cliutil"
	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

var (
	version = versioninfo.Short()

	// stdout is where commands print their results.
	stdout io.Writer = os.Stdout
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "nestree",
		Usage:   "inspect and edit a nested set tree stored in SQL or pebble",
		Version: version,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "database connection string for the tree table",
				Value:   "sqlite://data/nestree/nestree.sqlite",
				EnvVars: []string{"NESTREE_DB_URL", "DATABASE_URL"},
			},
			&cli.IntFlag{
				Name:    "max-db-connections",
				Value:   8,
				EnvVars: []string{"NESTREE_MAX_DB_CONNECTIONS"},
			},
			&cli.StringFlag{
				Name:    "table",
				Usage:   "name of the tree table",
				Value:   "categories",
				EnvVars: []string{"NESTREE_TABLE"},
			},
			&cli.StringFlag{
				Name:    "pebble-path",
				Usage:   "keep the tree in a pebble db at this path instead of SQL",
				EnvVars: []string{"NESTREE_PEBBLE_PATH"},
			},
			&cli.StringFlag{
				Name:    "left-field",
				Value:   "left_key",
				EnvVars: []string{"NESTREE_LEFT_FIELD"},
			},
			&cli.StringFlag{
				Name:    "right-field",
				Value:   "right_key",
				EnvVars: []string{"NESTREE_RIGHT_FIELD"},
			},
			&cli.StringFlag{
				Name:    "parent-field",
				Value:   "parent_id",
				EnvVars: []string{"NESTREE_PARENT_FIELD"},
			},
			&cli.StringFlag{
				Name:    "level-field",
				Value:   "level",
				EnvVars: []string{"NESTREE_LEVEL_FIELD"},
			},
			&cli.StringFlag{
				Name:    "pk-field",
				Value:   "id",
				EnvVars: []string{"NESTREE_PK_FIELD"},
			},
			&cli.IntFlag{
				Name:    "cache-size",
				Usage:   "node cache entries (0 for the default)",
				EnvVars: []string{"NESTREE_CACHE_SIZE"},
			},
			&cli.BoolFlag{
				Name:    "db-tracing",
				Usage:   "emit OTEL spans for SQL statements",
				EnvVars: []string{"NESTREE_DB_TRACING"},
			},
			&cli.StringFlag{
				Name:    "otel-exporter-otlp-endpoint",
				EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "deployment environment reported with traces",
				Value:   "dev",
				EnvVars: []string{"ENVIRONMENT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				EnvVars: []string{"NESTREE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log output format (text or json)",
				EnvVars: []string{"NESTREE_LOG_FMT"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "append logs to this file instead of stdout",
				EnvVars: []string{"NESTREE_LOG_FILE"},
			},
		},
	}

	var logFile io.Closer
	app.Before = func(cctx *cli.Context) error {
		_, closer, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
			LogPath:   cctx.String("log-file"),
		})
		logFile = closer
		return err
	}
	app.After = func(cctx *cli.Context) error {
		if logFile == nil || cctx.String("log-file") == "" {
			return nil
		}
		// later errors still need somewhere to go
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return logFile.Close()
	}

	app.Commands = []*cli.Command{
		cmdInit,
		cmdTree,
		cmdSubtree,
		cmdChildren,
		cmdAncestors,
		cmdInsert,
		cmdDelete,
		cmdMoveUnder,
		cmdMoveNear,
		cmdCheck,
		cmdSeed,
		cmdServe,
		&cli.Command{
			Name:  "version",
			Usage: "print version",
			Action: func(cctx *cli.Context) error {
				fmt.Fprintln(cctx.App.Writer, version)
				return nil
			},
		},
	}

	return app.Run(args)
}
