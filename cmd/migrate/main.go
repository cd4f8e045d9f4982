package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/migrate"
)

// fromDisk reads migrations from -dir instead of the embedded copy.
type options struct {
	cmd      string
	dir      string
	name     string
	version  string
	fromDisk bool
}

type dbCommand func(ctx context.Context, runner *migrate.Runner, opts options) error

// offline commands work on the migrations directory only
var offline = map[string]func(opts options) error{
	"create": func(opts options) error {
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(opts options) error {
		if err := migrate.ValidateFS(os.DirFS(opts.dir)); err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

var online = map[string]dbCommand{
	"up": func(ctx context.Context, runner *migrate.Runner, _ options) error {
		applied, err := runner.Up(ctx)
		fmt.Printf("applied %d migration(s)\n", applied)
		return err
	},
	"down": func(ctx context.Context, runner *migrate.Runner, _ options) error {
		return runner.Down(ctx)
	},
	"status": func(ctx context.Context, runner *migrate.Runner, _ options) error {
		rows, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied " + row.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%d  %-60s %s\n", row.Version, row.Path, state)
		}
		return nil
	},
	"version": func(ctx context.Context, runner *migrate.Runner, opts options) error {
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return runner.To(ctx, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: "+commandList())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory; online commands read it only when set explicitly")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "dir" {
			opts.fromDisk = true
		}
	})

	if run, ok := offline[opts.cmd]; ok {
		exitOn(run(opts))
		return
	}
	run, ok := online[opts.cmd]
	if !ok {
		exitOn(fmt.Errorf("unknown -cmd value %q, want one of %s", opts.cmd, commandList()))
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      opts.cmd,
		"dir":      opts.dir,
		"embedded": !opts.fromDisk,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	var source fs.FS
	if opts.fromDisk {
		source = os.DirFS(opts.dir)
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	requireResource(ctx, logg, "migration runner", err)

	logg.Info(ctx, "migrate.start")
	if err := run(ctx, runner, opts); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}

func commandList() string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
