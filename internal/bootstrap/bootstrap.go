// Package bootstrap holds the start-up sequence shared by the binaries under
// cmd/: environment loading, logger construction, shared clients and the
// signal-driven run loop.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/instance"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/migrate"
	"github.com/angelmondragon/carbridge-backend/pkg/redis"
)

// exit is swapped in tests.
var exit = os.Exit

type closer struct {
	name string
	fn   func() error
}

// Process is one running binary. Clients opened through it are closed in
// reverse order by Close, including on the Must failure path.
type Process struct {
	Kind   string
	Config *config.Config
	Log    *logger.Logger

	closers []closer
}

// Start loads .env and the environment config, then builds the logger the
// rest of the process uses. A config error is fatal.
func Start(kind string) *Process {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "config.load_failed", err)
		exit(1)
		return nil
	}
	cfg.Service.Kind = kind
	return &Process{
		Kind:   kind,
		Config: cfg,
		Log: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
}

// Must logs err under msg and exits after closing everything opened so far.
func (p *Process) Must(err error, msg string) {
	if err == nil {
		return
	}
	p.Log.Error(context.Background(), msg, err)
	p.Close()
	exit(1)
}

// OnClose registers fn to run when the process shuts down.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			p.Log.Error(p.Log.WithField(context.Background(), "resource", c.name), "shutdown.close_failed", err)
		}
	}
	p.closers = nil
}

// Database opens Postgres and applies embedded migrations in development.
func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Log)
	p.Must(err, "db.bootstrap_failed")
	p.OnClose("database", client.Close)
	p.Must(migrate.MaybeRunDev(ctx, p.Config, p.Log, client), "db.dev_migrations_failed")
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Log)
	p.Must(err, "redis.bootstrap_failed")
	p.OnClose("redis", client.Close)
	return client
}

// Run blocks in fn until SIGINT or SIGTERM cancels its context, then closes
// the process. Cancellation is a clean stop; any other error exits non-zero.
func (p *Process) Run(fields map[string]any, fn func(ctx context.Context) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := p.run(ctx, fields, fn); err != nil {
		p.Close()
		exit(1)
		return
	}
	p.Close()
}

func (p *Process) run(ctx context.Context, fields map[string]any, fn func(ctx context.Context) error) error {
	base := map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
		"instance":    instance.ID(),
	}
	for k, v := range fields {
		base[k] = v
	}
	ctx = p.Log.WithFields(ctx, base)

	p.Log.Info(ctx, p.Kind+".starting")
	err := fn(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Log.Error(ctx, p.Kind+".stopped_unexpectedly", err)
		return err
	}
	p.Log.Info(ctx, p.Kind+".stopped")
	return nil
}
