package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

// DriverSQLite selects the embedded sqlite dialector used in development.
const DriverSQLite = "sqlite"

// maxTxAttempts bounds retries of transactions aborted with SQLSTATE 40001.
const maxTxAttempts = 3

var (
	errDSNRequired        = errors.New("database DSN is required")
	errSQLitePathRequired = errors.New("sqlite path is required")
)

// Client owns the pooled GORM connection shared by every repository.
type Client struct {
	conn *gorm.DB
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens Postgres through pgx, or sqlite when cfg.Driver is "sqlite".
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dialector, cfg, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	if err := configurePool(conn, cfg); err != nil {
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         dialector.Name(),
			"max_open_conns": cfg.MaxOpenConns,
		}), "db.client.ready")
	}
	return &Client{conn: conn}, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, config.DBConfig, error) {
	if strings.EqualFold(cfg.Driver, DriverSQLite) {
		if cfg.SQLitePath == "" {
			return nil, cfg, errSQLitePathRequired
		}
		// one writer at a time avoids SQLITE_BUSY
		cfg.MaxOpenConns = 1
		return sqlite.Open(cfg.SQLitePath), cfg, nil
	}
	if cfg.DSN == "" {
		return nil, cfg, errDSNRequired
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), cfg, nil
}

func configurePool(conn *gorm.DB, cfg config.DBConfig) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(min(cfg.MaxIdleConns, max(cfg.MaxOpenConns, 1)))
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return nil
}

// Wrap adopts an already opened connection, as dbtest does.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction, rolling back on error or panic.
// Serialization failures rerun fn in a fresh transaction, so fn must only
// touch the database through tx and must not keep side effects from a
// failed attempt.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for range maxTxAttempts {
		err = c.conn.WithContext(ctx).Transaction(fn)
		if !IsSerializationFailure(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", maxTxAttempts, err)
}
