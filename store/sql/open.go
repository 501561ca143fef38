package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	apiversionsmigrations "github.com/goliatone/go-apiversions/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// PersistenceConfig satisfies the go-persistence-bun client configuration.
type PersistenceConfig struct {
	Driver         string
	Server         string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c PersistenceConfig) GetDebug() bool { return c.Debug }

func (c PersistenceConfig) GetDriver() string { return c.Driver }

func (c PersistenceConfig) GetServer() string { return c.Server }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return apiversionsmigrations.DefaultSourceLabel
	}
	return c.OtelIdentifier
}

func OpenPostgres(dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

// OpenSQLite pins the pool to one connection so in-memory databases are
// shared by every query.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

// NewPersistenceClient opens a go-persistence-bun client for the driver,
// registers the account version migrations of the matching dialect and
// runs them.
func NewPersistenceClient(ctx context.Context, cfg PersistenceConfig) (*persistence.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		client  *persistence.Client
		dialect string
		err     error
	)
	switch driver {
	case DriverPostgres:
		sqlDB, openErr := sql.Open(DriverPostgres, cfg.Server)
		if openErr != nil {
			return nil, fmt.Errorf("sqlstore: open postgres: %w", openErr)
		}
		dialect = apiversionsmigrations.DialectPostgres
		client, err = persistence.New(cfg, sqlDB, pgdialect.New())
	case DriverSQLite, "sqlite":
		sqlDB, openErr := sql.Open(DriverSQLite, cfg.Server)
		if openErr != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite: %w", openErr)
		}
		sqlDB.SetMaxOpenConns(1)
		dialect = apiversionsmigrations.DialectSQLite
		client, err = persistence.New(cfg, sqlDB, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = apiversionsmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, apiversionsmigrations.WithDialects(dialect))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}
