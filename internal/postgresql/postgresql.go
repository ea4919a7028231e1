// Package postgresql implements the stop repository and the supervision backend on top of a postgres database
package postgresql

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/heptiolabs/healthcheck"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

// PgxIface is the part of *pgxpool.Pool the connection uses, so pgxmock can stand in for it
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config holds the connection settings
type Config struct {
	Host         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	Port         int
	LRUSize      int
	SnapshotFunc string
}

// ConfigFromEnv reads the POSTGRES_* variables
func ConfigFromEnv() (Config, error) {
	var cfg Config
	var err error
	if cfg.Host, err = env.GetAsString("POSTGRES_HOST", false, "db"); err != nil {
		zap.S().Error(err)
	}
	if cfg.Port, err = env.GetAsInt("POSTGRES_PORT", false, 5432); err != nil {
		zap.S().Error(err)
	}
	if cfg.User, err = env.GetAsString("POSTGRES_USER", true, ""); err != nil {
		return cfg, err
	}
	if cfg.Password, err = env.GetAsString("POSTGRES_PASSWORD", true, ""); err != nil {
		return cfg, err
	}
	if cfg.Database, err = env.GetAsString("POSTGRES_DATABASE", true, ""); err != nil {
		return cfg, err
	}
	if cfg.SSLMode, err = env.GetAsString("POSTGRES_SSL_MODE", false, "require"); err != nil {
		zap.S().Error(err)
	}
	if cfg.LRUSize, err = env.GetAsInt("POSTGRES_LRU_CACHE_SIZE", false, 1000); err != nil {
		zap.S().Error(err)
	}
	if cfg.SnapshotFunc, err = env.GetAsString("POSTGRES_SNAPSHOT_FUNCTION", false, "calculate_oee_snapshot"); err != nil {
		zap.S().Error(err)
	}
	return cfg, nil
}

func (c Config) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Connection is the postgres backend of the ledger and of the supervision service
type Connection struct {
	db            PgxIface
	reasons       *lru.ARCCache
	reads         internal.CallPolicy
	writes        internal.CallPolicy
	snapshotQuery string
}

// requiredTables must exist before the service accepts requests
var requiredTables = []string{"lot", "lot_shift_summary", "stop_event", "stop_reason", "operator", "oee_snapshot", "production_entry", "quality_entry"}

// NewConnection opens the pool and checks that every required table exists
func NewConnection(cfg Config, policy internal.CallPolicy) (*Connection, error) {
	ctx, cncl := get5SecondContext()
	defer cncl()
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, err
	}
	conn, err := newConnection(pool, cfg.LRUSize, cfg.SnapshotFunc, policy)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if !conn.IsAvailable() {
		pool.Close()
		return nil, errors.New("database is not reachable")
	}
	for _, table := range requiredTables {
		if err = conn.tableExists(table); err != nil {
			pool.Close()
			return nil, err
		}
	}
	zap.S().Infof("Connected to postgres at %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return conn, nil
}

func newConnection(db PgxIface, lruSize int, snapshotFunc string, policy internal.CallPolicy) (*Connection, error) {
	if lruSize <= 0 {
		lruSize = 1000
	}
	reasons, err := lru.NewARC(lruSize)
	if err != nil {
		return nil, err
	}
	if snapshotFunc == "" {
		snapshotFunc = "calculate_oee_snapshot"
	}
	reads := policy
	reads.Retryable = IsRetryable
	return &Connection{
		db:            db,
		reasons:       reasons,
		reads:         reads,
		writes:        policy.WithoutRetries(),
		snapshotQuery: snapshotQuery(snapshotFunc),
	}, nil
}

const queryTableExists = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1`

func (c *Connection) tableExists(table string) error {
	ctx, cncl := get5SecondContext()
	defer cncl()
	var tableName string
	err := c.db.QueryRow(ctx, queryTableExists, table).Scan(&tableName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("table %s does not exist in the database", table)
		}
		return fmt.Errorf("failed to check for table %s: %w", table, err)
	}
	return nil
}

func (c *Connection) IsAvailable() bool {
	if c.db == nil {
		return false
	}
	ctx, cncl := get5SecondContext()
	defer cncl()
	err := c.db.Ping(ctx)
	if err != nil {
		zap.S().Debugf("Failed to ping database: %s", err)
		return false
	}
	return true
}

// GetHealthCheck reports the database as down when it does not answer a ping
func (c *Connection) GetHealthCheck() healthcheck.Check {
	return func() error {
		if c.IsAvailable() {
			return nil
		}
		return errors.New("healthcheck failed to reach database")
	}
}

func (c *Connection) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

// read runs a query that may be retried
func (c *Connection) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return datamodel.WrapBackend(op, translate(c.reads.Do(ctx, op, fn)))
}

// write runs a mutation exactly once
func (c *Connection) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return datamodel.WrapBackend(op, translate(c.writes.Do(ctx, op, fn)))
}

// inTx runs fn in a transaction. The transaction is committed only if fn succeeds.
func (c *Connection) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return c.write(ctx, op, func(ctx context.Context) error {
		tx, err := c.db.Begin(ctx)
		if err != nil {
			return err
		}
		if err = fn(ctx, tx); err != nil {
			errR := tx.Rollback(ctx)
			if errR != nil {
				zap.S().Errorf("Error rolling back transaction: %v", errR)
			}
			return err
		}
		return tx.Commit(ctx)
	})
}

func get5SecondContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), internal.FiveSeconds)
}
