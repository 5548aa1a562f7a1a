package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	createKVTableSQL = `CREATE TABLE IF NOT EXISTS kv_store (
        key        text PRIMARY KEY,
        value      jsonb NOT NULL,
        updated_at timestamptz NOT NULL DEFAULT now()
    );`

	getItemSQL = `SELECT value FROM kv_store WHERE key = $1;`

	setItemSQL = `INSERT INTO kv_store (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value,
        updated_at = now();`
)

// PostgresOptions parameterise the Postgres-backed KV.
type PostgresOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Prefix          string
}

// PostgresKV persists values as rows in a single key/value table.
type PostgresKV struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewPostgresKV configures a connection pool and ensures the kv_store table
// exists.
func NewPostgresKV(ctx context.Context, opts PostgresOptions) (*PostgresKV, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	kv := &PostgresKV{pool: pool, prefix: opts.Prefix}
	if err := kv.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return kv, nil
}

func (p *PostgresKV) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createKVTableSQL); err != nil {
		return fmt.Errorf("create kv_store table: %w", err)
	}
	return nil
}

// GetItem reads the value for key; a missing row yields (nil, nil).
func (p *PostgresKV) GetItem(ctx context.Context, key string) ([]byte, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}

	var value []byte
	err := p.pool.QueryRow(ctx, getItemSQL, p.prefix+key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item %s: %w", key, err)
	}
	return value, nil
}

// SetItem upserts the value for key.
func (p *PostgresKV) SetItem(ctx context.Context, key string, value []byte) error {
	if p == nil || p.pool == nil {
		return ErrNotConfigured
	}

	if _, err := p.pool.Exec(ctx, setItemSQL, p.prefix+key, value); err != nil {
		return fmt.Errorf("set item %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (p *PostgresKV) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

var _ KV = (*PostgresKV)(nil)
