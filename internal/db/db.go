package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type options struct {
	applicationName string
	maxConns        int32
}

// Option tunes the connection pool.
type Option func(*options)

// WithApplicationName tags every connection so pg_stat_activity shows which
// process (api, sweeper, ledgerctl) holds it.
func WithApplicationName(name string) Option {
	return func(o *options) { o.applicationName = name }
}

// WithMaxConns caps the pool size. Values below 1 keep the default.
func WithMaxConns(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

func Connect(ctx context.Context, dbURL string, opts ...Option) (*pgxpool.Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := options{maxConns: 10}
	for _, opt := range opts {
		opt(&o)
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	config.MaxConns = o.maxConns
	config.MinConns = min(2, o.maxConns)
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	if o.applicationName != "" {
		config.ConnConfig.RuntimeParams["application_name"] = o.applicationName
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return pool, nil
}
