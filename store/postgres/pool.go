// Package postgres implements the relational store: DDL derived from a
// storelayout.Layout, chunked flush transactions over jackc/pgx/v4, and the
// typed StoreError kinds the rest of the pipeline reacts to.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/chaingraph/indexer/env"
	"github.com/chaingraph/indexer/service/logger"
	"github.com/chaingraph/indexer/service/retry"
)

// DefaultConnectRetry mirrors the bounded backoff used elsewhere in this
// codebase for opening a pool against a database that may still be coming up.
var DefaultConnectRetry = retry.Retry{MinWait: 2, MaxWait: 4, MaxRetries: 3}

// ConnectionOption customizes the connection string NewPool builds.
type ConnectionOption func(*connectionParams)

type connectionParams struct {
	user, password, dbname, host string
	port                         int
	appname                      string
	retry                        *retry.Retry
}

func (c connectionParams) toConnectionString() string {
	port := c.port
	if port == 0 {
		port = 5432
	}
	connStr := fmt.Sprintf("user=%s dbname=%s host=%s port=%d", c.user, c.dbname, c.host, port)
	if c.password != "" {
		connStr += fmt.Sprintf(" password=%s", c.password)
	}
	return connStr
}

func paramsFromEnv() connectionParams {
	return connectionParams{
		user:     env.GetString("POSTGRES_USER"),
		password: env.GetString("POSTGRES_PASSWORD"),
		dbname:   env.GetString("POSTGRES_DB"),
		host:     env.GetString("POSTGRES_HOST"),
		port:     env.GetInt("POSTGRES_PORT"),
	}
}

// WithAppName sets the application_name connection parameter, surfaced in
// pg_stat_activity.
func WithAppName(name string) ConnectionOption {
	return func(c *connectionParams) { c.appname = name }
}

// WithRetry overrides DefaultConnectRetry.
func WithRetry(r retry.Retry) ConnectionOption {
	return func(c *connectionParams) { c.retry = &r }
}

// NewPool opens a pgx connection pool, retrying the initial connect with
// DefaultConnectRetry unless overridden.
func NewPool(ctx context.Context, opts ...ConnectionOption) (*pgxpool.Pool, error) {
	params := paramsFromEnv()
	params.retry = &DefaultConnectRetry
	for _, opt := range opts {
		opt(&params)
	}

	config, err := pgxpool.ParseConfig(params.toConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse pgx connection string: %w", err)
	}
	if params.appname != "" {
		config.ConnConfig.RuntimeParams["application_name"] = params.appname
	}

	var pool *pgxpool.Pool
	connectF := func(ctx context.Context) error {
		var err error
		pool, err = pgxpool.ConnectConfig(ctx, config)
		return err
	}

	if params.retry != nil {
		err = retry.RetryFunc(ctx, connectF, func(error) bool { return true }, *params.retry)
	} else {
		err = connectF(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.For(ctx).Infof("postgres: connected pool to %s:%d/%s", params.host, params.port, params.dbname)
	return pool, nil
}
