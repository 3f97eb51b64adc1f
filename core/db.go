package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// credentialPoolSize caps concurrent grid reads; each login holds a
// connection for a single SELECT.
const credentialPoolSize = 4

// ConnectCredentialStore opens a read-only pool for the postgres credential
// backend and pings it within fetchTimeout.
func ConnectCredentialStore(ctx context.Context, dsn string, fetchTimeout time.Duration) (*pgxpool.Pool, error) {
	config, err := credentialPoolConfig(dsn, fetchTimeout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnConfig.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// fail at startup, not on the first login
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// credentialPoolConfig builds the pool settings. Sessions run with
// default_transaction_read_only and a statement_timeout equal to fetchTimeout,
// so a slow table scan is also cancelled server side.
func credentialPoolConfig(dsn string, fetchTimeout time.Duration) (*pgxpool.Config, error) {
	if dsn == "" {
		return nil, errors.New("empty DATABASE_URL")
	}
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = credentialPoolSize
	config.MaxConnIdleTime = time.Minute
	config.ConnConfig.ConnectTimeout = fetchTimeout

	params := config.ConnConfig.RuntimeParams
	params["application_name"] = "hr-portal"
	params["default_transaction_read_only"] = "on"
	params["statement_timeout"] = strconv.FormatInt(fetchTimeout.Milliseconds(), 10)
	return config, nil
}
