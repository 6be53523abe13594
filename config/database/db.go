package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codocs/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool and waits until it answers a ping, retrying
// with exponential backoff to ride out DNS or network blips at startup.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = 30 * time.Second

	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", wait, err)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database after retries: %w", err)
	}

	logger.Sugar.Info("Successfully connected to the database")
	return db, nil
}
