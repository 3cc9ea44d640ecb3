package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/retry"
)

// NewWithRetry connects to the site database, retrying while the server is
// unreachable. A malformed connection string fails at once.
func NewWithRetry(ctx context.Context, connStr string, callbacks ...ConnConfigCallback) (PgxPoolIface, error) {
	connConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}
	logger := logrus.WithFields(logrus.Fields{
		"host":     connConfig.ConnConfig.Host,
		"database": connConfig.ConnConfig.Database,
	})

	var pool PgxPoolIface
	err = retry.WithOperation(ctx, retry.PostgreSQLDefaults(), func() error {
		p, err := NewWithConfig(ctx, connConfig.Copy(), callbacks...)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}, "PostgreSQL connect")
	if err != nil {
		logger.WithError(err).Error("Failed to establish PostgreSQL connection after all retries")
		return nil, err
	}

	logger.Info("Connected to PostgreSQL")
	return pool, nil
}
