// Package cursor persists how far each consumer has progressed through an ordered feed.
package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// Key identifies an independent consumer
type Key string

const (
	// KeyPush tracks the last changelog cursor acknowledged by the central server
	KeyPush Key = "push_cursor"
	// KeyPull tracks the server-assigned cursor of the central outgoing queue
	KeyPull Key = "pull_cursor"
)

// Get returns the stored value for key, 0 if the consumer never ran
func Get(ctx context.Context, q db.PgxIface, key Key) (int64, error) {
	var value *int64
	err := q.QueryRow(ctx, `SELECT value_int FROM key_value_store WHERE id = $1`, string(key)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor %s: %w", key, err)
	}
	if value == nil {
		return 0, nil
	}
	return *value, nil
}

// Set stores value for key unconditionally
func Set(ctx context.Context, q db.PgxIface, key Key, value int64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO key_value_store (id, value_int) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET value_int = EXCLUDED.value_int`,
		string(key), value)
	if err != nil {
		return fmt.Errorf("failed to set cursor %s: %w", key, err)
	}
	return nil
}

// Advance stores value for key unless the stored value is already greater,
// so a cursor never moves backwards
func Advance(ctx context.Context, q db.PgxIface, key Key, value int64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO key_value_store (id, value_int) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET value_int = GREATEST(COALESCE(key_value_store.value_int, 0), EXCLUDED.value_int)`,
		string(key), value)
	if err != nil {
		return fmt.Errorf("failed to advance cursor %s: %w", key, err)
	}
	return nil
}
