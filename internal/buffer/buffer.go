// Package buffer stages records received from the central server until they are integrated.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// Entry is one raw record as received from the central server
type Entry struct {
	RecordID            string
	TableName           string
	Action              changelog.Action
	Data                json.RawMessage
	ReceivedDatetime    time.Time
	IntegrationDatetime *time.Time
	IntegrationError    *string
}

// Upsert stores received records. A record received again replaces the staged
// copy and becomes pending again.
func Upsert(ctx context.Context, q db.PgxIface, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO sync_buffer (record_id, table_name, action, data, received_datetime)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (table_name, record_id) DO UPDATE SET
		action = EXCLUDED.action, data = EXCLUDED.data, received_datetime = EXCLUDED.received_datetime,
		integration_datetime = NULL, integration_error = NULL`

	for _, e := range entries {
		batch.Queue(query, e.RecordID, e.TableName, string(e.Action), e.Data)
	}

	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write sync buffer: %w", err)
	}

	logrus.WithField("count", len(entries)).Debug("Staged records in sync buffer")
	return nil
}

// PendingTables lists the tables that still have unintegrated records
func PendingTables(ctx context.Context, q db.PgxIface) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT DISTINCT table_name FROM sync_buffer WHERE integration_datetime IS NULL ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending buffer tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("error scanning buffer table: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buffer tables: %w", err)
	}
	return tables, nil
}

// Pending returns the unintegrated records of one table in arrival order
func Pending(ctx context.Context, q db.PgxIface, table string) ([]Entry, error) {
	rows, err := q.Query(ctx,
		`SELECT record_id, table_name, action, data, received_datetime, integration_datetime, integration_error
		FROM sync_buffer
		WHERE table_name = $1 AND integration_datetime IS NULL
		ORDER BY received_datetime ASC, record_id ASC`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync buffer for %s: %w", table, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
		)
		if err := rows.Scan(&e.RecordID, &e.TableName, &action, &e.Data, &e.ReceivedDatetime,
			&e.IntegrationDatetime, &e.IntegrationError); err != nil {
			return nil, fmt.Errorf("error scanning sync buffer entry: %w", err)
		}
		e.Action = changelog.Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync buffer: %w", err)
	}
	return entries, nil
}

// MarkIntegrated flags a record as applied
func MarkIntegrated(ctx context.Context, q db.PgxIface, table, recordID string) error {
	_, err := q.Exec(ctx,
		`UPDATE sync_buffer SET integration_datetime = now(), integration_error = NULL
		WHERE table_name = $1 AND record_id = $2`, table, recordID)
	if err != nil {
		return fmt.Errorf("failed to mark %s/%s integrated: %w", table, recordID, err)
	}
	return nil
}

// MarkError records why a record could not be translated. It stays pending.
func MarkError(ctx context.Context, q db.PgxIface, table, recordID, message string) error {
	_, err := q.Exec(ctx,
		`UPDATE sync_buffer SET integration_error = $3
		WHERE table_name = $1 AND record_id = $2`, table, recordID, message)
	if err != nil {
		return fmt.Errorf("failed to record integration error for %s/%s: %w", table, recordID, err)
	}
	return nil
}

// CountPending returns the number of records waiting for integration
func CountPending(ctx context.Context, q db.PgxIface) (int64, error) {
	var count int64
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM sync_buffer WHERE integration_datetime IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending buffer records: %w", err)
	}
	return count, nil
}

// Purge deletes records integrated before the cutoff
func Purge(ctx context.Context, q db.PgxIface, cutoff time.Time) (int64, error) {
	tag, err := q.Exec(ctx,
		`DELETE FROM sync_buffer WHERE integration_datetime IS NOT NULL AND integration_datetime < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sync buffer: %w", err)
	}
	return tag.RowsAffected(), nil
}
