// Package changelog records every committed mutation to a synchronized table.
//
// Entries are written by the same transaction that performs the mutation, so a
// business write and its changelog entry commit or roll back together. Cursors are
// assigned under a transaction-scoped advisory lock which makes cursor order match
// commit order: a consumer that has read cursor N never later observes a newly
// committed entry below N.
package changelog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// Action is the kind of mutation recorded
type Action string

const (
	ActionUpsert Action = "UPSERT"
	ActionDelete Action = "DELETE"
)

// advisoryLockKey serializes changelog appends until commit
const advisoryLockKey int64 = 0x73796e636c6f67

// Entry is a single changelog row
type Entry struct {
	Cursor       int64
	TableName    string
	RecordID     string
	Action       Action
	StoreID      *string
	NameLinkID   *string
	IsSyncUpdate bool
}

// Scope carries the optional store / name link a mutation belongs to
type Scope struct {
	StoreID    *string
	NameLinkID *string
}

const entryColumns = `cursor, table_name, record_id, row_action, store_id, name_link_id, is_sync_update`

// Insert appends an entry and returns the assigned cursor
func Insert(ctx context.Context, q db.PgxIface, e Entry) (int64, error) {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return 0, fmt.Errorf("failed to lock changelog: %w", err)
	}

	var cursor int64
	err := q.QueryRow(ctx,
		`INSERT INTO changelog (table_name, record_id, row_action, store_id, name_link_id, is_sync_update)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING cursor`,
		e.TableName, e.RecordID, string(e.Action), e.StoreID, e.NameLinkID, e.IsSyncUpdate,
	).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to insert changelog entry for %s/%s: %w", e.TableName, e.RecordID, err)
	}
	return cursor, nil
}

// RecordMutation is called by business services inside the transaction of their write
func RecordMutation(ctx context.Context, q db.PgxIface, tableName, recordID string, action Action, scope Scope) (int64, error) {
	return Insert(ctx, q, Entry{
		TableName:  tableName,
		RecordID:   recordID,
		Action:     action,
		StoreID:    scope.StoreID,
		NameLinkID: scope.NameLinkID,
	})
}

// Query returns up to limit entries with cursor > from in ascending order,
// optionally restricted to the given tables
func Query(ctx context.Context, q db.PgxIface, from int64, limit int, tables ...string) ([]Entry, error) {
	return query(ctx, q, "changelog", from, limit, tables)
}

// QueryDeduped is like Query but only returns the latest entry per record
func QueryDeduped(ctx context.Context, q db.PgxIface, from int64, limit int, tables ...string) ([]Entry, error) {
	return query(ctx, q, "changelog_deduped", from, limit, tables)
}

func query(ctx context.Context, q db.PgxIface, source string, from int64, limit int, tables []string) ([]Entry, error) {
	sql := `SELECT ` + entryColumns + ` FROM ` + source + ` WHERE cursor > $1`
	args := []any{from, limit}
	if len(tables) > 0 {
		sql += ` AND table_name = ANY($3)`
		args = append(args, tables)
	}
	sql += ` ORDER BY cursor ASC LIMIT $2`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changelog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changelog: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e      Entry
		action string
	)
	if err := row.Scan(&e.Cursor, &e.TableName, &e.RecordID, &action, &e.StoreID, &e.NameLinkID, &e.IsSyncUpdate); err != nil {
		return e, fmt.Errorf("error scanning changelog entry: %w", err)
	}
	e.Action = Action(action)
	return e, nil
}

// LatestCursor returns the highest cursor in the changelog, 0 when empty
func LatestCursor(ctx context.Context, q db.PgxIface) (int64, error) {
	var cursor *int64
	if err := q.QueryRow(ctx, `SELECT MAX(cursor) FROM changelog`).Scan(&cursor); err != nil {
		return 0, fmt.Errorf("failed to get latest changelog cursor: %w", err)
	}
	if cursor == nil {
		return 0, nil
	}
	return *cursor, nil
}

// CountOutgoing returns how many locally originated entries lie beyond from
func CountOutgoing(ctx context.Context, q db.PgxIface, from int64) (int64, error) {
	var count int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM changelog WHERE cursor > $1 AND NOT is_sync_update`, from,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outgoing changelog entries: %w", err)
	}
	return count, nil
}
