package changelog

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryCols = []string{"cursor", "table_name", "record_id", "row_action", "store_id", "name_link_id", "is_sync_update"}

func TestInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storeID := "store_a"
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(advisoryLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`INSERT INTO changelog`).
		WithArgs("stock_line", "X", "UPSERT", &storeID, (*string)(nil), false).
		WillReturnRows(pgxmock.NewRows([]string{"cursor"}).AddRow(int64(42)))

	cursor, err := Insert(context.Background(), mock, Entry{
		TableName: "stock_line",
		RecordID:  "X",
		Action:    ActionUpsert,
		StoreID:   &storeID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPropagatesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	failure := errors.New("serialization failure")
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`INSERT INTO changelog`).WillReturnError(failure)

	_, err = Insert(context.Background(), mock, Entry{TableName: "item", RecordID: "i1", Action: ActionDelete})
	require.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "item/i1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMutationIsNotSyncUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	nameLink := "name_a"
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`INSERT INTO changelog`).
		WithArgs("requisition", "r1", "UPSERT", (*string)(nil), &nameLink, false).
		WillReturnRows(pgxmock.NewRows([]string{"cursor"}).AddRow(int64(7)))

	cursor, err := RecordMutation(context.Background(), mock, "requisition", "r1", ActionUpsert, Scope{NameLinkID: &nameLink})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storeID := "store_a"
	rows := pgxmock.NewRows(entryCols).
		AddRow(int64(11), "stock_line", "X", "UPSERT", &storeID, (*string)(nil), false).
		AddRow(int64(12), "item", "i1", "DELETE", (*string)(nil), (*string)(nil), true)
	mock.ExpectQuery(`SELECT cursor, table_name, record_id, row_action, store_id, name_link_id, is_sync_update FROM changelog WHERE cursor > \$1 ORDER BY cursor ASC LIMIT \$2`).
		WithArgs(int64(10), 100).
		WillReturnRows(rows)

	entries, err := Query(context.Background(), mock, 10, 100)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(11), entries[0].Cursor)
	assert.Equal(t, ActionUpsert, entries[0].Action)
	require.NotNil(t, entries[0].StoreID)
	assert.Equal(t, "store_a", *entries[0].StoreID)
	assert.False(t, entries[0].IsSyncUpdate)

	assert.Equal(t, ActionDelete, entries[1].Action)
	assert.True(t, entries[1].IsSyncUpdate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTableFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM changelog WHERE cursor > \$1 AND table_name = ANY\(\$3\) ORDER BY cursor ASC LIMIT \$2`).
		WithArgs(int64(0), 50, []string{"item", "unit"}).
		WillReturnRows(pgxmock.NewRows(entryCols))

	entries, err := Query(context.Background(), mock, 0, 50, "item", "unit")
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryDeduped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM changelog_deduped WHERE cursor > \$1`).
		WithArgs(int64(5), 10).
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow(int64(9), "name", "n1", "UPSERT", (*string)(nil), (*string)(nil), false))

	entries, err := QueryDeduped(context.Background(), mock, 5, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n1", entries[0].RecordID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCursor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	latest := int64(456)
	mock.ExpectQuery(`SELECT MAX\(cursor\) FROM changelog`).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&latest))
	mock.ExpectQuery(`SELECT MAX\(cursor\) FROM changelog`).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow((*int64)(nil)))

	cursor, err := LatestCursor(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, int64(456), cursor)

	cursor, err = LatestCursor(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOutgoing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM changelog WHERE cursor > \$1 AND NOT is_sync_update`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := CountOutgoing(context.Background(), mock, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
