package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	value := int64(99)
	mock.ExpectQuery(`SELECT value_int FROM key_value_store WHERE id = \$1`).
		WithArgs("push_cursor").
		WillReturnRows(pgxmock.NewRows([]string{"value_int"}).AddRow(&value))

	got, err := Get(context.Background(), mock, KeyPush)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnsetDefaultsToZero(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT value_int FROM key_value_store`).
		WithArgs("pull_cursor").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT value_int FROM key_value_store`).
		WithArgs("pull_cursor").
		WillReturnRows(pgxmock.NewRows([]string{"value_int"}).AddRow((*int64)(nil)))

	got, err := Get(context.Background(), mock, KeyPull)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	got, err = Get(context.Background(), mock, KeyPull)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT value_int FROM key_value_store`).
		WillReturnError(errors.New("connection reset"))

	_, err = Get(context.Background(), mock, KeyPush)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get cursor push_cursor")
}

func TestSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO key_value_store \(id, value_int\) VALUES \(\$1, \$2\) ON CONFLICT \(id\) DO UPDATE SET value_int = EXCLUDED.value_int`).
		WithArgs("push_cursor", int64(120)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, Set(context.Background(), mock, KeyPush, 120))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceUsesGreatest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`GREATEST`).
		WithArgs("pull_cursor", int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, Advance(context.Background(), mock, KeyPull, 7))
	require.NoError(t, mock.ExpectationsWereMet())
}
