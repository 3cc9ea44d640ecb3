package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/central"
	"github.com/cybertec-postgresql/sitesync/internal/central/centraltest"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/cursor"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/legacy"
	"github.com/cybertec-postgresql/sitesync/internal/pull"
	"github.com/cybertec-postgresql/sitesync/internal/push"
	"github.com/cybertec-postgresql/sitesync/internal/repository"
	"github.com/cybertec-postgresql/sitesync/internal/retry"
	sitesync "github.com/cybertec-postgresql/sitesync/internal/sync"
	"github.com/cybertec-postgresql/sitesync/internal/translator"
)

const testPassword = "secret"

func fastRetry() *retry.Config {
	return &retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestClient(server *centraltest.Server, siteUUID string) *central.Client {
	return central.New(central.Config{
		URL:            server.URL(),
		SiteName:       server.SiteName,
		PasswordSha256: central.HashPassword(testPassword),
		SiteUUID:       siteUUID,
	}, fastRetry())
}

func TestResolveSiteUUID(t *testing.T) {
	server := centraltest.New("clinic-1", central.HashPassword(testPassword))
	defer server.Close()
	ctx := context.Background()

	configured := "6f1c3b1e-52a5-4c1e-9a51-0d4f0b9f7a10"
	site, err := resolveSiteUUID(ctx, newTestClient(server, configured), configured)
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse(configured), site)

	site, err = resolveSiteUUID(ctx, newTestClient(server, ""), "")
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse(server.SiteUUID), site)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"site_id":1,"site_uuid":"garbage"}`))
	}))
	defer broken.Close()
	_, err = resolveSiteUUID(ctx, central.New(central.Config{URL: broken.URL, SiteName: "clinic-1"}, fastRetry()), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid site UUID")
}

func TestResolveSiteUUIDUnauthorized(t *testing.T) {
	server := centraltest.New("clinic-1", central.HashPassword("other"))
	defer server.Close()

	_, err := resolveSiteUUID(context.Background(), newTestClient(server, ""), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, central.ErrUnauthorized)
}

func TestBacklog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pushCursor := int64(10)
	mock.ExpectQuery(`SELECT value_int FROM key_value_store`).
		WithArgs("push_cursor").
		WillReturnRows(pgxmock.NewRows([]string{"value_int"}).AddRow(&pushCursor))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM changelog`).
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sync_buffer`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(8)))

	got, err := backlog(mock)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Outgoing)
	assert.Equal(t, int64(8), got.Incoming)
	require.NoError(t, mock.ExpectationsWereMet())
}

func setupPostgres(ctx context.Context, t *testing.T) (db.PgxPoolIface, func()) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewWithRetry(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(ctx, pool))

	return pool, func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
}

// TestSyncRoundTrip runs full sync attempts against a real database and the fake central server
func TestSyncRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end sync test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := setupPostgres(ctx, t)
	defer cleanup()

	server := centraltest.New("clinic-1", central.HashPassword(testPassword))
	defer server.Close()
	client := newTestClient(server, server.SiteUUID)

	registry, err := translator.NewDefaultRegistry()
	require.NoError(t, err)

	puller := pull.NewPipeline(pool, registry, client, 2)
	driver := sitesync.NewDriver(
		push.NewPipeline(pool, registry, client, uuid.MustParse(server.SiteUUID), 2),
		puller,
		sitesync.Config{Interval: time.Hour},
	)

	server.Enqueue(legacy.TableStore, "store_a", "UPSERT", legacy.Store{ID: "store_a", NameID: "n_store", Code: "SA", SyncIDRemoteSite: 1})
	server.Enqueue(legacy.TableUnit, "u1", "UPSERT", legacy.Unit{ID: "u1", Units: "Tablet", Active: true})
	server.Enqueue(legacy.TableName, "n_store", "UPSERT", legacy.Name{ID: "n_store", Name: "Store A", Code: "SA", Type: "store"})
	server.Enqueue(legacy.TableItem, "i1", "UPSERT", legacy.Item{ID: "i1", ItemName: "Paracetamol", Code: "PARA", UnitID: "u1", TypeOf: "general", DefaultPackSize: 10, Active: true})
	server.Enqueue(legacy.TableItem, "i2", "UPSERT", legacy.Item{ID: "i2", ItemName: "Link", Code: "X", TypeOf: "cross_reference"})

	require.NoError(t, driver.SyncOnce(ctx))
	status := driver.Status()
	assert.Equal(t, sitesync.StateIdle, status.State)
	assert.Equal(t, 5, status.Pulled)
	assert.Equal(t, 4, status.Integrated)
	assert.Equal(t, 1, status.NotMatched)
	assert.Empty(t, server.Pushed(), "nothing local to push yet")

	store, err := repository.FindStoreByID(ctx, pool, "store_a")
	require.NoError(t, err)
	require.NotNil(t, store, "store integrated after the name it depends on")
	assert.Equal(t, repository.StoreModeStore, store.StoreMode)

	item, err := repository.FindItemByID(ctx, pool, "i1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, repository.ItemTypeStock, item.Type)

	missing, err := repository.FindItemByID(ctx, pool, "i2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// a local change is pushed, the integrated records are not echoed back
	batch := "B-1"
	require.NoError(t, repository.Save(ctx, pool, &repository.StockLineRow{
		ID: "sl1", ItemID: "i1", StoreID: "store_a", Batch: &batch,
		PackSize: 10, CostPricePerPack: 2, SellPricePerPack: 3,
		AvailableNumberOfPacks: 5, TotalNumberOfPacks: 5,
	}))

	require.NoError(t, driver.SyncOnce(ctx))
	pushed := server.Pushed()
	require.Len(t, pushed, 1)
	assert.Equal(t, legacy.TableItemLine, pushed[0].TableName)
	assert.Equal(t, "sl1", pushed[0].RecordID)
	assert.Equal(t, "store_a", *pushed[0].StoreID)

	var line legacy.ItemLine
	require.NoError(t, json.Unmarshal(pushed[0].Data, &line))
	assert.Equal(t, "B-1", line.Batch)
	assert.Equal(t, 5.0, line.Quantity)

	// a second attempt has nothing left to push and moves no cursor
	before := syncCursors(ctx, t, pool)
	require.NoError(t, driver.SyncOnce(ctx))
	assert.Len(t, server.Pushed(), 1)
	assert.Equal(t, 1, server.PushCalls(), "batches of sync updates need no round trip")
	assert.Equal(t, before, syncCursors(ctx, t, pool))

	// replaying an update is idempotent and does not produce outgoing entries
	server.Enqueue(legacy.TableUnit, "u1", "UPSERT", legacy.Unit{ID: "u1", Units: "Tab", Active: true})
	server.Enqueue(legacy.TableUnit, "u1", "UPSERT", legacy.Unit{ID: "u1", Units: "Tab", Active: true})
	require.NoError(t, driver.SyncOnce(ctx))

	unit, err := repository.FindUnitByID(ctx, pool, "u1")
	require.NoError(t, err)
	require.NotNil(t, unit)
	assert.Equal(t, "Tab", unit.Name)

	// integrating the same buffer a second time leaves the same rows behind
	integrated := snapshotRows(ctx, t, pool)
	_, err = pool.Exec(ctx, `UPDATE sync_buffer SET integration_datetime = NULL`)
	require.NoError(t, err)
	_, err = puller.Integrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, integrated, snapshotRows(ctx, t, pool))

	outgoing, err := push.Pending(ctx, pool)
	require.NoError(t, err)
	assert.Zero(t, outgoing)

	entries, err := changelog.Query(ctx, pool, 0, 100, repository.TableUnit)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsSyncUpdate, "integrated writes are marked as sync updates")
	}

	// pulled deletes remove the row
	server.Enqueue(legacy.TableUnit, "u9", "UPSERT", legacy.Unit{ID: "u9", Units: "Vial"})
	server.Enqueue(legacy.TableUnit, "u9", "DELETE", map[string]string{"ID": "u9"})
	require.NoError(t, driver.SyncOnce(ctx))
	gone, err := repository.FindUnitByID(ctx, pool, "u9")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// records that cannot be translated are kept with their error, the rest integrate
	server.EnqueueRaw(legacy.TableUnit, "u5", "MERGE", json.RawMessage(`{"ID":"u5","units":"Box"}`))
	server.EnqueueRaw(legacy.TableUnit, "u6", "UPSERT", nil)
	last := server.Enqueue(legacy.TableUnit, "u7", "UPSERT", legacy.Unit{ID: "u7", Units: "Box", Active: true})
	for range 2 {
		require.NoError(t, driver.SyncOnce(ctx))
		assert.Equal(t, 2, driver.Status().FailedRecords)
	}

	pullCursor, err := cursor.Get(ctx, pool, cursor.KeyPull)
	require.NoError(t, err)
	assert.Equal(t, last, pullCursor, "the pull cursor moves past malformed records")

	box, err := repository.FindUnitByID(ctx, pool, "u7")
	require.NoError(t, err)
	require.NotNil(t, box)

	failed, err := buffer.Pending(ctx, pool, legacy.TableUnit)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	for _, e := range failed {
		require.NotNil(t, e.IntegrationError, "record %s keeps its error", e.RecordID)
	}
}

type cursors struct {
	Push, Pull, Changelog int64
}

func syncCursors(ctx context.Context, t *testing.T, q db.PgxIface) cursors {
	t.Helper()
	var c cursors
	var err error
	c.Push, err = cursor.Get(ctx, q, cursor.KeyPush)
	require.NoError(t, err)
	c.Pull, err = cursor.Get(ctx, q, cursor.KeyPull)
	require.NoError(t, err)
	c.Changelog, err = changelog.LatestCursor(ctx, q)
	require.NoError(t, err)
	return c
}

type integratedRows struct {
	Unit      *repository.UnitRow
	Item      *repository.ItemRow
	Store     *repository.StoreRow
	StockLine *repository.StockLineRow
}

func snapshotRows(ctx context.Context, t *testing.T, q db.PgxIface) integratedRows {
	t.Helper()
	var r integratedRows
	var err error
	r.Unit, err = repository.FindUnitByID(ctx, q, "u1")
	require.NoError(t, err)
	r.Item, err = repository.FindItemByID(ctx, q, "i1")
	require.NoError(t, err)
	r.Store, err = repository.FindStoreByID(ctx, q, "store_a")
	require.NoError(t, err)
	r.StockLine, err = repository.FindStockLineByID(ctx, q, "sl1")
	require.NoError(t, err)
	return r
}
