package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitesync "github.com/cybertec-postgresql/sitesync/internal/sync"
)

type fakeDriver struct {
	status   sitesync.Status
	accept   bool
	triggers int
}

func (f *fakeDriver) Status() sitesync.Status { return f.status }

func (f *fakeDriver) TriggerManualSync() bool {
	f.triggers++
	return f.accept
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	driver := &fakeDriver{status: sitesync.Status{State: sitesync.StateIdle, Pushed: 4, PullCursor: 12}}
	s := New(":0", driver, func(context.Context) (Backlog, error) {
		return Backlog{Outgoing: 2, Incoming: 7}, nil
	})

	rec := do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sitesync.StateIdle, got.State)
	assert.Equal(t, 4, got.Pushed)
	assert.Equal(t, int64(12), got.PullCursor)
	require.NotNil(t, got.Backlog)
	assert.Equal(t, Backlog{Outgoing: 2, Incoming: 7}, *got.Backlog)
}

func TestStatusWithoutBacklog(t *testing.T) {
	s := New(":0", &fakeDriver{status: sitesync.Status{State: sitesync.StateError, LastError: "pull failed: x"}}, nil)

	rec := do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"error","last_error":"pull failed: x","pushed":0,"pulled":0,
		"integrated":0,"not_matched":0,"failed_records":0,"push_cursor":0,"pull_cursor":0}`, rec.Body.String())
}

func TestStatusBacklogError(t *testing.T) {
	s := New(":0", &fakeDriver{}, func(context.Context) (Backlog, error) {
		return Backlog{}, errors.New("connection refused")
	})

	rec := do(t, s, http.MethodGet, "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestTriggerSync(t *testing.T) {
	driver := &fakeDriver{accept: true}
	s := New(":0", driver, nil)

	rec := do(t, s, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, driver.triggers)

	driver.accept = false
	rec = do(t, s, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), sitesync.ErrSyncInProgress.Error())
	assert.Equal(t, 2, driver.triggers)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(":0", &fakeDriver{}, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/sync").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nope").Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", &fakeDriver{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
