// Package centraltest provides an in-process central server for tests.
package centraltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/cybertec-postgresql/sitesync/internal/central"
)

// Server is a fake central server. Pushed records are deduplicated by sync_id,
// pulled records come from a queue filled with Enqueue.
type Server struct {
	SiteName       string
	PasswordSha256 string
	SiteID         int32
	SiteUUID       string

	mu         sync.Mutex
	pushed     []central.PushRecord
	seen       map[string]struct{}
	pushCalls  int
	pullCalls  int
	failPushes int
	failPulls  int
	outgoing   []central.PullRecord
	httpServer *httptest.Server
}

// New starts a fake central server accepting the given site credentials
func New(siteName, passwordSha256 string) *Server {
	s := &Server{
		SiteName:       siteName,
		PasswordSha256: passwordSha256,
		SiteID:         1,
		SiteUUID:       "00000000-0000-0000-0000-000000000001",
		seen:           make(map[string]struct{}),
	}

	router := httprouter.New()
	router.POST(central.PushPath, s.authenticated(s.handlePush))
	router.GET(central.PullPath, s.authenticated(s.handlePull))
	router.GET(central.SitePath, s.authenticated(s.handleSite))
	s.httpServer = httptest.NewServer(router)
	return s
}

// URL is the base URL of the server
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down
func (s *Server) Close() { s.httpServer.Close() }

// Enqueue adds a record to the outgoing queue and returns its cursor
func (s *Server) Enqueue(table, recordID, action string, data any) int64 {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return s.EnqueueRaw(table, recordID, action, raw)
}

// EnqueueRaw adds a record with an already encoded payload. A nil payload
// is sent without a data field.
func (s *Server) EnqueueRaw(table, recordID, action string, raw json.RawMessage) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor := int64(len(s.outgoing) + 1)
	s.outgoing = append(s.outgoing, central.PullRecord{
		Cursor:    cursor,
		TableName: table,
		RecordID:  recordID,
		Action:    action,
		Data:      raw,
	})
	return cursor
}

// Pushed returns the distinct records received so far
func (s *Server) Pushed() []central.PushRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]central.PushRecord(nil), s.pushed...)
}

// PushCalls returns how many push requests were received, including failed ones
func (s *Server) PushCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushCalls
}

// PullCalls returns how many pull requests were received
func (s *Server) PullCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullCalls
}

// FailNextPushes makes the next n push requests fail with 500 after storing the records
func (s *Server) FailNextPushes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPushes = n
}

// FailNextPulls makes the next n pull requests fail with 503
func (s *Server) FailNextPulls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPulls = n
}

func (s *Server) authenticated(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.Header.Get(central.HeaderSyncVersion) != central.SyncVersion {
			http.Error(w, "unsupported sync version", http.StatusBadRequest)
			return
		}
		if r.Header.Get(central.HeaderSiteName) != s.SiteName ||
			r.Header.Get(central.HeaderSitePassword) != s.PasswordSha256 {
			http.Error(w, "invalid site credentials", http.StatusUnauthorized)
			return
		}
		next(w, r, ps)
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req central.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.pushCalls++
	integrated := 0
	for _, rec := range req.Records {
		if _, dup := s.seen[rec.SyncID]; dup {
			continue
		}
		s.seen[rec.SyncID] = struct{}{}
		s.pushed = append(s.pushed, rec)
		integrated++
	}
	fail := s.failPushes > 0
	if fail {
		s.failPushes--
	}
	s.mu.Unlock()

	// records are kept even when the acknowledgement is lost
	if fail {
		http.Error(w, "acknowledgement lost", http.StatusInternalServerError)
		return
	}
	writeJSON(w, central.PushResponse{Integrated: integrated})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cursor, err := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	if err != nil {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	batchSize, err := strconv.Atoi(r.URL.Query().Get("batch_size"))
	if err != nil || batchSize <= 0 {
		http.Error(w, "invalid batch_size", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.pullCalls++
	if s.failPulls > 0 {
		s.failPulls--
		s.mu.Unlock()
		http.Error(w, "central busy", http.StatusServiceUnavailable)
		return
	}
	resp := central.PullResponse{
		Records:      []central.PullRecord{},
		EndCursor:    cursor,
		TotalRecords: int64(len(s.outgoing)),
	}
	for _, rec := range s.outgoing {
		if rec.Cursor <= cursor {
			continue
		}
		if len(resp.Records) == batchSize {
			break
		}
		resp.Records = append(resp.Records, rec)
		resp.EndCursor = rec.Cursor
	}
	s.mu.Unlock()

	writeJSON(w, resp)
}

func (s *Server) handleSite(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, central.SiteInfo{SiteID: s.SiteID, SiteUUID: s.SiteUUID})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
