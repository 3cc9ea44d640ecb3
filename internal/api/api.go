// Package api serves the local operations endpoints of a site.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	sitesync "github.com/cybertec-postgresql/sitesync/internal/sync"
)

// Driver is the part of the sync driver exposed over HTTP
type Driver interface {
	Status() sitesync.Status
	TriggerManualSync() bool
}

// Backlog counts work waiting on either side of the site
type Backlog struct {
	Outgoing int64 `json:"outgoing"`
	Incoming int64 `json:"incoming"`
}

// BacklogFunc reports the current backlog
type BacklogFunc func(ctx context.Context) (Backlog, error)

// StatusResponse is the body of GET /status
type StatusResponse struct {
	sitesync.Status
	Backlog *Backlog `json:"backlog,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes GET /status and POST /sync
type Server struct {
	router  *httprouter.Router
	driver  Driver
	backlog BacklogFunc
	addr    string
}

// New creates the server. backlog may be nil.
func New(addr string, driver Driver, backlog BacklogFunc) *Server {
	s := &Server{
		router:  httprouter.New(),
		driver:  driver,
		backlog: backlog,
		addr:    addr,
	}
	s.router.GET("/status", s.status)
	s.router.POST("/sync", s.sync)
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.addr).Info("Ops API listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := StatusResponse{Status: s.driver.Status()}
	if s.backlog != nil {
		backlog, err := s.backlog(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to count sync backlog")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		resp.Backlog = &backlog
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sync(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if !s.driver.TriggerManualSync() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: sitesync.ErrSyncInProgress.Error()})
		return
	}
	logrus.Info("Manual sync requested")
	writeJSON(w, http.StatusAccepted, s.driver.Status())
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("Failed to write response")
	}
}
