// Package central is the HTTP client for the central sync server.
package central

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/retry"
)

// Protocol version spoken by this client
const SyncVersion = "5"

const (
	PushPath = "/sync/v" + SyncVersion + "/push"
	PullPath = "/sync/v" + SyncVersion + "/pull"
	SitePath = "/sync/v" + SyncVersion + "/site"
)

// Identity headers sent with every request
const (
	HeaderSiteName     = "X-Site-Name"
	HeaderSitePassword = "X-Site-Password-Sha256"
	HeaderSiteUUID     = "X-Site-UUID"
	HeaderSyncVersion  = "X-Sync-Version"
)

// ErrUnauthorized is matched by HTTP errors for rejected site credentials
var ErrUnauthorized = errors.New("central server rejected site credentials")

// HTTPError is a non-2xx response from the central server
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("central server returned %d for %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403 responses
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Config describes how to reach the central server and who this site is
type Config struct {
	URL            string
	SiteName       string
	PasswordSha256 string
	SiteUUID       string
	Timeout        time.Duration
}

// HashPassword returns the hex SHA-256 of a plain site password
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// PushRecord is one record sent to the central server
type PushRecord struct {
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	SyncID    string          `json:"sync_id"`
	Action    string          `json:"action"`
	StoreID   *string         `json:"store_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// PushRequest is the body of a push call
type PushRequest struct {
	Records []PushRecord `json:"records"`
}

// PushResponse acknowledges a push
type PushResponse struct {
	Integrated int `json:"integrated"`
}

// PullRecord is one record of the central outgoing queue
type PullRecord struct {
	Cursor    int64           `json:"cursor"`
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PullResponse is one page of the central outgoing queue
type PullResponse struct {
	Records      []PullRecord `json:"records"`
	EndCursor    int64        `json:"end_cursor"`
	TotalRecords int64        `json:"total_records"`
}

// SiteInfo is what the central server knows about this site
type SiteInfo struct {
	SiteID   int32  `json:"site_id"`
	SiteUUID string `json:"site_uuid"`
}

// Client talks to the central server
type Client struct {
	http  *resty.Client
	retry *retry.Config
}

// New creates a client. retryConfig may be nil for retry.CentralDefaults.
func New(cfg Config, retryConfig *retry.Config) *Client {
	if retryConfig == nil {
		retryConfig = retry.CentralDefaults()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeaders(map[string]string{
			HeaderSiteName:     cfg.SiteName,
			HeaderSitePassword: cfg.PasswordSha256,
			HeaderSiteUUID:     cfg.SiteUUID,
			HeaderSyncVersion:  SyncVersion,
			"Accept":           "application/json",
			"Content-Type":     "application/json",
		})

	return &Client{http: httpClient, retry: retryConfig}
}

// Push sends one batch of records. The server applies records idempotently by sync_id.
func (c *Client) Push(ctx context.Context, records []PushRecord) (*PushResponse, error) {
	var resp PushResponse
	err := c.do(ctx, http.MethodPost, PushPath, func(r *resty.Request) {
		r.SetBody(PushRequest{Records: records})
	}, &resp)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"sent":       len(records),
		"integrated": resp.Integrated,
	}).Debug("Pushed batch to central server")
	return &resp, nil
}

// Pull fetches the page of the outgoing queue after cursor
func (c *Client) Pull(ctx context.Context, cursor int64, batchSize int) (*PullResponse, error) {
	var resp PullResponse
	err := c.do(ctx, http.MethodGet, PullPath, func(r *resty.Request) {
		r.SetQueryParams(map[string]string{
			"cursor":     strconv.FormatInt(cursor, 10),
			"batch_size": strconv.Itoa(batchSize),
		})
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SiteInfo checks connectivity and credentials
func (c *Client) SiteInfo(ctx context.Context) (*SiteInfo, error) {
	var info SiteInfo
	if err := c.do(ctx, http.MethodGet, SitePath, func(*resty.Request) {}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// do executes a request with retries. Client errors (4xx) and cancellation are not retried.
func (c *Client) do(ctx context.Context, method, path string, build func(*resty.Request), result any) error {
	return retry.WithOperation(ctx, c.retry, func() error {
		req := c.http.R().SetContext(ctx)
		build(req)

		resp, err := req.Execute(method, path)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(fmt.Errorf("request to %s cancelled: %w", path, ctx.Err()))
			}
			return fmt.Errorf("failed to reach central server at %s: %w", path, err)
		}

		if resp.IsError() {
			herr := &HTTPError{Endpoint: path, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
			if resp.StatusCode() < http.StatusInternalServerError {
				return retry.Permanent(herr)
			}
			return herr
		}

		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response from %s: %w", path, err))
		}
		return nil
	}, "central "+path)
}
