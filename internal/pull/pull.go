// Package pull fetches records from the central server and integrates them locally.
package pull

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/central"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/cursor"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/translator"
)

// DefaultBatchSize is the page size requested from the central server
const DefaultBatchSize = 500

// ErrCursorNotAdvanced is returned when the server sends records without moving past the requested cursor
var ErrCursorNotAdvanced = errors.New("central server did not advance the pull cursor")

// Puller fetches pages of the central outgoing queue
type Puller interface {
	Pull(ctx context.Context, cursor int64, batchSize int) (*central.PullResponse, error)
}

// Result summarises the pull phase
type Result struct {
	Pages   int
	Records int
	Cursor  int64
}

// Pipeline moves central records into the sync buffer and from there into local tables
type Pipeline struct {
	q         db.PgxIface
	registry  *translator.Registry
	client    Puller
	batchSize int
	logger    *logrus.Entry
}

// NewPipeline creates a pull pipeline
func NewPipeline(q db.PgxIface, registry *translator.Registry, client Puller, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		q:         q,
		registry:  registry,
		client:    client,
		batchSize: batchSize,
		logger:    logrus.WithField("component", "pull"),
	}
}

// Pull pages through the central queue. Each page and the pull cursor
// are committed together.
func (p *Pipeline) Pull(ctx context.Context) (Result, error) {
	var res Result
	for {
		from, err := cursor.Get(ctx, p.q, cursor.KeyPull)
		if err != nil {
			return res, err
		}
		res.Cursor = from

		page, err := p.client.Pull(ctx, from, p.batchSize)
		if err != nil {
			return res, fmt.Errorf("failed to pull after cursor %d: %w", from, err)
		}
		if len(page.Records) == 0 {
			return res, nil
		}
		if page.EndCursor <= from {
			return res, fmt.Errorf("%w: page after cursor %d ends at %d", ErrCursorNotAdvanced, from, page.EndCursor)
		}

		entries := make([]buffer.Entry, 0, len(page.Records))
		for _, r := range page.Records {
			entries = append(entries, buffer.Entry{
				RecordID:  r.RecordID,
				TableName: r.TableName,
				Action:    changelog.Action(strings.ToUpper(r.Action)),
				Data:      r.Data,
			})
		}

		err = db.WithTx(ctx, p.q, func(tx pgx.Tx) error {
			if err := buffer.Upsert(ctx, tx, entries); err != nil {
				return err
			}
			return cursor.Advance(ctx, tx, cursor.KeyPull, page.EndCursor)
		})
		if err != nil {
			return res, err
		}

		res.Pages++
		res.Records += len(entries)
		res.Cursor = page.EndCursor
		p.logger.WithFields(logrus.Fields{
			"from":    from,
			"to":      page.EndCursor,
			"records": len(entries),
			"total":   page.TotalRecords,
		}).Info("Pulled page into sync buffer")

		if page.EndCursor >= page.TotalRecords {
			return res, nil
		}
	}
}

// Purge removes buffered records integrated longer than retention ago
func (p *Pipeline) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return buffer.Purge(ctx, p.q, time.Now().Add(-retention))
}
