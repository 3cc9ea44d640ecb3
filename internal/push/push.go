// Package push ships local changelog entries to the central server.
package push

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/central"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/cursor"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/translator"
)

// DefaultBatchSize is the number of changelog entries read per batch
const DefaultBatchSize = 500

// Pusher sends a batch of records to the central server
type Pusher interface {
	Push(ctx context.Context, records []central.PushRecord) (*central.PushResponse, error)
}

// Result summarises one run of the pipeline
type Result struct {
	Batches int
	Entries int
	Pushed  int
	Skipped int
	Cursor  int64
}

// Pipeline pushes changelog entries in cursor order
type Pipeline struct {
	q         db.PgxIface
	registry  *translator.Registry
	client    Pusher
	batchSize int
	site      uuid.UUID
	logger    *logrus.Entry
}

// NewPipeline creates a push pipeline. site seeds the sync ids of pushed records.
func NewPipeline(q db.PgxIface, registry *translator.Registry, client Pusher, site uuid.UUID, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		q:         q,
		registry:  registry,
		client:    client,
		batchSize: batchSize,
		site:      site,
		logger:    logrus.WithField("component", "push"),
	}
}

// SyncID derives the idempotency key of a pushed record. Replaying the same
// changelog entry always yields the same key.
func SyncID(site uuid.UUID, cursor int64, legacyTable, recordID string) string {
	name := strconv.FormatInt(cursor, 10) + "/" + legacyTable + "/" + recordID
	return uuid.NewSHA1(site, []byte(name)).String()
}

// Run pushes batches until the changelog is exhausted. The push cursor only
// moves after the central server acknowledged a batch.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result
	for {
		from, err := cursor.Get(ctx, p.q, cursor.KeyPush)
		if err != nil {
			return res, err
		}
		res.Cursor = from

		entries, err := changelog.Query(ctx, p.q, from, p.batchSize)
		if err != nil {
			return res, err
		}
		if len(entries) == 0 {
			return res, nil
		}

		records, skipped, err := p.translate(ctx, entries)
		if err != nil {
			return res, err
		}

		last := entries[len(entries)-1].Cursor
		if len(records) > 0 {
			if _, err := p.client.Push(ctx, records); err != nil {
				return res, fmt.Errorf("failed to push batch after cursor %d: %w", from, err)
			}
		}
		if err := cursor.Advance(ctx, p.q, cursor.KeyPush, last); err != nil {
			return res, err
		}

		res.Batches++
		res.Entries += len(entries)
		res.Pushed += len(records)
		res.Skipped += skipped
		res.Cursor = last

		p.logger.WithFields(logrus.Fields{
			"from":    from,
			"to":      last,
			"records": len(records),
			"skipped": skipped,
		}).Info("Pushed changelog batch")
	}
}

// translate converts a batch; any translation error fails the whole batch
func (p *Pipeline) translate(ctx context.Context, entries []changelog.Entry) ([]central.PushRecord, int, error) {
	var (
		records []central.PushRecord
		skipped int
	)
	for _, e := range entries {
		if e.IsSyncUpdate {
			skipped++
			continue
		}
		translators := p.registry.ForChangelogTable(e.TableName)
		if len(translators) == 0 {
			p.logger.WithFields(logrus.Fields{
				"table":  e.TableName,
				"cursor": e.Cursor,
			}).Debug("No translator pushes table, skipping")
			skipped++
			continue
		}

		for _, t := range translators {
			var (
				out translator.PushTranslateResult
				err error
			)
			if e.Action == changelog.ActionDelete {
				out, err = t.TryTranslateToDelete(ctx, p.q, e)
			} else {
				out, err = t.TryTranslateToUpsert(ctx, p.q, e)
			}
			if err != nil {
				return nil, 0, fmt.Errorf("failed to translate changelog entry %d: %w", e.Cursor, err)
			}
			if out.NotMatched {
				continue
			}
			for _, rec := range out.Records {
				records = append(records, central.PushRecord{
					TableName: rec.TableName,
					RecordID:  rec.RecordID,
					SyncID:    SyncID(p.site, e.Cursor, rec.TableName, rec.RecordID),
					Action:    string(rec.Action),
					StoreID:   rec.StoreID,
					Data:      rec.Data,
				})
			}
		}
	}
	return records, skipped, nil
}

// Pending returns how many local changes have not been pushed yet
func Pending(ctx context.Context, q db.PgxIface) (int64, error) {
	from, err := cursor.Get(ctx, q, cursor.KeyPush)
	if err != nil {
		return 0, err
	}
	return changelog.CountOutgoing(ctx, q, from)
}
