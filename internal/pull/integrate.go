package pull

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/translator"
)

// IntegrationResult summarises one integration pass
type IntegrationResult struct {
	Integrated int
	NotMatched int
	Failed     int

	// Blocked lists the pending tables left untouched after a table failed to integrate
	Blocked []string
}

func (r *IntegrationResult) add(o IntegrationResult) {
	r.Integrated += o.Integrated
	r.NotMatched += o.NotMatched
	r.Failed += o.Failed
}

// Integrate applies pending buffered records table by table in dependency
// order, one transaction per table. Rows that fail translation keep their
// error and stay pending. A database error rolls back the current table and
// ends the pass.
func (p *Pipeline) Integrate(ctx context.Context) (IntegrationResult, error) {
	var res IntegrationResult

	tables, err := buffer.PendingTables(ctx, p.q)
	if err != nil {
		return res, err
	}
	pending := make(map[string]bool, len(tables))
	for _, table := range tables {
		if _, ok := p.registry.ForLegacyTable(table); ok {
			pending[table] = true
			continue
		}
		n, err := p.notMatchedTable(ctx, table)
		if err != nil {
			return res, err
		}
		res.NotMatched += n
	}

	ordered := p.registry.Ordered()
	for i, t := range ordered {
		if !pending[t.LegacyTable()] {
			continue
		}
		var group IntegrationResult
		err := db.WithTx(ctx, p.q, func(tx pgx.Tx) error {
			group = IntegrationResult{}
			return p.integrateTable(ctx, tx, t, &group)
		})
		if err != nil {
			for _, later := range ordered[i+1:] {
				if pending[later.LegacyTable()] {
					res.Blocked = append(res.Blocked, later.LegacyTable())
				}
			}
			if len(res.Blocked) > 0 {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"table":   t.LegacyTable(),
					"blocked": res.Blocked,
				}).Warn("Integration pass stopped, later tables stay pending")
			}
			return res, fmt.Errorf("failed to integrate %s: %w", t.LegacyTable(), err)
		}
		res.add(group)

		p.logger.WithFields(logrus.Fields{
			"table":       t.LegacyTable(),
			"integrated":  group.Integrated,
			"not_matched": group.NotMatched,
			"failed":      group.Failed,
		}).Info("Integrated table")
	}
	return res, nil
}

// notMatchedTable reports buffered rows no translator claims. They are left untouched.
func (p *Pipeline) notMatchedTable(ctx context.Context, table string) (int, error) {
	entries, err := buffer.Pending(ctx, p.q, table)
	if err != nil {
		return 0, err
	}
	p.logger.WithFields(logrus.Fields{
		"table":   table,
		"records": len(entries),
	}).Debug("No translator for buffered table, not matched")
	return len(entries), nil
}

func (p *Pipeline) integrateTable(ctx context.Context, tx pgx.Tx, t translator.Translator, res *IntegrationResult) error {
	entries, err := buffer.Pending(ctx, tx, t.LegacyTable())
	if err != nil {
		return err
	}

	for _, e := range entries {
		out, err := translatePull(ctx, tx, t, e)
		var terr *translator.TranslationError
		if errors.As(err, &terr) {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"table":     e.TableName,
				"record_id": e.RecordID,
			}).Error("Failed to translate buffered record, will retry")
			if err := buffer.MarkError(ctx, tx, e.TableName, e.RecordID, terr.Error()); err != nil {
				return err
			}
			res.Failed++
			continue
		}
		if err != nil {
			return err
		}

		if out.NotMatched {
			res.NotMatched++
		} else {
			for _, op := range out.Operations {
				if err := op.Apply(ctx, tx); err != nil {
					return err
				}
			}
			res.Integrated++
		}
		if err := buffer.MarkIntegrated(ctx, tx, e.TableName, e.RecordID); err != nil {
			return err
		}
	}
	return nil
}

func translatePull(ctx context.Context, q db.PgxIface, t translator.Translator, e buffer.Entry) (translator.PullTranslateResult, error) {
	switch e.Action {
	case changelog.ActionUpsert:
		return t.TryTranslateFromUpsert(ctx, q, e)
	case changelog.ActionDelete:
		return t.TryTranslateFromDelete(ctx, q, e)
	default:
		return translator.PullTranslateResult{}, &translator.TranslationError{
			Table:    e.TableName,
			RecordID: e.RecordID,
			Err:      fmt.Errorf("unknown action %q", e.Action),
		}
	}
}
