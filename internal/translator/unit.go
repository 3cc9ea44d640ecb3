package translator

import (
	"context"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/legacy"
	"github.com/cybertec-postgresql/sitesync/internal/repository"
)

// Unit translates legacy units
type Unit struct{}

func (Unit) LegacyTable() string        { return legacy.TableUnit }
func (Unit) PullDependencies() []string { return nil }
func (Unit) ChangelogTables() []string  { return []string{repository.TableUnit} }

func (Unit) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.Unit) (PullTranslateResult, error) {
		return Upserts(unitFromLegacy(l)), nil
	})
}

func (Unit) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableUnit), nil
}

func (Unit) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableUnit, repository.FindUnitByID, unitToLegacy)
}

func (Unit) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableUnit)
}

func unitFromLegacy(l *legacy.Unit) *repository.UnitRow {
	return &repository.UnitRow{
		ID:          l.ID,
		Name:        l.Units,
		Description: legacy.StringOrNil(l.Comment),
		Index:       l.OrderNumber,
		IsActive:    l.Active,
	}
}

func unitToLegacy(r *repository.UnitRow) (legacy.Unit, error) {
	return legacy.Unit{
		ID:          r.ID,
		Units:       r.Name,
		Comment:     legacy.NilToEmpty(r.Description),
		OrderNumber: r.Index,
		Active:      r.IsActive,
	}, nil
}
