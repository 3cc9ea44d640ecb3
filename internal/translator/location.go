package translator

import (
	"context"
	"fmt"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/legacy"
	"github.com/cybertec-postgresql/sitesync/internal/repository"
)

// Location translates legacy storage locations
type Location struct{}

func (Location) LegacyTable() string        { return legacy.TableLocation }
func (Location) PullDependencies() []string { return []string{legacy.TableStore} }
func (Location) ChangelogTables() []string  { return []string{repository.TableLocation} }

func (Location) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.Location) (PullTranslateResult, error) {
		row, err := locationFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row), nil
	})
}

func (Location) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableLocation), nil
}

func (Location) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableLocation, repository.FindLocationByID, locationToLegacy)
}

func (Location) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableLocation)
}

func locationFromLegacy(l *legacy.Location) (*repository.LocationRow, error) {
	if l.StoreID == "" {
		return nil, fmt.Errorf("location without store")
	}
	return &repository.LocationRow{
		ID:      l.ID,
		Name:    l.Description,
		Code:    l.Code,
		OnHold:  l.Hold,
		StoreID: l.StoreID,
	}, nil
}

func locationToLegacy(r *repository.LocationRow) (legacy.Location, error) {
	return legacy.Location{
		ID:          r.ID,
		Description: r.Name,
		Code:        r.Code,
		Hold:        r.OnHold,
		StoreID:     r.StoreID,
	}, nil
}
