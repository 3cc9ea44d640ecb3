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

var storeModes = legacy.NewEnumMap("store mode",
	legacy.Pair("store", repository.StoreModeStore),
	legacy.Pair("dispensary", repository.StoreModeDispensary),
)

// Legacy store types that have no internal counterpart
var skippedStoreTypes = map[string]struct{}{
	"drug_registration": {},
	"supervisor":        {},
	"hq":                {},
}

// Store translates legacy stores
type Store struct{}

func (Store) LegacyTable() string        { return legacy.TableStore }
func (Store) PullDependencies() []string { return []string{legacy.TableName} }
func (Store) ChangelogTables() []string  { return []string{repository.TableStore} }

func (Store) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.Store) (PullTranslateResult, error) {
		if _, skip := skippedStoreTypes[legacy.NormalizeEnum(l.Type)]; skip {
			return NotMatchedPull(), nil
		}
		row, err := storeFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row), nil
	})
}

func (Store) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableStore), nil
}

func (Store) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableStore, repository.FindStoreByID, storeToLegacy)
}

func (Store) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableStore)
}

func storeFromLegacy(l *legacy.Store) (*repository.StoreRow, error) {
	if l.NameID == "" {
		return nil, fmt.Errorf("store without name")
	}
	mode, ok := storeModes.ToModel(l.StoreMode)
	if !ok {
		// older central servers leave store_mode empty
		if legacy.NormalizeEnum(l.StoreMode) != "" {
			return nil, fmt.Errorf("unknown store mode %q", l.StoreMode)
		}
		mode = repository.StoreModeStore
	}
	return &repository.StoreRow{
		ID:         l.ID,
		NameLinkID: l.NameID,
		Code:       l.Code,
		SiteID:     l.SyncIDRemoteSite,
		StoreMode:  mode,
		Disabled:   l.Disabled,
	}, nil
}

func storeToLegacy(r *repository.StoreRow) (legacy.Store, error) {
	mode, err := storeModes.ToLegacy(r.StoreMode)
	if err != nil {
		return legacy.Store{}, err
	}
	return legacy.Store{
		ID:               r.ID,
		NameID:           r.NameLinkID,
		Code:             r.Code,
		SyncIDRemoteSite: r.SiteID,
		StoreMode:        mode,
		Type:             "store",
		Disabled:         r.Disabled,
	}, nil
}
