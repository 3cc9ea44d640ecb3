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

var itemTypes = legacy.NewEnumMap("item type",
	legacy.Pair("general", repository.ItemTypeStock),
	legacy.Pair("service", repository.ItemTypeService),
	legacy.Pair("non_stock", repository.ItemTypeNonStock),
)

// legacyItemTypeCrossReference marks alias items that have no internal counterpart
const legacyItemTypeCrossReference = "cross_reference"

// Item translates legacy catalogue items
type Item struct{}

func (Item) LegacyTable() string        { return legacy.TableItem }
func (Item) PullDependencies() []string { return []string{legacy.TableUnit} }
func (Item) ChangelogTables() []string  { return []string{repository.TableItem} }

func (Item) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.Item) (PullTranslateResult, error) {
		if legacy.NormalizeEnum(l.TypeOf) == legacyItemTypeCrossReference {
			return NotMatchedPull(), nil
		}
		row, err := itemFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row), nil
	})
}

func (Item) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableItem), nil
}

func (Item) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableItem, repository.FindItemByID, itemToLegacy)
}

func (Item) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableItem)
}

func itemFromLegacy(l *legacy.Item) (*repository.ItemRow, error) {
	itemType, ok := itemTypes.ToModel(l.TypeOf)
	if !ok {
		return nil, fmt.Errorf("unknown item type %q", l.TypeOf)
	}
	return &repository.ItemRow{
		ID:              l.ID,
		Name:            l.ItemName,
		Code:            l.Code,
		UnitID:          legacy.StringOrNil(l.UnitID),
		Type:            itemType,
		DefaultPackSize: l.DefaultPackSize,
		IsActive:        l.Active,
	}, nil
}

func itemToLegacy(r *repository.ItemRow) (legacy.Item, error) {
	typeOf, err := itemTypes.ToLegacy(r.Type)
	if err != nil {
		return legacy.Item{}, err
	}
	return legacy.Item{
		ID:              r.ID,
		ItemName:        r.Name,
		Code:            r.Code,
		UnitID:          legacy.NilToEmpty(r.UnitID),
		TypeOf:          typeOf,
		DefaultPackSize: r.DefaultPackSize,
		Active:          r.IsActive,
	}, nil
}
