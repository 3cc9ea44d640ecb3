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

// StockLine translates legacy item lines into stock lines
type StockLine struct{}

func (StockLine) LegacyTable() string { return legacy.TableItemLine }

func (StockLine) PullDependencies() []string {
	return []string{legacy.TableItem, legacy.TableStore, legacy.TableLocation, legacy.TableName}
}

func (StockLine) ChangelogTables() []string { return []string{repository.TableStockLine} }

func (StockLine) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.ItemLine) (PullTranslateResult, error) {
		row, err := stockLineFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row), nil
	})
}

func (StockLine) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableStockLine), nil
}

func (StockLine) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableItemLine, repository.FindStockLineByID, stockLineToLegacy)
}

func (StockLine) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableItemLine)
}

func stockLineFromLegacy(l *legacy.ItemLine) (*repository.StockLineRow, error) {
	if l.ItemID == "" || l.StoreID == "" {
		return nil, fmt.Errorf("item line without item or store")
	}
	expiry, err := legacy.ParseDate(l.ExpiryDate)
	if err != nil {
		return nil, err
	}
	return &repository.StockLineRow{
		ID:                     l.ID,
		ItemID:                 l.ItemID,
		StoreID:                l.StoreID,
		LocationID:             legacy.StringOrNil(l.LocationID),
		Batch:                  legacy.StringOrNil(l.Batch),
		ExpiryDate:             expiry,
		PackSize:               l.PackSize,
		CostPricePerPack:       l.CostPrice,
		SellPricePerPack:       l.SellPrice,
		AvailableNumberOfPacks: l.Available,
		TotalNumberOfPacks:     l.Quantity,
		OnHold:                 l.Hold,
		Note:                   legacy.StringOrNil(l.Note),
		SupplierLinkID:         legacy.StringOrNil(l.NameID),
	}, nil
}

func stockLineToLegacy(r *repository.StockLineRow) (legacy.ItemLine, error) {
	return legacy.ItemLine{
		ID:         r.ID,
		ItemID:     r.ItemID,
		StoreID:    r.StoreID,
		LocationID: legacy.NilToEmpty(r.LocationID),
		Batch:      legacy.NilToEmpty(r.Batch),
		ExpiryDate: legacy.FormatDate(r.ExpiryDate),
		PackSize:   r.PackSize,
		CostPrice:  r.CostPricePerPack,
		SellPrice:  r.SellPricePerPack,
		Available:  r.AvailableNumberOfPacks,
		Quantity:   r.TotalNumberOfPacks,
		Hold:       r.OnHold,
		Note:       legacy.NilToEmpty(r.Note),
		NameID:     legacy.NilToEmpty(r.SupplierLinkID),
	}, nil
}
