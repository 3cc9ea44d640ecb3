package repository

import (
	"context"
	"time"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// StockLineRow is a batch of an item held by a store
type StockLineRow struct {
	ID                     string
	ItemID                 string
	StoreID                string
	LocationID             *string
	Batch                  *string
	ExpiryDate             *time.Time
	PackSize               float64
	CostPricePerPack       float64
	SellPricePerPack       float64
	AvailableNumberOfPacks float64
	TotalNumberOfPacks     float64
	OnHold                 bool
	Note                   *string
	SupplierLinkID         *string
}

func (r *StockLineRow) Table() string          { return TableStockLine }
func (r *StockLineRow) RecordID() string       { return r.ID }
func (r *StockLineRow) Scope() changelog.Scope { return changelog.Scope{StoreID: strPtr(r.StoreID)} }

const stockLineColumns = `id, item_id, store_id, location_id, batch, expiry_date, pack_size,
	cost_price_per_pack, sell_price_per_pack, available_number_of_packs, total_number_of_packs,
	on_hold, note, supplier_link_id`

// Upsert inserts or replaces the stock line
func (r *StockLineRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO stock_line (`+stockLineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
		item_id = EXCLUDED.item_id, store_id = EXCLUDED.store_id, location_id = EXCLUDED.location_id,
		batch = EXCLUDED.batch, expiry_date = EXCLUDED.expiry_date, pack_size = EXCLUDED.pack_size,
		cost_price_per_pack = EXCLUDED.cost_price_per_pack, sell_price_per_pack = EXCLUDED.sell_price_per_pack,
		available_number_of_packs = EXCLUDED.available_number_of_packs,
		total_number_of_packs = EXCLUDED.total_number_of_packs,
		on_hold = EXCLUDED.on_hold, note = EXCLUDED.note, supplier_link_id = EXCLUDED.supplier_link_id`,
		r.ID, r.ItemID, r.StoreID, r.LocationID, r.Batch, r.ExpiryDate, r.PackSize,
		r.CostPricePerPack, r.SellPricePerPack, r.AvailableNumberOfPacks, r.TotalNumberOfPacks,
		r.OnHold, r.Note, r.SupplierLinkID)
	return upsertErr(TableStockLine, r.ID, err)
}

// FindStockLineByID returns the stock line or nil when it does not exist
func FindStockLineByID(ctx context.Context, q db.PgxIface, id string) (*StockLineRow, error) {
	var r StockLineRow
	found, err := findOne(q.QueryRow(ctx, `SELECT `+stockLineColumns+` FROM stock_line WHERE id = $1`, id),
		TableStockLine, id,
		&r.ID, &r.ItemID, &r.StoreID, &r.LocationID, &r.Batch, &r.ExpiryDate, &r.PackSize,
		&r.CostPricePerPack, &r.SellPricePerPack, &r.AvailableNumberOfPacks, &r.TotalNumberOfPacks,
		&r.OnHold, &r.Note, &r.SupplierLinkID)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}
