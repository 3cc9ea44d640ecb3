package repository

import (
	"context"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// ItemType classifies an item
type ItemType string

const (
	ItemTypeStock    ItemType = "STOCK"
	ItemTypeService  ItemType = "SERVICE"
	ItemTypeNonStock ItemType = "NON_STOCK"
)

// ItemRow is a catalogue item
type ItemRow struct {
	ID              string
	Name            string
	Code            string
	UnitID          *string
	Type            ItemType
	DefaultPackSize float64
	IsActive        bool
}

func (r *ItemRow) Table() string          { return TableItem }
func (r *ItemRow) RecordID() string       { return r.ID }
func (r *ItemRow) Scope() changelog.Scope { return changelog.Scope{} }

// Upsert inserts or replaces the item
func (r *ItemRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO item (id, name, code, unit_id, type, default_pack_size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, code = EXCLUDED.code, unit_id = EXCLUDED.unit_id, type = EXCLUDED.type,
		default_pack_size = EXCLUDED.default_pack_size, is_active = EXCLUDED.is_active`,
		r.ID, r.Name, r.Code, r.UnitID, string(r.Type), r.DefaultPackSize, r.IsActive)
	return upsertErr(TableItem, r.ID, err)
}

// FindItemByID returns the item or nil when it does not exist
func FindItemByID(ctx context.Context, q db.PgxIface, id string) (*ItemRow, error) {
	var (
		r        ItemRow
		itemType string
	)
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, name, code, unit_id, type, default_pack_size, is_active FROM item WHERE id = $1`, id),
		TableItem, id, &r.ID, &r.Name, &r.Code, &r.UnitID, &itemType, &r.DefaultPackSize, &r.IsActive)
	if err != nil || !found {
		return nil, err
	}
	r.Type = ItemType(itemType)
	return &r, nil
}
