package repository

import (
	"context"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// StoreMode distinguishes ordinary stores from dispensaries
type StoreMode string

const (
	StoreModeStore      StoreMode = "STORE"
	StoreModeDispensary StoreMode = "DISPENSARY"
)

// StoreRow is a store and the site it is active on
type StoreRow struct {
	ID         string
	NameLinkID string
	Code       string
	SiteID     int32
	StoreMode  StoreMode
	Disabled   bool
}

func (r *StoreRow) Table() string          { return TableStore }
func (r *StoreRow) RecordID() string       { return r.ID }
func (r *StoreRow) Scope() changelog.Scope { return changelog.Scope{StoreID: strPtr(r.ID)} }

// Upsert inserts or replaces the store
func (r *StoreRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO store (id, name_link_id, code, site_id, store_mode, disabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		name_link_id = EXCLUDED.name_link_id, code = EXCLUDED.code, site_id = EXCLUDED.site_id,
		store_mode = EXCLUDED.store_mode, disabled = EXCLUDED.disabled`,
		r.ID, r.NameLinkID, r.Code, r.SiteID, string(r.StoreMode), r.Disabled)
	return upsertErr(TableStore, r.ID, err)
}

// FindStoreByID returns the store or nil when it does not exist
func FindStoreByID(ctx context.Context, q db.PgxIface, id string) (*StoreRow, error) {
	var (
		r    StoreRow
		mode string
	)
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, name_link_id, code, site_id, store_mode, disabled FROM store WHERE id = $1`, id),
		TableStore, id, &r.ID, &r.NameLinkID, &r.Code, &r.SiteID, &mode, &r.Disabled)
	if err != nil || !found {
		return nil, err
	}
	r.StoreMode = StoreMode(mode)
	return &r, nil
}

// LocationRow is a shelf or room inside a store
type LocationRow struct {
	ID      string
	Name    string
	Code    string
	OnHold  bool
	StoreID string
}

func (r *LocationRow) Table() string          { return TableLocation }
func (r *LocationRow) RecordID() string       { return r.ID }
func (r *LocationRow) Scope() changelog.Scope { return changelog.Scope{StoreID: strPtr(r.StoreID)} }

// Upsert inserts or replaces the location
func (r *LocationRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO location (id, name, code, on_hold, store_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, code = EXCLUDED.code, on_hold = EXCLUDED.on_hold, store_id = EXCLUDED.store_id`,
		r.ID, r.Name, r.Code, r.OnHold, r.StoreID)
	return upsertErr(TableLocation, r.ID, err)
}

// FindLocationByID returns the location or nil when it does not exist
func FindLocationByID(ctx context.Context, q db.PgxIface, id string) (*LocationRow, error) {
	var r LocationRow
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, name, code, on_hold, store_id FROM location WHERE id = $1`, id),
		TableLocation, id, &r.ID, &r.Name, &r.Code, &r.OnHold, &r.StoreID)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}
