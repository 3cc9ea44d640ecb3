package repository

import (
	"context"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// UnitRow is a unit of measure
type UnitRow struct {
	ID          string
	Name        string
	Description *string
	Index       int32
	IsActive    bool
}

func (r *UnitRow) Table() string          { return TableUnit }
func (r *UnitRow) RecordID() string       { return r.ID }
func (r *UnitRow) Scope() changelog.Scope { return changelog.Scope{} }

// Upsert inserts or replaces the unit
func (r *UnitRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO unit (id, name, description, unit_index, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, description = EXCLUDED.description,
		unit_index = EXCLUDED.unit_index, is_active = EXCLUDED.is_active`,
		r.ID, r.Name, r.Description, r.Index, r.IsActive)
	return upsertErr(TableUnit, r.ID, err)
}

// FindUnitByID returns the unit or nil when it does not exist
func FindUnitByID(ctx context.Context, q db.PgxIface, id string) (*UnitRow, error) {
	var r UnitRow
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, name, description, unit_index, is_active FROM unit WHERE id = $1`, id),
		TableUnit, id, &r.ID, &r.Name, &r.Description, &r.Index, &r.IsActive)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}
