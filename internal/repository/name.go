package repository

import (
	"context"
	"time"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// NameType classifies a name (customer, supplier, patient, ...)
type NameType string

const (
	NameTypeFacility NameType = "FACILITY"
	NameTypePatient  NameType = "PATIENT"
	NameTypeBuild    NameType = "BUILD"
	NameTypeInvad    NameType = "INVAD"
	NameTypeRepack   NameType = "REPACK"
	NameTypeStore    NameType = "STORE"
	NameTypeOthers   NameType = "OTHERS"
)

// NameRow is a customer, supplier, patient or store name
type NameRow struct {
	ID          string
	Name        string
	Code        string
	Type        NameType
	IsCustomer  bool
	IsSupplier  bool
	FirstName   *string
	LastName    *string
	DateOfBirth *time.Time
	Phone       *string
	Email       *string
	Comment     *string
}

func (r *NameRow) Table() string          { return TableName }
func (r *NameRow) RecordID() string       { return r.ID }
func (r *NameRow) Scope() changelog.Scope { return changelog.Scope{NameLinkID: strPtr(r.ID)} }

// Upsert inserts or replaces the name
func (r *NameRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO name (id, name, code, type, is_customer, is_supplier, first_name, last_name, date_of_birth, phone, email, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, code = EXCLUDED.code, type = EXCLUDED.type,
		is_customer = EXCLUDED.is_customer, is_supplier = EXCLUDED.is_supplier,
		first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, date_of_birth = EXCLUDED.date_of_birth,
		phone = EXCLUDED.phone, email = EXCLUDED.email, comment = EXCLUDED.comment`,
		r.ID, r.Name, r.Code, string(r.Type), r.IsCustomer, r.IsSupplier,
		r.FirstName, r.LastName, r.DateOfBirth, r.Phone, r.Email, r.Comment)
	return upsertErr(TableName, r.ID, err)
}

// FindNameByID returns the name or nil when it does not exist
func FindNameByID(ctx context.Context, q db.PgxIface, id string) (*NameRow, error) {
	var (
		r        NameRow
		nameType string
	)
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, name, code, type, is_customer, is_supplier, first_name, last_name, date_of_birth, phone, email, comment
		FROM name WHERE id = $1`, id),
		TableName, id, &r.ID, &r.Name, &r.Code, &nameType, &r.IsCustomer, &r.IsSupplier,
		&r.FirstName, &r.LastName, &r.DateOfBirth, &r.Phone, &r.Email, &r.Comment)
	if err != nil || !found {
		return nil, err
	}
	r.Type = NameType(nameType)
	return &r, nil
}

// NameLinkRow points at the name a record refers to. Merged names keep their links.
type NameLinkRow struct {
	ID     string
	NameID string
}

func (r *NameLinkRow) Table() string          { return TableNameLink }
func (r *NameLinkRow) RecordID() string       { return r.ID }
func (r *NameLinkRow) Scope() changelog.Scope { return changelog.Scope{NameLinkID: strPtr(r.ID)} }

// Upsert inserts the link or repoints it at another name
func (r *NameLinkRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO name_link (id, name_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name_id = EXCLUDED.name_id`,
		r.ID, r.NameID)
	return upsertErr(TableNameLink, r.ID, err)
}

// FindNameLinkByID returns the link or nil when it does not exist
func FindNameLinkByID(ctx context.Context, q db.PgxIface, id string) (*NameLinkRow, error) {
	var r NameLinkRow
	found, err := findOne(q.QueryRow(ctx, `SELECT id, name_id FROM name_link WHERE id = $1`, id),
		TableNameLink, id, &r.ID, &r.NameID)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}
