package repository

import (
	"context"
	"time"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// RequisitionType is the direction of a requisition
type RequisitionType string

const (
	RequisitionTypeRequest  RequisitionType = "REQUEST"
	RequisitionTypeResponse RequisitionType = "RESPONSE"
)

// RequisitionStatus is the workflow state of a requisition
type RequisitionStatus string

const (
	RequisitionStatusDraft     RequisitionStatus = "DRAFT"
	RequisitionStatusNew       RequisitionStatus = "NEW"
	RequisitionStatusSent      RequisitionStatus = "SENT"
	RequisitionStatusFinalised RequisitionStatus = "FINALISED"
)

// RequisitionRow is a stock request between two stores
type RequisitionRow struct {
	ID                string
	RequisitionNumber int64
	NameLinkID        string
	StoreID           string
	Type              RequisitionType
	Status            RequisitionStatus
	CreatedDatetime   time.Time
	Comment           *string
	TheirReference    *string
	MaxMonthsOfStock  float64
	MinMonthsOfStock  float64
}

func (r *RequisitionRow) Table() string    { return TableRequisition }
func (r *RequisitionRow) RecordID() string { return r.ID }
func (r *RequisitionRow) Scope() changelog.Scope {
	return changelog.Scope{StoreID: strPtr(r.StoreID), NameLinkID: strPtr(r.NameLinkID)}
}

// Upsert inserts or replaces the requisition
func (r *RequisitionRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO requisition (id, requisition_number, name_link_id, store_id, type, status,
		created_datetime, comment, their_reference, max_months_of_stock, min_months_of_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
		requisition_number = EXCLUDED.requisition_number, name_link_id = EXCLUDED.name_link_id,
		store_id = EXCLUDED.store_id, type = EXCLUDED.type, status = EXCLUDED.status,
		created_datetime = EXCLUDED.created_datetime, comment = EXCLUDED.comment,
		their_reference = EXCLUDED.their_reference, max_months_of_stock = EXCLUDED.max_months_of_stock,
		min_months_of_stock = EXCLUDED.min_months_of_stock`,
		r.ID, r.RequisitionNumber, r.NameLinkID, r.StoreID, string(r.Type), string(r.Status),
		r.CreatedDatetime, r.Comment, r.TheirReference, r.MaxMonthsOfStock, r.MinMonthsOfStock)
	return upsertErr(TableRequisition, r.ID, err)
}

// FindRequisitionByID returns the requisition or nil when it does not exist
func FindRequisitionByID(ctx context.Context, q db.PgxIface, id string) (*RequisitionRow, error) {
	var (
		r              RequisitionRow
		reqType, state string
	)
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, requisition_number, name_link_id, store_id, type, status, created_datetime,
		comment, their_reference, max_months_of_stock, min_months_of_stock
		FROM requisition WHERE id = $1`, id),
		TableRequisition, id,
		&r.ID, &r.RequisitionNumber, &r.NameLinkID, &r.StoreID, &reqType, &state, &r.CreatedDatetime,
		&r.Comment, &r.TheirReference, &r.MaxMonthsOfStock, &r.MinMonthsOfStock)
	if err != nil || !found {
		return nil, err
	}
	r.Type = RequisitionType(reqType)
	r.Status = RequisitionStatus(state)
	return &r, nil
}

// RequisitionLineRow is one item on a requisition
type RequisitionLineRow struct {
	ID                   string
	RequisitionID        string
	ItemID               string
	RequestedQuantity    float64
	SuggestedQuantity    float64
	SupplyQuantity       float64
	AvailableStockOnHand float64
	Comment              *string
}

func (r *RequisitionLineRow) Table() string          { return TableRequisitionLine }
func (r *RequisitionLineRow) RecordID() string       { return r.ID }
func (r *RequisitionLineRow) Scope() changelog.Scope { return changelog.Scope{} }

// Upsert inserts or replaces the requisition line
func (r *RequisitionLineRow) Upsert(ctx context.Context, q db.PgxIface) error {
	_, err := q.Exec(ctx,
		`INSERT INTO requisition_line (id, requisition_id, item_id, requested_quantity, suggested_quantity,
		supply_quantity, available_stock_on_hand, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
		requisition_id = EXCLUDED.requisition_id, item_id = EXCLUDED.item_id,
		requested_quantity = EXCLUDED.requested_quantity, suggested_quantity = EXCLUDED.suggested_quantity,
		supply_quantity = EXCLUDED.supply_quantity, available_stock_on_hand = EXCLUDED.available_stock_on_hand,
		comment = EXCLUDED.comment`,
		r.ID, r.RequisitionID, r.ItemID, r.RequestedQuantity, r.SuggestedQuantity,
		r.SupplyQuantity, r.AvailableStockOnHand, r.Comment)
	return upsertErr(TableRequisitionLine, r.ID, err)
}

// FindRequisitionLineByID returns the line or nil when it does not exist
func FindRequisitionLineByID(ctx context.Context, q db.PgxIface, id string) (*RequisitionLineRow, error) {
	var r RequisitionLineRow
	found, err := findOne(q.QueryRow(ctx,
		`SELECT id, requisition_id, item_id, requested_quantity, suggested_quantity, supply_quantity,
		available_stock_on_hand, comment FROM requisition_line WHERE id = $1`, id),
		TableRequisitionLine, id,
		&r.ID, &r.RequisitionID, &r.ItemID, &r.RequestedQuantity, &r.SuggestedQuantity, &r.SupplyQuantity,
		&r.AvailableStockOnHand, &r.Comment)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}
