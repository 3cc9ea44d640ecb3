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

var (
	requisitionTypes = legacy.NewEnumMap("requisition type",
		legacy.Pair("request", repository.RequisitionTypeRequest),
		legacy.Pair("response", repository.RequisitionTypeResponse),
	)
	requisitionStatuses = legacy.NewEnumMap("requisition status",
		legacy.Pair("sg", repository.RequisitionStatusDraft),
		legacy.Pair("nw", repository.RequisitionStatusNew),
		legacy.Pair("cn", repository.RequisitionStatusSent),
		legacy.Pair("fn", repository.RequisitionStatusFinalised),
		legacy.Pair("wp", repository.RequisitionStatusFinalised),
	)
)

// Legacy requisition types used for imprest and stock history, not synced
var skippedRequisitionTypes = map[string]struct{}{
	"im": {},
	"sh": {},
}

// Requisition translates legacy requisitions
type Requisition struct{}

func (Requisition) LegacyTable() string { return legacy.TableRequisition }

func (Requisition) PullDependencies() []string {
	return []string{legacy.TableName, legacy.TableStore}
}

func (Requisition) ChangelogTables() []string { return []string{repository.TableRequisition} }

func (Requisition) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.Requisition) (PullTranslateResult, error) {
		if _, skip := skippedRequisitionTypes[legacy.NormalizeEnum(l.Type)]; skip {
			return NotMatchedPull(), nil
		}
		row, err := requisitionFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row), nil
	})
}

func (Requisition) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableRequisition), nil
}

func (Requisition) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableRequisition, repository.FindRequisitionByID, requisitionToLegacy)
}

func (Requisition) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableRequisition)
}

func requisitionFromLegacy(l *legacy.Requisition) (*repository.RequisitionRow, error) {
	reqType, ok := requisitionTypes.ToModel(l.Type)
	if !ok {
		return nil, fmt.Errorf("unknown requisition type %q", l.Type)
	}
	status, ok := requisitionStatuses.ToModel(l.Status)
	if !ok {
		return nil, fmt.Errorf("unknown requisition status %q", l.Status)
	}
	created, err := legacy.CombineDatetime(l.DateEntered, l.TimeEntered)
	if err != nil {
		return nil, err
	}
	return &repository.RequisitionRow{
		ID:                l.ID,
		RequisitionNumber: l.SerialNumber,
		NameLinkID:        l.NameID,
		StoreID:           l.StoreID,
		Type:              reqType,
		Status:            status,
		CreatedDatetime:   created,
		Comment:           legacy.StringOrNil(l.Comment),
		TheirReference:    legacy.StringOrNil(l.TheirRef),
		MaxMonthsOfStock:  l.MaxMOS,
		MinMonthsOfStock:  l.MinMOS,
	}, nil
}

func requisitionToLegacy(r *repository.RequisitionRow) (legacy.Requisition, error) {
	reqType, err := requisitionTypes.ToLegacy(r.Type)
	if err != nil {
		return legacy.Requisition{}, err
	}
	status, err := requisitionStatuses.ToLegacy(r.Status)
	if err != nil {
		return legacy.Requisition{}, err
	}
	date, secs := legacy.SplitDatetime(r.CreatedDatetime)
	return legacy.Requisition{
		ID:           r.ID,
		SerialNumber: r.RequisitionNumber,
		NameID:       r.NameLinkID,
		StoreID:      r.StoreID,
		Type:         reqType,
		Status:       status,
		DateEntered:  date,
		TimeEntered:  secs,
		Comment:      legacy.NilToEmpty(r.Comment),
		TheirRef:     legacy.NilToEmpty(r.TheirReference),
		MaxMOS:       r.MaxMonthsOfStock,
		MinMOS:       r.MinMonthsOfStock,
	}, nil
}

// RequisitionLine translates legacy requisition lines
type RequisitionLine struct{}

func (RequisitionLine) LegacyTable() string { return legacy.TableRequisitionLine }

func (RequisitionLine) PullDependencies() []string {
	return []string{legacy.TableRequisition, legacy.TableItem}
}

func (RequisitionLine) ChangelogTables() []string { return []string{repository.TableRequisitionLine} }

func (RequisitionLine) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.RequisitionLine) (PullTranslateResult, error) {
		row, err := requisitionLineFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row), nil
	})
}

func (RequisitionLine) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableRequisitionLine), nil
}

func (RequisitionLine) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableRequisitionLine, repository.FindRequisitionLineByID, requisitionLineToLegacy)
}

func (RequisitionLine) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableRequisitionLine)
}

func requisitionLineFromLegacy(l *legacy.RequisitionLine) (*repository.RequisitionLineRow, error) {
	if l.RequisitionID == "" || l.ItemID == "" {
		return nil, fmt.Errorf("requisition line without requisition or item")
	}
	return &repository.RequisitionLineRow{
		ID:                   l.ID,
		RequisitionID:        l.RequisitionID,
		ItemID:               l.ItemID,
		RequestedQuantity:    l.CustStockOrder,
		SuggestedQuantity:    l.SuggestedQuantity,
		SupplyQuantity:       l.ActualQuan,
		AvailableStockOnHand: l.StockOnHand,
		Comment:              legacy.StringOrNil(l.Comment),
	}, nil
}

func requisitionLineToLegacy(r *repository.RequisitionLineRow) (legacy.RequisitionLine, error) {
	return legacy.RequisitionLine{
		ID:                r.ID,
		RequisitionID:     r.RequisitionID,
		ItemID:            r.ItemID,
		CustStockOrder:    r.RequestedQuantity,
		SuggestedQuantity: r.SuggestedQuantity,
		ActualQuan:        r.SupplyQuantity,
		StockOnHand:       r.AvailableStockOnHand,
		Comment:           legacy.NilToEmpty(r.Comment),
	}, nil
}
