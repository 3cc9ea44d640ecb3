// Package repository reads and writes the business tables that take part in sync.
//
// FindByID, Upsert and Delete per table. Business writes go through Save / Remove
// so the changelog entry is written in the same transaction.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// Synchronized table names as recorded in the changelog
const (
	TableUnit            = "unit"
	TableItem            = "item"
	TableName            = "name"
	TableNameLink        = "name_link"
	TableStore           = "store"
	TableLocation        = "location"
	TableStockLine       = "stock_line"
	TableRequisition     = "requisition"
	TableRequisitionLine = "requisition_line"
)

// scopeColumns selects the store and name link a row belongs to, per table
var scopeColumns = map[string]string{
	TableUnit:            `NULL::text, NULL::text`,
	TableItem:            `NULL::text, NULL::text`,
	TableName:            `NULL::text, id`,
	TableNameLink:        `NULL::text, id`,
	TableStore:           `id, NULL::text`,
	TableLocation:        `store_id, NULL::text`,
	TableStockLine:       `store_id, NULL::text`,
	TableRequisition:     `store_id, name_link_id`,
	TableRequisitionLine: `NULL::text, NULL::text`,
}

// Row is implemented by every synchronized row type
type Row interface {
	Table() string
	RecordID() string
	Scope() changelog.Scope
	Upsert(ctx context.Context, q db.PgxIface) error
}

// DeleteKey identifies a row to delete
type DeleteKey struct {
	TableName string
	RecordID  string
}

// Delete removes a row by primary key and returns the scope the row had.
// Deleting a missing row is not an error and yields an empty scope.
func Delete(ctx context.Context, q db.PgxIface, key DeleteKey) (changelog.Scope, error) {
	var scope changelog.Scope
	cols, ok := scopeColumns[key.TableName]
	if !ok {
		return scope, fmt.Errorf("delete from unknown table %q", key.TableName)
	}
	sql := `DELETE FROM ` + pgx.Identifier{key.TableName}.Sanitize() + ` WHERE id = $1 RETURNING ` + cols
	err := q.QueryRow(ctx, sql, key.RecordID).Scan(&scope.StoreID, &scope.NameLinkID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return scope, fmt.Errorf("failed to delete %s/%s: %w", key.TableName, key.RecordID, err)
	}
	return scope, nil
}

// Save upserts a row on behalf of a business service and records the mutation
// in the same transaction
func Save(ctx context.Context, q db.PgxIface, row Row) error {
	return db.WithTx(ctx, q, func(tx pgx.Tx) error {
		if err := row.Upsert(ctx, tx); err != nil {
			return err
		}
		_, err := changelog.RecordMutation(ctx, tx, row.Table(), row.RecordID(), changelog.ActionUpsert, row.Scope())
		return err
	})
}

// Remove deletes a row on behalf of a business service and records the mutation
// with the scope of the deleted row, in the same transaction
func Remove(ctx context.Context, q db.PgxIface, key DeleteKey) error {
	return db.WithTx(ctx, q, func(tx pgx.Tx) error {
		scope, err := Delete(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = changelog.RecordMutation(ctx, tx, key.TableName, key.RecordID, changelog.ActionDelete, scope)
		return err
	})
}

// findOne runs a single-row lookup, mapping no rows to (false, nil)
func findOne(row pgx.Row, table, id string, dest ...any) (bool, error) {
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find %s/%s: %w", table, id, err)
	}
	return true, nil
}

func upsertErr(table, id string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to upsert %s/%s: %w", table, id, err)
}

func strPtr(s string) *string { return &s }
