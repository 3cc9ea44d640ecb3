// Package translator converts records between internal rows and their legacy wire form.
package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/repository"
)

// Translator maps one legacy table in both directions
type Translator interface {
	// LegacyTable is the wire table this translator claims on pull
	LegacyTable() string
	// PullDependencies lists legacy tables that must be integrated first
	PullDependencies() []string
	// ChangelogTables lists internal tables this translator pushes
	ChangelogTables() []string

	TryTranslateFromUpsert(ctx context.Context, q db.PgxIface, e buffer.Entry) (PullTranslateResult, error)
	TryTranslateFromDelete(ctx context.Context, q db.PgxIface, e buffer.Entry) (PullTranslateResult, error)
	TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error)
	TryTranslateToDelete(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error)
}

// IntegrationOperation is either an upsert of a row or a delete by key
type IntegrationOperation struct {
	Upsert repository.Row
	Delete *repository.DeleteKey
}

// Apply writes the operation and records it as a sync-originated changelog entry
func (op IntegrationOperation) Apply(ctx context.Context, q db.PgxIface) error {
	switch {
	case op.Upsert != nil:
		if err := op.Upsert.Upsert(ctx, q); err != nil {
			return err
		}
		scope := op.Upsert.Scope()
		_, err := changelog.Insert(ctx, q, changelog.Entry{
			TableName:    op.Upsert.Table(),
			RecordID:     op.Upsert.RecordID(),
			Action:       changelog.ActionUpsert,
			StoreID:      scope.StoreID,
			NameLinkID:   scope.NameLinkID,
			IsSyncUpdate: true,
		})
		return err
	case op.Delete != nil:
		scope, err := repository.Delete(ctx, q, *op.Delete)
		if err != nil {
			return err
		}
		_, err = changelog.Insert(ctx, q, changelog.Entry{
			TableName:    op.Delete.TableName,
			RecordID:     op.Delete.RecordID,
			Action:       changelog.ActionDelete,
			StoreID:      scope.StoreID,
			NameLinkID:   scope.NameLinkID,
			IsSyncUpdate: true,
		})
		return err
	default:
		return fmt.Errorf("empty integration operation")
	}
}

// PullTranslateResult is the outcome of translating one buffered record
type PullTranslateResult struct {
	NotMatched bool
	Operations []IntegrationOperation
}

// PushRecord is one outbound wire record
type PushRecord struct {
	TableName string
	RecordID  string
	Action    changelog.Action
	StoreID   *string
	Data      json.RawMessage
}

// PushTranslateResult is the outcome of translating one changelog entry
type PushTranslateResult struct {
	NotMatched bool
	Records    []PushRecord
}

// NotMatchedPull is returned when a translator does not claim a buffered record
func NotMatchedPull() PullTranslateResult { return PullTranslateResult{NotMatched: true} }

// NotMatchedPush is returned when a translator does not claim a changelog entry
func NotMatchedPush() PushTranslateResult { return PushTranslateResult{NotMatched: true} }

// Upserts builds a pull result from rows to upsert, applied in the given order
func Upserts(rows ...repository.Row) PullTranslateResult {
	ops := make([]IntegrationOperation, 0, len(rows))
	for _, r := range rows {
		ops = append(ops, IntegrationOperation{Upsert: r})
	}
	return PullTranslateResult{Operations: ops}
}

// Deletes builds a pull result from keys to delete, applied in the given order
func Deletes(keys ...repository.DeleteKey) PullTranslateResult {
	ops := make([]IntegrationOperation, 0, len(keys))
	for i := range keys {
		ops = append(ops, IntegrationOperation{Delete: &keys[i]})
	}
	return PullTranslateResult{Operations: ops}
}

var errMissingData = errors.New("record has no data")

// TranslationError reports a record that could not be translated
type TranslationError struct {
	Table    string
	RecordID string
	Err      error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("failed to translate %s/%s: %v", e.Table, e.RecordID, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// pullUpsert decodes the buffered payload and hands it to conv
func pullUpsert[L any](e buffer.Entry, conv func(*L) (PullTranslateResult, error)) (PullTranslateResult, error) {
	var l L
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return PullTranslateResult{}, &TranslationError{Table: e.TableName, RecordID: e.RecordID, Err: errMissingData}
	}
	if err := json.Unmarshal(e.Data, &l); err != nil {
		return PullTranslateResult{}, &TranslationError{Table: e.TableName, RecordID: e.RecordID, Err: err}
	}
	res, err := conv(&l)
	if err != nil {
		return PullTranslateResult{}, &TranslationError{Table: e.TableName, RecordID: e.RecordID, Err: err}
	}
	return res, nil
}

// pushUpsert loads the changed row and encodes its legacy form. A row deleted
// since the entry was written translates to no records.
func pushUpsert[R any, L any](ctx context.Context, q db.PgxIface, e changelog.Entry, legacyTable string,
	find func(context.Context, db.PgxIface, string) (*R, error), conv func(*R) (L, error)) (PushTranslateResult, error) {
	row, err := find(ctx, q, e.RecordID)
	if err != nil {
		return PushTranslateResult{}, err
	}
	if row == nil {
		return PushTranslateResult{}, nil
	}
	l, err := conv(row)
	if err != nil {
		return PushTranslateResult{}, &TranslationError{Table: e.TableName, RecordID: e.RecordID, Err: err}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return PushTranslateResult{}, &TranslationError{Table: e.TableName, RecordID: e.RecordID, Err: err}
	}
	return PushTranslateResult{Records: []PushRecord{{
		TableName: legacyTable,
		RecordID:  e.RecordID,
		Action:    changelog.ActionUpsert,
		StoreID:   e.StoreID,
		Data:      data,
	}}}, nil
}

// pushDelete emits a delete marker for the legacy table
func pushDelete(e changelog.Entry, legacyTable string) (PushTranslateResult, error) {
	data, err := json.Marshal(map[string]string{"ID": e.RecordID})
	if err != nil {
		return PushTranslateResult{}, err
	}
	return PushTranslateResult{Records: []PushRecord{{
		TableName: legacyTable,
		RecordID:  e.RecordID,
		Action:    changelog.ActionDelete,
		StoreID:   e.StoreID,
		Data:      data,
	}}}, nil
}

// pullDelete deletes the record from the given internal tables, in order
func pullDelete(e buffer.Entry, tables ...string) PullTranslateResult {
	keys := make([]repository.DeleteKey, 0, len(tables))
	for _, t := range tables {
		keys = append(keys, repository.DeleteKey{TableName: t, RecordID: e.RecordID})
	}
	return Deletes(keys...)
}
