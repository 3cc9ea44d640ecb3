package translator

import (
	"context"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/legacy"
	"github.com/cybertec-postgresql/sitesync/internal/repository"
)

// Legacy names carry free-form types; anything unrecognised is OTHERS.
var nameTypes = legacy.NewEnumMap("name type",
	legacy.Pair("facility", repository.NameTypeFacility),
	legacy.Pair("patient", repository.NameTypePatient),
	legacy.Pair("build", repository.NameTypeBuild),
	legacy.Pair("invad", repository.NameTypeInvad),
	legacy.Pair("repack", repository.NameTypeRepack),
	legacy.Pair("store", repository.NameTypeStore),
	legacy.Pair("", repository.NameTypeOthers),
)

// Name translates legacy names. Every name gets a name_link with the same id,
// which is what other tables reference.
type Name struct{}

func (Name) LegacyTable() string        { return legacy.TableName }
func (Name) PullDependencies() []string { return nil }
func (Name) ChangelogTables() []string  { return []string{repository.TableName} }

func (Name) TryTranslateFromUpsert(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullUpsert(e, func(l *legacy.Name) (PullTranslateResult, error) {
		row, err := nameFromLegacy(l)
		if err != nil {
			return PullTranslateResult{}, err
		}
		return Upserts(row, &repository.NameLinkRow{ID: row.ID, NameID: row.ID}), nil
	})
}

func (Name) TryTranslateFromDelete(_ context.Context, _ db.PgxIface, e buffer.Entry) (PullTranslateResult, error) {
	return pullDelete(e, repository.TableNameLink, repository.TableName), nil
}

func (Name) TryTranslateToUpsert(ctx context.Context, q db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushUpsert(ctx, q, e, legacy.TableName, repository.FindNameByID, nameToLegacy)
}

func (Name) TryTranslateToDelete(_ context.Context, _ db.PgxIface, e changelog.Entry) (PushTranslateResult, error) {
	return pushDelete(e, legacy.TableName)
}

func nameFromLegacy(l *legacy.Name) (*repository.NameRow, error) {
	nameType, ok := nameTypes.ToModel(l.Type)
	if !ok {
		nameType = repository.NameTypeOthers
	}
	dob, err := legacy.ParseDate(l.DateOfBirth)
	if err != nil {
		return nil, err
	}
	return &repository.NameRow{
		ID:          l.ID,
		Name:        l.Name,
		Code:        l.Code,
		Type:        nameType,
		IsCustomer:  l.Customer,
		IsSupplier:  l.Supplier,
		FirstName:   legacy.StringOrNil(l.First),
		LastName:    legacy.StringOrNil(l.Last),
		DateOfBirth: dob,
		Phone:       legacy.StringOrNil(l.Phone),
		Email:       legacy.StringOrNil(l.Email),
		Comment:     legacy.StringOrNil(l.Comment),
	}, nil
}

func nameToLegacy(r *repository.NameRow) (legacy.Name, error) {
	nameType, err := nameTypes.ToLegacy(r.Type)
	if err != nil {
		return legacy.Name{}, err
	}
	return legacy.Name{
		ID:          r.ID,
		Name:        r.Name,
		Code:        r.Code,
		Type:        nameType,
		Customer:    r.IsCustomer,
		Supplier:    r.IsSupplier,
		First:       legacy.NilToEmpty(r.FirstName),
		Last:        legacy.NilToEmpty(r.LastName),
		DateOfBirth: legacy.FormatDate(r.DateOfBirth),
		Phone:       legacy.NilToEmpty(r.Phone),
		Email:       legacy.NilToEmpty(r.Email),
		Comment:     legacy.NilToEmpty(r.Comment),
	}, nil
}
