package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/changelog"
	"github.com/cybertec-postgresql/sitesync/internal/db"
)

// fakeTranslator only declares tables and dependencies
type fakeTranslator struct {
	legacyTable string
	deps        []string
	tables      []string
}

func (f fakeTranslator) LegacyTable() string        { return f.legacyTable }
func (f fakeTranslator) PullDependencies() []string { return f.deps }
func (f fakeTranslator) ChangelogTables() []string  { return f.tables }

func (fakeTranslator) TryTranslateFromUpsert(context.Context, db.PgxIface, buffer.Entry) (PullTranslateResult, error) {
	return NotMatchedPull(), nil
}

func (fakeTranslator) TryTranslateFromDelete(context.Context, db.PgxIface, buffer.Entry) (PullTranslateResult, error) {
	return NotMatchedPull(), nil
}

func (fakeTranslator) TryTranslateToUpsert(context.Context, db.PgxIface, changelog.Entry) (PushTranslateResult, error) {
	return NotMatchedPush(), nil
}

func (fakeTranslator) TryTranslateToDelete(context.Context, db.PgxIface, changelog.Entry) (PushTranslateResult, error) {
	return NotMatchedPush(), nil
}

func legacyTables(ts []Translator) []string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.LegacyTable())
	}
	return names
}

func TestDefaultRegistryOrder(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	order := legacyTables(r.Ordered())
	assert.Equal(t, []string{"unit", "item", "name", "store", "Location", "item_line", "requisition", "requisition_line"}, order)

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, tr := range r.Ordered() {
		for _, dep := range tr.PullDependencies() {
			assert.Less(t, pos[dep], pos[tr.LegacyTable()], "%s must come after %s", tr.LegacyTable(), dep)
		}
	}
}

func TestRegistryOrdersDependenciesFirst(t *testing.T) {
	r, err := NewRegistry(
		fakeTranslator{legacyTable: "b", deps: []string{"a"}},
		fakeTranslator{legacyTable: "c"},
		fakeTranslator{legacyTable: "a"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, legacyTables(r.Ordered()))
}

func TestRegistryDeterministic(t *testing.T) {
	build := func() []string {
		r, err := NewRegistry(
			fakeTranslator{legacyTable: "x"},
			fakeTranslator{legacyTable: "y", deps: []string{"x"}},
			fakeTranslator{legacyTable: "z"},
			fakeTranslator{legacyTable: "w", deps: []string{"z", "y"}},
		)
		require.NoError(t, err)
		return legacyTables(r.Ordered())
	}
	first := build()
	for range 10 {
		assert.Equal(t, first, build())
	}
	assert.Equal(t, []string{"x", "y", "z", "w"}, first)
}

func TestRegistryRejectsCycle(t *testing.T) {
	_, err := NewRegistry(
		fakeTranslator{legacyTable: "root"},
		fakeTranslator{legacyTable: "a", deps: []string{"root", "c"}},
		fakeTranslator{legacyTable: "b", deps: []string{"a"}},
		fakeTranslator{legacyTable: "c", deps: []string{"b"}},
	)
	require.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "a -> c -> b -> a")
}

func TestRegistryRejectsSelfDependency(t *testing.T) {
	_, err := NewRegistry(fakeTranslator{legacyTable: "a", deps: []string{"a"}})
	require.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "a -> a")
}

func TestRegistryRejectsMissingDependency(t *testing.T) {
	_, err := NewRegistry(fakeTranslator{legacyTable: "item", deps: []string{"unit"}})
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "item depends on unit")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(fakeTranslator{legacyTable: "a"}, fakeTranslator{legacyTable: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")

	_, err = NewRegistry(fakeTranslator{legacyTable: "a", tables: []string{"t", "t"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed twice")
}

func TestRegistryLookups(t *testing.T) {
	r, err := NewRegistry(
		fakeTranslator{legacyTable: "a", tables: []string{"shared"}},
		fakeTranslator{legacyTable: "b", tables: []string{"shared", "own"}},
	)
	require.NoError(t, err)

	tr, ok := r.ForLegacyTable("b")
	require.True(t, ok)
	assert.Equal(t, "b", tr.LegacyTable())

	_, ok = r.ForLegacyTable("nope")
	assert.False(t, ok)

	assert.Len(t, r.ForChangelogTable("shared"), 2)
	assert.Len(t, r.ForChangelogTable("own"), 1)
	assert.Empty(t, r.ForChangelogTable("other"))
}
