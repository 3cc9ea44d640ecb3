package translator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle is returned when translator dependencies are contradictory
	ErrCycle = errors.New("translator dependency cycle")
	// ErrMissingDependency is returned when a dependency names no registered translator
	ErrMissingDependency = errors.New("missing translator dependency")
)

// Registry holds the translators in integration order
type Registry struct {
	ordered     []Translator
	byLegacy    map[string]Translator
	byChangelog map[string][]Translator
}

// NewRegistry validates the translators and orders them so that every
// translator comes after its pull dependencies. Ties keep registration order.
func NewRegistry(translators ...Translator) (*Registry, error) {
	r := &Registry{
		byLegacy:    make(map[string]Translator, len(translators)),
		byChangelog: make(map[string][]Translator),
	}
	claims := make(map[string]string)

	for _, t := range translators {
		name := t.LegacyTable()
		if _, dup := r.byLegacy[name]; dup {
			return nil, fmt.Errorf("legacy table %q registered twice", name)
		}
		r.byLegacy[name] = t
		for _, table := range t.ChangelogTables() {
			claim := name + "/" + table
			if _, dup := claims[claim]; dup {
				return nil, fmt.Errorf("changelog table %q claimed twice by %q", table, name)
			}
			claims[claim] = name
			r.byChangelog[table] = append(r.byChangelog[table], t)
		}
	}

	for _, t := range translators {
		for _, dep := range t.PullDependencies() {
			if _, ok := r.byLegacy[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrMissingDependency, t.LegacyTable(), dep)
			}
		}
	}

	ordered, err := topoSort(translators, r.byLegacy)
	if err != nil {
		return nil, err
	}
	r.ordered = ordered
	return r, nil
}

// topoSort repeatedly takes the first registered translator whose dependencies are placed
func topoSort(translators []Translator, byLegacy map[string]Translator) ([]Translator, error) {
	placed := make(map[string]bool, len(translators))
	ordered := make([]Translator, 0, len(translators))

	for len(ordered) < len(translators) {
		progress := false
		for _, t := range translators {
			if placed[t.LegacyTable()] || !depsPlaced(t, placed) {
				continue
			}
			placed[t.LegacyTable()] = true
			ordered = append(ordered, t)
			progress = true
			break
		}
		if !progress {
			return nil, fmt.Errorf("%w: %s", ErrCycle, findCycle(translators, byLegacy, placed))
		}
	}
	return ordered, nil
}

func depsPlaced(t Translator, placed map[string]bool) bool {
	for _, dep := range t.PullDependencies() {
		if !placed[dep] {
			return false
		}
	}
	return true
}

// findCycle walks unplaced dependencies from the first unplaced translator until a table repeats
func findCycle(translators []Translator, byLegacy map[string]Translator, placed map[string]bool) string {
	var current Translator
	for _, t := range translators {
		if !placed[t.LegacyTable()] {
			current = t
			break
		}
	}

	seen := make(map[string]int)
	var path []string
	for current != nil {
		name := current.LegacyTable()
		if i, ok := seen[name]; ok {
			return strings.Join(append(path[i:], name), " -> ")
		}
		seen[name] = len(path)
		path = append(path, name)

		var next Translator
		for _, dep := range current.PullDependencies() {
			if !placed[dep] {
				next = byLegacy[dep]
				break
			}
		}
		current = next
	}
	return strings.Join(path, " -> ")
}

// Ordered returns the translators in integration order
func (r *Registry) Ordered() []Translator {
	return r.ordered
}

// ForLegacyTable returns the translator claiming a wire table
func (r *Registry) ForLegacyTable(table string) (Translator, bool) {
	t, ok := r.byLegacy[table]
	return t, ok
}

// ForChangelogTable returns the translators that push an internal table
func (r *Registry) ForChangelogTable(table string) []Translator {
	return r.byChangelog[table]
}
