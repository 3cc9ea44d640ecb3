// Package legacy absorbs the format quirks of the central server's wire schema.
//
// The legacy schema uses sentinels instead of absent values: an empty string for a
// missing text or reference, "0000-00-00" for a missing date, and splits timestamps
// into a date plus seconds since midnight. Every function here is pure and total.
package legacy

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ZeroDate is the legacy sentinel for "no date"
	ZeroDate = "0000-00-00"

	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04:05"
	secondsPerDay  = 24 * 60 * 60
)

// StringOrNil maps the empty-string sentinel to an absent value
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NilToEmpty maps an absent value to the empty-string sentinel
func NilToEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseDate parses a legacy date. Empty, zero and year-zero dates map to nil.
// A trailing time part ("2021-03-04T00:00:00") is accepted and dropped.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ZeroDate || strings.HasPrefix(s, "0000-") {
		return nil, nil
	}
	if len(s) > len(dateLayout) && s[len(dateLayout)] == 'T' {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid legacy date %q: %w", s, err)
	}
	return &t, nil
}

// FormatDate renders a date for the wire, nil becomes ZeroDate
func FormatDate(t *time.Time) string {
	if t == nil {
		return ZeroDate
	}
	return t.UTC().Format(dateLayout)
}

// CombineDatetime joins a legacy date and seconds since midnight.
// A zero date is an error here: callers use it for mandatory timestamps.
func CombineDatetime(date string, secondsOfDay int64) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return time.Time{}, fmt.Errorf("missing legacy date %q", date)
	}
	if secondsOfDay < 0 || secondsOfDay >= secondsPerDay {
		return time.Time{}, fmt.Errorf("legacy time of day out of range: %d", secondsOfDay)
	}
	return d.Add(time.Duration(secondsOfDay) * time.Second), nil
}

// SplitDatetime is the inverse of CombineDatetime, truncating to whole seconds
func SplitDatetime(t time.Time) (string, int64) {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.Format(dateLayout), int64(t.Sub(midnight) / time.Second)
}

// ParseDatetime parses an ISO datetime without zone, as used by newer legacy tables.
// Empty and zero-date values map to nil.
func ParseDatetime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, ZeroDate) {
		return nil, nil
	}
	t, err := time.Parse(datetimeLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid legacy datetime %q: %w", s, err)
	}
	return &t, nil
}

// FormatDatetime renders a datetime for the wire, nil becomes the empty string
func FormatDatetime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(datetimeLayout)
}

// NormalizeEnum folds legacy enum casing and padding
func NormalizeEnum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EnumMap translates between legacy enum values and internal ones
type EnumMap[T ~string] struct {
	name     string
	toModel  map[string]T
	toLegacy map[T]string
}

// NewEnumMap builds a bidirectional map. The first legacy value listed for an
// internal value is the one written back to the wire.
func NewEnumMap[T ~string](name string, pairs ...EnumPair[T]) *EnumMap[T] {
	m := &EnumMap[T]{
		name:     name,
		toModel:  make(map[string]T, len(pairs)),
		toLegacy: make(map[T]string, len(pairs)),
	}
	for _, p := range pairs {
		m.toModel[NormalizeEnum(p.Legacy)] = p.Model
		if _, ok := m.toLegacy[p.Model]; !ok {
			m.toLegacy[p.Model] = p.Legacy
		}
	}
	return m
}

// EnumPair is one legacy/internal correspondence
type EnumPair[T ~string] struct {
	Legacy string
	Model  T
}

// Pair is shorthand for EnumPair
func Pair[T ~string](legacyValue string, model T) EnumPair[T] {
	return EnumPair[T]{Legacy: legacyValue, Model: model}
}

// ToModel maps a legacy value, ok is false for unknown values
func (m *EnumMap[T]) ToModel(legacyValue string) (T, bool) {
	v, ok := m.toModel[NormalizeEnum(legacyValue)]
	return v, ok
}

// ToLegacy maps an internal value back to the wire
func (m *EnumMap[T]) ToLegacy(model T) (string, error) {
	v, ok := m.toLegacy[model]
	if !ok {
		return "", fmt.Errorf("no legacy %s for %q", m.name, model)
	}
	return v, nil
}
