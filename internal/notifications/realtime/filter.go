// internal/notifications/realtime/filter.go
package realtime

import (
	"fmt"
	"strings"

	apperrors "league-notifications/internal/common/errors"
)

// Filter is a single-column equality filter in PostgREST form: column=eq.value.
type Filter struct {
	Column string
	Value  string
}

// ParseFilter parses s. An empty string means no filter and returns nil.
func ParseFilter(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return nil, apperrors.NewInvalidFilterError(s)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return nil, apperrors.NewInvalidFilterError(s)
	}

	return &Filter{Column: column, Value: value}, nil
}

// Matches reports whether row satisfies the filter. A nil filter matches everything.
func (f *Filter) Matches(row map[string]interface{}) bool {
	if f == nil {
		return true
	}
	v, ok := row[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.Column + "=eq." + f.Value
}
