package service

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dtroode/audience-server/internal/model"
)

// createdAtLayouts are tried in order when parsing created_at.
var createdAtLayouts = []string{
	"01/02/2006 15:04",
	time.RFC3339,
}

// ParseCreatedAt parses a created_at value in one of the accepted layouts.
func ParseCreatedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", model.ErrMalformedDate, value)
}

// FieldWarning describes an incoming field dropped during normalization.
type FieldWarning struct {
	Field string
	Err   error
}

// Normalize turns a raw record into a typed field set.
//
// Ages that are not whole numbers in the stored range become absent, identity keys are trimmed and an unparsable
// created_at is dropped with a warning instead of failing the record.
func Normalize(raw model.RawRecord) (model.FieldSet, []FieldWarning) {
	var warnings []FieldWarning

	fields := model.FieldSet{
		Cookie:      strings.TrimSpace(raw.Cookie),
		Email:       strings.TrimSpace(raw.Email),
		PhoneNumber: raw.PhoneNumber,
		Location: model.Location{
			State:   raw.State,
			Country: raw.Country,
			City:    raw.City,
		},
		Demographics: model.Demographics{
			Gender:    raw.Gender,
			Income:    raw.Income,
			Education: raw.Education,
		},
	}

	if raw.Age != nil {
		age, err := parseAge(*raw.Age)
		if err != nil {
			warnings = append(warnings, FieldWarning{Field: "age", Err: err})
		} else {
			fields.Demographics.Age = &age
		}
	}

	if raw.CreatedAt != nil {
		t, err := ParseCreatedAt(*raw.CreatedAt)
		if err != nil {
			warnings = append(warnings, FieldWarning{Field: "created_at", Err: err})
		} else {
			fields.CreatedAt = &t
		}
	}

	if raw.Interests != nil {
		fields.Interests = slices.Clone(raw.Interests)
	}

	return fields.Clone(), warnings
}

// parseAge accepts whole numbers between zero and the int32 column limit.
func parseAge(v float64) (int, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, fmt.Errorf("non-finite age")
	case v != math.Trunc(v):
		return 0, fmt.Errorf("fractional age %v", v)
	case v < 0 || v > math.MaxInt32:
		return 0, fmt.Errorf("age %v out of range", v)
	}
	return int(v), nil
}
