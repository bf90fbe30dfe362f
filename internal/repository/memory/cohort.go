package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/dtroode/audience-server/internal/model"
)

// Query returns snapshots matching filter, oldest first.
func (s *Store) Query(_ context.Context, filter model.CohortFilter) ([]model.CohortSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CohortSnapshot
	for _, snap := range s.snapshots {
		if matches(snap, filter) {
			snap.Fields = snap.Fields.Clone()
			out = append(out, snap)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func matches(snap model.CohortSnapshot, f model.CohortFilter) bool {
	fs := snap.Fields

	if f.Cookie != "" && fs.Cookie != f.Cookie {
		return false
	}
	if f.Email != "" && fs.Email != f.Email {
		return false
	}
	if f.Cohort != "" && snap.Cohort != f.Cohort {
		return false
	}
	if !equalsPtr(fs.Location.Country, f.Country) ||
		!equalsPtr(fs.Demographics.Gender, f.Gender) ||
		!equalsPtr(fs.Demographics.Income, f.Income) ||
		!equalsPtr(fs.Demographics.Education, f.Education) {
		return false
	}
	if f.AgeMin != nil || f.AgeMax != nil {
		age := fs.Demographics.Age
		if age == nil {
			return false
		}
		if f.AgeMin != nil && *age < *f.AgeMin {
			return false
		}
		if f.AgeMax != nil && *age > *f.AgeMax {
			return false
		}
	}
	if len(f.Interests) > 0 && !slices.ContainsFunc(fs.Interests, func(i string) bool {
		return slices.Contains(f.Interests, i)
	}) {
		return false
	}

	return true
}

func equalsPtr(field *string, want string) bool {
	if want == "" {
		return true
	}
	return field != nil && *field == want
}
