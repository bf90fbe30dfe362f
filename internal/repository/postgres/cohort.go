package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtroode/audience-server/internal/model"
)

var _ model.CohortStore = (*CohortRepository)(nil)

const snapshotFieldColumns = `cookie, email, phone_number, created_at, state, country, city,
		age, gender, income, education, interests`

type CohortRepository struct {
	db *Connection
}

func NewCohortRepository(db *Connection) *CohortRepository {
	return &CohortRepository{
		db: db,
	}
}

func (r *CohortRepository) Query(ctx context.Context, filter model.CohortFilter) ([]model.CohortSnapshot, error) {
	query, args := buildCohortQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort snapshots: %w", classify(err))
	}
	defer rows.Close()

	var snapshots []model.CohortSnapshot
	for rows.Next() {
		var s model.CohortSnapshot
		f := &s.Fields
		err := rows.Scan(
			&s.ID, &s.ProfileID, &s.Cohort,
			&f.Cookie, &f.Email, &f.PhoneNumber, &f.CreatedAt,
			&f.Location.State, &f.Location.Country, &f.Location.City,
			&f.Demographics.Age, &f.Demographics.Gender, &f.Demographics.Income, &f.Demographics.Education,
			&f.Interests, &s.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cohort snapshot: %w", err)
		}
		normalizeTimes(f)
		s.RecordedAt = s.RecordedAt.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cohort snapshots: %w", classify(err))
	}

	return snapshots, nil
}

// buildCohortQuery renders the snapshot query for filter. Zero-valued filter fields add no condition.
func buildCohortQuery(filter model.CohortFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	eq := []struct {
		column string
		value  string
	}{
		{"cookie", filter.Cookie},
		{"email", filter.Email},
		{"country", filter.Country},
		{"gender", filter.Gender},
		{"income", filter.Income},
		{"education", filter.Education},
		{"cohort", filter.Cohort},
	}
	for _, c := range eq {
		if c.value != "" {
			add(c.column+" = $%d", c.value)
		}
	}
	if filter.AgeMin != nil {
		add("age >= $%d", *filter.AgeMin)
	}
	if filter.AgeMax != nil {
		add("age <= $%d", *filter.AgeMax)
	}
	if len(filter.Interests) > 0 {
		add("interests && $%d", filter.Interests)
	}

	var b strings.Builder
	b.WriteString("SELECT id, profile_id, cohort, " + snapshotFieldColumns + ", recorded_at FROM cohort_snapshots")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY recorded_at ASC, id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return b.String(), args
}
