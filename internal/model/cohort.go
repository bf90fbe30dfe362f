package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CohortSnapshot is an immutable record emitted when an email match joins a new cookie to a profile.
type CohortSnapshot struct {
	ID         uuid.UUID
	ProfileID  uuid.UUID
	Fields     FieldSet
	Cohort     string
	RecordedAt time.Time
}

// CohortFilter selects snapshots for reporting. Zero values are ignored.
type CohortFilter struct {
	Cookie    string
	Email     string
	Country   string
	Gender    string
	Income    string
	Education string
	Cohort    string
	AgeMin    *int
	AgeMax    *int
	Interests []string
	Limit     int
}

// CohortStore serves cohort snapshot queries. Snapshots are appended through ProfileTx.
type CohortStore interface {
	Query(ctx context.Context, filter CohortFilter) ([]CohortSnapshot, error)
}
