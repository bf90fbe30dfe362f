package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
)

const (
	defaultCohortLimit = 100
	maxCohortLimit     = 1000
)

// Query serves read-only profile and cohort lookups.
type Query struct {
	profiles model.ProfileLookup
	cohorts  model.CohortStore
	logger   *logger.Logger
}

func NewQuery(profiles model.ProfileLookup, cohorts model.CohortStore, logger *logger.Logger) *Query {
	return &Query{
		profiles: profiles,
		cohorts:  cohorts,
		logger:   logger,
	}
}

// GetProfile finds a profile by email, falling back to cookie when email is empty.
func (s *Query) GetProfile(ctx context.Context, email, cookie string) (model.Profile, error) {
	email = strings.TrimSpace(email)
	cookie = strings.TrimSpace(cookie)

	var (
		profile model.Profile
		err     error
	)
	switch {
	case email != "":
		profile, err = s.profiles.FindByEmail(ctx, email)
	case cookie != "":
		profile, err = s.profiles.FindByCookie(ctx, cookie)
	default:
		return model.Profile{}, &model.ValidationError{Field: "email or cookie", Tag: "required"}
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// QueryCohorts returns the snapshots matching filter, oldest first.
// An empty result is reported as model.ErrNotFound.
func (s *Query) QueryCohorts(ctx context.Context, filter model.CohortFilter) ([]model.CohortSnapshot, error) {
	if filter.AgeMin != nil && filter.AgeMax != nil && *filter.AgeMin > *filter.AgeMax {
		return nil, &model.ValidationError{Field: "age_min", Tag: "ltefield"}
	}
	if filter.Limit < 0 {
		return nil, &model.ValidationError{Field: "limit", Tag: "min"}
	}
	if filter.Limit == 0 {
		filter.Limit = defaultCohortLimit
	}
	filter.Limit = min(filter.Limit, maxCohortLimit)

	snapshots, err := s.cohorts.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, model.ErrNotFound
	}

	return snapshots, nil
}
