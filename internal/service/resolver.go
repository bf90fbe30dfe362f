package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/metrics"
	"github.com/dtroode/audience-server/internal/model"
)

// Action is the decision taken for one incoming record.
type Action struct {
	Kind     model.ActionKind
	Existing model.Profile
	Incoming model.FieldSet
}

// Decide looks the incoming record up by cookie and by email and picks the merge action.
//
// A cookie match wins over an email match. If both keys match different profiles
// the uniqueness invariant is broken and a *model.DataIntegrityError is returned.
func Decide(ctx context.Context, lookup model.ProfileLookup, incoming model.FieldSet) (Action, error) {
	if err := incoming.Validate(); err != nil {
		return Action{}, err
	}

	byCookie, cookieFound, err := find(ctx, lookup.FindByCookie, incoming.Cookie)
	if err != nil {
		return Action{}, fmt.Errorf("failed to find profile by cookie: %w", err)
	}
	byEmail, emailFound, err := find(ctx, lookup.FindByEmail, incoming.Email)
	if err != nil {
		return Action{}, fmt.Errorf("failed to find profile by email: %w", err)
	}

	switch {
	case cookieFound && emailFound && byCookie.ID != byEmail.ID:
		return Action{}, &model.DataIntegrityError{
			Key:             incoming.Key(),
			CookieProfileID: byCookie.ID,
			EmailProfileID:  byEmail.ID,
		}
	case cookieFound:
		return Action{Kind: model.ActionUpdateByCookie, Existing: byCookie, Incoming: incoming}, nil
	case emailFound:
		return Action{Kind: model.ActionMergeByEmail, Existing: byEmail, Incoming: incoming}, nil
	default:
		return Action{Kind: model.ActionCreateNew, Incoming: incoming}, nil
	}
}

func find(ctx context.Context, lookup func(context.Context, string) (model.Profile, error), key string) (model.Profile, bool, error) {
	p, err := lookup(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return model.Profile{}, false, nil
	}
	if err != nil {
		return model.Profile{}, false, err
	}
	return p, true, nil
}

// Resolver resolves incoming records to canonical profiles.
type Resolver struct {
	store   model.ProfileStore
	emitter *Emitter
	logger  *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewResolver creates a Resolver. A zero timeout leaves the caller's deadline untouched.
func NewResolver(
	store model.ProfileStore,
	emitter *Emitter,
	logger *logger.Logger,
	timeout time.Duration,
) *Resolver {
	return &Resolver{
		store:   store,
		emitter: emitter,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Resolve decides and applies the action for incoming inside one atomic store operation.
// Either every write of the resolution is committed or none is.
func (r *Resolver) Resolve(ctx context.Context, incoming model.FieldSet) (model.Resolution, error) {
	if err := incoming.Validate(); err != nil {
		metrics.ResolutionErrors.WithLabelValues("validation").Inc()
		return model.Resolution{}, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var res model.Resolution
	err := r.store.Atomic(ctx, incoming.Key(), func(ctx context.Context, tx model.ProfileTx) error {
		action, err := Decide(ctx, tx, incoming)
		if err != nil {
			return err
		}
		res, err = r.apply(ctx, tx, action)
		return err
	})
	metrics.ResolutionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		r.reportError(incoming.Key(), err)
		return model.Resolution{}, err
	}

	metrics.Resolutions.WithLabelValues(string(res.Action)).Inc()
	if res.Snapshot != nil {
		metrics.CohortSnapshots.WithLabelValues(res.Snapshot.Cohort).Inc()
	}

	return res, nil
}

func (r *Resolver) apply(ctx context.Context, tx model.ProfileTx, action Action) (model.Resolution, error) {
	profile := model.Profile{UpdatedAt: r.now().UTC()}

	switch action.Kind {
	case model.ActionCreateNew:
		profile.ID = uuid.New()
		profile.Fields = action.Incoming.Clone()
	case model.ActionUpdateByCookie:
		profile.ID = action.Existing.ID
		profile.Fields = Merge(action.Existing.Fields, action.Incoming)
	case model.ActionMergeByEmail:
		profile.ID = action.Existing.ID
		profile.Fields = MergeByEmail(action.Existing.Fields, action.Incoming)
	default:
		return model.Resolution{}, fmt.Errorf("unknown action %q", action.Kind)
	}

	saved, err := tx.Upsert(ctx, profile)
	if errors.Is(err, model.ErrConflict) {
		return model.Resolution{}, &model.DataIntegrityError{Key: action.Incoming.Key(), Err: err}
	}
	if err != nil {
		return model.Resolution{}, fmt.Errorf("failed to upsert profile: %w", err)
	}

	res := model.Resolution{Action: action.Kind, Profile: saved}
	if action.Kind != model.ActionMergeByEmail {
		return res, nil
	}

	snapshot, err := r.emitter.Emit(ctx, tx, saved.ID, saved.Fields)
	if err != nil {
		return model.Resolution{}, err
	}
	res.Snapshot = &snapshot

	return res, nil
}

func (r *Resolver) reportError(key model.IdentityKey, err error) {
	var integrityErr *model.DataIntegrityError
	var validationErr *model.ValidationError

	switch {
	case errors.As(err, &validationErr):
		metrics.ResolutionErrors.WithLabelValues("validation").Inc()
	case errors.As(err, &integrityErr):
		metrics.ResolutionErrors.WithLabelValues("integrity").Inc()
		r.logger.Error("data integrity violation, manual remediation required",
			"cookie", key.Cookie,
			"email", key.Email,
			"cookie_profile_id", integrityErr.CookieProfileID,
			"email_profile_id", integrityErr.EmailProfileID,
			"error", err)
	case errors.Is(err, model.ErrStoreUnavailable):
		metrics.ResolutionErrors.WithLabelValues("unavailable").Inc()
		r.logger.Warn("store unavailable during resolution", "cookie", key.Cookie, "error", err)
	default:
		metrics.ResolutionErrors.WithLabelValues("internal").Inc()
		r.logger.Error("resolution failed", "cookie", key.Cookie, "error", err)
	}
}
