package model

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// IdentityKey is the pair of identifiers a profile can be found by.
type IdentityKey struct {
	Cookie string
	Email  string
}

// Location holds the geographic attributes of a profile.
type Location struct {
	State   *string
	Country *string
	City    *string
}

// Demographics holds the demographic attributes of a profile.
type Demographics struct {
	Age       *int
	Gender    *string
	Income    *string
	Education *string
}

// FieldSet is the typed attribute payload of an incoming record or a stored profile.
// A nil pointer (or nil Interests) means the field is absent.
type FieldSet struct {
	Cookie       string `validate:"required"`
	Email        string `validate:"required"`
	PhoneNumber  *string
	CreatedAt    *time.Time
	Location     Location
	Demographics Demographics
	Interests    []string
}

// Key returns the identity key of the field set.
func (f FieldSet) Key() IdentityKey {
	return IdentityKey{Cookie: f.Cookie, Email: f.Email}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (f FieldSet) Clone() FieldSet {
	out := f
	out.PhoneNumber = clonePtr(f.PhoneNumber)
	out.CreatedAt = clonePtr(f.CreatedAt)
	out.Location = Location{
		State:   clonePtr(f.Location.State),
		Country: clonePtr(f.Location.Country),
		City:    clonePtr(f.Location.City),
	}
	out.Demographics = Demographics{
		Age:       clonePtr(f.Demographics.Age),
		Gender:    clonePtr(f.Demographics.Gender),
		Income:    clonePtr(f.Demographics.Income),
		Education: clonePtr(f.Demographics.Education),
	}
	if f.Interests != nil {
		out.Interests = slices.Clone(f.Interests)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Profile is the canonical deduplicated record of one individual.
type Profile struct {
	ID        uuid.UUID
	Fields    FieldSet
	UpdatedAt time.Time
}

// ActionKind enumerates resolution outcomes.
type ActionKind string

const (
	// ActionCreateNew inserts a profile for a never-seen identity pair.
	ActionCreateNew ActionKind = "create_new"
	// ActionUpdateByCookie mutates the profile matched by cookie.
	ActionUpdateByCookie ActionKind = "update_by_cookie"
	// ActionMergeByEmail mutates the profile matched by email and emits a cohort snapshot.
	ActionMergeByEmail ActionKind = "merge_by_email"
)

// Resolution is the result of resolving one incoming record.
type Resolution struct {
	Action   ActionKind
	Profile  Profile
	Snapshot *CohortSnapshot
}

// ProfileLookup finds profiles by either identity key.
// Both methods return ErrNotFound when nothing matches.
type ProfileLookup interface {
	FindByCookie(ctx context.Context, cookie string) (Profile, error)
	FindByEmail(ctx context.Context, email string) (Profile, error)
}

// ProfileTx is the view of the store available inside an atomic resolution.
type ProfileTx interface {
	ProfileLookup
	Upsert(ctx context.Context, profile Profile) (Profile, error)
	AppendSnapshot(ctx context.Context, snapshot CohortSnapshot) error
}

// ProfileStore persists canonical profiles.
//
// Atomic runs fn while holding exclusive access to both keys of the identity pair.
// Writes made through the ProfileTx become visible only if fn returns nil.
type ProfileStore interface {
	ProfileLookup
	Atomic(ctx context.Context, key IdentityKey, fn func(ctx context.Context, tx ProfileTx) error) error
	Ping(ctx context.Context) error
}
