package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by Upsert when a cookie or email is already owned by another profile.
	ErrConflict = errors.New("identity key conflict")
	// ErrStoreUnavailable marks transient store failures. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMalformedDate is reported when created_at cannot be parsed.
	ErrMalformedDate = errors.New("malformed date")
	// ErrStorageDisabled is returned for object operations when no object store is configured.
	ErrStorageDisabled = errors.New("object storage is disabled")
)

// ValidationError reports an incoming record that fails a precondition.
type ValidationError struct {
	Field string
	Tag   string
}

func (e *ValidationError) Error() string {
	if e.Tag == "required" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s failed on %s", e.Field, e.Tag)
}

// DataIntegrityError reports that the two identity keys resolve to different profiles.
// It is never resolved automatically.
type DataIntegrityError struct {
	Key             IdentityKey
	CookieProfileID uuid.UUID
	EmailProfileID  uuid.UUID
	Err             error
}

func (e *DataIntegrityError) Error() string {
	msg := fmt.Sprintf("identity keys resolve to different profiles: cookie %q -> %s, email %q -> %s",
		e.Key.Cookie, e.CookieProfileID, e.Key.Email, e.EmailProfileID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}
