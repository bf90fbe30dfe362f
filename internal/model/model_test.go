package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSet_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fields    FieldSet
		wantField string
	}{
		{name: "both keys", fields: FieldSet{Cookie: "c1", Email: "a@x.io"}},
		{name: "missing cookie", fields: FieldSet{Email: "a@x.io"}, wantField: "cookie"},
		{name: "missing email", fields: FieldSet{Cookie: "c1"}, wantField: "email"},
		{name: "missing both reports cookie first", fields: FieldSet{}, wantField: "cookie"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.fields.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)
			assert.Equal(t, "required", validationErr.Tag)
			assert.Equal(t, tt.wantField+" is required", err.Error())
		})
	}
}

func TestFieldSet_Clone(t *testing.T) {
	country := "India"
	age := 29
	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	original := FieldSet{
		Cookie:       "c1",
		Email:        "a@x.io",
		CreatedAt:    &created,
		Location:     Location{Country: &country},
		Demographics: Demographics{Age: &age},
		Interests:    []string{"AI"},
	}

	clone := original.Clone()
	*clone.Location.Country = "Spain"
	*clone.Demographics.Age = 40
	*clone.CreatedAt = created.Add(time.Hour)
	clone.Interests[0] = "Cricket"

	assert.Equal(t, "India", *original.Location.Country)
	assert.Equal(t, 29, *original.Demographics.Age)
	assert.Equal(t, created, *original.CreatedAt)
	assert.Equal(t, []string{"AI"}, original.Interests)
	assert.Nil(t, clone.PhoneNumber)
	assert.Equal(t, IdentityKey{Cookie: "c1", Email: "a@x.io"}, clone.Key())
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "age_min failed on ltefield", (&ValidationError{Field: "age_min", Tag: "ltefield"}).Error())
}

func TestDataIntegrityError(t *testing.T) {
	cookieID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	emailID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	err := &DataIntegrityError{
		Key:             IdentityKey{Cookie: "c1", Email: "a@x.io"},
		CookieProfileID: cookieID,
		EmailProfileID:  emailID,
	}
	assert.Equal(t,
		`identity keys resolve to different profiles: cookie "c1" -> 11111111-1111-1111-1111-111111111111, email "a@x.io" -> 22222222-2222-2222-2222-222222222222`,
		err.Error())

	wrapped := &DataIntegrityError{Key: err.Key, Err: ErrConflict}
	assert.ErrorIs(t, fmt.Errorf("failed to resolve: %w", wrapped), ErrConflict)
	assert.True(t, errors.As(fmt.Errorf("outer: %w", wrapped), &err))
	assert.Contains(t, wrapped.Error(), ErrConflict.Error())
}
