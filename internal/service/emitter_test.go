package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/audience-server/internal/cohort"
	"github.com/dtroode/audience-server/internal/model"
)

func TestEmitter_Emit(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	profileID := uuid.New()
	merged := model.FieldSet{Cookie: "c2", Email: "a@x.io", Interests: []string{"Bollywood", "Blockchain"}}

	t.Run("classifies and appends", func(t *testing.T) {
		tx := &MockProfileTx{}
		tx.On("AppendSnapshot", mock.Anything, mock.MatchedBy(func(s model.CohortSnapshot) bool {
			return s.ProfileID == profileID && s.Cohort == cohort.Tech && s.RecordedAt.Equal(fixed)
		})).Return(nil)

		e := NewEmitter(cohort.NewClassifier(cohort.DefaultTaxonomy()), func() time.Time { return fixed })
		snap, err := e.Emit(context.Background(), tx, profileID, merged)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, snap.ID)
		assert.Equal(t, cohort.Tech, snap.Cohort)
		assert.Equal(t, merged, snap.Fields)
		tx.AssertExpectations(t)
	})

	t.Run("snapshot does not alias merged fields", func(t *testing.T) {
		tx := &MockProfileTx{}
		tx.On("AppendSnapshot", mock.Anything, mock.Anything).Return(nil)

		e := NewEmitter(cohort.NewClassifier(cohort.DefaultTaxonomy()), nil)
		in := merged.Clone()
		snap, err := e.Emit(context.Background(), tx, profileID, in)
		require.NoError(t, err)

		in.Interests[0] = "changed"
		assert.Equal(t, "Bollywood", snap.Fields.Interests[0])
	})

	t.Run("append error", func(t *testing.T) {
		tx := &MockProfileTx{}
		tx.On("AppendSnapshot", mock.Anything, mock.Anything).Return(errors.New("boom"))

		e := NewEmitter(cohort.NewClassifier(cohort.DefaultTaxonomy()), nil)
		_, err := e.Emit(context.Background(), tx, profileID, merged)
		assert.Error(t, err)
	})
}
