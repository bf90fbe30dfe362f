package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/audience-server/internal/cohort"
	"github.com/dtroode/audience-server/internal/model"
)

// SnapshotAppender appends cohort snapshots. ProfileTx satisfies it.
type SnapshotAppender interface {
	AppendSnapshot(ctx context.Context, snapshot model.CohortSnapshot) error
}

// Emitter builds and appends cohort snapshots for email merges.
type Emitter struct {
	classifier *cohort.Classifier
	now        func() time.Time
}

// NewEmitter creates an Emitter classifying with the given classifier.
func NewEmitter(classifier *cohort.Classifier, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{classifier: classifier, now: now}
}

// Emit classifies merged interests and appends an immutable snapshot of the merged fields.
func (e *Emitter) Emit(ctx context.Context, appender SnapshotAppender, profileID uuid.UUID, merged model.FieldSet) (model.CohortSnapshot, error) {
	snapshot := model.CohortSnapshot{
		ID:         uuid.New(),
		ProfileID:  profileID,
		Fields:     merged.Clone(),
		Cohort:     e.classifier.Classify(merged.Interests),
		RecordedAt: e.now().UTC(),
	}

	if err := appender.AppendSnapshot(ctx, snapshot); err != nil {
		return model.CohortSnapshot{}, fmt.Errorf("failed to append cohort snapshot: %w", err)
	}

	return snapshot, nil
}
