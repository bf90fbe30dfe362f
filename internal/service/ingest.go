package service

import (
	"context"
	"maps"
	"slices"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/metrics"
	"github.com/dtroode/audience-server/internal/model"
)

// Ingest accepts inbound records from any transport and resolves them.
type Ingest struct {
	resolver *Resolver
	recorder *RawRecorder
	logger   *logger.Logger
}

func NewIngest(resolver *Resolver, recorder *RawRecorder, logger *logger.Logger) *Ingest {
	return &Ingest{
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// Ingest normalizes raw, appends it to the raw log and resolves it.
// Records failing validation are rejected before touching the raw log. The append is
// inline and bounded by the raw log timeout; its failure does not fail the record.
func (s *Ingest) Ingest(ctx context.Context, raw model.RawRecord) (model.Resolution, error) {
	fields, warnings := Normalize(raw)
	for _, w := range warnings {
		metrics.FieldWarnings.WithLabelValues(w.Field).Inc()
		s.logger.Warn("dropped incoming field", "field", w.Field, "cookie", fields.Cookie, "error", w.Err)
	}
	if len(raw.Extra) > 0 {
		s.logger.Warn("ignored unknown fields", "fields", slices.Sorted(maps.Keys(raw.Extra)), "cookie", fields.Cookie)
	}

	if err := fields.Validate(); err != nil {
		metrics.ResolutionErrors.WithLabelValues("validation").Inc()
		return model.Resolution{}, err
	}

	if len(raw.Payload) > 0 {
		s.recorder.Record(ctx, raw.Source, raw.ClientID, raw.Payload)
	}

	return s.resolver.Resolve(ctx, fields)
}
