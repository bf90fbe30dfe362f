package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"

	"github.com/dtroode/audience-server/internal/loader"
	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
)

const (
	uploadPrefix    = "uploads/"
	maxReportErrors = 100
)

// Bulk loads user files through the ingest pipeline, one record at a time.
type Bulk struct {
	ingest  *Ingest
	storage model.Storage
	logger  *logger.Logger
}

// NewBulk creates a Bulk loader. storage may be nil, which disables archiving and object loads.
func NewBulk(ingest *Ingest, storage model.Storage, logger *logger.Logger) *Bulk {
	return &Bulk{
		ingest:  ingest,
		storage: storage,
		logger:  logger,
	}
}

// Upload archives the file in object storage and loads it.
func (s *Bulk) Upload(ctx context.Context, name string, file io.ReadSeeker, clientID string) (model.LoadReport, error) {
	source := name
	if s.storage != nil {
		key := uploadPrefix + uuid.NewString() + "-" + path.Base(name)
		if err := s.storage.Upload(ctx, key, file); err != nil {
			return model.LoadReport{}, fmt.Errorf("failed to archive upload: %w", err)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return model.LoadReport{}, fmt.Errorf("failed to rewind upload: %w", err)
		}
		source = key
	} else {
		s.logger.Warn("object storage disabled, upload is not archived", "file", name)
	}

	return s.Load(ctx, source, file, clientID)
}

// LoadObject loads a file previously stored under key.
func (s *Bulk) LoadObject(ctx context.Context, key string, clientID string) (model.LoadReport, error) {
	if s.storage == nil {
		return model.LoadReport{}, model.ErrStorageDisabled
	}

	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return model.LoadReport{}, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer rc.Close()

	return s.Load(ctx, key, rc, clientID)
}

// LoadPrefix loads every stored file under prefix in key order. It stops at the first aborted file.
func (s *Bulk) LoadPrefix(ctx context.Context, prefix string, clientID string) ([]model.LoadReport, error) {
	if s.storage == nil {
		return nil, model.ErrStorageDisabled
	}

	keys, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	reports := make([]model.LoadReport, 0, len(keys))
	for _, key := range keys {
		report, err := s.LoadObject(ctx, key, clientID)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// Load reads CSV records from r and resolves them in file order.
//
// Invalid rows and identity conflicts are counted and skipped. A store outage or a cancelled
// context aborts the load and returns the partial report with the error.
func (s *Bulk) Load(ctx context.Context, source string, r io.Reader, clientID string) (model.LoadReport, error) {
	report := model.LoadReport{Source: source, Actions: make(map[string]int)}

	reader, err := loader.NewCSVReader(r, clientID)
	if err != nil {
		return report, &model.ValidationError{Field: "file", Tag: err.Error()}
	}
	if unknown := reader.UnknownColumns(); len(unknown) > 0 {
		s.logger.Warn("file has unknown columns", "source", source, "columns", unknown)
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: load interrupted: %w", model.ErrStoreUnavailable, err)
		}

		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		report.Rows++
		if err != nil {
			s.reject(&report, reader.Line(), err)
			continue
		}

		res, err := s.ingest.Ingest(ctx, raw)
		if err == nil {
			report.Actions[string(res.Action)]++
			continue
		}

		var validationErr *model.ValidationError
		var integrityErr *model.DataIntegrityError
		switch {
		case errors.As(err, &validationErr):
			s.reject(&report, reader.Line(), err)
		case errors.As(err, &integrityErr):
			report.Conflicts++
			s.addError(&report, reader.Line(), err)
		default:
			s.logger.Error("aborting load", "source", source, "line", reader.Line(), "error", err)
			return report, fmt.Errorf("failed to load line %d: %w", reader.Line(), err)
		}
	}

	s.logger.Info("file loaded",
		"source", source,
		"rows", report.Rows,
		"rejected", report.Rejected,
		"conflicts", report.Conflicts)

	return report, nil
}

func (s *Bulk) reject(report *model.LoadReport, line int, err error) {
	report.Rejected++
	s.addError(report, line, err)
}

func (s *Bulk) addError(report *model.LoadReport, line int, err error) {
	if len(report.Errors) < maxReportErrors {
		report.Errors = append(report.Errors, fmt.Sprintf("line %d: %s", line, err))
	}
}
