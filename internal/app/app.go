// Package app assembles stores and services from configuration for the server and CLI binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dtroode/audience-server/internal/cohort"
	"github.com/dtroode/audience-server/internal/config"
	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
	"github.com/dtroode/audience-server/internal/repository/memory"
	"github.com/dtroode/audience-server/internal/repository/postgres"
	"github.com/dtroode/audience-server/internal/service"
	storage "github.com/dtroode/audience-server/internal/storage/minio"
)

// Stores groups the persistence ports of the service.
type Stores struct {
	Profiles  model.ProfileStore
	Cohorts   model.CohortStore
	RawEvents model.RawEventLog
	close     func() error
}

// Close releases the underlying connections.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores connects the configured driver. Postgres schemas are migrated on connect.
func OpenStores(ctx context.Context, cfg config.Database) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		return &Stores{Profiles: store, Cohorts: store, RawEvents: store}, nil
	case config.DriverPostgres:
		db, err := postgres.NewConection(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &Stores{
			Profiles:  postgres.NewProfileRepository(db),
			Cohorts:   postgres.NewCohortRepository(db),
			RawEvents: postgres.NewRawEventRepository(db.SQLDB()),
			close:     db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenStorage returns the MinIO-backed object store, or nil when storage is disabled.
func OpenStorage(ctx context.Context, cfg config.Storage) (model.Storage, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	client, err := storage.NewClient(ctx, minioClient, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage client: %w", err)
	}
	return client, nil
}

// NewClassifier builds the cohort classifier from the taxonomy file, or the built-in taxonomy when unset.
func NewClassifier(cfg config.Cohort) (*cohort.Classifier, error) {
	if cfg.TaxonomyFile == "" {
		return cohort.NewClassifier(cohort.DefaultTaxonomy()), nil
	}

	taxonomy, err := cohort.LoadTaxonomy(cfg.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	return cohort.NewClassifier(taxonomy), nil
}

// Services holds the application services shared by every transport.
type Services struct {
	Ingest   *service.Ingest
	Query    *service.Query
	Bulk     *service.Bulk
	Recorder *service.RawRecorder
}

// NewServices wires the resolution pipeline. objects may be nil.
func NewServices(cfg *config.Config, stores *Stores, objects model.Storage, lg *logger.Logger) (*Services, error) {
	classifier, err := NewClassifier(cfg.Cohort)
	if err != nil {
		return nil, err
	}

	emitter := service.NewEmitter(classifier, time.Now)
	resolver := service.NewResolver(stores.Profiles, emitter, lg, cfg.Resolver.Timeout)
	recorder := service.NewRawRecorder(stores.RawEvents, service.RawLogConfig{
		Timeout:          cfg.RawLog.Timeout,
		FailureThreshold: cfg.RawLog.FailureThreshold,
		OpenTimeout:      cfg.RawLog.OpenTimeout,
	}, lg)
	ingest := service.NewIngest(resolver, recorder, lg)

	return &Services{
		Ingest:   ingest,
		Query:    service.NewQuery(stores.Profiles, stores.Cohorts, lg),
		Bulk:     service.NewBulk(ingest, objects, lg),
		Recorder: recorder,
	}, nil
}
