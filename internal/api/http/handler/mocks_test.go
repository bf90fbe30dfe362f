package handler

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/audience-server/internal/model"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Ingest(ctx context.Context, raw model.RawRecord) (model.Resolution, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(model.Resolution), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) GetProfile(ctx context.Context, email, cookie string) (model.Profile, error) {
	args := m.Called(ctx, email, cookie)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *MockQueryService) QueryCohorts(ctx context.Context, filter model.CohortFilter) ([]model.CohortSnapshot, error) {
	args := m.Called(ctx, filter)
	snapshots, _ := args.Get(0).([]model.CohortSnapshot)
	return snapshots, args.Error(1)
}

type MockBulkService struct {
	mock.Mock
}

func (m *MockBulkService) Upload(ctx context.Context, name string, file io.ReadSeeker, clientID string) (model.LoadReport, error) {
	args := m.Called(ctx, name, file, clientID)
	return args.Get(0).(model.LoadReport), args.Error(1)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
