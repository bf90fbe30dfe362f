package service

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/audience-server/internal/model"
)

// MockProfileTx mocks the ProfileTx interface
type MockProfileTx struct {
	mock.Mock
}

func (m *MockProfileTx) FindByCookie(ctx context.Context, cookie string) (model.Profile, error) {
	args := m.Called(ctx, cookie)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *MockProfileTx) FindByEmail(ctx context.Context, email string) (model.Profile, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *MockProfileTx) Upsert(ctx context.Context, profile model.Profile) (model.Profile, error) {
	args := m.Called(ctx, profile)
	if fn, ok := args.Get(0).(func(context.Context, model.Profile) model.Profile); ok {
		return fn(ctx, profile), args.Error(1)
	}
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *MockProfileTx) AppendSnapshot(ctx context.Context, snapshot model.CohortSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

// MockProfileStore mocks the ProfileStore interface. Atomic hands the tx mock to fn.
type MockProfileStore struct {
	mock.Mock
	tx *MockProfileTx
}

func (m *MockProfileStore) FindByCookie(ctx context.Context, cookie string) (model.Profile, error) {
	args := m.Called(ctx, cookie)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *MockProfileStore) FindByEmail(ctx context.Context, email string) (model.Profile, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *MockProfileStore) Atomic(ctx context.Context, key model.IdentityKey, fn func(ctx context.Context, tx model.ProfileTx) error) error {
	args := m.Called(ctx, key)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m.tx)
}

func (m *MockProfileStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCohortStore mocks the CohortStore interface
type MockCohortStore struct {
	mock.Mock
}

func (m *MockCohortStore) Query(ctx context.Context, filter model.CohortFilter) ([]model.CohortSnapshot, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.CohortSnapshot), args.Error(1)
}

// MockRawEventLog mocks the RawEventLog interface
type MockRawEventLog struct {
	mock.Mock
}

func (m *MockRawEventLog) Append(ctx context.Context, event model.RawEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStorage mocks the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	args := m.Called(ctx, key, reader)
	return args.Error(0)
}

func (m *MockStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).([]string), args.Error(1)
}
