package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/audience-server/internal/testutil"
)

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func servingStatus(t *testing.T, server *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestChecker_Check(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus healthpb.HealthCheckResponse_ServingStatus
	}{
		{name: "store reachable", wantStatus: healthpb.HealthCheckResponse_SERVING},
		{name: "store down", pingErr: errors.New("connection refused"), wantStatus: healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockPinger{}
			store.On("Ping", mock.Anything).Return(tt.pingErr)
			server := health.NewServer()

			c := NewChecker(store, server, time.Minute, testutil.MakeNoopLogger())
			got := c.Check(context.Background(), healthpb.HealthCheckResponse_SERVICE_UNKNOWN)

			assert.Equal(t, tt.wantStatus, got)
			assert.Equal(t, tt.wantStatus, servingStatus(t, server, ""))
			assert.Equal(t, tt.wantStatus, servingStatus(t, server, ServiceName))
			store.AssertExpectations(t)
		})
	}
}

func TestChecker_Run(t *testing.T) {
	store := &MockPinger{}
	store.On("Ping", mock.Anything).Return(nil)
	server := health.NewServer()

	c := NewChecker(store, server, 5*time.Millisecond, testutil.MakeNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, server, ServiceName))
}

func TestNewChecker_DefaultInterval(t *testing.T) {
	c := NewChecker(&MockPinger{}, health.NewServer(), 0, testutil.MakeNoopLogger())
	assert.Equal(t, defaultInterval, c.interval)
}
