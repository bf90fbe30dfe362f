package health

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/metrics"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "audience"

const (
	defaultInterval = 10 * time.Second
	pingTimeout     = time.Second
)

// Pinger reports whether the profile store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker keeps the gRPC health status in step with the profile store.
type Checker struct {
	store    Pinger
	server   *health.Server
	interval time.Duration
	logger   *logger.Logger
}

// NewChecker creates a Checker publishing to server. A non-positive interval uses 10s.
func NewChecker(store Pinger, server *health.Server, interval time.Duration, logger *logger.Logger) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Checker{
		store:    store,
		server:   server,
		interval: interval,
		logger:   logger,
	}
}

// Run checks the store immediately and then on every tick until ctx is done.
// On exit every service is marked NOT_SERVING.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	last := c.Check(ctx, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return nil
		case <-ticker.C:
			last = c.Check(ctx, last)
		}
	}
}

// Check pings the store once and publishes the result. Transitions from previous are logged.
func (c *Checker) Check(ctx context.Context, previous healthpb.HealthCheckResponse_ServingStatus) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	err := c.store.Ping(pingCtx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)

	if status == healthpb.HealthCheckResponse_SERVING {
		metrics.StoreServing.Set(1)
	} else {
		metrics.StoreServing.Set(0)
	}

	if status != previous {
		if err != nil {
			c.logger.Warn("store health check failed", "error", err)
		} else {
			c.logger.Info("store is serving")
		}
	}

	return status
}
