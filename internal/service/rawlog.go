package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/metrics"
	"github.com/dtroode/audience-server/internal/model"
)

// RawLogConfig configures the raw event recorder.
type RawLogConfig struct {
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// RawRecorder appends inbound records to the raw event log.
// It is failure-tolerant rather than asynchronous: the append runs inline, bounded by
// the configured timeout, and errors are logged and counted instead of returned.
type RawRecorder struct {
	log     model.RawEventLog
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRawRecorder creates a RawRecorder guarded by a circuit breaker.
func NewRawRecorder(log model.RawEventLog, cfg RawLogConfig, logger *logger.Logger) *RawRecorder {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "raw-event-log",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("raw event log breaker changed state", "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				metrics.RawLogBreakerState.Set(1)
			} else {
				metrics.RawLogBreakerState.Set(0)
			}
		},
	})

	return &RawRecorder{
		log:     log,
		breaker: breaker,
		logger:  logger,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
}

// Record appends the payload to the raw log before the caller resolves the record.
// It waits at most the configured timeout and reports whether the append succeeded.
func (r *RawRecorder) Record(ctx context.Context, source, clientID string, payload []byte) bool {
	if r == nil || r.log == nil {
		return false
	}

	event := model.RawEvent{
		ID:         uuid.New(),
		Source:     source,
		ClientID:   clientID,
		Payload:    payload,
		ReceivedAt: r.now().UTC(),
	}

	// the raw log outlives the request that produced it
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.log.Append(ctx, event)
	})
	if err != nil {
		metrics.RawEventFailures.Inc()
		r.logger.Warn("failed to append raw event", "source", source, "event_id", event.ID, "error", err)
		return false
	}

	return true
}

// State returns the current breaker state.
func (r *RawRecorder) State() gobreaker.State {
	return r.breaker.State()
}
