package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
)

// CircuitBreakerHook fails Redis calls fast while Redis is unhealthy. Callers
// see an error wrapping circuitbreaker.ErrOpen and fall back to the backing store.
//
// The breaker opens at a 60% failure rate over at least 5 calls in a 10s
// window, probes again after 30s and closes after one successful probe.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

func NewCircuitBreakerHook(m *metrics.RedisMetrics) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Redis circuit breaker state changed",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.CircuitStateChanges.WithLabelValues(e.NewState.String()).Inc()
			m.CircuitState.Set(stateValue(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

// State reports the breaker state for health checks.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

func stateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("redis dial: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis %s: %w", cmd.Name(), circuitbreaker.ErrOpen)
			cmd.SetErr(err)
			return err
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis pipeline: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return nil
	}
}
