package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state to be CircuitClosed, got %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected initial consecutive failures to be 0, got %d", cb.ConsecutiveFailures())
	}

	allowed, err := cb.Allow()
	if !allowed {
		t.Errorf("expected Allow() to return true for closed circuit")
	}
	if err != nil {
		t.Errorf("expected no error for closed circuit, got %v", err)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Errorf("expected circuit to stay closed below threshold, got %v", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("expected state to be CircuitOpen after 3 failures, got %v", cb.State())
	}

	allowed, err := cb.Allow()
	if allowed {
		t.Errorf("expected Allow() to return false for open circuit")
	}
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("expected error to mention circuit breaker open, got: %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Errorf("expected circuit closed after success reset, got %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", cb.ConsecutiveFailures())
	}
}

func TestCircuitBreaker_HalfOpenLifecycle(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	cb.RecordFailure()

	clock.Advance(10 * time.Second)
	allowed, _ := cb.Allow()
	if allowed {
		t.Fatal("expected open circuit to refuse before reset period")
	}

	clock.Advance(21 * time.Second)
	allowed, _ = cb.Allow()
	if !allowed {
		t.Fatal("expected probe to be allowed after reset period")
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open, got %v", cb.State())
	}

	allowed, err := cb.Allow()
	if allowed {
		t.Error("expected half-open circuit to refuse a second call")
	}
	if err == nil || !strings.Contains(err.Error(), "half-open") {
		t.Errorf("expected half-open error, got %v", err)
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("expected failed probe to reopen circuit, got %v", cb.State())
	}

	clock.Advance(31 * time.Second)
	allowed, _ = cb.Allow()
	if !allowed {
		t.Fatal("expected second probe to be allowed")
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("expected successful probe to close circuit, got %v", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	cb.RecordFailure()
	cb.Reset()

	if cb.State() != CircuitClosed || cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected reset breaker, got state=%v failures=%d", cb.State(), cb.ConsecutiveFailures())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, ResetAfter: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = cb.Allow()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()
}

func TestBreakerGateway_FailsFastWhenOpen(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	inner := &MockGateway{CompleteFunc: func(ctx context.Context, messages []Message) (string, error) {
		return "", NewError(ErrorTypeEndpoint, "server error", true, errors.New("503"))
	}}
	gw := NewBreakerGateway(inner, cb, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := gw.Complete(context.Background(), nil)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := gw.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.True(t, errors.Is(err, apperrors.ErrGateway))
	assert.Equal(t, 2, inner.Calls(), "open circuit must not reach the provider")
}

func TestBreakerGateway_SuccessPassesThrough(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	gw := NewBreakerGateway(NewMockGateway(`{"type":"answer"}`), cb, zap.NewNop())

	text, err := gw.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"answer"}`, text)
	assert.Equal(t, CircuitClosed, gw.Breaker().State())
}

func TestBreakerGateway_CanceledCallDoesNotCountAsFailure(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &MockGateway{CompleteFunc: func(ctx context.Context, messages []Message) (string, error) {
		return "", ctx.Err()
	}}
	gw := NewBreakerGateway(inner, cb, zap.NewNop())

	_, err := gw.Complete(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}
