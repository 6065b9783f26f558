package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type explicitErr struct{ retryable bool }

func (e explicitErr) Error() string     { return "explicit" }
func (e explicitErr) IsRetryable() bool { return e.retryable }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 5, cfg.MaxSameErrorType)
}

func TestApplyJitter_StaysInBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := applyJitter(100*time.Millisecond, 0.1)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
	assert.Equal(t, 100*time.Millisecond, applyJitter(100*time.Millisecond, 0))
}

func TestDoWithResult_MaxRetriesExhausted(t *testing.T) {
	expected := errors.New("persistent error")
	calls := 0
	_, err := DoWithResult(context.Background(), fastConfig(2), func() (struct{}, error) {
		calls++
		return struct{}{}, expected
	})

	assert.Equal(t, expected, err)
	// initial attempt + 2 retries
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_NilConfig(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), nil, func() (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_KeepsLastResult(t *testing.T) {
	result, err := DoWithResult(context.Background(), fastConfig(1), func() (string, error) {
		return "partial", errors.New("persistent error")
	})

	assert.EqualError(t, err, "persistent error")
	assert.Equal(t, "partial", result)
}

func TestDoWithResult_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient error")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, calls)
}

func TestDoWithResult_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2.0}

	calls := 0
	start := time.Now()
	result, err := DoWithResult(ctx, cfg, func() (int, error) {
		calls++
		cancel()
		return calls, errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"uppercase", errors.New("Connection Reset by peer"), true},
		{"i/o timeout", errors.New("read: i/o timeout"), true},
		{"starting up", errors.New("FATAL: the database system is starting up"), true},
		{"syntax error", errors.New("syntax error at position 10"), false},
		{"permission denied", errors.New("permission denied for table accounts"), false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("query tables: %w", context.Canceled), false},
		{"explicit retryable", explicitErr{retryable: true}, true},
		{"explicit permanent", explicitErr{retryable: false}, false},
		{"wrapped explicit", fmt.Errorf("wrap: %w", explicitErr{retryable: true}), true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"serialization failure", fmt.Errorf("scan: %w", &pgconn.PgError{Code: "40001"}), true},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, false},
		{"bad password", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, false},
		{"timeout text on permanent sqlstate", &pgconn.PgError{Code: "42601", Message: "timeout"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestClassifyErrorType(t *testing.T) {
	assert.Equal(t, "nil", classifyErrorType(nil))
	assert.Equal(t, "sqlstate_53300", classifyErrorType(&pgconn.PgError{Code: "53300"}))
	assert.Equal(t, "connection", classifyErrorType(errors.New("connection refused")))
	assert.Equal(t, "timeout", classifyErrorType(errors.New("i/o timeout")))
	assert.Equal(t, "broken_pipe", classifyErrorType(errors.New("write: broken pipe")))
	assert.Equal(t, "unknown", classifyErrorType(errors.New("something else")))
}

func TestDoIfRetryable_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "57P03"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	expected := &pgconn.PgError{Code: "42P01"}
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return expected
	})

	assert.Equal(t, expected, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated error (3 times, type=connection)")
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_ExhaustsRetries(t *testing.T) {
	expected := errors.New("connection refused")
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(2), func() error {
		calls++
		return expected
	})

	assert.Equal(t, expected, err)
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2.0}

	calls := 0
	err := DoIfRetryable(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("connection timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
