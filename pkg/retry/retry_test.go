package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.InitialInterval != 1*time.Second {
		t.Errorf("InitialInterval = %v, want 1s", config.InitialInterval)
	}
	if config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", config.MaxInterval)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", config.Multiplier)
	}
}

func TestNew_WithNilConfig(t *testing.T) {
	retrier := New(nil)
	if retrier == nil {
		t.Fatal("New(nil) returned nil")
	}
	if retrier.config.InitialInterval != 1*time.Second {
		t.Errorf("Default InitialInterval = %v, want 1s", retrier.config.InitialInterval)
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	retrier := New(&Config{MaxRetries: 3, InitialInterval: time.Millisecond})

	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	retrier := New(&Config{MaxRetries: 5, InitialInterval: time.Millisecond, JitterFactor: 0})

	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	retrier := New(&Config{MaxRetries: 2, InitialInterval: time.Millisecond, JitterFactor: 0})

	transient := errors.New("transient")
	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Do() = %v, want ErrMaxRetriesExceeded", err)
	}
	if !errors.Is(err, transient) {
		t.Errorf("Do() should carry the last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestDo_PermanentErrorStopsRetrying(t *testing.T) {
	retrier := New(&Config{MaxRetries: 5, InitialInterval: time.Millisecond})

	fatal := errors.New("fatal")
	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Do() = %v, want fatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	retrier := New(&Config{MaxRetries: 10, InitialInterval: 50 * time.Millisecond, JitterFactor: 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retrier.Do(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})

	if !errors.Is(err, ErrContextCanceled) {
		t.Errorf("Do() = %v, want ErrContextCanceled", err)
	}
}

func TestInterval_CappedAtMax(t *testing.T) {
	retrier := New(&Config{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     4 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0,
	})

	if got := retrier.interval(10); got != 4*time.Second {
		t.Errorf("interval(10) = %v, want 4s", got)
	}
}
