package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mschirtzinger/notesync/internal/classify"
)

func TestRun_Success(t *testing.T) {
	e := New(DefaultTimeouts())
	got, err := Run(context.Background(), e, ClassRead, "notes.select", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}

func TestRun_PassesErrorThrough(t *testing.T) {
	e := New(DefaultTimeouts())
	want := errors.New("boom")
	_, err := Run(context.Background(), e, ClassWrite, "notes.insert", func(ctx context.Context) (string, error) {
		return "", want
	})
	if !errors.Is(err, want) {
		t.Errorf("Run() error = %v, want %v", err, want)
	}
}

func TestRun_Timeout(t *testing.T) {
	e := New(Timeouts{Write: 20 * time.Millisecond})
	cancelled := make(chan struct{})

	start := time.Now()
	_, err := Run(context.Background(), e, ClassWrite, "notes.update", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run() took %v, expected to return at the deadline", elapsed)
	}

	ce, ok := classify.As(err)
	if !ok {
		t.Fatalf("Run() error = %v, want *classify.Error", err)
	}
	if ce.Kind != classify.KindNetwork || ce.Code != "timeout" {
		t.Errorf("error = %s/%s, want network/timeout", ce.Kind, ce.Code)
	}
	if !errors.Is(err, classify.ErrTimeout) {
		t.Error("timeout error does not wrap ErrTimeout")
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled after timeout")
	}
}

func TestRun_LateResultDiscarded(t *testing.T) {
	e := New(Timeouts{Read: 10 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)

	got, err := Run(context.Background(), e, ClassRead, "slow", func(ctx context.Context) (int, error) {
		<-release
		return 7, nil
	})
	if err == nil || got != 0 {
		t.Errorf("Run() = %d, %v; want zero value and timeout", got, err)
	}
}

func TestRun_Canceled(t *testing.T) {
	e := New(DefaultTimeouts())
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, e, ClassRead, "notes.select", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !IsCanceled(err) {
		t.Errorf("Run() error = %v, want canceled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("canceled error does not wrap context.Canceled")
	}
}

func TestRun_AlreadyCanceled(t *testing.T) {
	e := New(DefaultTimeouts())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Run(ctx, e, ClassRead, "notes.select", func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if called {
		t.Error("operation ran on a cancelled context")
	}
	if !IsCanceled(err) {
		t.Errorf("Run() error = %v, want canceled", err)
	}
}

func TestTimeoutsFor(t *testing.T) {
	ts := DefaultTimeouts()
	tests := []struct {
		class Class
		want  time.Duration
	}{
		{ClassRead, 10 * time.Second},
		{ClassWrite, 15 * time.Second},
		{ClassAI, 60 * time.Second},
		{Class("other"), 15 * time.Second},
	}
	for _, tt := range tests {
		if got := ts.For(tt.class); got != tt.want {
			t.Errorf("For(%s) = %v, want %v", tt.class, got, tt.want)
		}
	}
}
