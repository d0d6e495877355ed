package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// recordingSleep records requested delays instead of sleeping.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *recordingSleep, *notify.Recorder, *telemetry.Recorder) {
	t.Helper()
	sleep := &recordingSleep{}
	sink := &notify.Recorder{}
	obs := &telemetry.Recorder{}
	all := append([]Option{WithSleep(sleep.sleep), WithSink(sink), WithObserver(obs)}, opts...)
	return New(DefaultPolicy(), executor.New(executor.DefaultTimeouts()), all...), sleep, sink, obs
}

// failN returns an operation failing with err for the first n calls.
func failN(n int, err error) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= n {
			return "", err
		}
		return "ok", nil
	}, &calls
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{100, 30 * time.Second},
		{-1, 1000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	bad := []Policy{
		{MaxRetries: -1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 2},
		{MaxRetries: 1, InitialDelay: 2 * time.Second, MaxDelay: time.Second, BackoffFactor: 2},
		{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 0.5},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("policy %d: Validate() = nil, want error", i)
		}
	}
}

func TestRun_FirstTrySuccess(t *testing.T) {
	c, sleep, sink, obs := newTestController(t)
	fn, calls := failN(0, nil)

	v, res, err := RunWithResult(context.Background(), c, executor.ClassRead, "notes.select", fn)
	if err != nil || v != "ok" {
		t.Fatalf("Run() = %q, %v", v, err)
	}
	if *calls != 1 || res.Retries != 0 {
		t.Errorf("calls = %d, retries = %d; want 1, 0", *calls, res.Retries)
	}
	if len(sleep.Delays()) != 0 {
		t.Errorf("slept %v on first-try success", sleep.Delays())
	}
	if len(sink.All()) != 0 {
		t.Errorf("first-try success notified: %+v", sink.All())
	}
	events := obs.Events()
	if len(events) != 1 || events[0].Outcome != telemetry.OutcomeSuccess {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_RecoversAfterRetries(t *testing.T) {
	c, sleep, sink, obs := newTestController(t)
	fn, calls := failN(2, errors.New("TypeError: Failed to fetch"))

	v, res, err := RunWithResult(context.Background(), c, executor.ClassWrite, "notes.update", fn)
	if err != nil || v != "ok" {
		t.Fatalf("Run() = %q, %v", v, err)
	}
	if *calls != 3 || res.Retries != 2 || res.Attempts != 3 {
		t.Errorf("calls = %d, result = %+v", *calls, res)
	}

	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}
	if got := sleep.Delays(); !equalDurations(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}

	n, ok := sink.Last()
	if !ok || n.Level != notify.LevelSuccess || n.Message != "succeeded after 2 retries" {
		t.Errorf("recovery notice = %+v", n)
	}
	if events := obs.Events(); len(events) != 1 || events[0].Outcome != telemetry.OutcomeRecovered || events[0].Retries != 2 {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_ExhaustsRetries(t *testing.T) {
	c, sleep, sink, obs := newTestController(t)
	fn, calls := failN(100, errors.New("connection reset by peer"))

	_, res, err := RunWithResult(context.Background(), c, executor.ClassWrite, "notes.insert", fn)
	ce, ok := classify.As(err)
	if !ok || ce.Kind != classify.KindNetwork {
		t.Fatalf("error = %v, want network *classify.Error", err)
	}
	if *calls != 4 || res.Retries != 3 {
		t.Errorf("calls = %d, retries = %d; want 4, 3", *calls, res.Retries)
	}
	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond, 4000 * time.Millisecond}
	if got := sleep.Delays(); !equalDurations(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}
	if len(sink.All()) != 0 {
		t.Errorf("controller notified on failure: %+v", sink.All())
	}
	if events := obs.Events(); len(events) != 1 || events[0].Outcome != telemetry.OutcomeFailed || events[0].Kind != "network" {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_NonRetryableKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind classify.Kind
	}{
		{"auth", errors.New("JWT expired"), classify.KindAuth},
		{"permission", errors.New("permission denied for table notes"), classify.KindPermission},
		{"validation", classify.ErrValidation, classify.KindValidation},
		{"ai", errors.New("credit balance is too low"), classify.KindAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sleep, _, _ := newTestController(t)
			fn, calls := failN(100, tt.err)

			_, res, err := RunWithResult(context.Background(), c, executor.ClassWrite, "op", fn)
			if classify.KindOf(err) != tt.kind {
				t.Errorf("kind = %s, want %s", classify.KindOf(err), tt.kind)
			}
			if *calls != 1 || res.Retries != 0 {
				t.Errorf("calls = %d, retries = %d; want 1, 0", *calls, res.Retries)
			}
			if len(sleep.Delays()) != 0 {
				t.Errorf("slept %v before giving up", sleep.Delays())
			}
		})
	}
}

func TestRun_RetryNotices(t *testing.T) {
	c, _, sink, _ := newTestController(t, WithRetryNotices(true))
	fn, _ := failN(1, errors.New("network down"))

	if _, err := Run(context.Background(), c, executor.ClassRead, "folders.select", fn); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(sink.ByLevel(notify.LevelInfo)); got != 1 {
		t.Errorf("retry notices = %d, want 1", got)
	}
	if got := len(sink.ByLevel(notify.LevelSuccess)); got != 1 {
		t.Errorf("recovery notices = %d, want 1", got)
	}
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := New(DefaultPolicy(), executor.New(executor.DefaultTimeouts()), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := Run(ctx, c, executor.ClassRead, "notes.select", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("network unreachable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRun_TimeoutIsRetried(t *testing.T) {
	sleep := &recordingSleep{}
	c := New(DefaultPolicy(), executor.New(executor.Timeouts{Write: 10 * time.Millisecond}), WithSleep(sleep.sleep))

	calls := 0
	v, err := Run(context.Background(), c, executor.ClassWrite, "notes.insert", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "done", nil
	})
	if err != nil || v != "done" {
		t.Fatalf("Run() = %q, %v", v, err)
	}
	if len(sleep.Delays()) != 1 {
		t.Errorf("delays = %v, want one backoff", sleep.Delays())
	}
}

func TestSetPolicy(t *testing.T) {
	c, sleep, _, _ := newTestController(t)
	c.SetPolicy(Policy{MaxRetries: 1, InitialDelay: 5 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 3})
	fn, calls := failN(100, errors.New("timeout"))

	_, _ = Run(context.Background(), c, executor.ClassRead, "op", fn)
	if *calls != 2 {
		t.Errorf("calls = %d, want 2", *calls)
	}
	if got := sleep.Delays(); !equalDurations(got, []time.Duration{5 * time.Millisecond}) {
		t.Errorf("delays = %v", got)
	}
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
