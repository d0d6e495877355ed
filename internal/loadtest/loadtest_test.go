package loadtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no agents", func(c *Config) { c.Agents = 0 }},
		{"no ops", func(c *Config) { c.OpsPerAgent = -1 }},
		{"fault rate too high", func(c *Config) { c.FaultRate = 1 }},
		{"negative fault rate", func(c *Config) { c.FaultRate = -0.1 }},
		{"negative latency", func(c *Config) { c.Latency = -time.Millisecond }},
		{"bad policy", func(c *Config) { c.Policy.BackoffFactor = 0.5 }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestRun_NoFaults verifies that without faults every mutation commits and
// the cache matches the remote exactly.
func TestRun_NoFaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agents = 10
	cfg.OpsPerAgent = 20
	cfg.FaultRate = 0

	report, err := Run(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
	if report.Overall.Count != 200 {
		t.Errorf("Expected 200 mutations, got %d", report.Overall.Count)
	}
	if report.Overall.Errors != 0 || report.RolledBack != 0 {
		t.Errorf("Expected no failures, got %d errors and %d rollbacks", report.Overall.Errors, report.RolledBack)
	}
	if report.Faults != 0 || report.Retries != 0 {
		t.Errorf("Expected no faults or retries, got %d and %d", report.Faults, report.Retries)
	}
	if report.Diverged != 0 {
		t.Errorf("Expected cache to match remote, %d notes diverged", report.Diverged)
	}
}

// TestRun_TransientFaults runs agents against a flaky remote. Failures that
// outlast the retries must roll back cleanly.
func TestRun_TransientFaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FaultRate = 0.15

	report, err := Run(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var out bytes.Buffer
	report.Print(&out)
	t.Logf("\n%s", out.String())

	if err := report.Err(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
	if report.Faults == 0 {
		t.Fatal("Expected injected faults")
	}
	if report.Retries == 0 || report.Recovered == 0 {
		t.Errorf("Expected retries to recover calls, got %d retries and %d recoveries", report.Retries, report.Recovered)
	}
	if report.Overall.Errors > report.RolledBack {
		t.Errorf("Every failed mutation should roll back: %d errors, %d rollbacks", report.Overall.Errors, report.RolledBack)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestReportPrint(t *testing.T) {
	r := &Report{
		Overall:    LatencyStats{Count: 3, Errors: 1, P50: time.Millisecond},
		ByOp:       map[string]LatencyStats{OpNoteCreate: {Count: 2}, OpFolderDelete: {Count: 1, Errors: 1}},
		Violations: []string{"1 mutations still pending after drain"},
	}
	var out bytes.Buffer
	r.Print(&out)
	s := out.String()
	for _, want := range []string{"Mutations:   3 (1 failed", OpFolderDelete, OpNoteCreate, "VIOLATION: 1 mutations"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if strings.Index(s, OpFolderDelete) > strings.Index(s, OpNoteCreate) {
		t.Error("operations should be sorted")
	}
	if r.Err() == nil {
		t.Error("expected Err to report the violation")
	}
}
