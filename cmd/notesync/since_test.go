package main

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"2025-01-31", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)},
		{"2025-01-31T08:30:00Z", time.Date(2025, 1, 31, 8, 30, 0, 0, time.UTC)},
		{"72h", now.Add(-72 * time.Hour)},
		{"  90m ", now.Add(-90 * time.Minute)},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.in, now)
		if err != nil {
			t.Errorf("parseSince(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSince_NaturalLanguage(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) error: %v", err)
	}
	if got.Before(now.Add(-48*time.Hour)) || got.After(now) {
		t.Errorf("parseSince(yesterday) = %v, want within two days before %v", got, now)
	}
}

func TestParseSince_Errors(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"-5h", "qwzx plorp"} {
		if _, err := parseSince(in, now); err == nil {
			t.Errorf("parseSince(%q) expected error", in)
		}
	}
}
