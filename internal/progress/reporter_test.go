package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.5 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1TiB", 1024 * 1024 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	_, err := ParseBytes("invalid")
	if err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 4*time.Minute + 3*time.Second, "2h 4m 3s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestReporterShardTracking(t *testing.T) {
	reporter := NewReporter(Options{
		TotalShards:    4,
		UpdateInterval: 100 * time.Millisecond,
	})

	// Test shard tracking without starting the reporter
	reporter.ShardStarted("aa")
	if reporter.inProgress.Load() != 1 {
		t.Errorf("expected 1 in-progress, got %d", reporter.inProgress.Load())
	}

	reporter.LinesProcessed(300)
	reporter.LinesSkipped(20)
	reporter.MatchesFound(7)
	reporter.ShardCompleted()
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after complete, got %d", reporter.inProgress.Load())
	}
	if reporter.completedShards.Load() != 1 {
		t.Errorf("expected 1 completed, got %d", reporter.completedShards.Load())
	}
	if reporter.lines.Load() != 300 || reporter.skipped.Load() != 20 || reporter.matches.Load() != 7 {
		t.Errorf("unexpected counters: lines=%d skipped=%d matches=%d",
			reporter.lines.Load(), reporter.skipped.Load(), reporter.matches.Load())
	}

	reporter.ShardStarted("ab")
	reporter.ShardFailed()
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after fail, got %d", reporter.inProgress.Load())
	}
	if reporter.failedShards.Load() != 1 {
		t.Errorf("expected 1 failed, got %d", reporter.failedShards.Load())
	}

	// Stop without Start must not block.
	reporter.Stop()
}

func TestReporterStartStop(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(Options{
		Label:          "eng 5gram",
		TotalShards:    2,
		UpdateInterval: 10 * time.Millisecond,
		Output:         &buf,
	})

	reporter.Start()

	reporter.ShardStarted("aa")
	reporter.LinesProcessed(1500)
	reporter.MatchesFound(12)
	reporter.BytesDownloaded(2048)
	reporter.ShardCompleted()

	time.Sleep(50 * time.Millisecond) // Let updates run

	reporter.Stop()
	reporter.Stop()

	out := buf.String()
	for _, want := range []string{
		"Scanning: eng 5gram",
		"Shard aa",
		"Lines: 1,500",
		"Matches: 12",
		"Downloaded: 2.0 KiB",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
