package pipeline

import (
	"testing"
	"time"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestParseStats_Quantiles(t *testing.T) {
	stats := NewParseStats(time.Hour)
	for _, us := range []int64{500, 100, 300, 400, 200} {
		stats.Observe(time.Duration(us)*time.Microsecond, 10)
	}

	snap := stats.Snapshot()
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"count", float64(snap.Count), 5},
		{"lines", float64(snap.Lines), 50},
		{"min", float64(snap.MinUs), 100},
		{"max", float64(snap.MaxUs), 500},
		{"avg", snap.AvgUs, 300},
		{"p50", snap.P50Us, 300},
		{"p95", snap.P95Us, 480},
		{"p99", snap.P99Us, 496},
		{"throughput", snap.LinesPerSec, 50 / 0.0015},
	}
	for _, tt := range tests {
		if diff := tt.got - tt.want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}
	if snap.Window != "1h0m0s" {
		t.Errorf("expected window 1h0m0s, got %q", snap.Window)
	}
}

func TestParseStats_WindowExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stats := NewParseStats(time.Minute)
	stats.now = fixedClock(&now)

	stats.Observe(time.Millisecond, 3)
	now = now.Add(40 * time.Second)
	stats.Observe(2*time.Millisecond, 4)

	if snap := stats.Snapshot(); snap.Count != 2 || snap.Lines != 7 {
		t.Fatalf("expected 2 samples / 7 lines, got %d / %d", snap.Count, snap.Lines)
	}

	now = now.Add(30 * time.Second)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinUs != 2000 {
		t.Fatalf("expected only the newer sample, got count=%d min=%d", snap.Count, snap.MinUs)
	}

	now = now.Add(time.Hour)
	if snap := stats.Snapshot(); snap.Count != 0 || snap.LinesPerSec != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestParseStats_SingleSample(t *testing.T) {
	stats := NewParseStats(0)
	stats.Observe(-time.Second, 1)

	snap := stats.Snapshot()
	if snap.MinUs != 0 || snap.P99Us != 0 {
		t.Fatalf("negative duration should clamp to zero, got %+v", snap)
	}
	if snap.LinesPerSec != 0 {
		t.Fatalf("expected no throughput for zero busy time, got %f", snap.LinesPerSec)
	}
}
