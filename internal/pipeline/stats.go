package pipeline

import (
	"slices"
	"sync"
	"time"
)

// StatsSnapshot aggregates the parses seen in the current window. Latencies are
// in microseconds; most acts parse in well under a millisecond.
type StatsSnapshot struct {
	Window      string  `json:"window"`
	Count       int     `json:"count"`
	Lines       int     `json:"lines"`
	LinesPerSec float64 `json:"lines_per_sec"`
	MinUs       int64   `json:"min_us"`
	MaxUs       int64   `json:"max_us"`
	AvgUs       float64 `json:"avg_us"`
	P50Us       float64 `json:"p50_us"`
	P95Us       float64 `json:"p95_us"`
	P99Us       float64 `json:"p99_us"`
}

type parseSample struct {
	at    time.Time
	took  time.Duration
	lines int
}

// ParseStats keeps parse timings for a rolling window. Safe for concurrent use.
type ParseStats struct {
	mu      sync.Mutex
	window  time.Duration
	samples []parseSample // oldest first
	now     func() time.Time
}

func NewParseStats(window time.Duration) *ParseStats {
	if window <= 0 {
		window = time.Hour
	}
	return &ParseStats{window: window, now: time.Now}
}

// Observe records one parse of lines input lines.
func (s *ParseStats) Observe(took time.Duration, lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expire(now)
	s.samples = append(s.samples, parseSample{at: now, took: max(took, 0), lines: lines})
}

func (s *ParseStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	s.expire(s.now())
	samples := slices.Clone(s.samples)
	s.mu.Unlock()

	snap := StatsSnapshot{Window: s.window.String(), Count: len(samples)}
	if len(samples) == 0 {
		return snap
	}

	us := make([]int64, len(samples))
	var busy time.Duration
	for i, sm := range samples {
		us[i] = sm.took.Microseconds()
		busy += sm.took
		snap.Lines += sm.lines
	}
	slices.Sort(us)

	var sum int64
	for _, v := range us {
		sum += v
	}
	snap.MinUs = us[0]
	snap.MaxUs = us[len(us)-1]
	snap.AvgUs = float64(sum) / float64(len(us))
	snap.P50Us = quantile(us, 0.50)
	snap.P95Us = quantile(us, 0.95)
	snap.P99Us = quantile(us, 0.99)
	if busy > 0 {
		snap.LinesPerSec = float64(snap.Lines) / busy.Seconds()
	}
	return snap
}

// expire drops samples older than the window. Callers hold mu.
func (s *ParseStats) expire(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = slices.Delete(s.samples, 0, i)
	}
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []int64, q float64) float64 {
	if len(sorted) == 1 {
		return float64(sorted[0])
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return float64(sorted[len(sorted)-1])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
