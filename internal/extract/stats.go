package extract

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at       time.Time
	language string
	micros   int64
	entities int
	failed   bool
}

// StatsSnapshot aggregates the parse samples currently in the window.
// Latencies are in milliseconds.
type StatsSnapshot struct {
	Count      int            `json:"count"`
	Failed     int            `json:"failed"`
	Entities   int            `json:"entities"`
	ByLanguage map[string]int `json:"by_language"`
	MinMs      float64        `json:"min_ms"`
	MaxMs      float64        `json:"max_ms"`
	AvgMs      float64        `json:"avg_ms"`
	P50Ms      float64        `json:"p50_ms"`
	P95Ms      float64        `json:"p95_ms"`
	P99Ms      float64        `json:"p99_ms"`
}

// ParseStats is bounded both by sample age and by sample count.
type ParseStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	maxLen  int
	now     func() time.Time
}

func NewParseStats(maxAge time.Duration, maxLen int) *ParseStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &ParseStats{
		samples: make([]sample, 0, min(maxLen, 256)),
		maxAge:  maxAge,
		maxLen:  maxLen,
		now:     time.Now,
	}
}

// Record adds one successful parse.
func (s *ParseStats) Record(language string, d time.Duration, entities int) {
	s.add(sample{language: language, micros: d.Microseconds(), entities: entities})
}

// RecordFailure adds one failed parse. Failures count toward Failed only.
func (s *ParseStats) RecordFailure(language string, d time.Duration) {
	s.add(sample{language: language, micros: d.Microseconds(), failed: true})
}

func (s *ParseStats) add(sm sample) {
	if sm.micros < 0 {
		sm.micros = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sm.at = s.now()
	s.pruneLocked(sm.at)
	if len(s.samples) == s.maxLen {
		s.samples = append(s.samples[:0], s.samples[1:]...)
	}
	s.samples = append(s.samples, sm)
}

func (s *ParseStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	snap := StatsSnapshot{ByLanguage: map[string]int{}}
	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		if sm.failed {
			snap.Failed++
			continue
		}
		values = append(values, sm.micros)
		sum += sm.micros
		snap.Entities += sm.entities
		snap.ByLanguage[sm.language]++
	}
	if len(values) == 0 {
		return snap
	}
	slices.Sort(values)

	snap.Count = len(values)
	snap.MinMs = ms(float64(values[0]))
	snap.MaxMs = ms(float64(values[len(values)-1]))
	snap.AvgMs = ms(float64(sum) / float64(len(values)))
	snap.P50Ms = ms(percentile(values, 50))
	snap.P95Ms = ms(percentile(values, 95))
	snap.P99Ms = ms(percentile(values, 99))
	return snap
}

func (s *ParseStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

func ms(micros float64) float64 { return micros / 1000 }

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}
	index := float64(len(sorted)-1) * pct / 100
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
