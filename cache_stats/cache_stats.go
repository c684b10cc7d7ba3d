package cache_stats

import (
	"sync"
	"time"
)

// Stats tracks cache performance counters.
type Stats struct {
	mutex         sync.RWMutex
	TotalRequests int64
	CacheHits     int64
	CacheMisses   int64
	Computes      int64
	Failures      int64
	LastResetTime time.Time
}

func New() *Stats {
	return &Stats{LastResetTime: time.Now()}
}

// RecordHit increments the hit counter.
func (s *Stats) RecordHit() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.TotalRequests++
	s.CacheHits++
}

// RecordMiss increments the miss counter.
func (s *Stats) RecordMiss() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.TotalRequests++
	s.CacheMisses++
}

// RecordCompute counts one expensive recomputation (a parse, a scan, a subprocess).
func (s *Stats) RecordCompute() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Computes++
}

func (s *Stats) RecordFailure() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Failures++
}

// Snapshot returns the counters along with derived rates.
func (s *Stats) Snapshot() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{
			"total_requests":   int64(0),
			"cache_hits":       int64(0),
			"cache_misses":     int64(0),
			"computes":         int64(0),
			"failures":         int64(0),
			"hit_rate_percent": 0.0,
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	hitRate := 0.0
	if s.TotalRequests > 0 {
		hitRate = float64(s.CacheHits) / float64(s.TotalRequests) * 100
	}

	uptime := time.Since(s.LastResetTime)

	return map[string]interface{}{
		"total_requests":   s.TotalRequests,
		"cache_hits":       s.CacheHits,
		"cache_misses":     s.CacheMisses,
		"computes":         s.Computes,
		"failures":         s.Failures,
		"hit_rate_percent": hitRate,
		"uptime_human":     uptime.Round(time.Millisecond).String(),
		"last_reset":       s.LastResetTime.Format(time.RFC3339),
	}
}

// Computations returns the number of recorded recomputations.
func (s *Stats) Computations() int64 {
	if s == nil {
		return 0
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Computes
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.TotalRequests = 0
	s.CacheHits = 0
	s.CacheMisses = 0
	s.Computes = 0
	s.Failures = 0
	s.LastResetTime = time.Now()
}
