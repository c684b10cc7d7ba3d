package cache_stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_HitRate(t *testing.T) {
	s := New()
	s.RecordHit()
	s.RecordHit()
	s.RecordHit()
	s.RecordMiss()
	s.RecordCompute()

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap["total_requests"])
	assert.Equal(t, int64(3), snap["cache_hits"])
	assert.Equal(t, int64(1), snap["computes"])
	assert.InDelta(t, 75.0, snap["hit_rate_percent"].(float64), 0.001)

	s.Reset()
	assert.Equal(t, int64(0), s.Computations())
}

func TestStats_NilIsSafe(t *testing.T) {
	var s *Stats
	s.RecordHit()
	s.RecordMiss()
	s.RecordCompute()
	s.RecordFailure()
	assert.Equal(t, int64(0), s.Computations())
	assert.Equal(t, 0.0, s.Snapshot()["hit_rate_percent"])
}
