package monitor

import "sync"

// Series is a capped time series of one resource metric. Appends past the
// cap evict the oldest entries, so the series never grows beyond its limit
// no matter how long the sampler runs. Access is guarded so readers stay
// safe even if the sampling goroutine outlives its stop budget.
type Series struct {
	mu     sync.Mutex
	limit  int
	values []float64
}

// NewSeries creates a Series holding at most limit entries
func NewSeries(limit int) *Series {
	return &Series{
		limit:  limit,
		values: make([]float64, 0, limit),
	}
}

// Append adds a value, evicting the oldest entries past the cap
func (s *Series) Append(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = append(s.values, v)
	if len(s.values) > s.limit {
		s.values = s.values[len(s.values)-s.limit:]
	}
}

// Len returns the number of retained entries
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Values returns a copy of the retained entries in chronological order
func (s *Series) Values() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}
