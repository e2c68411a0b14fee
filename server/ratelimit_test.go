package server

import (
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	base := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) time.Time { return base.Add(d) }

	tests := []struct {
		name     string
		max      int
		arrivals []time.Time
		want     []bool
	}{
		{
			name:     "first request always counted as zero",
			max:      1,
			arrivals: []time.Time{at(0)},
			want:     []bool{true},
		},
		{
			name:     "max zero rejects everything",
			max:      0,
			arrivals: []time.Time{at(0), at(2 * time.Second)},
			want:     []bool{false, false},
		},
		{
			name:     "same second over the limit",
			max:      2,
			arrivals: []time.Time{at(0), at(100 * time.Millisecond), at(900 * time.Millisecond)},
			want:     []bool{true, true, false},
		},
		{
			name:     "next second resets",
			max:      2,
			arrivals: []time.Time{at(0), at(10 * time.Millisecond), at(20 * time.Millisecond), at(time.Second)},
			want:     []bool{true, true, false, true},
		},
		{
			name:     "long gap resets",
			max:      1,
			arrivals: []time.Time{at(0), at(0), at(time.Hour), at(time.Hour)},
			want:     []bool{true, false, true, false},
		},
		{
			name:     "wall clock second boundary",
			max:      1,
			arrivals: []time.Time{at(999 * time.Millisecond), at(time.Second)},
			want:     []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRateLimiter(tt.max)
			for i, now := range tt.arrivals {
				if got := r.Admit(now); got != tt.want[i] {
					t.Errorf("arrival %d: Admit() = %v, want %v (count %d)", i, got, tt.want[i], r.Count())
				}
			}
		})
	}
}

func TestRateLimiterCount(t *testing.T) {
	base := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter(10)

	r.Admit(base)
	if r.Count() != 0 {
		t.Errorf("Count() after first = %d, want 0", r.Count())
	}
	r.Admit(base)
	r.Admit(base)
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
	r.Admit(base.Add(3 * time.Second))
	if r.Count() != 0 {
		t.Errorf("Count() after reset = %d, want 0", r.Count())
	}
	if r.Max() != 10 {
		t.Errorf("Max() = %d, want 10", r.Max())
	}
}
