package domain

import (
	"testing"
	"time"
)

func TestWindow(t *testing.T) {
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{RangeLast30Days, time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)},
		{RangeLast12Weeks, time.Date(2026, 4, 7, 12, 0, 0, 0, time.UTC)},
		{RangeLast12Months, time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)},
		{"month", time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)},
		{"", time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		from, to := Window(tt.in, now)
		if !from.Equal(tt.want) || !to.Equal(now) {
			t.Errorf("Window(%q) = %v..%v, want %v..%v", tt.in, from, to, tt.want, now)
		}
	}
}

func TestGranularity(t *testing.T) {
	for in, want := range map[string]string{"day": "day", "week": "week", "month": "month", "year": "year", "hour": "day", "": "day"} {
		if got := Granularity(in); got != want {
			t.Errorf("Granularity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCurrentStreak(t *testing.T) {
	d := func(day, hour int) time.Time { return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC) }
	tests := []struct {
		name string
		days []time.Time
		want int
	}{
		{"none", nil, 0},
		{"single", []time.Time{d(5, 9)}, 1},
		{"run", []time.Time{d(3, 9), d(4, 10), d(5, 8)}, 3},
		{"gap keeps latest run", []time.Time{d(1, 9), d(2, 9), d(4, 9), d(5, 9)}, 2},
		{"duplicates and order", []time.Time{d(5, 23), d(4, 1), d(5, 1), d(4, 22)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentStreak(tt.days); got != tt.want {
				t.Errorf("CurrentStreak = %d, want %d", got, tt.want)
			}
		})
	}
}
