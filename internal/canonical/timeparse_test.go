package canonical

import (
	"testing"
	"time"
)

func TestParseStamp(t *testing.T) {
	tests := []struct {
		in       string
		want     time.Time
		hasClock bool
		ok       bool
	}{
		{"2025-06-01", time.Date(2025, 6, 1, 0, 0, 0, 0, paris), false, true},
		{"01/06/2025", time.Date(2025, 6, 1, 0, 0, 0, 0, paris), false, true},
		{"2025-06-01T09:15:00", time.Date(2025, 6, 1, 9, 15, 0, 0, paris), true, true},
		{"2025-06-01T09:15:00+02:00", time.Date(2025, 6, 1, 9, 15, 0, 0, paris), true, true},
		{"2025-06-01T00:00:00Z", time.Date(2025, 6, 1, 0, 0, 0, 0, paris), false, true},
		{"2025-05-31T22:00:00Z", time.Date(2025, 6, 1, 0, 0, 0, 0, paris), true, true},
		{"1748736000", time.Date(2025, 6, 1, 0, 0, 0, 0, paris), false, true},
		{"", time.Time{}, false, false},
		{"tomorrow", time.Time{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseStamp(tt.in, paris)
			if ok != tt.ok {
				t.Fatalf("ok=%v want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if !got.At.Equal(tt.want) {
				t.Errorf("At=%v want %v", got.At, tt.want)
			}
			if got.hasClock != tt.hasClock {
				t.Errorf("hasClock=%v want %v", got.hasClock, tt.hasClock)
			}
		})
	}
}

func TestWithClock(t *testing.T) {
	date := stamp{At: time.Date(2025, 6, 1, 0, 0, 0, 0, paris)}

	tests := []struct {
		clock    string
		want     time.Time
		hasClock bool
	}{
		{"09:30:15", time.Date(2025, 6, 1, 9, 30, 15, 0, paris), true},
		{"14:00", time.Date(2025, 6, 1, 14, 0, 0, 0, paris), true},
		{"8h", time.Date(2025, 6, 1, 8, 0, 0, 0, paris), true},
		{"10:00:00+02:00", time.Date(2025, 6, 1, 10, 0, 0, 0, paris), true},
		{"", date.At, false},
		{"afternoon", date.At, false},
	}

	for _, tt := range tests {
		got := withClock(date, tt.clock, paris)
		if !got.At.Equal(tt.want) || got.hasClock != tt.hasClock {
			t.Errorf("withClock(%q) = %v/%v, want %v/%v", tt.clock, got.At, got.hasClock, tt.want, tt.hasClock)
		}
	}
}

func TestSpan(t *testing.T) {
	start := stamp{At: time.Date(2025, 6, 1, 0, 0, 0, 0, paris)}

	s, e := span(start, nil, 6, paris)
	if !s.Equal(time.Date(2025, 6, 1, 6, 0, 0, 0, paris)) {
		t.Errorf("start=%v", s)
	}
	if !e.Equal(time.Date(2025, 6, 1, 23, 59, 59, 999000000, paris)) {
		t.Errorf("end=%v", e)
	}

	s, _ = span(start, nil, 8, paris)
	if s.Hour() != 8 {
		t.Errorf("Expected configurable default hour, got %d", s.Hour())
	}
}
