package session

import (
	"testing"
	"time"
)

func TestSessionOpenAnchor(t *testing.T) {
	// January: EST, session opens at 14:30 UTC
	ref := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	if got := SessionOpenAnchor(ref); !got.Equal(want) {
		t.Errorf("SessionOpenAnchor(%v) = %v, want %v", ref, got, want)
	}

	// A reference before the open resolves to an anchor in the future
	early := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if got := SessionOpenAnchor(early); !early.Before(got) {
		t.Errorf("SessionOpenAnchor(%v) = %v, expected an anchor after the reference", early, got)
	}
}

func TestDayOpenAnchor(t *testing.T) {
	ref := time.Date(2024, 5, 10, 17, 45, 30, 0, time.UTC)
	want := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	if got := DayOpenAnchor(ref); !got.Equal(want) {
		t.Errorf("DayOpenAnchor(%v) = %v, want %v", ref, got, want)
	}

	// Midnight itself maps to itself
	if got := DayOpenAnchor(want); !got.Equal(want) {
		t.Errorf("DayOpenAnchor(%v) = %v, want %v", want, got, want)
	}
}

func TestWeekOpenAnchor(t *testing.T) {
	monday := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ref  time.Time
	}{
		{"Monday", time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)},
		{"Wednesday", time.Date(2024, 5, 8, 9, 30, 0, 0, time.UTC)},
		{"Friday", time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)},
		{"Sunday", time.Date(2024, 5, 12, 23, 59, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekOpenAnchor(tt.ref); !got.Equal(monday) {
				t.Errorf("WeekOpenAnchor(%v) = %v, want %v", tt.ref, got, monday)
			}
		})
	}
}

func TestFixedAnchor(t *testing.T) {
	at := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	fn := FixedAnchor(at)

	for _, ref := range []time.Time{
		at.Add(-24 * time.Hour),
		at,
		at.Add(365 * 24 * time.Hour),
	} {
		if got := fn(ref); !got.Equal(at) {
			t.Errorf("FixedAnchor(%v)(%v) = %v, want %v", at, ref, got, at)
		}
	}
}

func TestAnchorFuncFor(t *testing.T) {
	ref := time.Date(2024, 5, 10, 17, 0, 0, 0, time.UTC)

	if fn, err := AnchorFuncFor(AnchorDayOpen, time.Time{}); err != nil {
		t.Errorf("AnchorFuncFor(day_open) error: %v", err)
	} else if got := fn(ref); !got.Equal(DayOpenAnchor(ref)) {
		t.Errorf("day_open anchor = %v, want %v", got, DayOpenAnchor(ref))
	}

	if fn, err := AnchorFuncFor(AnchorWeekOpen, time.Time{}); err != nil {
		t.Errorf("AnchorFuncFor(week_open) error: %v", err)
	} else if got := fn(ref); !got.Equal(WeekOpenAnchor(ref)) {
		t.Errorf("week_open anchor = %v, want %v", got, WeekOpenAnchor(ref))
	}

	fixed := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	if fn, err := AnchorFuncFor(AnchorFixed, fixed); err != nil {
		t.Errorf("AnchorFuncFor(fixed) error: %v", err)
	} else if got := fn(ref); !got.Equal(fixed) {
		t.Errorf("fixed anchor = %v, want %v", got, fixed)
	}

	// Fixed without a timestamp is a configuration error
	if _, err := AnchorFuncFor(AnchorFixed, time.Time{}); err == nil {
		t.Error("Expected error for fixed anchor without timestamp")
	}

	if _, err := AnchorFuncFor(AnchorKind("bogus"), time.Time{}); err == nil {
		t.Error("Expected error for unknown anchor kind")
	}
}
