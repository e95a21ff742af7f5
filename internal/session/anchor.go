package session

import (
	"fmt"
	"time"
)

// AnchorKind names a supported anchor derivation rule
type AnchorKind string

const (
	// AnchorSessionOpen anchors at 9:30 AM ET of the reference time's date
	AnchorSessionOpen AnchorKind = "session_open"

	// AnchorDayOpen anchors at UTC midnight of the reference time's date
	AnchorDayOpen AnchorKind = "day_open"

	// AnchorWeekOpen anchors at UTC midnight of the Monday of the reference
	// time's week
	AnchorWeekOpen AnchorKind = "week_open"

	// AnchorFixed anchors at a configured timestamp that never moves
	AnchorFixed AnchorKind = "fixed"
)

// AnchorFunc resolves the anchor timestamp in effect for a reference time.
// For rolling kinds the resolved anchor moves forward as the reference
// crosses a session or calendar boundary; callers compare the resolved
// anchor against the one they are accumulating under to detect that.
type AnchorFunc func(ref time.Time) time.Time

// SessionOpenAnchor resolves to the regular session open (9:30 AM ET) of the
// reference time's trading date. References before the open resolve to an
// anchor in the future, so nothing accumulates until the session starts.
func SessionOpenAnchor(ref time.Time) time.Time {
	return GetMarketOpenTime(ref)
}

// DayOpenAnchor resolves to UTC midnight of the reference time's date
func DayOpenAnchor(ref time.Time) time.Time {
	year, month, day := ref.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// WeekOpenAnchor resolves to UTC midnight of the Monday of the reference
// time's week
func WeekOpenAnchor(ref time.Time) time.Time {
	day := DayOpenAnchor(ref)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// FixedAnchor returns an AnchorFunc that always resolves to the given time
func FixedAnchor(at time.Time) AnchorFunc {
	return func(time.Time) time.Time {
		return at
	}
}

// AnchorFuncFor resolves an anchor function from its kind. AnchorFixed
// requires a nonzero fixed timestamp.
func AnchorFuncFor(kind AnchorKind, fixed time.Time) (AnchorFunc, error) {
	switch kind {
	case AnchorSessionOpen:
		return SessionOpenAnchor, nil
	case AnchorDayOpen:
		return DayOpenAnchor, nil
	case AnchorWeekOpen:
		return WeekOpenAnchor, nil
	case AnchorFixed:
		if fixed.IsZero() {
			return nil, fmt.Errorf("fixed anchor requires a timestamp")
		}
		return FixedAnchor(fixed), nil
	default:
		return nil, fmt.Errorf("unknown anchor kind %q", kind)
	}
}
