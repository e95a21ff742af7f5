package session

import (
	"time"
)

// MarketSession represents the current market session
type MarketSession string

const (
	SessionPreMarket  MarketSession = "premarket"
	SessionMarket     MarketSession = "market"
	SessionPostMarket MarketSession = "postmarket"
	SessionClosed     MarketSession = "closed"
)

// GetMarketSession determines the market session for the given time.
// Uses Eastern Time (ET) which is UTC-5 (EST) or UTC-4 (EDT)
// Market hours:
// - Pre-Market: 4:00 AM - 9:30 AM ET
// - Market: 9:30 AM - 4:00 PM ET
// - Post-Market: 4:00 PM - 8:00 PM ET
func GetMarketSession(t time.Time) MarketSession {
	// time.LoadLocation may fail if tzdata is not available; fall back to an
	// approximate EST calculation in that case
	etLocation, err := time.LoadLocation("America/New_York")
	if err != nil {
		return getMarketSessionFallback(t)
	}

	etTime := t.In(etLocation)

	weekday := etTime.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return SessionClosed
	}

	hour := etTime.Hour()
	minute := etTime.Minute()
	timeOfDay := hour*60 + minute // Minutes since midnight

	// Pre-Market: 4:00 AM - 9:30 AM ET (240 - 570 minutes)
	if timeOfDay >= 240 && timeOfDay < 570 {
		return SessionPreMarket
	}

	// Market: 9:30 AM - 4:00 PM ET (570 - 960 minutes)
	if timeOfDay >= 570 && timeOfDay < 960 {
		return SessionMarket
	}

	// Post-Market: 4:00 PM - 8:00 PM ET (960 - 1200 minutes)
	if timeOfDay >= 960 && timeOfDay < 1200 {
		return SessionPostMarket
	}

	return SessionClosed
}

// getMarketSessionFallback is a fallback when timezone data is not available
// Assumes EST (UTC-5) - this is approximate and doesn't handle DST
func getMarketSessionFallback(t time.Time) MarketSession {
	utcTime := t.UTC()
	weekday := utcTime.Weekday()

	if weekday == time.Saturday || weekday == time.Sunday {
		return SessionClosed
	}

	hour := utcTime.Hour()
	minute := utcTime.Minute()
	timeOfDay := hour*60 + minute

	// Pre-Market: 4:00-9:30 ET = 9:00-14:30 UTC
	if timeOfDay >= 540 && timeOfDay < 870 {
		return SessionPreMarket
	}

	// Market: 9:30-16:00 ET = 14:30-21:00 UTC
	if timeOfDay >= 870 && timeOfDay < 1260 {
		return SessionMarket
	}

	// Post-Market: 16:00-20:00 ET = 21:00-01:00 UTC (next day)
	if timeOfDay >= 1260 || timeOfDay < 60 {
		return SessionPostMarket
	}

	return SessionClosed
}

// IsMarketOpen returns true if the market is in its regular session
func IsMarketOpen(t time.Time) bool {
	return GetMarketSession(t) == SessionMarket
}

// GetMarketOpenTime returns the market open time (9:30 AM ET) for the given date
func GetMarketOpenTime(date time.Time) time.Time {
	etLocation, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: assume EST (UTC-5)
		year, month, day := date.UTC().Date()
		return time.Date(year, month, day, 14, 30, 0, 0, time.UTC)
	}

	etDate := date.In(etLocation)
	year, month, day := etDate.Date()

	return time.Date(year, month, day, 9, 30, 0, 0, etLocation)
}
