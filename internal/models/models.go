package models

import (
	"time"
)

// Bar represents a finalized OHLCV trade bar. Start and End delimit the
// aggregation interval; End is the timestamp the bar is keyed by downstream.
type Bar struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Validate validates a Bar
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return ErrInvalidSymbol
	}
	if b.End.IsZero() {
		return ErrInvalidTimestamp
	}
	if !b.Start.IsZero() && b.End.Before(b.Start) {
		return ErrInvalidInterval
	}
	if b.High < b.Low {
		return ErrInvalidBar
	}
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
		return ErrInvalidPrice
	}
	if b.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// Duration returns the bar's interval length, or zero when Start is unset.
func (b *Bar) Duration() time.Duration {
	if b.Start.IsZero() {
		return 0
	}
	return b.End.Sub(b.Start)
}

// IndicatorValue is the published projection of a computed indicator result.
type IndicatorValue struct {
	Symbol    string    `json:"symbol"`
	Indicator string    `json:"indicator"`
	Value     float64   `json:"value"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate validates an IndicatorValue
func (v *IndicatorValue) Validate() error {
	if v.Symbol == "" {
		return ErrInvalidSymbol
	}
	if v.Indicator == "" {
		return ErrInvalidIndicator
	}
	if v.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// ValueSnapshot is the cached view of a symbol's current indicator values,
// keyed by indicator name. Timestamp is the end of the bar that produced it.
type ValueSnapshot struct {
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}
