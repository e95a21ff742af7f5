package indicator

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status classifies the outcome of a single Update call
type Status int

const (
	// StatusSuccess means the bar was accumulated and Value carries a valid VWAP
	StatusSuccess Status = iota

	// StatusInvalidInput means the bar was rejected (nil, or closed before the
	// anchor) and the accumulated state was not touched
	StatusInvalidInput

	// StatusMathError means the bar was accumulated but the cumulative volume
	// is still zero, so no quotient exists; Value carries a fallback price
	StatusMathError
)

// String returns the transport representation of the status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidInput:
		return "invalid_input"
	case StatusMathError:
		return "math_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Update call. It is produced fresh per call and
// never retained by the calculator.
type Result struct {
	// Value is the current VWAP on success, the fallback price on a math
	// error, and zero when the input was invalid
	Value decimal.Decimal

	// Status classifies the update outcome
	Status Status

	// Time is the end time of the bar that produced this result, or the zero
	// time when the bar itself was nil
	Time time.Time
}
