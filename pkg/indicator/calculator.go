package indicator

import (
	"github.com/quantfeed/avwap/internal/models"
)

// Calculator is the interface for streaming indicators driven by finalized
// bars. Implementations are single threaded: callers serialize Update calls.
type Calculator interface {
	// Name returns the unique name of this indicator (e.g., "avwap_session")
	Name() string

	// Update processes a new bar and returns the outcome for that bar.
	// Rejected bars (see Status) leave the indicator state untouched.
	Update(bar *models.Bar) Result

	// Value returns the current indicator value
	// Returns 0 and an error if the indicator is not ready
	Value() (float64, error)

	// IsReady returns true once the indicator can produce a valid value
	IsReady() bool

	// WarmUpPeriod returns the number of accepted updates after which the
	// indicator is expected to be ready. Informational only; readiness is
	// decided by IsReady.
	WarmUpPeriod() int

	// Reset clears the accumulated state (useful for rehydration or testing)
	// while keeping the indicator's configuration
	Reset()
}
