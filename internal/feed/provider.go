package feed

import (
	"context"
	"errors"
	"time"

	"github.com/quantfeed/avwap/internal/models"
)

var (
	// ErrFeedNotConnected is returned when operations are attempted on a disconnected feed
	ErrFeedNotConnected = errors.New("feed is not connected")
	// ErrFeedAlreadyConnected is returned when attempting to connect an already connected feed
	ErrFeedAlreadyConnected = errors.New("feed is already connected")
)

// History fetches historical finalized bars for state rehydration and replay.
type History interface {
	// FetchBars returns all finalized bars for symbol with End in (from, to],
	// sorted by End ascending.
	FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]*models.Bar, error)
}
