package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/quantfeed/avwap/internal/models"
)

// PriceSelector extracts the representative price of a bar. Bar prices are
// carried as float64 by the upstream feed; selectors convert them to decimals
// at this boundary so everything past it is exact.
type PriceSelector func(bar *models.Bar) decimal.Decimal

// OHLC4 returns the mean of open, high, low and close
func OHLC4(bar *models.Bar) decimal.Decimal {
	return decimal.Avg(
		decimal.NewFromFloat(bar.Open),
		decimal.NewFromFloat(bar.High),
		decimal.NewFromFloat(bar.Low),
		decimal.NewFromFloat(bar.Close),
	)
}

// HLC3 returns the typical price (mean of high, low and close)
func HLC3(bar *models.Bar) decimal.Decimal {
	return decimal.Avg(
		decimal.NewFromFloat(bar.High),
		decimal.NewFromFloat(bar.Low),
		decimal.NewFromFloat(bar.Close),
	)
}

// ClosePrice returns the bar's close
func ClosePrice(bar *models.Bar) decimal.Decimal {
	return decimal.NewFromFloat(bar.Close)
}

// SelectorByName resolves a price selector from its configuration name.
// Unknown names fall back to OHLC4.
func SelectorByName(name string) PriceSelector {
	switch name {
	case "hlc3":
		return HLC3
	case "close":
		return ClosePrice
	default:
		return OHLC4
	}
}
