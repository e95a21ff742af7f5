package indicator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/avwap/internal/models"
)

// AnchoredVWAP calculates the Volume Weighted Average Price over every bar
// that closes at or after a fixed anchor timestamp
// VWAP = Sum(Price * Volume) / Sum(Volume) since the anchor
//
// The accumulated sums are exact decimals; bar prices are converted at the
// boundary by the price selector. State is O(1) regardless of how many bars
// have been accumulated, and the anchor never changes after construction.
type AnchoredVWAP struct {
	name   string
	anchor time.Time
	price  PriceSelector

	sumPriceVolume decimal.Decimal
	sumVolume      decimal.Decimal
	updates        int
}

// NewAnchoredVWAP creates an anchored VWAP with the default OHLC4 price
// source and a name derived from the anchor. Any anchor is accepted,
// including times in the future; bars simply accumulate once they reach it.
func NewAnchoredVWAP(anchor time.Time) *AnchoredVWAP {
	return NewAnchoredVWAPNamed("", anchor, nil)
}

// NewAnchoredVWAPNamed creates an anchored VWAP with an explicit name and
// price selector. An empty name falls back to the generated one, a nil
// selector falls back to OHLC4.
func NewAnchoredVWAPNamed(name string, anchor time.Time, price PriceSelector) *AnchoredVWAP {
	if name == "" {
		name = fmt.Sprintf("avwap_%s", anchor.UTC().Format("20060102T150405Z"))
	}
	if price == nil {
		price = OHLC4
	}
	return &AnchoredVWAP{
		name:   name,
		anchor: anchor,
		price:  price,
	}
}

// Name returns the indicator name
func (a *AnchoredVWAP) Name() string {
	return a.name
}

// Anchor returns the anchor timestamp set at construction
func (a *AnchoredVWAP) Anchor() time.Time {
	return a.anchor
}

// Update processes a new bar. A nil bar, or a bar that closes before the
// anchor, is reported as StatusInvalidInput and leaves the accumulated sums
// and the update count untouched. When the bar is accumulated but the
// cumulative volume is still zero, the result carries the bar's own
// representative price under StatusMathError so consumers that plot
// regardless of status still see a real price.
func (a *AnchoredVWAP) Update(bar *models.Bar) Result {
	if bar == nil {
		return Result{Value: decimal.Zero, Status: StatusInvalidInput}
	}
	if bar.End.Before(a.anchor) {
		return Result{Value: decimal.Zero, Status: StatusInvalidInput, Time: bar.End}
	}

	price := a.price(bar)
	volume := decimal.NewFromInt(bar.Volume)
	a.sumPriceVolume = a.sumPriceVolume.Add(price.Mul(volume))
	a.sumVolume = a.sumVolume.Add(volume)
	a.updates++

	if a.sumVolume.IsZero() {
		return Result{Value: price, Status: StatusMathError, Time: bar.End}
	}
	return Result{Value: a.sumPriceVolume.Div(a.sumVolume), Status: StatusSuccess, Time: bar.End}
}

// Value returns the current VWAP as a float64
func (a *AnchoredVWAP) Value() (float64, error) {
	vwap, err := a.ValueDecimal()
	if err != nil {
		return 0, err
	}
	return vwap.InexactFloat64(), nil
}

// ValueDecimal returns the current VWAP at full precision
func (a *AnchoredVWAP) ValueDecimal() (decimal.Decimal, error) {
	if !a.IsReady() {
		return decimal.Zero, fmt.Errorf("anchored VWAP %s not ready: no volume accumulated since anchor", a.name)
	}
	return a.sumPriceVolume.Div(a.sumVolume), nil
}

// IsReady returns true once at least one bar with nonzero volume has been
// accumulated
func (a *AnchoredVWAP) IsReady() bool {
	return a.sumVolume.IsPositive()
}

// WarmUpPeriod returns 1: a single accumulated bar with volume is enough
func (a *AnchoredVWAP) WarmUpPeriod() int {
	return 1
}

// BarsProcessed returns the number of bars accumulated since construction or
// the last reset. Rejected bars are not counted.
func (a *AnchoredVWAP) BarsProcessed() int {
	return a.updates
}

// Reset clears the accumulated sums and the update count. The anchor, name
// and price selector are kept, so the instance behaves exactly like a fresh
// one constructed with the same configuration.
func (a *AnchoredVWAP) Reset() {
	a.sumPriceVolume = decimal.Zero
	a.sumVolume = decimal.Zero
	a.updates = 0
}
