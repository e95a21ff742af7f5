package indicator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/avwap/internal/models"
)

func TestPriceSelectors(t *testing.T) {
	bar := &models.Bar{
		Symbol: "AAPL",
		Open:   10.0,
		High:   11.0,
		Low:    9.0,
		Close:  10.5,
		Volume: 100,
	}

	tests := []struct {
		name     string
		selector PriceSelector
		want     string
	}{
		{"ohlc4", OHLC4, "10.125"},
		{"hlc3", HLC3, "10.1666666666666667"},
		{"close", ClosePrice, "10.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.selector(bar)
			if want := decimal.RequireFromString(tt.want); !got.Equal(want) {
				t.Errorf("%s price = %s, want %s", tt.name, got, want)
			}
		})
	}
}

func TestSelectorByName(t *testing.T) {
	bar := &models.Bar{Open: 1.0, High: 4.0, Low: 2.0, Close: 3.0}

	if got := SelectorByName("close")(bar); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("close selector = %s, want 3", got)
	}
	if got := SelectorByName("hlc3")(bar); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("hlc3 selector = %s, want 3", got)
	}
	// Unknown names fall back to OHLC4
	if got := SelectorByName("bogus")(bar); !got.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("fallback selector = %s, want 2.5", got)
	}
}
