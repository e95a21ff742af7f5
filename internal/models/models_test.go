package models

import (
	"testing"
	"time"
)

func TestBar_Validate(t *testing.T) {
	start := time.Date(2024, 5, 10, 13, 30, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	tests := []struct {
		name    string
		bar     *Bar
		wantErr bool
	}{
		{
			name: "valid bar",
			bar: &Bar{
				Symbol: "AAPL",
				Start:  start,
				End:    end,
				Open:   150.0,
				High:   151.0,
				Low:    149.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: false,
		},
		{
			name: "valid bar without start",
			bar: &Bar{
				Symbol: "AAPL",
				End:    end,
				Open:   150.0,
				High:   151.0,
				Low:    149.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: false,
		},
		{
			name: "missing symbol",
			bar: &Bar{
				Start:  start,
				End:    end,
				Open:   150.0,
				High:   151.0,
				Low:    149.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: true,
		},
		{
			name: "zero end time",
			bar: &Bar{
				Symbol: "AAPL",
				Start:  start,
				Open:   150.0,
				High:   151.0,
				Low:    149.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: true,
		},
		{
			name: "end before start",
			bar: &Bar{
				Symbol: "AAPL",
				Start:  end,
				End:    start,
				Open:   150.0,
				High:   151.0,
				Low:    149.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: true,
		},
		{
			name: "high < low",
			bar: &Bar{
				Symbol: "AAPL",
				Start:  start,
				End:    end,
				Open:   150.0,
				High:   149.0,
				Low:    151.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: true,
		},
		{
			name: "negative volume",
			bar: &Bar{
				Symbol: "AAPL",
				Start:  start,
				End:    end,
				Open:   150.0,
				High:   151.0,
				Low:    149.0,
				Close:  150.5,
				Volume: -100,
			},
			wantErr: true,
		},
		{
			name: "negative price",
			bar: &Bar{
				Symbol: "AAPL",
				Start:  start,
				End:    end,
				Open:   -150.0,
				High:   151.0,
				Low:    -151.0,
				Close:  150.5,
				Volume: 1000,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Bar.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBar_Duration(t *testing.T) {
	start := time.Date(2024, 5, 10, 13, 30, 0, 0, time.UTC)

	bar := &Bar{Symbol: "AAPL", Start: start, End: start.Add(time.Minute)}
	if got := bar.Duration(); got != time.Minute {
		t.Errorf("Bar.Duration() = %v, want %v", got, time.Minute)
	}

	noStart := &Bar{Symbol: "AAPL", End: start}
	if got := noStart.Duration(); got != 0 {
		t.Errorf("Bar.Duration() without start = %v, want 0", got)
	}
}

func TestIndicatorValue_Validate(t *testing.T) {
	tests := []struct {
		name    string
		value   *IndicatorValue
		wantErr bool
	}{
		{
			name: "valid value",
			value: &IndicatorValue{
				Symbol:    "AAPL",
				Indicator: "avwap_session",
				Value:     150.25,
				Status:    "success",
				Timestamp: time.Now(),
			},
			wantErr: false,
		},
		{
			name: "missing symbol",
			value: &IndicatorValue{
				Indicator: "avwap_session",
				Value:     150.25,
				Timestamp: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "missing indicator name",
			value: &IndicatorValue{
				Symbol:    "AAPL",
				Value:     150.25,
				Timestamp: time.Now(),
			},
			wantErr: true,
		},
		{
			name: "zero timestamp",
			value: &IndicatorValue{
				Symbol:    "AAPL",
				Indicator: "avwap_session",
				Value:     150.25,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("IndicatorValue.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
