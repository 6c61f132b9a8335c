package speed

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	bounds := []Bounds{
		DefaultBounds,
		{Min: 1, Max: 2},
		{Min: 0.001, Max: 1000},
		{Min: 5, Max: 5.5},
	}

	for _, b := range bounds {
		for pct := 0.0; pct <= 100; pct += 2.5 {
			got := b.ToPercent(b.ToValue(pct))
			if math.Abs(got-pct) > 1e-9 {
				t.Errorf("bounds %+v: round trip of %v = %v", b, pct, got)
			}
		}
	}
}

func TestToValue_Endpoints(t *testing.T) {
	if got := ToValue(0, 0.1, 200); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("ToValue(0) = %v, want 0.1", got)
	}
	if got := ToValue(100, 0.1, 200); math.Abs(got-200) > 1e-9 {
		t.Errorf("ToValue(100) = %v, want 200", got)
	}
	// Geometric midpoint
	if got := ToValue(50, 1, 100); math.Abs(got-10) > 1e-9 {
		t.Errorf("ToValue(50, 1, 100) = %v, want 10", got)
	}
}

func TestToValue_ClampsPercent(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want float64
	}{
		{"below_zero", -20, 1},
		{"above_hundred", 140, 100},
		{"nan", math.NaN(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToValue(tt.pct, 1, 100); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ToValue(%v) = %v, want %v", tt.pct, got, tt.want)
			}
		})
	}
}

func TestToValue_DegenerateBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
	}{
		{"zero_min", 0, 10},
		{"equal", 10, 10},
		{"negative_min", -1, 10},
		{"inverted", 10, 1},
		{"negative_max", 1, -10},
		{"inf_max", 1, math.Inf(1)},
		{"nan_min", math.NaN(), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, pct := range []float64{0, 33, 50, 100} {
				if got := ToValue(pct, tt.min, tt.max); got != FallbackValue {
					t.Errorf("ToValue(%v, %v, %v) = %v, want %v", pct, tt.min, tt.max, got, FallbackValue)
				}
			}
		})
	}
}

func TestToPercent_Fallbacks(t *testing.T) {
	tests := []struct {
		name            string
		speed, min, max float64
	}{
		{"zero_speed", 0, 0.1, 200},
		{"negative_speed", -3, 0.1, 200},
		{"nan_speed", math.NaN(), 0.1, 200},
		{"bad_bounds", 5, 10, 10},
		{"zero_min", 5, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToPercent(tt.speed, tt.min, tt.max); got != FallbackPercent {
				t.Errorf("ToPercent = %v, want %v", got, FallbackPercent)
			}
		})
	}
}

func TestToPercent_ClampsOutOfRangeSpeed(t *testing.T) {
	if got := ToPercent(0.01, 0.1, 200); got != 0 {
		t.Errorf("below min = %v, want 0", got)
	}
	if got := ToPercent(5000, 0.1, 200); got != 100 {
		t.Errorf("above max = %v, want 100", got)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{49.4, 49},
		{49.5, 50},
		{99.99, 100},
	}
	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
