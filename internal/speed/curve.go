// Package speed maps a linear 0..100 slider position onto the device's
// program speed using an exponential curve, and back.
package speed

import "math"

// Fallbacks returned when bounds or inputs are unusable.
const (
	FallbackValue   = 1.0
	FallbackPercent = 50.0
)

// Bounds is the speed range reported by the tree server.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultBounds are used until the first successful poll.
var DefaultBounds = Bounds{Min: 0.1, Max: 200.0}

// Valid reports whether the bounds can drive the curve.
func (b Bounds) Valid() bool {
	return isFinite(b.Min) && isFinite(b.Max) && b.Min > 0 && b.Max > 0 && b.Max > b.Min
}

// ToValue maps pct (clamped to 0..100) onto a speed within b.
func (b Bounds) ToValue(pct float64) float64 {
	return ToValue(pct, b.Min, b.Max)
}

// ToPercent maps speed back onto the 0..100 slider scale.
func (b Bounds) ToPercent(speed float64) float64 {
	return ToPercent(speed, b.Min, b.Max)
}

// ToValue returns min * (max/min)^(pct/100).
// Degenerate bounds yield FallbackValue.
func ToValue(pct, min, max float64) float64 {
	if !(Bounds{Min: min, Max: max}).Valid() {
		return FallbackValue
	}
	p := clampPercent(pct) / 100
	return min * math.Pow(max/min, p)
}

// ToPercent is the inverse of ToValue, clamped to 0..100.
// Degenerate bounds or a non-positive speed yield FallbackPercent.
func ToPercent(speed, min, max float64) float64 {
	if !(Bounds{Min: min, Max: max}).Valid() || !isFinite(speed) || speed <= 0 {
		return FallbackPercent
	}
	p := math.Log(speed/min) / math.Log(max/min)
	return clampPercent(p * 100)
}

// Round rounds a percentage half up, matching slider positions.
func Round(pct float64) int {
	return int(math.Floor(pct + 0.5))
}

func clampPercent(pct float64) float64 {
	if math.IsNaN(pct) {
		return 0
	}
	return math.Max(0, math.Min(100, pct))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
