package fader

import (
	"fmt"
	"math"
)

// Color is an RGB triple in the engine's color space, [0, Config.Range].
type Color struct {
	R, G, B float64
}

// RGB creates a color from integer channel levels.
func RGB(r, g, b int) Color {
	return Color{R: float64(r), G: float64(g), B: float64(b)}
}

// Clamp clamps every channel into [lo, hi].
func (c Color) Clamp(lo, hi float64) Color {
	return Color{
		R: clamp(c.R, lo, hi),
		G: clamp(c.G, lo, hi),
		B: clamp(c.B, lo, hi),
	}
}

// Distance returns the sum of the absolute per-channel differences.
func (c Color) Distance(other Color) float64 {
	return math.Abs(c.R-other.R) + math.Abs(c.G-other.G) + math.Abs(c.B-other.B)
}

// Lerp walks from c towards to by t in [0, 1]. Lerp(to, 1) is exactly to.
func (c Color) Lerp(to Color, t float64) Color {
	if t >= 1 {
		return to
	}
	return Color{
		R: c.R + (to.R-c.R)*t,
		G: c.G + (to.G-c.G)*t,
		B: c.B + (to.B-c.B)*t,
	}
}

// Channels returns the color as an array in red, green, blue order.
func (c Color) Channels() [3]float64 {
	return [3]float64{c.R, c.G, c.B}
}

// Round rounds every channel to the nearest integer.
func (c Color) Round() [3]int {
	return [3]int{
		int(math.Round(c.R)),
		int(math.Round(c.G)),
		int(math.Round(c.B)),
	}
}

func (c Color) String() string {
	return fmt.Sprintf("(%.0f, %.0f, %.0f)", c.R, c.G, c.B)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
