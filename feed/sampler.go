// Package feed turns screen captures into a stream of continuous color
// requests for ambientd.
package feed

import (
	"image"
	"math"

	"dev.acmcsuf.com/ambientd/fader"
)

// SamplerConfig controls how a capture is reduced to a single color.
type SamplerConfig struct {
	// Lines is the number of horizontal lines sampled.
	Lines int
	// Columns is the number of pixels sampled on each line.
	Columns int
	// Range is the value of a fully lit channel.
	Range int
	// Smoothing is how many previous samples each new sample is averaged
	// against. 0 disables smoothing.
	Smoothing int
	// Saturate pushes the darkest channel down to make colors more vivid.
	Saturate bool
	// Normalize scales the brightest channel up to Range.
	Normalize bool
}

// Sampler reduces captures to colors. It keeps the previous color for
// smoothing, so a Sampler must not be shared between goroutines.
type Sampler struct {
	cfg  SamplerConfig
	prev fader.Color
}

// NewSampler creates a new sampler.
func NewSampler(cfg SamplerConfig) *Sampler {
	cfg.Lines = max(1, cfg.Lines)
	cfg.Columns = max(1, cfg.Columns)
	cfg.Range = max(1, cfg.Range)
	cfg.Smoothing = max(0, cfg.Smoothing)
	return &Sampler{cfg: cfg}
}

// Next computes the color to send for img.
func (s *Sampler) Next(img *image.RGBA) fader.Color {
	rng := float64(s.cfg.Range)

	c := Sample(img, s.cfg.Lines, s.cfg.Columns, rng)
	if s.cfg.Saturate {
		c = Saturate(c)
	}
	if s.cfg.Normalize {
		c = Normalize(c, rng)
	}

	k := float64(s.cfg.Smoothing)
	c = fader.Color{
		R: (s.prev.R*k + c.R) / (k + 1),
		G: (s.prev.G*k + c.G) / (k + 1),
		B: (s.prev.B*k + c.B) / (k + 1),
	}
	s.prev = c

	return Warm(c, rng)
}

// Sample averages pixels on evenly spaced lines of img, scaled to [0, rng].
// Saturated and bright pixels weigh more than grey and dark ones, so that a
// small colorful object on a dark background still shows.
func Sample(img *image.RGBA, lines, columns int, rng float64) fader.Color {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return fader.Color{}
	}

	step := max(1, w/columns)
	scale := rng / 255

	var sum fader.Color
	for i := 1; i <= lines; i++ {
		y := bounds.Min.Y + h*i/(lines+1)

		// Lines are aggregated one at a time to keep the weights small.
		var line fader.Color
		var total float64
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			px := img.RGBAAt(x, y)
			r := float64(px.R) * scale
			g := float64(px.G) * scale
			b := float64(px.B) * scale

			spread := max(r, g, b) - min(r, g, b) + 1
			lightness := r + g + b + 1
			weight := spread * lightness

			line.R += r * weight
			line.G += g * weight
			line.B += b * weight
			total += weight
		}

		sum.R += line.R / total
		sum.G += line.G / total
		sum.B += line.B / total
	}

	n := float64(lines)
	return fader.Color{R: sum.R / n, G: sum.G / n, B: sum.B / n}
}

// Saturate takes two thirds of the darkest channel out of every channel and
// rescales the result to the original brightest channel.
func Saturate(c fader.Color) fader.Color {
	lo := min(c.R, c.G, c.B)
	hi := max(c.R, c.G, c.B)

	d := lo * 2 / 3
	c = fader.Color{R: c.R - d, G: c.G - d, B: c.B - d}

	f := hi / max(1, c.R, c.G, c.B)
	return fader.Color{R: c.R * f, G: c.G * f, B: c.B * f}
}

// Normalize scales c so that its brightest channel is rng.
func Normalize(c fader.Color, rng float64) fader.Color {
	f := rng / max(1, c.R, c.G, c.B)
	return fader.Color{R: c.R * f, G: c.G * f, B: c.B * f}
}

// Warm corrects for the cold tint of common RGB strips: green and blue get a
// gamma curve and are dimmed, red is left as is.
func Warm(c fader.Color, rng float64) fader.Color {
	return fader.Color{
		R: c.R,
		G: math.Pow(c.G/rng, 1.2) * rng * 10 / 13,
		B: math.Pow(c.B/rng, 1.3) * rng * 10 / 17,
	}
}
