package feed

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"dev.acmcsuf.com/ambientd/fader"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

var approx = cmpopts.EquateApprox(0, 1e-6)

func TestSampleSolid(t *testing.T) {
	tests := []struct {
		name  string
		color color.RGBA
		want  fader.Color
	}{
		{"black", color.RGBA{A: 255}, fader.Color{}},
		{"white", color.RGBA{255, 255, 255, 255}, fader.RGB(2048, 2048, 2048)},
		{"red", color.RGBA{255, 0, 0, 255}, fader.RGB(2048, 0, 0)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Sample(solid(64, 48, test.color), 3, 16, 2048)
			assertEq(t, test.want, got, approx)
		})
	}
}

func TestSampleFavorsSaturatedPixels(t *testing.T) {
	img := solid(100, 10, color.RGBA{128, 128, 128, 255})
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 255, 255})
		}
	}

	got := Sample(img, 1, 100, 255)

	// 10% of the pixels are blue. An unweighted mean would put blue at
	// 0.1*255 + 0.9*128 = 140.7 and red at 115.2.
	if got.B-got.R < 50 {
		t.Fatalf("blue does not stand out enough: %v", got)
	}
}

func TestSampleOffsetBounds(t *testing.T) {
	img := solid(20, 20, color.RGBA{0, 255, 0, 255}).SubImage(image.Rect(5, 5, 15, 15)).(*image.RGBA)
	assertEq(t, fader.RGB(0, 100, 0), Sample(img, 2, 5, 100), approx)
}

func TestSampleEmpty(t *testing.T) {
	img := image.NewRGBA(image.Rectangle{})
	assertEq(t, fader.Color{}, Sample(img, 3, 50, 2048))
}

func TestSaturate(t *testing.T) {
	// lo = 30, take 20 from every channel, then scale 100 back up.
	got := Saturate(fader.RGB(100, 60, 30))
	assertEq(t, fader.Color{R: 100, G: 40.0 * 100 / 80, B: 10.0 * 100 / 80}, got, approx)

	assertEq(t, fader.Color{}, Saturate(fader.Color{}), approx)
}

func TestNormalize(t *testing.T) {
	assertEq(t, fader.RGB(2048, 1024, 0), Normalize(fader.RGB(100, 50, 0), 2048), approx)
}

func TestWarm(t *testing.T) {
	got := Warm(fader.RGB(1000, 1000, 1000), 1000)
	assertEq(t, fader.Color{R: 1000, G: 10000.0 / 13, B: 10000.0 / 17}, got, approx)

	got = Warm(fader.RGB(500, 500, 500), 1000)
	assertEq(t, fader.Color{
		R: 500,
		G: math.Pow(0.5, 1.2) * 1000 * 10 / 13,
		B: math.Pow(0.5, 1.3) * 1000 * 10 / 17,
	}, got, approx)
}

func TestSamplerSmoothing(t *testing.T) {
	s := NewSampler(SamplerConfig{
		Lines:     1,
		Columns:   4,
		Range:     255,
		Smoothing: 4,
	})

	red := solid(8, 8, color.RGBA{255, 0, 0, 255})

	var last float64
	for i := 0; i < 20; i++ {
		c := s.Next(red)
		if c.R <= last {
			t.Fatalf("sample %d: red did not increase (%v <= %v)", i, c.R, last)
		}
		if c.R > 255 {
			t.Fatalf("sample %d: red overshot: %v", i, c.R)
		}
		last = c.R
	}

	// The first sample only moves a fifth of the way.
	s = NewSampler(SamplerConfig{Lines: 1, Columns: 4, Range: 255, Smoothing: 4})
	assertEq(t, 51.0, s.Next(red).R, approx)
}

func assertEq[T any](t *testing.T, expected, actual T, opts ...cmp.Option) {
	t.Helper()

	if diff := cmp.Diff(expected, actual, opts...); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}
