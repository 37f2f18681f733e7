package ambientd

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"dev.acmcsuf.com/ambientd/fader"
)

// ErrBadParams is wrapped by every color parameter parse error.
var ErrBadParams = errors.New("bad color parameters")

// ColorParams are the query parameters of a color set request, e.g.
// ?r=2048&g=512&b=0&cps=1&mode=continuous&id=living-room.
type ColorParams struct {
	R, G, B float64
	// CPS is the number of color updates per second the sender intends.
	CPS  int
	Mode fader.Mode
	ID   string
}

// DefaultColorParams returns the parameters used for omitted fields: the
// current color, one update per second, static mode and the sender's address.
func DefaultColorParams(current fader.Color, remoteAddr string) ColorParams {
	return ColorParams{
		R:    current.R,
		G:    current.G,
		B:    current.B,
		CPS:  1,
		Mode: fader.Static,
		ID:   remoteAddr,
	}
}

// ParseColorParams parses a raw query string on top of defaults. Unknown
// parameters are ignored. Numbers may have a fraction, which is dropped.
func ParseColorParams(rawQuery string, defaults ColorParams) (ColorParams, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ColorParams{}, fmt.Errorf("%w: %v", ErrBadParams, err)
	}

	p := defaults

	fields := []struct {
		key string
		dst *float64
	}{
		{"r", &p.R},
		{"g", &p.G},
		{"b", &p.B},
	}
	for _, f := range fields {
		v, ok, err := queryNumber(q, f.key)
		if err != nil {
			return ColorParams{}, err
		}
		if ok {
			*f.dst = v
		}
	}

	if v, ok, err := queryNumber(q, "cps"); err != nil {
		return ColorParams{}, err
	} else if ok {
		if v > math.MaxInt32 || v < math.MinInt32 {
			return ColorParams{}, fmt.Errorf("%w: cps out of range", ErrBadParams)
		}
		p.CPS = int(v)
	}

	if v, ok := queryLast(q, "mode"); ok {
		mode, err := fader.ParseMode(v)
		if err != nil {
			return ColorParams{}, fmt.Errorf("%w: %v", ErrBadParams, err)
		}
		p.Mode = mode
	}

	if v, ok := queryLast(q, "id"); ok && v != "" {
		p.ID = v
	}

	return p, nil
}

// Request converts the parameters into a controller request.
func (p ColorParams) Request() ColorRequest {
	return ColorRequest{
		Color:  fader.Color{R: p.R, G: p.G, B: p.B},
		Rate:   p.CPS,
		Mode:   p.Mode,
		Source: p.ID,
	}
}

func queryLast(q url.Values, key string) (string, bool) {
	vs := q[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

func queryNumber(q url.Values, key string) (float64, bool, error) {
	s, ok := queryLast(q, key)
	if !ok {
		return 0, false, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %s=%q is not a number", ErrBadParams, key, s)
	}
	return math.Trunc(f), true, nil
}
