package ambientd

import (
	"errors"
	"testing"

	"dev.acmcsuf.com/ambientd/fader"
)

func TestParseColorParams(t *testing.T) {
	defaults := DefaultColorParams(fader.RGB(100, 200, 300), "10.0.0.2:5555")

	tests := []struct {
		name  string
		query string
		want  ColorParams
		fails bool
	}{
		{
			name:  "defaults",
			query: "",
			want:  ColorParams{R: 100, G: 200, B: 300, CPS: 1, Mode: fader.Static, ID: "10.0.0.2:5555"},
		},
		{
			name:  "partial color keeps other channels",
			query: "r=48&cps=3",
			want:  ColorParams{R: 48, G: 200, B: 300, CPS: 3, Mode: fader.Static, ID: "10.0.0.2:5555"},
		},
		{
			name:  "fractions are dropped",
			query: "r=048&g=1024.3&b=0&cps=2.9",
			want:  ColorParams{R: 48, G: 1024, B: 0, CPS: 2, Mode: fader.Static, ID: "10.0.0.2:5555"},
		},
		{
			name:  "continuous with id",
			query: "r=1&g=2&b=3&mode=continuous&id=feed-1",
			want:  ColorParams{R: 1, G: 2, B: 3, CPS: 1, Mode: fader.Continuous, ID: "feed-1"},
		},
		{
			name:  "out of range values are left for the engine",
			query: "r=-5&g=99999",
			want:  ColorParams{R: -5, G: 99999, B: 300, CPS: 1, Mode: fader.Static, ID: "10.0.0.2:5555"},
		},
		{
			name:  "unknown keys are ignored",
			query: "foo=bar&b=7",
			want:  ColorParams{R: 100, G: 200, B: 7, CPS: 1, Mode: fader.Static, ID: "10.0.0.2:5555"},
		},
		{
			name:  "empty id keeps the address",
			query: "id=",
			want:  ColorParams{R: 100, G: 200, B: 300, CPS: 1, Mode: fader.Static, ID: "10.0.0.2:5555"},
		},
		{name: "text color", query: "r=red", fails: true},
		{name: "empty color", query: "g=", fails: true},
		{name: "nan", query: "b=NaN", fails: true},
		{name: "infinite cps", query: "cps=Inf", fails: true},
		{name: "huge cps", query: "cps=1e300", fails: true},
		{name: "unknown mode", query: "mode=movie", fails: true},
		{name: "bad escape", query: "r=%zz", fails: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseColorParams(test.query, defaults)
			if test.fails {
				if !errors.Is(err, ErrBadParams) {
					t.Fatalf("expected ErrBadParams, got %v (%+v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatal("unexpected error:", err)
			}
			assertEq(t, test.want, got)
		})
	}
}
