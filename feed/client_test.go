package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"dev.acmcsuf.com/ambientd/fader"
	"dev.acmcsuf.com/ambientd/session"
)

func TestClientSend(t *testing.T) {
	var got url.Values
	status := http.StatusOK

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/color/set" {
			http.NotFound(w, r)
			return
		}
		got = r.URL.Query()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	client := &Client{
		BaseURL:    srv.URL + "/",
		ID:         "feed-1",
		Rate:       3,
		HTTPClient: srv.Client(),
	}

	ctx := context.Background()

	if err := client.Send(ctx, fader.Color{R: 1999.7, G: 12, B: 0}); err != nil {
		t.Fatal(err)
	}
	assertEq(t, url.Values{
		"r":    {"1999"},
		"g":    {"12"},
		"b":    {"0"},
		"cps":  {"3"},
		"mode": {"continuous"},
		"id":   {"feed-1"},
	}, got)

	status = http.StatusConflict
	if err := client.Send(ctx, fader.Color{}); !errors.Is(err, session.ErrFenced) {
		t.Fatalf("expected ErrFenced, got %v", err)
	}

	status = http.StatusBadRequest
	if err := client.Send(ctx, fader.Color{}); err == nil || errors.Is(err, session.ErrFenced) {
		t.Fatalf("expected a plain error, got %v", err)
	}
}
