package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dev.acmcsuf.com/ambientd/fader"
	"dev.acmcsuf.com/ambientd/session"
)

// Client sends continuous color updates to an ambientd server.
type Client struct {
	// BaseURL is the server address, e.g. http://10.0.0.2:3546.
	BaseURL string
	// ID identifies this feed to the server's session arbiter.
	ID string
	// Rate is the number of updates per second the feed sends.
	Rate int
	// HTTPClient is optional.
	HTTPClient *http.Client
}

// Send sends one color. It returns session.ErrFenced once the server has
// given control to another source, after which the feed should stop.
func (c *Client) Send(ctx context.Context, color fader.Color) error {
	q := url.Values{
		"r":    {strconv.Itoa(int(color.R))},
		"g":    {strconv.Itoa(int(color.G))},
		"b":    {strconv.Itoa(int(color.B))},
		"cps":  {strconv.Itoa(max(1, c.Rate))},
		"mode": {fader.Continuous.String()},
		"id":   {c.ID},
	}

	u := strings.TrimSuffix(c.BaseURL, "/") + "/color/set?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send color: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return session.ErrFenced
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
}
