// Package snapclient fetches chart images from the capture service. The
// contract is byte-oriented: any image/* body of plausible size is accepted
// no matter the HTTP status, because the service serves placeholder images
// with failure statuses.
package snapclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Client struct {
	baseURL  string
	httpc    *http.Client
	minBytes int
}

func New(baseURL string, httpc *http.Client, minBytes int) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if minBytes <= 0 {
		minBytes = 2000
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc, minBytes: minBytes}
}

// Fetch retrieves a chart for the pair, trying /snapshot/{pair} first and
// /run second. The first image body at least minBytes long wins.
func (c *Client) Fetch(ctx context.Context, pair, interval, theme string) ([]byte, error) {
	q := url.Values{}
	if interval != "" {
		q.Set("tf", interval)
	}
	if theme != "" {
		q.Set("theme", theme)
	}
	primary := c.baseURL + "/snapshot/" + url.PathEscape(pair)
	if enc := q.Encode(); enc != "" {
		primary += "?" + enc
	}

	img, primaryErr := c.fetchImage(ctx, primary)
	if primaryErr == nil {
		return img, nil
	}

	q = url.Values{"ticker": {pair}}
	if interval != "" {
		q.Set("interval", interval)
	}
	if theme != "" {
		q.Set("theme", theme)
	}
	img, runErr := c.fetchImage(ctx, c.baseURL+"/run?"+q.Encode())
	if runErr == nil {
		return img, nil
	}

	return nil, fmt.Errorf("snapshot fetch failed for %s: %v; run fallback: %v", pair, primaryErr, runErr)
}

// fetchImage accepts any response carrying an image body of plausible size,
// regardless of status code.
func (c *Client) fetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return nil, fmt.Errorf("non-image response: status=%d content-type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if len(body) < c.minBytes {
		return nil, fmt.Errorf("image too small: %d bytes (floor %d)", len(body), c.minBytes)
	}
	return body, nil
}
