// Package trigger fires trades through a UI.Vision RPA bridge. The bridge
// is an external macro runner; this package only reports whether the POST
// was accepted.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TradeRequest is the payload the macro runner expects.
type TradeRequest struct {
	Macro     string `json:"macro"`
	Pair      string `json:"pair"`
	Direction string `json:"direction"`
	ExpiryMin int    `json:"expiry_min"`
	Size      int    `json:"size"`
	Mode      string `json:"mode,omitempty"`
}

// UIVision posts trade macros to a UI.Vision HTTP bridge.
type UIVision struct {
	url    string
	macro  string
	client *http.Client
}

// NewUIVision creates a trigger client. An empty url disables it; Trade
// becomes a no-op returning false.
func NewUIVision(url, macro string, client *http.Client) *UIVision {
	if client == nil {
		client = http.DefaultClient
	}
	return &UIVision{url: url, macro: macro, client: client}
}

// Enabled reports whether a bridge URL is configured.
func (u *UIVision) Enabled() bool { return u.url != "" }

// Trade posts one trade macro invocation. Returns true when the bridge
// accepted it. Unconfigured clients return (false, nil) so callers can
// treat auto-trading as simply off.
func (u *UIVision) Trade(ctx context.Context, pair, direction string, expiryMin, size int, mode string) (bool, error) {
	if !u.Enabled() {
		return false, nil
	}

	payload, err := json.Marshal(TradeRequest{
		Macro:     u.macro,
		Pair:      pair,
		Direction: direction,
		ExpiryMin: expiryMin,
		Size:      size,
		Mode:      mode,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("uivision trigger failed: status=%d", resp.StatusCode)
	}
	return true, nil
}
