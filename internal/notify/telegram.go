// Package notify delivers alert text and chart images to Telegram. Delivery
// is fire-and-forget: failures are returned for logging, never retried.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram is a minimal bot-API client covering sendMessage and sendPhoto.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegram creates a client for the given bot token. A nil http client
// falls back to http.DefaultClient. Empty token disables the client; sends
// become no-ops reporting ErrUnconfigured.
func NewTelegram(token string, client *http.Client) *Telegram {
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{token: token, baseURL: telegramAPIBase, client: client}
}

// ErrUnconfigured is returned when no bot token is set.
var ErrUnconfigured = fmt.Errorf("telegram token not configured")

// Enabled reports whether a bot token is configured.
func (t *Telegram) Enabled() bool { return t.token != "" }

// SendMessage posts a plain-text message to the chat.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string) error {
	if !t.Enabled() {
		return ErrUnconfigured
	}
	form := url.Values{
		"chat_id": {chatID},
		"text":    {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.methodURL("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req, "sendMessage")
}

// SendPhoto posts a PNG with an optional caption to the chat as a multipart
// upload.
func (t *Telegram) SendPhoto(ctx context.Context, chatID string, png []byte, caption string) error {
	if !t.Enabled() {
		return ErrUnconfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("photo", "chart.png")
	if err != nil {
		return err
	}
	if _, err := fw.Write(png); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendPhoto"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return t.do(req, "sendPhoto")
}

func (t *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func (t *Telegram) do(req *http.Request, method string) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s failed: status=%d", method, resp.StatusCode)
	}
	return nil
}
