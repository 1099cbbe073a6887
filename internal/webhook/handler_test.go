package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quantumtrader/chartsnap/internal/tradelog"
)

type fakeNotifier struct {
	messages []string
	photos   [][]byte
	captions []string
	msgErr   error
}

func (f *fakeNotifier) SendMessage(ctx context.Context, chatID, text string) error {
	f.messages = append(f.messages, text)
	return f.msgErr
}

func (f *fakeNotifier) SendPhoto(ctx context.Context, chatID string, png []byte, caption string) error {
	f.photos = append(f.photos, png)
	f.captions = append(f.captions, caption)
	return nil
}

type fakeFetcher struct {
	png []byte
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, pair, interval, theme string) ([]byte, error) {
	return f.png, f.err
}

type fakeTrader struct {
	calls []string
}

func (f *fakeTrader) Trade(ctx context.Context, pair, direction string, expiryMin, size int, mode string) (bool, error) {
	f.calls = append(f.calls, pair+"/"+direction)
	return true, nil
}

type fakeLog struct {
	records []tradelog.Record
}

func (f *fakeLog) Append(r tradelog.Record) (string, error) {
	f.records = append(f.records, r)
	return "trade-1", nil
}

func post(t *testing.T, h *Handler, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestAlertSendsTextAndChart(t *testing.T) {
	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{png: make([]byte, 3000)}
	trades := &fakeLog{}
	h := NewHandler(Config{ChatID: "42"}, notifier, fetcher, nil, trades)

	rec := post(t, h, "/tv", map[string]string{"pair": "EURUSD", "direction": "BUY", "timeframe": "5"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != "EURUSD CALL alert" {
		t.Fatalf("messages = %v", notifier.messages)
	}
	if len(notifier.photos) != 1 || len(notifier.photos[0]) != 3000 {
		t.Fatalf("expected one chart photo, got %d", len(notifier.photos))
	}
	if notifier.captions[0] != "EURUSD 5" {
		t.Fatalf("caption = %q", notifier.captions[0])
	}
	if len(trades.records) != 1 || trades.records[0].Direction != "CALL" {
		t.Fatalf("trade records = %+v", trades.records)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["trade_id"] != "trade-1" {
		t.Fatalf("response = %v", resp)
	}
}

func TestAlertFieldAliases(t *testing.T) {
	notifier := &fakeNotifier{}
	h := NewHandler(Config{ChatID: "42"}, notifier, nil, nil, nil)

	rec := post(t, h, "/webhook", map[string]string{"ticker": "GBPUSD", "action": "sell", "tf": "1"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != "GBPUSD PUT alert" {
		t.Fatalf("messages = %v", notifier.messages)
	}
}

func TestSecretRejectsMismatch(t *testing.T) {
	notifier := &fakeNotifier{}
	h := NewHandler(Config{ChatID: "42", Secret: "hunter2"}, notifier, nil, nil, nil)

	rec := post(t, h, "/tv", map[string]string{"pair": "EURUSD"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: status = %d", rec.Code)
	}
	if len(notifier.messages) != 0 {
		t.Fatal("alert processed despite bad secret")
	}

	rec = post(t, h, "/tv", map[string]string{"pair": "EURUSD"}, map[string]string{"X-Webhook-Token": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status = %d", rec.Code)
	}
}

func TestSecretAcceptsHeaderOrBody(t *testing.T) {
	notifier := &fakeNotifier{}
	h := NewHandler(Config{ChatID: "42", Secret: "hunter2"}, notifier, nil, nil, nil)

	rec := post(t, h, "/tv", map[string]string{"pair": "EURUSD"}, map[string]string{"X-Webhook-Token": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("header secret: status = %d", rec.Code)
	}

	rec = post(t, h, "/tv", map[string]string{"pair": "EURUSD", "secret": "hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("body secret: status = %d", rec.Code)
	}
}

func TestMissingPairRejected(t *testing.T) {
	h := NewHandler(Config{}, &fakeNotifier{}, nil, nil, nil)
	rec := post(t, h, "/tv", map[string]string{"direction": "CALL"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAutoTradeFires(t *testing.T) {
	trader := &fakeTrader{}
	h := NewHandler(Config{ChatID: "42", AutoTrade: true, TradeExpiry: 2, TradeSize: 5},
		&fakeNotifier{}, nil, trader, &fakeLog{})

	rec := post(t, h, "/tv", map[string]string{"pair": "EURUSD-OTC", "direction": "UP"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(trader.calls) != 1 || trader.calls[0] != "EURUSD-OTC/CALL" {
		t.Fatalf("trader calls = %v", trader.calls)
	}
}

func TestUnknownDirectionNotifiesWithoutTrading(t *testing.T) {
	trader := &fakeTrader{}
	trades := &fakeLog{}
	notifier := &fakeNotifier{}
	h := NewHandler(Config{ChatID: "42", AutoTrade: true}, notifier, nil, trader, trades)

	rec := post(t, h, "/tv", map[string]string{"pair": "EURUSD", "direction": "sideways"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("messages = %v", notifier.messages)
	}
	if len(trader.calls) != 0 || len(trades.records) != 0 {
		t.Fatal("unexpected trade activity for unknown direction")
	}
}

func TestChartFailureStillAnswersOK(t *testing.T) {
	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{err: errors.New("service down")}
	h := NewHandler(Config{ChatID: "42"}, notifier, fetcher, nil, nil)

	rec := post(t, h, "/tv", map[string]string{"pair": "EURUSD"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(notifier.messages) != 1 || len(notifier.photos) != 0 {
		t.Fatalf("messages=%v photos=%d", notifier.messages, len(notifier.photos))
	}
}

func TestNormalizeDirection(t *testing.T) {
	cases := map[string]string{
		"CALL": "CALL", "buy": "CALL", "Up": "CALL", "LONG": "CALL", "high": "CALL",
		"PUT": "PUT", "sell": "PUT", "DOWN": "PUT", "short": "PUT", "Low": "PUT",
		"hold": "", "": "",
	}
	for in, want := range cases {
		if got := NormalizeDirection(in); got != want {
			t.Errorf("NormalizeDirection(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	h := NewHandler(Config{}, &fakeNotifier{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/tv", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
