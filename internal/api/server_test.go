package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quantumtrader/chartsnap/internal/capture"
	"github.com/quantumtrader/chartsnap/internal/events"
	"github.com/quantumtrader/chartsnap/internal/imaging"
	"github.com/quantumtrader/chartsnap/internal/symbols"
)

type fakeService struct {
	health   Health
	startErr error
	lastReq  capture.Request
	lastSrc  string
	snap     func(req capture.Request) Snapshot
}

func (f *fakeService) Health(ctx context.Context) Health { return f.health }

func (f *fakeService) StartBrowser(ctx context.Context) error { return f.startErr }

func (f *fakeService) CloseBrowser(ctx context.Context) error { return nil }

func (f *fakeService) Snapshot(ctx context.Context, req capture.Request, explicitSource string) Snapshot {
	f.lastReq = req
	f.lastSrc = explicitSource
	return f.snap(req)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func chartBytes(t *testing.T) []byte {
	t.Helper()
	out, err := imaging.RenderError("CHART", "test chart stand-in", imaging.Options{MinBytes: 2000})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func TestSnapshotReturnsImage(t *testing.T) {
	img := chartBytes(t)
	svc := &fakeService{snap: func(capture.Request) Snapshot {
		src := symbols.Candidate{Source: "FX", Ticker: "EURUSD"}
		return Snapshot{PNG: img, Source: &src}
	}}
	srv := httptest.NewServer(NewServer(svc, events.NewBroker(), Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot/EURUSD?tf=5m&theme=light&source=oanda&crop=true")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(body.Bytes())); err != nil {
		t.Fatalf("body not a PNG: %v", err)
	}

	// Boundary normalization applied before the service sees the request.
	if svc.lastReq.Interval != "5" {
		t.Errorf("interval = %q, want 5", svc.lastReq.Interval)
	}
	if svc.lastReq.Theme != "light" {
		t.Errorf("theme = %q", svc.lastReq.Theme)
	}
	if !svc.lastReq.CropToChart {
		t.Error("crop flag dropped")
	}
	if svc.lastSrc != "oanda" {
		t.Errorf("explicit source = %q", svc.lastSrc)
	}
}

func TestSnapshotFailureStillServesPNG(t *testing.T) {
	placeholder := chartBytes(t)
	svc := &fakeService{snap: func(capture.Request) Snapshot {
		return Snapshot{
			PNG: placeholder,
			Err: &capture.CodedError{Code: capture.CodeAllSourcesFailed, Message: "every source failed"},
		}
	}}
	srv := httptest.NewServer(NewServer(svc, events.NewBroker(), Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot/GBPUSD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, image contract broken on failure", ct)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(body.Bytes())); err != nil {
		t.Fatalf("failure body not a PNG: %v", err)
	}
}

func TestRunEndpointJoinsExchangeAndTicker(t *testing.T) {
	svc := &fakeService{snap: func(capture.Request) Snapshot {
		return Snapshot{PNG: []byte{1}}
	}}
	srv := httptest.NewServer(NewServer(svc, events.NewBroker(), Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/run?exchange=NASDAQ&ticker=AAPL&interval=D")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if svc.lastReq.Symbol != "NASDAQ:AAPL" {
		t.Errorf("symbol = %q", svc.lastReq.Symbol)
	}
	if svc.lastReq.Interval != "D" {
		t.Errorf("interval = %q", svc.lastReq.Interval)
	}
}

func TestSnapshotRejectsAbsurdDimensions(t *testing.T) {
	svc := &fakeService{snap: func(capture.Request) Snapshot {
		t.Fatal("service must not be called on validation failure")
		return Snapshot{}
	}}
	srv := httptest.NewServer(NewServer(svc, events.NewBroker(), Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot/EURUSD?w=99999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	svc := &fakeService{
		health: Health{OK: true, BrowserUp: true, Launches: 3},
		snap:   func(capture.Request) Snapshot { return Snapshot{} },
	}
	srv := httptest.NewServer(NewServer(svc, events.NewBroker(), Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK || !out.BrowserUp || out.Launches != 3 {
		t.Fatalf("unexpected health body %+v", out)
	}
}

func TestStartBrowserFailureMapsTo502(t *testing.T) {
	svc := &fakeService{
		startErr: &capture.CodedError{Code: capture.CodeLaunchFailure, Message: "no binary"},
		snap:     func(capture.Request) Snapshot { return Snapshot{} },
	}
	srv := httptest.NewServer(NewServer(svc, events.NewBroker(), Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/start-browser")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	broker := events.NewBroker()
	svc := &fakeService{snap: func(capture.Request) Snapshot { return Snapshot{} }}
	srv := httptest.NewServer(NewServer(svc, broker, Options{}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	// The subscriber registers inside the handler; wait for it before
	// publishing so the event is not lost.
	waitFor(t, func() bool { return broker.ClientCount() == 1 })
	broker.Publish(events.Event{Kind: events.KindCaptureComplete, Symbol: "EURUSD"})

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	chunk := string(buf[:n])
	if !strings.Contains(chunk, "event: capture_complete") || !strings.Contains(chunk, "EURUSD") {
		t.Fatalf("unexpected SSE chunk %q", chunk)
	}
}
