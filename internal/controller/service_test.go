package controller

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/quantumtrader/chartsnap/internal/browser"
	"github.com/quantumtrader/chartsnap/internal/capture"
	"github.com/quantumtrader/chartsnap/internal/events"
	"github.com/quantumtrader/chartsnap/internal/symbols"
)

type runnerFunc func(ctx context.Context, req capture.Request, explicitSource string) capture.Result

func (f runnerFunc) Run(ctx context.Context, req capture.Request, explicitSource string) capture.Result {
	return f(ctx, req, explicitSource)
}

func testManager(launchErr error) *browser.Manager {
	launch := func(ctx context.Context) (context.Context, context.CancelFunc, error) {
		if launchErr != nil {
			return nil, nil, launchErr
		}
		c, cancel := context.WithCancel(context.Background())
		return c, cancel, nil
	}
	newPage := func(bctx context.Context) (context.Context, context.CancelFunc, error) {
		c, cancel := context.WithCancel(bctx)
		return c, cancel, nil
	}
	return browser.NewManagerWithHooks(browser.Config{MaxPages: 1}, launch, newPage)
}

func collect(ch <-chan events.Event, n int, t *testing.T) []events.Event {
	t.Helper()
	out := make([]events.Event, 0, n)
	for len(out) < n {
		select {
		case evt := <-ch:
			out = append(out, evt)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d (have %v)", len(out)+1, n, out)
		}
	}
	return out
}

func TestSnapshotSuccess(t *testing.T) {
	img := make([]byte, 4096)
	runner := runnerFunc(func(_ context.Context, req capture.Request, _ string) capture.Result {
		src := symbols.Candidate{Source: "FX", Ticker: "EURUSD"}
		return capture.Result{OK: true, Image: img, Source: &src}
	})
	broker := events.NewBroker()
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	svc := NewService(testManager(nil), runner, broker, 2000)
	out := svc.Snapshot(context.Background(), capture.Request{Symbol: "EUR/USD"}, "")

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if len(out.PNG) != len(img) {
		t.Fatalf("expected captured image passed through, got %d bytes", len(out.PNG))
	}
	got := collect(ch, 2, t)
	if got[0].Kind != events.KindCaptureStarted || got[1].Kind != events.KindCaptureComplete {
		t.Fatalf("unexpected event sequence %v, %v", got[0].Kind, got[1].Kind)
	}
	if got[1].Source != "FX:EURUSD" || got[1].Bytes != len(img) {
		t.Fatalf("complete event wrong: %+v", got[1])
	}
}

func TestSnapshotFailureReturnsPlaceholder(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _ capture.Request, _ string) capture.Result {
		return capture.Result{Err: capture.CodeAllSourcesFailed + ": scripted"}
	})
	broker := events.NewBroker()
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	const floor = 2000
	svc := NewService(testManager(nil), runner, broker, floor)
	out := svc.Snapshot(context.Background(), capture.Request{Symbol: "GBP/USD", Width: 800, Height: 400}, "")

	if out.Err == nil {
		t.Fatal("expected an error alongside the placeholder")
	}
	var coded *capture.CodedError
	if !errors.As(out.Err, &coded) || coded.Code != capture.CodeAllSourcesFailed {
		t.Fatalf("expected %s coded error, got %v", capture.CodeAllSourcesFailed, out.Err)
	}
	if len(out.PNG) < floor {
		t.Fatalf("placeholder below floor: %d bytes", len(out.PNG))
	}
	if _, err := png.Decode(bytes.NewReader(out.PNG)); err != nil {
		t.Fatalf("placeholder not a decodable PNG: %v", err)
	}
	got := collect(ch, 2, t)
	if got[1].Kind != events.KindCaptureFailed || got[1].Error == "" {
		t.Fatalf("expected capture_failed event with detail, got %+v", got[1])
	}
}

func TestStartBrowserAndHealth(t *testing.T) {
	svc := NewService(testManager(nil), nil, events.NewBroker(), 0)

	if h := svc.Health(context.Background()); h.BrowserUp {
		t.Fatal("browser reported up before start")
	}
	if err := svc.StartBrowser(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h := svc.Health(context.Background())
	if !h.OK || !h.BrowserUp || h.Launches != 1 {
		t.Fatalf("unexpected health %+v", h)
	}
	if err := svc.CloseBrowser(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h := svc.Health(context.Background()); h.BrowserUp {
		t.Fatal("browser reported up after close")
	}
}

func TestStartBrowserFailure(t *testing.T) {
	svc := NewService(testManager(errors.New("no chromium binary")), nil, events.NewBroker(), 0)

	err := svc.StartBrowser(context.Background())
	if err == nil {
		t.Fatal("expected launch failure")
	}
	var coded *capture.CodedError
	if !errors.As(err, &coded) || coded.Code != capture.CodeLaunchFailure {
		t.Fatalf("expected %s, got %v", capture.CodeLaunchFailure, err)
	}
}

func TestSnapshotFailurePreservesCode(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _ capture.Request, _ string) capture.Result {
		return capture.Result{Err: capture.CodeLaunchFailure + ": acquire page: chrome missing"}
	})
	broker := events.NewBroker()

	svc := NewService(testManager(nil), runner, broker, 2000)
	out := svc.Snapshot(context.Background(), capture.Request{Symbol: "EUR/USD"}, "")

	var coded *capture.CodedError
	if !errors.As(out.Err, &coded) {
		t.Fatalf("expected a coded error, got %v", out.Err)
	}
	if coded.Code != capture.CodeLaunchFailure {
		t.Fatalf("pipeline code not preserved: got %s", coded.Code)
	}
	if want := capture.CodeLaunchFailure + ": acquire page: chrome missing"; out.Err.Error() != want {
		t.Fatalf("error message mangled: %q, want %q", out.Err.Error(), want)
	}
}
