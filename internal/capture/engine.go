// Package capture drives a borrowed browser page through a single chart
// screenshot attempt and orchestrates fallback across candidate sources.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/quantumtrader/chartsnap/internal/browser"
	"github.com/quantumtrader/chartsnap/internal/symbols"
)

const (
	// renderMarker is the element whose presence indicates the chart has
	// finished an initial render pass.
	renderMarker = ".chart-container canvas"
	chartRegion  = ".chart-container"
)

// declutterJS hides chart chrome before the screenshot. Best effort: layout
// revisions upstream may invalidate selectors, which only costs cosmetics.
const declutterJS = `(function () {
	try {
		var css = [
			'header', '.tv-header', '.header-chart-panel',
			'[class*="toolbar"]', '[class*="buttonsWrapper"]',
			'[class*="onchart-tooltip"]', '[class*="popup"]',
		].join(',') + '{display:none !important;}';
		var st = document.createElement('style');
		st.appendChild(document.createTextNode(css));
		document.head.appendChild(st);
		return true;
	} catch (e) {
		return false;
	}
})()`

// EngineConfig bounds one capture attempt.
type EngineConfig struct {
	NavTimeout    time.Duration
	RenderTimeout time.Duration
	MinImageBytes int
}

// Engine performs a single capture attempt against a single candidate. It
// never looks at more than one candidate; fallback lives in the
// Orchestrator.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 8 * time.Second
	}
	if cfg.MinImageBytes <= 0 {
		cfg.MinImageBytes = 2000
	}
	return &Engine{cfg: cfg}
}

// Capture navigates the page to the candidate's chart and screenshots it.
// Navigation errors and undersized screenshots come back as a failed Result,
// never as a panic or error return; the orchestrator decides what happens
// next.
func (e *Engine) Capture(ctx context.Context, page *browser.Page, cand symbols.Candidate, req Request) Result {
	tab, unlink := linkedTab(ctx, page.Ctx)
	defer unlink()
	target := ChartURL(cand, req.Interval, req.Theme)
	slog.Debug("capture attempt", "source", cand.Source, "ticker", cand.Ticker, "interval", req.Interval)

	if req.Width > 0 && req.Height > 0 {
		if err := chromedp.Run(tab, chromedp.EmulateViewport(int64(req.Width), int64(req.Height))); err != nil {
			return failure(CodeCaptureError, "set viewport: "+err.Error())
		}
	}

	navCtx, navCancel := context.WithTimeout(tab, e.cfg.NavTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(target)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failure(CodeNavTimeout, "navigation timed out for "+cand.String())
		}
		return failure(CodeNavError, "navigate "+cand.String()+": "+err.Error())
	}
	if err := ctx.Err(); err != nil {
		return failure(CodeNavError, "request aborted: "+err.Error())
	}

	// Missing render marker is a soft warning: a partially rendered chart is
	// still worth more to the caller than no image at all.
	renderCtx, renderCancel := context.WithTimeout(tab, e.cfg.RenderTimeout)
	if err := chromedp.Run(renderCtx, chromedp.WaitVisible(renderMarker, chromedp.ByQuery)); err != nil {
		slog.Warn("render marker not ready, capturing anyway",
			"source", cand.Source, "ticker", cand.Ticker, "error", err)
	}
	renderCancel()

	var ok bool
	if err := chromedp.Run(tab, chromedp.Evaluate(declutterJS, &ok)); err != nil || !ok {
		slog.Debug("declutter skipped", "source", cand.Source, "error", err)
	}

	buf, err := e.screenshot(tab, req)
	if err != nil {
		return failure(CodeCaptureError, "screenshot "+cand.String()+": "+err.Error())
	}
	if len(buf) < e.cfg.MinImageBytes {
		// Blank or spinner screenshots encode tiny; count them as failures so
		// the orchestrator moves on to the next source.
		return failure(CodeUndersizedImage,
			"screenshot for "+cand.String()+" too small to be a chart")
	}

	c := cand
	return Result{OK: true, Image: buf, Source: &c}
}

// linkedTab derives the working context from the borrowed tab while also
// observing the request context, so per-step timeouts cannot outlive the
// caller's deadline.
func linkedTab(req, tab context.Context) (context.Context, context.CancelFunc) {
	linked, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(req, cancel)
	return linked, func() {
		stop()
		cancel()
	}
}

func (e *Engine) screenshot(tab context.Context, req Request) ([]byte, error) {
	if req.CropToChart {
		buf, err := e.clippedShot(tab)
		if err == nil {
			return buf, nil
		}
		slog.Debug("chart-only clip unavailable, falling back to viewport", "error", err)
	}

	var buf []byte
	err := chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// clippedShot screenshots just the chart container, located through its DOM
// box model.
func (e *Engine) clippedShot(tab context.Context) ([]byte, error) {
	cropCtx, cancel := context.WithTimeout(tab, e.cfg.RenderTimeout)
	defer cancel()

	var model *dom.BoxModel
	if err := chromedp.Run(cropCtx, chromedp.Dimensions(chartRegion, &model, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, err
	}
	if model == nil || len(model.Content) < 8 {
		return nil, errors.New("no box model for chart region")
	}
	x, y := model.Content[0], model.Content[1]
	w, h := model.Content[4]-x, model.Content[5]-y
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("degenerate chart region %gx%g", w, h)
	}

	var buf []byte
	err := chromedp.Run(cropCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{X: x, Y: y, Width: w, Height: h, Scale: 1}).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty clipped screenshot")
	}
	return buf, nil
}
