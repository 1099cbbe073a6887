// Package controller glues the resolver, browser manager, fallback
// orchestrator, placeholder renderer and event broker into the api.Service
// the HTTP layer consumes.
package controller

import (
	"context"
	"log/slog"

	"github.com/quantumtrader/chartsnap/internal/api"
	"github.com/quantumtrader/chartsnap/internal/browser"
	"github.com/quantumtrader/chartsnap/internal/capture"
	"github.com/quantumtrader/chartsnap/internal/events"
	"github.com/quantumtrader/chartsnap/internal/imaging"
)

// captureRunner is the fallback pipeline entry point. Satisfied by
// *capture.Orchestrator.
type captureRunner interface {
	Run(ctx context.Context, req capture.Request, explicitSource string) capture.Result
}

type Service struct {
	manager      *browser.Manager
	orchestrator captureRunner
	broker       *events.Broker
	minBytes     int
}

func NewService(manager *browser.Manager, orchestrator captureRunner, broker *events.Broker, minBytes int) *Service {
	if minBytes <= 0 {
		minBytes = 2000
	}
	return &Service{
		manager:      manager,
		orchestrator: orchestrator,
		broker:       broker,
		minBytes:     minBytes,
	}
}

func (s *Service) Health(ctx context.Context) api.Health {
	return api.Health{
		OK:        true,
		BrowserUp: s.manager.Up(),
		Launches:  s.manager.Launches(),
	}
}

// StartBrowser warms the browser up ahead of the first snapshot request.
func (s *Service) StartBrowser(ctx context.Context) error {
	if err := s.manager.WarmUp(ctx); err != nil {
		s.broker.Publish(events.Event{Kind: events.KindBrowserDown, Error: err.Error()})
		return &capture.CodedError{Code: capture.CodeLaunchFailure, Message: "browser start failed", Cause: err}
	}
	s.broker.Publish(events.Event{Kind: events.KindBrowserUp})
	return nil
}

// CloseBrowser shuts the browser down. A later snapshot relaunches it.
func (s *Service) CloseBrowser(ctx context.Context) error {
	s.manager.Close()
	s.broker.Publish(events.Event{Kind: events.KindBrowserDown})
	return nil
}

// Snapshot runs the fallback capture and guarantees an image body: the
// captured chart on success, a generated placeholder on total failure.
func (s *Service) Snapshot(ctx context.Context, req capture.Request, explicitSource string) api.Snapshot {
	s.broker.Publish(events.Event{Kind: events.KindCaptureStarted, Symbol: req.Symbol})

	res := s.orchestrator.Run(ctx, req, explicitSource)
	if res.OK {
		s.broker.Publish(events.Event{
			Kind:   events.KindCaptureComplete,
			Symbol: req.Symbol,
			Source: res.Source.String(),
			Bytes:  len(res.Image),
		})
		return api.Snapshot{PNG: res.Image, Source: res.Source}
	}

	s.broker.Publish(events.Event{Kind: events.KindCaptureFailed, Symbol: req.Symbol, Error: res.Err})
	err := res.AsError()

	png, renderErr := imaging.RenderError("CAPTURE FAILED: "+req.Symbol, res.Err, imaging.Options{
		Width:    req.Width,
		Height:   req.Height,
		MinBytes: s.minBytes,
	})
	if renderErr != nil {
		// Placeholder rendering is pure and should not fail; log and fall
		// back to an empty body rather than dropping the response.
		slog.Error("placeholder render failed", "symbol", req.Symbol, "error", renderErr)
		return api.Snapshot{Err: err}
	}
	return api.Snapshot{PNG: png, Err: err}
}
