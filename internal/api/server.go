// Package api exposes the capture service over HTTP: health, browser
// lifecycle, snapshot endpoints and an SSE event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quantumtrader/chartsnap/internal/capture"
	"github.com/quantumtrader/chartsnap/internal/events"
	"github.com/quantumtrader/chartsnap/internal/symbols"
)

// Health reports service liveness and browser state.
type Health struct {
	OK        bool `json:"ok"`
	BrowserUp bool `json:"browser_up"`
	Launches  int  `json:"launches"`
}

// Snapshot is the outcome handed to the HTTP layer. PNG is always a valid
// image: the real chart on success, the placeholder on failure. Err is
// non-nil only on total failure and drives the status code.
type Snapshot struct {
	PNG    []byte
	Source *symbols.Candidate
	Err    error
}

// Service is the capture backend the HTTP layer talks to.
type Service interface {
	Health(ctx context.Context) Health
	StartBrowser(ctx context.Context) error
	CloseBrowser(ctx context.Context) error
	Snapshot(ctx context.Context, req capture.Request, explicitSource string) Snapshot
}

// Options carries request defaults applied at the boundary.
type Options struct {
	DefaultInterval string
	DefaultTheme    string
	DefaultWidth    int
	DefaultHeight   int
}

func (o *Options) fill() {
	if o.DefaultInterval == "" {
		o.DefaultInterval = "1"
	}
	if o.DefaultTheme == "" {
		o.DefaultTheme = "dark"
	}
	if o.DefaultWidth <= 0 {
		o.DefaultWidth = 1280
	}
	if o.DefaultHeight <= 0 {
		o.DefaultHeight = 720
	}
}

const maxDimension = 4096

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type healthOutput struct {
	Body Health
}

// chartImageOutput returns raw PNG bytes. Status is 200 on success and 502
// when the body is a placeholder for a failed capture.
type chartImageOutput struct {
	ContentType string `header:"Content-Type"`
	Status      int
	Body        []byte
}

type snapshotPathInput struct {
	Pair   string `path:"pair"`
	TF     string `query:"tf" doc:"Chart interval, e.g. 1, 5m, 2h, D"`
	Theme  string `query:"theme" doc:"light or dark"`
	Source string `query:"source" doc:"Preferred data source, tried first"`
	W      int    `query:"w"`
	H      int    `query:"h"`
	Crop   bool   `query:"crop" doc:"Crop to the chart region"`
}

type runInput struct {
	Exchange string `query:"exchange"`
	Ticker   string `query:"ticker"`
	Interval string `query:"interval"`
	Theme    string `query:"theme"`
	W        int    `query:"w"`
	H        int    `query:"h"`
	Clip     bool   `query:"clip"`
}

func NewServer(svc Service, broker *events.Broker, opts Options) http.Handler {
	opts.fill()

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Chart Snapshot API", "1.0.0")
	api := humachi.New(router, cfg)

	router.Get("/events", sseHandler(broker))

	huma.Register(api, huma.Operation{OperationID: "healthz", Method: http.MethodGet, Path: "/healthz", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body = svc.Health(ctx)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "start-browser", Method: http.MethodGet, Path: "/start-browser", Summary: "Launch the capture browser", Tags: []string{"Browser"}},
		func(ctx context.Context, _ *struct{}) (*statusOutput, error) {
			if err := svc.StartBrowser(ctx); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "browser started"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-browser", Method: http.MethodGet, Path: "/close-browser", Summary: "Close the capture browser", Tags: []string{"Browser"}},
		func(ctx context.Context, _ *struct{}) (*statusOutput, error) {
			if err := svc.CloseBrowser(ctx); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "browser closed"
			return out, nil
		})

	imageResponses := map[string]*huma.Response{
		"200": {
			Description: "Chart image",
			Content: map[string]*huma.MediaType{
				"image/png": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
			},
		},
		"502": {
			Description: "Placeholder image after all sources failed",
			Content: map[string]*huma.MediaType{
				"image/png": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
			},
		},
	}

	huma.Register(api, huma.Operation{
		OperationID: "snapshot-pair",
		Method:      http.MethodGet,
		Path:        "/snapshot/{pair}",
		Summary:     "Capture a chart for a display pair",
		Tags:        []string{"Snapshots"},
		Responses:   imageResponses,
	}, func(ctx context.Context, input *snapshotPathInput) (*chartImageOutput, error) {
		req, err := buildRequest(opts, input.Pair, input.TF, input.Theme, input.W, input.H, input.Crop)
		if err != nil {
			return nil, mapErr(err)
		}
		return imageResponse(svc.Snapshot(ctx, req, input.Source))
	})

	huma.Register(api, huma.Operation{
		OperationID: "snapshot-run",
		Method:      http.MethodGet,
		Path:        "/run",
		Summary:     "Capture a chart for an exchange/ticker pair",
		Tags:        []string{"Snapshots"},
		Responses:   imageResponses,
	}, func(ctx context.Context, input *runInput) (*chartImageOutput, error) {
		symbol := input.Ticker
		if input.Exchange != "" && input.Ticker != "" {
			symbol = input.Exchange + ":" + input.Ticker
		}
		req, err := buildRequest(opts, symbol, input.Interval, input.Theme, input.W, input.H, input.Clip)
		if err != nil {
			return nil, mapErr(err)
		}
		return imageResponse(svc.Snapshot(ctx, req, ""))
	})

	return router
}

// buildRequest normalizes and validates user input into a capture request.
// Dimension zero means "use the default"; out-of-range values are rejected.
func buildRequest(opts Options, symbol, interval, theme string, w, h int, crop bool) (capture.Request, error) {
	if w < 0 || w > maxDimension || h < 0 || h > maxDimension {
		return capture.Request{}, &capture.CodedError{
			Code:    capture.CodeValidation,
			Message: fmt.Sprintf("dimensions out of range: %dx%d (max %d)", w, h, maxDimension),
		}
	}
	if w == 0 {
		w = opts.DefaultWidth
	}
	if h == 0 {
		h = opts.DefaultHeight
	}
	if theme == "" {
		theme = opts.DefaultTheme
	}
	return capture.Request{
		Symbol:      symbol,
		Interval:    symbols.NormalizeInterval(interval, opts.DefaultInterval),
		Theme:       symbols.NormalizeTheme(theme),
		Width:       w,
		Height:      h,
		CropToChart: crop,
	}, nil
}

// imageResponse maps a snapshot outcome to an image body. The body is a
// valid PNG on every path; only the status distinguishes success from the
// placeholder.
func imageResponse(s Snapshot) (*chartImageOutput, error) {
	out := &chartImageOutput{ContentType: "image/png", Status: http.StatusOK, Body: s.PNG}
	if s.Err != nil {
		out.Status = http.StatusBadGateway
	}
	return out, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *capture.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case capture.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case capture.CodeNavTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case capture.CodeLaunchFailure, capture.CodeAllSourcesFailed:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
