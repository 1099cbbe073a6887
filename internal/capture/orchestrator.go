package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/quantumtrader/chartsnap/internal/browser"
	"github.com/quantumtrader/chartsnap/internal/symbols"
)

// Capturer is a single-attempt capture engine. Satisfied by *Engine;
// orchestrator tests substitute scripted fakes.
type Capturer interface {
	Capture(ctx context.Context, page *browser.Page, cand symbols.Candidate, req Request) Result
}

// PageProvider leases browser pages. Satisfied by *browser.Manager.
type PageProvider interface {
	AcquirePage(ctx context.Context) (*browser.Page, error)
	ReleasePage(p *browser.Page)
}

// Policy tunes the fallback loop.
type Policy struct {
	// SourceRetries is the extra attempts per candidate after the first.
	SourceRetries int
	// RetryBackoff is slept between retries of the same candidate.
	RetryBackoff time.Duration
	// AttemptDelay is slept between different candidates.
	AttemptDelay time.Duration
	// RequestDeadline caps the whole run, all candidates included.
	RequestDeadline time.Duration
}

// Orchestrator walks the resolver's candidate list in order, borrowing a
// page per attempt, until one capture succeeds or everything is exhausted.
type Orchestrator struct {
	resolver *symbols.Resolver
	pages    PageProvider
	engine   Capturer
	policy   Policy
}

func NewOrchestrator(resolver *symbols.Resolver, pages PageProvider, engine Capturer, policy Policy) *Orchestrator {
	if policy.RequestDeadline <= 0 {
		policy.RequestDeadline = 120 * time.Second
	}
	return &Orchestrator{resolver: resolver, pages: pages, engine: engine, policy: policy}
}

// Run resolves req.Symbol and tries each candidate source in order. The
// first successful Result wins. Per-candidate failures are absorbed and
// recorded; only when every candidate fails does the caller see an
// ALL_SOURCES_FAILED result carrying the collected attempt errors.
func (o *Orchestrator) Run(ctx context.Context, req Request, explicitSource string) Result {
	ctx, cancel := context.WithTimeout(ctx, o.policy.RequestDeadline)
	defer cancel()

	cands := o.resolver.Resolve(req.Symbol, explicitSource)
	errs := make([]string, 0, len(cands))

	for i, cand := range cands {
		if err := ctx.Err(); err != nil {
			errs = append(errs, "deadline: "+err.Error())
			break
		}
		if i > 0 && o.policy.AttemptDelay > 0 {
			if !sleepCtx(ctx, o.policy.AttemptDelay) {
				errs = append(errs, "deadline: "+ctx.Err().Error())
				break
			}
		}

		res := o.tryCandidate(ctx, cand, req)
		if res.OK {
			slog.Info("capture succeeded",
				"symbol", req.Symbol, "source", cand.Source, "ticker", cand.Ticker,
				"bytes", len(res.Image), "attempt", i+1)
			return res
		}
		if strings.HasPrefix(res.Err, CodeLaunchFailure) {
			// No browser means no candidate can succeed; stop burning the
			// deadline on the rest of the list.
			return res
		}
		slog.Warn("capture attempt failed",
			"symbol", req.Symbol, "source", cand.Source, "ticker", cand.Ticker, "error", res.Err)
		errs = append(errs, cand.String()+": "+res.Err)
	}

	return failure(CodeAllSourcesFailed,
		"no source produced a chart for "+req.Symbol+" ["+strings.Join(errs, "; ")+"]")
}

func (o *Orchestrator) tryCandidate(ctx context.Context, cand symbols.Candidate, req Request) Result {
	tries := 1 + o.policy.SourceRetries
	if tries < 1 {
		tries = 1
	}

	var last Result
	for t := 0; t < tries; t++ {
		if t > 0 {
			if !sleepCtx(ctx, o.policy.RetryBackoff) {
				break
			}
		}
		last = o.attempt(ctx, cand, req)
		if last.OK || strings.HasPrefix(last.Err, CodeLaunchFailure) {
			return last
		}
		if ctx.Err() != nil {
			break
		}
	}
	return last
}

// attempt borrows one page for exactly one engine call. The release is
// unconditional; a failed capture must never leak the concurrency slot.
func (o *Orchestrator) attempt(ctx context.Context, cand symbols.Candidate, req Request) Result {
	page, err := o.pages.AcquirePage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The request ran out of time while queued for a page. That is
			// this request's deadline expiring, not the browser failing.
			return failure(CodeCaptureError, "acquire page: "+err.Error())
		}
		return failure(CodeLaunchFailure, "acquire page: "+err.Error())
	}
	defer o.pages.ReleasePage(page)
	return o.engine.Capture(ctx, page, cand, req)
}

// sleepCtx sleeps for d unless ctx ends first. Reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
