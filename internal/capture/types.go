package capture

import (
	"fmt"
	"strings"

	"github.com/quantumtrader/chartsnap/internal/symbols"
)

const (
	CodeValidation       = "VALIDATION"
	CodeLaunchFailure    = "LAUNCH_FAILURE"
	CodeNavTimeout       = "NAV_TIMEOUT"
	CodeNavError         = "NAV_ERROR"
	CodeRenderNotReady   = "RENDER_NOT_READY"
	CodeUndersizedImage  = "UNDERSIZED_IMAGE"
	CodeCaptureError     = "CAPTURE_ERROR"
	CodeAllSourcesFailed = "ALL_SOURCES_FAILED"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Request describes one chart capture. Built and validated at the API
// boundary; treated as immutable below it.
type Request struct {
	Symbol      string
	Interval    string
	Theme       string
	Width       int
	Height      int
	CropToChart bool
}

// Result is the outcome of a capture attempt or a full fallback run. When OK
// is true, Image is non-nil and at least the configured byte floor long.
type Result struct {
	OK     bool
	Image  []byte
	Source *symbols.Candidate
	Err    string
}

func failure(code, msg string) Result {
	return Result{Err: code + ": " + msg}
}

// AsError converts a failed Result back into a CodedError, keeping the code
// the pipeline attached to the message. Returns nil for a successful Result.
func (r Result) AsError() *CodedError {
	if r.OK {
		return nil
	}
	if code, msg, found := strings.Cut(r.Err, ": "); found {
		switch code {
		case CodeValidation, CodeLaunchFailure, CodeNavTimeout, CodeNavError,
			CodeRenderNotReady, CodeUndersizedImage, CodeCaptureError, CodeAllSourcesFailed:
			return &CodedError{Code: code, Message: msg}
		}
	}
	return &CodedError{Code: CodeAllSourcesFailed, Message: r.Err}
}
