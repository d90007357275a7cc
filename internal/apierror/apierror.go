// Package apierror holds the closed set of failure kinds the API reports and
// maps raw extraction failures onto it.
package apierror

import (
	"context"
	"errors"
	"net"
	"strings"
)

type Kind string

const (
	InvalidURL       Kind = "INVALID_URL"
	VideoUnavailable Kind = "VIDEO_UNAVAILABLE"
	AuthRequired     Kind = "AUTH_REQUIRED"
	Timeout          Kind = "TIMEOUT"
	ExtractionError  Kind = "EXTRACTION_ERROR"
	NoDownloadURL    Kind = "NO_DOWNLOAD_URL"
	ValidationError  Kind = "VALIDATION_ERROR"
	AuthFailed       Kind = "AUTH_FAILED"
)

var kinds = map[Kind]struct{}{
	InvalidURL:       {},
	VideoUnavailable: {},
	AuthRequired:     {},
	Timeout:          {},
	ExtractionError:  {},
	NoDownloadURL:    {},
	ValidationError:  {},
	AuthFailed:       {},
}

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

const (
	MsgUnavailable      = "Video is unavailable or private"
	MsgBlocked          = "This video is blocked or unavailable in your region"
	MsgUnsupportedURL   = "This URL is not supported by any available extractor"
	MsgAuthRequired     = "This video requires authentication to access"
	MsgAgeRestricted    = "This video is age-restricted and requires authentication"
	MsgTimeout          = "Request timed out. The video might be too large or the server is busy."
	MsgExtraction       = "Failed to extract video information"
	MsgMalformed        = "Could not extract video information"
	MsgNoDownloadURL    = "No downloadable URL found for this video"
	MsgCancelled        = "Request was cancelled before extraction finished"
	MsgInvalidAPIKey    = "Invalid or missing API key"
	MsgInvalidBody      = "Request body must be a JSON object"
	MsgMissingURL       = "Field 'url' is required"
	MsgInvalidQuality   = "Quality must be 'best', 'worst' or a resolution such as '720p'"
	MsgInvalidURL       = "URL must be an absolute http or https URL"
	MsgEmptyURL         = "URL must not be empty"
	MsgNotFound         = "Resource not found"
	MsgMethodNotAllowed = "Method not allowed"
	MsgMergeFailed      = "Failed to merge video and audio streams"
)

// Error is a classified failure. Message is always safe to show to clients;
// the underlying cause is kept for logs only.
type Error struct {
	Kind      Kind
	Message   string
	Transient bool

	cause error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, so errors.Is(err, apierror.New(k, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind err classifies to.
func KindOf(err error) Kind {
	return Classify(err).Kind
}

// IsTransient reports whether err is worth another extraction attempt.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

// Classify maps any error onto the closed set. Unknown errors become
// EXTRACTION_ERROR with a generic message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, Timeout, MsgTimeout)
	case errors.Is(err, context.Canceled):
		return Wrap(err, ExtractionError, MsgCancelled)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: ExtractionError, Message: MsgExtraction, Transient: true, cause: err}
	}

	return Wrap(err, ExtractionError, MsgExtraction)
}

type rule struct {
	patterns  []string
	kind      Kind
	message   string
	transient bool
}

// Order matters: "Private video. Sign in if you've been granted access"
// must resolve to VIDEO_UNAVAILABLE before the sign-in rule sees it.
var engineRules = []rule{
	{
		patterns: []string{"video unavailable", "private video", "this video is private", "has been removed", "been deleted", "no longer available", "does not exist", "video is not available"},
		kind:     VideoUnavailable,
		message:  MsgUnavailable,
	},
	{
		patterns: []string{"copyright", "blocked", "available in your country", "geo restricted", "geo-restricted"},
		kind:     VideoUnavailable,
		message:  MsgBlocked,
	},
	{
		patterns: []string{"unsupported url"},
		kind:     InvalidURL,
		message:  MsgUnsupportedURL,
	},
	{
		patterns: []string{"age-restricted", "age restricted", "confirm your age", "inappropriate for some users"},
		kind:     AuthRequired,
		message:  MsgAgeRestricted,
	},
	{
		patterns: []string{"sign in", "login", "log in", "authentication", "cookies"},
		kind:     AuthRequired,
		message:  MsgAuthRequired,
	},
	{
		patterns:  []string{"http error 429", "too many requests", "timed out", "timeout", "connection reset", "connection refused", "connection aborted", "temporary failure in name resolution", "network is unreachable", "remote end closed", "incompleteread", "http error 500", "http error 502", "http error 503", "http error 504", "unable to download webpage"},
		kind:      ExtractionError,
		message:   MsgExtraction,
		transient: true,
	},
}

// FromEngineMessage classifies a failure the engine reported in text.
// Matching is best-effort; anything unrecognised is a transient
// EXTRACTION_ERROR, the engine's generic download failure.
func FromEngineMessage(message string, cause error) *Error {
	lower := strings.ToLower(message)
	for _, r := range engineRules {
		for _, p := range r.patterns {
			if strings.Contains(lower, p) {
				return &Error{Kind: r.kind, Message: r.message, Transient: r.transient, cause: cause}
			}
		}
	}

	return &Error{Kind: ExtractionError, Message: MsgExtraction, Transient: true, cause: cause}
}
