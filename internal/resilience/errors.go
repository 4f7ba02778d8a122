package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies an error into one of the pipeline's failure categories.
// Callers branch on kind, never on error text.
type Kind string

const (
	KindStorage         Kind = "storage"
	KindPortalTransient Kind = "portal_transient"
	KindPortalBlocked   Kind = "portal_blocked"
	KindPortalPermanent Kind = "portal_permanent"
	KindLLMTransient    Kind = "llm_transient"
	KindLLMBadOutput    Kind = "llm_bad_output"
	KindValidation      Kind = "validation"
)

// KindError tags an error with a Kind. It wraps the underlying cause so
// errors.Is/As keep working through the chain.
type KindError struct {
	Kind       Kind
	Err        error
	StatusCode int
}

func (e *KindError) Error() string {
	return e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// WithKind wraps err with the given kind. Returns nil for a nil err.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// WithKindStatus wraps err with a kind and the HTTP status that produced it.
func WithKindStatus(kind Kind, err error, status int) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err, StatusCode: status}
}

// KindOf returns the kind of the first KindError in the chain, or "" if none.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient returns true if the error is tagged with a transient kind, or if
// it matches common network-level transient patterns (timeouts, connection
// resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch KindOf(err) {
	case KindPortalTransient, KindLLMTransient:
		return true
	case KindPortalBlocked, KindPortalPermanent, KindLLMBadOutput, KindValidation, KindStorage:
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"rate limit",
		"overloaded",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
