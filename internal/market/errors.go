package market

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport is returned when the upstream could not be reached
	ErrTransport = errors.New("transport error")
	// ErrUpstream is returned when the upstream answered with a non-2xx status
	ErrUpstream = errors.New("upstream error")
	// ErrSchema is returned when the upstream body does not have the expected shape
	ErrSchema = errors.New("schema error")
	// ErrEmptySnapshot is returned when a snapshot has no usable records
	ErrEmptySnapshot = errors.New("empty snapshot")
	// ErrPersistence is returned when the workbook could not be read or written
	ErrPersistence = errors.New("persistence error")
)

// UpstreamError carries the failing HTTP status of an upstream response.
type UpstreamError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream error: HTTP %d", e.StatusCode)
	if text := http.StatusText(e.StatusCode); text != "" {
		msg += " " + text
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is makes errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Kind returns a stable label for the error class of err, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrEmptySnapshot):
		return "empty_snapshot"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unexpected"
	}
}

// IsTransient reports whether err is likely to clear up by the next cycle (rate limiting,
// upstream 5xx, transport failures) rather than needing an operator.
func IsTransient(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode == http.StatusTooManyRequests || upstream.StatusCode >= 500
	}
	return errors.Is(err, ErrTransport)
}
