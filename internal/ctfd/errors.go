package ctfd

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsuccessful is wrapped when the envelope does not carry success:true.
	ErrUnsuccessful = errors.New("upstream reported success=false")
	// ErrMalformedResponse is wrapped when the body is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrEmptyResponse is wrapped when a 2xx response has a blank body.
	ErrEmptyResponse = errors.New("empty upstream response")
	// ErrPageLimit is wrapped when a list still has pages after MaxPages.
	ErrPageLimit = errors.New("pagination limit reached")
)

// UpstreamError describes a failed call to the scoring platform: a non-2xx
// status, a transport failure, or a body that could not be decoded.
type UpstreamError struct {
	Op         string // logical operation, e.g. "challenges"
	Path       string // request path relative to the API prefix
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ctfd %s (%s): status %d: %v", e.Op, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ctfd %s (%s): %v", e.Op, e.Path, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamError reports whether err (or anything it wraps) is an *UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
