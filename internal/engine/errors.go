package engine

import (
	"errors"
	"fmt"
)

// ErrGenerationInFlight is returned by Generate while another generation is
// active. Gating belongs to the caller; the engine only refuses.
var ErrGenerationInFlight = errors.New("a generation is already in flight")

// ErrCancelled is returned when the generation was cancelled before it could
// finish.
var ErrCancelled = errors.New("generation cancelled")

// ProviderFailure is a fatal provider error: network, auth, or a rate limit
// that survived the retry budget. It aborts the generation.
type ProviderFailure struct {
	Phase string
	Err   error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("provider failure during %s: %v", e.Phase, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// ParseFailure means the response text yielded zero usable sections even
// after salvage. It is fatal only when raised; recoverable parse trouble is
// handled inline.
type ParseFailure struct {
	Phase string
	Err   error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("unusable response during %s: %v", e.Phase, e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// IsProviderFailure reports whether err is a fatal provider error.
func IsProviderFailure(err error) bool {
	var pf *ProviderFailure
	return errors.As(err, &pf)
}

// IsParseFailure reports whether err means no content could be salvaged.
func IsParseFailure(err error) bool {
	var pf *ParseFailure
	return errors.As(err, &pf)
}
