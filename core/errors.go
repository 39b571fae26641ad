package core

import "errors"

// Configuration errors. They indicate a static misconfiguration of the
// geometry or interface-budget inputs and are never retried.
var (
	ErrInvalidTopology     = errors.New("invalid topology")
	ErrInterfaceExhausted  = errors.New("interface exhausted")
	ErrMalformedCandidates = errors.New("malformed candidates")
	ErrInterfaceCollision  = errors.New("interface collision")
)

// ErrNoPendingEmission is returned by RetryEmit when there is nothing to retry.
var ErrNoPendingEmission = errors.New("no pending emission")

// IsConfigurationError reports whether err belongs to the configuration
// error family.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidTopology) ||
		errors.Is(err, ErrInterfaceExhausted) ||
		errors.Is(err, ErrMalformedCandidates) ||
		errors.Is(err, ErrInterfaceCollision)
}
