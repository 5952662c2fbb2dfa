package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and external clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: no session, job or result exists under the key
//   - ErrExpired: the session outlived its TTL
//   - ErrInvalidState: the flow is in the wrong stage for the operation
//   - ErrUnavailable: a dependency is not configured or not reachable
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
