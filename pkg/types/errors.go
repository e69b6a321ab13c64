package types

import "errors"

// ARCHITECTURAL DISCOVERY: Domain errors are shared sentinels so every layer
// (store, policy, service, transport) matches them with errors.Is
var (
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrVersionConflict   = errors.New("call was modified concurrently")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidStatus     = errors.New("unknown call status")
	ErrInvalidRole       = errors.New("unknown role")
	ErrInvalidID         = errors.New("id must be 1-64 characters, alphanumeric + underscore/hyphen only")
)
