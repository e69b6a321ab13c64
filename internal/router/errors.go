package router

import "errors"

var (
	ErrNilEnvelope = errors.New("envelope cannot be nil")
)
