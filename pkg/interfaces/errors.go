package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrChannelRequired = errors.New("channel is required")
)
