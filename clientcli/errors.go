package clientcli

import "errors"

// Errors for configuration validation.
var (
	ErrEndpointRequired = errors.New("endpoint is required")
	ErrInvalidEndpoint  = errors.New("endpoint must be an http:// or https:// URL")
)

// Errors for input validation.
var (
	ErrNoPaths   = errors.New("no paths provided")
	ErrEmptyPath = errors.New("path is required")
)
