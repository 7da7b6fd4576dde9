package detect

import "errors"

// ErrInsufficientData indicates the orchard does not carry enough healthy
// observations (or a usable boundary) for spatial analysis. Surfaced to the
// caller as a client-visible condition, never retried.
var ErrInsufficientData = errors.New("insufficient orchard data for detection")

// ErrConfig indicates invalid tuning parameters. Raised before any pipeline
// stage runs.
var ErrConfig = errors.New("invalid detection parameters")
