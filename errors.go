package kfn

import "errors"

// ErrInvalidArgument is wrapped by every validation failure returned from
// Search: dimension mismatches, out-of-range k, bad leaf sizes, conflicting
// reference/model inputs, and unknown algorithm or tree choices. Callers
// distinguish validation failures from backend errors with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrModelClosed is returned when a Model is used or closed after its
// resources were already released.
var ErrModelClosed = errors.New("model already closed")
