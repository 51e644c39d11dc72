package transfer

import "errors"

var (
	ErrSourceOpen = errors.New("error opening source for reading")
	ErrSourceSize = errors.New("error determining size of source")
	ErrTargetOpen = errors.New("error opening target for writing")
	ErrTargetSize = errors.New("error determining size of target")
	ErrShortRead  = errors.New("short read from source")
	ErrWrite      = errors.New("error writing to target")

	// ErrCancelled marks a cancelled session. It is an outcome, not a failure,
	// and is never delivered through a sink's OnError.
	ErrCancelled = errors.New("operation was cancelled")
)
