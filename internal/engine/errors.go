package engine

import (
	"context"
	"errors"

	"github.com/roach88/vsptd/internal/ruleerr"
)

// ErrClosed is returned by Exec and Explain after Close.
var ErrClosed = errors.New("engine is closed")

// failureCode labels err for metrics. Errors outside the taxonomy
// (driver failures, cancellations) are reported by kind.
func failureCode(err error) string {
	if code := ruleerr.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, ErrClosed):
		return "CLOSED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	}
	return "INTERNAL"
}
