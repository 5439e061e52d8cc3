package classify

import (
	"errors"

	"github.com/Brownie44l1/edge-classifier/internal/arena"
	"github.com/Brownie44l1/edge-classifier/internal/interpret"
	"github.com/Brownie44l1/edge-classifier/internal/model"
)

// Per-cycle errors. They are recoverable: the cycle publishes nothing and the
// next one starts from a clean slate.
var (
	ErrCaptureFailure = errors.New("classify: capture failed")
	ErrFormatMismatch = errors.New("classify: unexpected pixel format")
	ErrInvokeFailure  = errors.New("classify: inference failed")
)

// ErrUnsupportedFormat is a startup error for a configured capture format the
// pipeline cannot preprocess.
var ErrUnsupportedFormat = errors.New("classify: unsupported capture format")

// IsRecoverable reports whether err is a per-cycle error the control loop
// should log and move past.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCaptureFailure) ||
		errors.Is(err, ErrFormatMismatch) ||
		errors.Is(err, ErrInvokeFailure)
}

// IsFatal reports whether err must halt the device at startup: the engine
// cannot run, or would run against tensors it does not own.
func IsFatal(err error) bool {
	return errors.Is(err, model.ErrVersionMismatch) ||
		errors.Is(err, model.ErrBadMagic) ||
		errors.Is(err, model.ErrCorrupt) ||
		errors.Is(err, model.ErrInvalidGraph) ||
		errors.Is(err, arena.ErrOverflow) ||
		errors.Is(err, interpret.ErrLabelMismatch) ||
		errors.Is(err, ErrUnsupportedFormat)
}
