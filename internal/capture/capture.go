// Package capture provides camera sources. Every device hands out at most one
// frame at a time; the frame must be released exactly once before the next
// acquisition.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
)

var (
	ErrNoFrame          = errors.New("capture: no frame available")
	ErrFrameOutstanding = errors.New("capture: previous frame not released")
	ErrNotOutstanding   = errors.New("capture: frame is not outstanding")
	ErrClosed           = errors.New("capture: device closed")
)

// Frame is a captured buffer. Data belongs to the device and is only valid
// until the frame is released.
type Frame struct {
	Width      int
	Height     int
	Format     pixel.Format
	Data       []byte
	Seq        uint64
	CapturedAt time.Time
}

// Device is a camera driver.
type Device interface {
	// Acquire blocks until a frame is available, the device times out
	// (ErrNoFrame) or ctx is done.
	Acquire(ctx context.Context) (*Frame, error)
	// Release hands the frame back to the driver.
	Release(f *Frame) error
	Close() error
}

// slot enforces the single-outstanding-frame rule for the devices here.
type slot struct {
	out  *Frame
	seq  uint64
	done bool
}

func (s *slot) acquire() error {
	if s.done {
		return ErrClosed
	}
	if s.out != nil {
		return ErrFrameOutstanding
	}
	return nil
}

func (s *slot) hand(f *Frame, at time.Time) *Frame {
	s.seq++
	f.Seq = s.seq
	f.CapturedAt = at
	s.out = f
	return f
}

func (s *slot) release(f *Frame) error {
	if f == nil || s.out != f {
		return ErrNotOutstanding
	}
	s.out = nil
	return nil
}
