package capture

import (
	"context"
	"sync"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/timeutil"
)

// Pattern selects what a Synthetic device draws.
type Pattern int

const (
	// Solid fills the frame with one RGB565 value.
	Solid Pattern = iota
	// Gradient ramps red across and green down the frame.
	Gradient
)

// Synthetic is a camera stand-in drawing into one preallocated buffer. It is
// used on benches without a sensor and in tests.
type Synthetic struct {
	mu     sync.Mutex
	slot   slot
	clock  timeutil.Clock
	frame  Frame
	failN  int
	format pixel.Format
}

// NewSynthetic draws pattern at w×h. color is used by Solid.
func NewSynthetic(w, h int, pattern Pattern, color uint16) *Synthetic {
	buf := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := color
			if pattern == Gradient {
				p = pixel.EncodeRGB565(uint8(x*255/max(w-1, 1)), uint8(y*255/max(h-1, 1)), 128)
			}
			pixel.Put(buf, y*w+x, p)
		}
	}
	return &Synthetic{
		clock:  timeutil.RealClock{},
		frame:  Frame{Width: w, Height: h, Format: pixel.FormatRGB565, Data: buf},
		format: pixel.FormatRGB565,
	}
}

// SetClock replaces the timestamp source.
func (s *Synthetic) SetClock(c timeutil.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// FailNext makes the next n acquisitions return ErrNoFrame.
func (s *Synthetic) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failN = n
}

// ReportFormat changes the format tag on delivered frames without touching
// the pixels, to simulate a misconfigured sensor.
func (s *Synthetic) ReportFormat(f pixel.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
}

// Outstanding reports whether a frame is currently held by a caller.
func (s *Synthetic) Outstanding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot.out != nil
}

func (s *Synthetic) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.acquire(); err != nil {
		return nil, err
	}
	if s.failN > 0 {
		s.failN--
		return nil, ErrNoFrame
	}
	s.frame.Format = s.format
	return s.slot.hand(&s.frame, s.clock.Now()), nil
}

func (s *Synthetic) Release(f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot.release(f)
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot.done = true
	return nil
}
