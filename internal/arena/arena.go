// Package arena provides the fixed-capacity memory region the inference
// engine carves its tensors from. Nothing is allocated from the heap after
// the arena is created.
package arena

import (
	"errors"
	"fmt"
)

// DefaultCapacity matches the tensor arena of the reference device.
const DefaultCapacity = 380 * 1024

// ErrOverflow is returned when an allocation does not fit.
var ErrOverflow = errors.New("arena: capacity exceeded")

// Arena is a bump allocator over one byte slice.
type Arena struct {
	buf []byte
	off int
}

// New reserves capacity bytes.
func New(capacity int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buf: make([]byte, capacity)}
}

// TryAllocate returns the next size bytes, aligned to align (a power of two;
// values below 1 mean no alignment). The region is zeroed.
func (a *Arena) TryAllocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("arena: negative allocation %d", size)
	}
	start := AlignUp(a.off, align)
	end := start + size
	if end > len(a.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, capacity %d", ErrOverflow, size, start, len(a.buf))
	}
	region := a.buf[start:end:end]
	clear(region)
	a.off = end
	return region, nil
}

// Used returns the high-water mark including alignment padding.
func (a *Arena) Used() int { return a.off }

// Capacity returns the fixed size of the arena.
func (a *Arena) Capacity() int { return len(a.buf) }

// Remaining returns the bytes left after the high-water mark.
func (a *Arena) Remaining() int { return len(a.buf) - a.off }

// Reset forgets all allocations. Regions handed out earlier must no longer be
// used.
func (a *Arena) Reset() { a.off = 0 }

// AlignUp rounds n up to a multiple of align.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
