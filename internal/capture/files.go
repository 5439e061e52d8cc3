package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
)

// Files replays captures stored on disk, cycling through a directory in
// name order. Raw frames use the .rgb565 extension and must be Width×Height;
// .jpg and .jpeg files are delivered compressed.
type Files struct {
	mu     sync.Mutex
	slot   slot
	paths  []string
	next   int
	width  int
	height int
	buf    []byte
	frame  Frame
	last   string
}

// IsFrameFile reports whether a path has an extension Files can replay.
func IsFrameFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rgb565", ".jpg", ".jpeg":
		return true
	}
	return false
}

// NewFiles lists dir. width and height describe raw frames.
func NewFiles(dir string, width, height int) (*Files, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("capture: read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && IsFrameFile(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("capture: no frame files in %s", dir)
	}
	slices.Sort(paths)
	return NewFileList(paths, width, height), nil
}

// NewFileList replays an explicit list of files.
func NewFileList(paths []string, width, height int) *Files {
	return &Files{paths: paths, width: width, height: height}
}

// LastPath returns the file of the most recent acquisition attempt.
func (d *Files) LastPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Files) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.slot.acquire(); err != nil {
		return nil, err
	}
	path := d.paths[d.next]
	d.next = (d.next + 1) % len(d.paths)
	d.last = path

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	f := Frame{Data: data, Width: d.width, Height: d.height}
	if strings.EqualFold(filepath.Ext(path), ".rgb565") {
		f.Format = pixel.FormatRGB565
		if !rawFrameFits(len(data), d.width, d.height) {
			return nil, fmt.Errorf("%w: %s holds %d bytes, not a %dx%d rgb565 frame",
				ErrNoFrame, path, len(data), d.width, d.height)
		}
		// Raw frames are copied into one reusable buffer.
		if cap(d.buf) < len(data) {
			d.buf = make([]byte, len(data))
		}
		f.Data = d.buf[:len(data)]
		copy(f.Data, data)
	} else {
		f.Format = pixel.FormatJPEG
	}
	d.frame = f
	return d.slot.hand(&d.frame, time.Now()), nil
}

// rawFrameFits reports whether n bytes are exactly one w×h RGB565 frame,
// without forming w*h*2.
func rawFrameFits(n, w, h int) bool {
	if w <= 0 || h <= 0 || n%2 != 0 {
		return false
	}
	px := n / 2
	return px%h == 0 && px/h == w
}

func (d *Files) Release(f *Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slot.release(f)
}

func (d *Files) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slot.done = true
	return nil
}
