//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
)

// Camera reads a V4L2/USB camera through OpenCV and delivers frames in the
// configured format at a fixed size, the way the sensor driver would.
type Camera struct {
	mu     sync.Mutex
	slot   slot
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	scaled gocv.Mat
	width  int
	height int
	format pixel.Format
	buf    []byte
	frame  Frame
}

// OpenCamera opens device (an index or a URL) producing w×h frames in format.
func OpenCamera(device any, w, h int, format pixel.Format) (*Camera, error) {
	if format != pixel.FormatRGB565 && format != pixel.FormatJPEG {
		return nil, fmt.Errorf("capture: camera cannot produce %s", format)
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("capture: open camera %v: %w", device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	return &Camera{
		vc:     vc,
		mat:    gocv.NewMat(),
		scaled: gocv.NewMat(),
		width:  w,
		height: h,
		format: format,
		buf:    make([]byte, w*h*2),
	}, nil
}

func (c *Camera) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.slot.acquire(); err != nil {
		return nil, err
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, ErrNoFrame
	}
	gocv.Resize(c.mat, &c.scaled, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationNearestNeighbor)

	f := Frame{Width: c.width, Height: c.height, Format: c.format}
	switch c.format {
	case pixel.FormatJPEG:
		enc, err := gocv.IMEncode(gocv.JPEGFileExt, c.scaled)
		if err != nil {
			return nil, fmt.Errorf("%w: encode: %w", ErrNoFrame, err)
		}
		f.Data = append(c.buf[:0], enc.GetBytes()...)
		enc.Close()
		c.buf = f.Data[:0]
	default:
		bgr := c.scaled.ToBytes()
		for i := 0; i < c.width*c.height; i++ {
			pixel.Put(c.buf, i, pixel.EncodeRGB565(bgr[3*i+2], bgr[3*i+1], bgr[3*i]))
		}
		f.Data = c.buf[:c.width*c.height*2]
	}
	c.frame = f
	return c.slot.hand(&c.frame, time.Now()), nil
}

func (c *Camera) Release(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.release(f)
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot.done = true
	c.mat.Close()
	c.scaled.Close()
	return c.vc.Close()
}
