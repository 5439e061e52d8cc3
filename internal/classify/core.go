// Package classify runs the capture-and-classify cycle: acquire a frame,
// turn it into the model's input tensor, invoke the model, interpret the
// scores and publish the result as a single snapshot.
package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/edge-classifier/internal/capture"
	"github.com/Brownie44l1/edge-classifier/internal/interpret"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/resample"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
	"github.com/Brownie44l1/edge-classifier/internal/timeutil"
)

// statsEvery is how often, in inferences, running statistics are logged.
const statsEvery = 10

// Inferer is a model runtime with preallocated input and output tensors.
// engine.Engine and onnxrt.Session implement it.
type Inferer interface {
	InputDescriptor() tensor.Descriptor
	OutputDescriptor() tensor.Descriptor
	Invoke(input []int8) error
	Output() []int8
}

// Outcome says whether a cycle published a new result.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeUpdated {
		return "updated"
	}
	return "skipped"
}

// Options configures a Core.
type Options struct {
	Device         capture.Device
	Inferer        Inferer
	Labels         []string
	ExpectedFormat pixel.Format
	Clock          timeutil.Clock
	Logger         *logrus.Entry
}

// FrameInfo describes the frame LastFrame returns.
type FrameInfo struct {
	Width      int
	Height     int
	Format     pixel.Format
	Seq        uint64
	CapturedAt time.Time
}

// Core owns the input tensor and the resampler. RunCycle must only be called
// from one goroutine; Latest, Stats and LastFrame may be called from any.
type Core struct {
	dev       capture.Device
	inf       Inferer
	expected  pixel.Format
	resampler *resample.Resampler
	interp    *interpret.Interpreter
	clock     timeutil.Clock
	log       *logrus.Entry

	input []int8
	work  interpret.Result

	mu        sync.RWMutex
	latest    interpret.Result
	hasLatest bool
	stats     Stats
	frame     []byte
	frameInfo FrameInfo
}

// New validates the wiring between the device format, the model input and
// the label table. Every error it returns is fatal.
func New(opts Options) (*Core, error) {
	if opts.Device == nil || opts.Inferer == nil {
		return nil, errors.New("classify: device and inferer are required")
	}
	if opts.ExpectedFormat != pixel.FormatRGB565 && opts.ExpectedFormat != pixel.FormatJPEG {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.ExpectedFormat)
	}
	rs, err := resample.New(opts.Inferer.InputDescriptor())
	if err != nil {
		return nil, fmt.Errorf("classify: model input: %w", err)
	}
	ip, err := interpret.New(opts.Labels, opts.Inferer.OutputDescriptor())
	if err != nil {
		return nil, fmt.Errorf("classify: model output: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Core{
		dev:       opts.Device,
		inf:       opts.Inferer,
		expected:  opts.ExpectedFormat,
		resampler: rs,
		interp:    ip,
		clock:     opts.Clock,
		log:       opts.Logger,
		input:     make([]int8, rs.Len()),
	}, nil
}

// RunCycle performs one capture and classification. Recoverable failures
// return OutcomeSkipped with an error matching ErrCaptureFailure,
// ErrFormatMismatch or ErrInvokeFailure; the published result is untouched.
// A context error is returned as is.
func (c *Core) RunCycle(ctx context.Context) (Outcome, error) {
	f, err := c.dev.Acquire(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OutcomeSkipped, ctxErr
		}
		c.count(func(s *Stats) { s.CaptureFailures++ })
		return OutcomeSkipped, fmt.Errorf("%w: %w", ErrCaptureFailure, err)
	}
	defer c.release(f)

	if f.Format != c.expected {
		c.count(func(s *Stats) { s.FormatMismatches++ })
		return OutcomeSkipped, fmt.Errorf("%w: frame %d is %s, configured %s", ErrFormatMismatch, f.Seq, f.Format, c.expected)
	}
	c.keepFrame(f)

	start := c.clock.Now()
	if err := c.preprocess(f); err != nil {
		return OutcomeSkipped, err
	}
	if err := c.inf.Invoke(c.input); err != nil {
		c.count(func(s *Stats) { s.InvokeFailures++ })
		return OutcomeSkipped, fmt.Errorf("%w: %w", ErrInvokeFailure, err)
	}
	if err := c.interp.Interpret(c.inf.Output(), &c.work); err != nil {
		c.count(func(s *Stats) { s.InvokeFailures++ })
		return OutcomeSkipped, fmt.Errorf("%w: %w", ErrInvokeFailure, err)
	}
	latency := c.clock.Since(start)

	c.mu.Lock()
	c.stats.Inferences++
	c.stats.TotalLatency += latency
	c.stats.LastLatency = latency
	c.work.Latency = latency
	c.work.Seq = c.stats.Inferences
	c.work.At = f.CapturedAt
	c.latest = c.work
	c.hasLatest = true
	stats := c.stats
	c.mu.Unlock()

	if stats.Inferences%statsEvery == 0 && c.log.Logger.IsLevelEnabled(logrus.InfoLevel) {
		c.log.WithFields(logrus.Fields{
			"inferences": stats.Inferences,
			"avg_ms":     float64(stats.AverageLatency().Microseconds()) / 1000,
		}).Info("inference statistics")
	}
	return OutcomeUpdated, nil
}

func (c *Core) preprocess(f *capture.Frame) error {
	switch f.Format {
	case pixel.FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			c.count(func(s *Stats) { s.CaptureFailures++ })
			return fmt.Errorf("%w: decode frame %d: %w", ErrCaptureFailure, f.Seq, err)
		}
		if err := c.resampler.ResampleImage(img, c.input); err != nil {
			c.count(func(s *Stats) { s.FormatMismatches++ })
			return fmt.Errorf("%w: %w", ErrFormatMismatch, err)
		}
	default:
		if err := c.resampler.Resample(f.Width, f.Height, f.Data, c.input); err != nil {
			c.count(func(s *Stats) { s.FormatMismatches++ })
			return fmt.Errorf("%w: %w", ErrFormatMismatch, err)
		}
	}
	return nil
}

func (c *Core) release(f *capture.Frame) {
	if err := c.dev.Release(f); err != nil {
		c.log.WithError(err).WithField("seq", f.Seq).Warn("frame release failed")
	}
}

func (c *Core) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// keepFrame copies the frame bytes for the responder before the frame goes
// back to the driver. The buffer only grows.
func (c *Core) keepFrame(f *capture.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = append(c.frame[:0], f.Data...)
	c.frameInfo = FrameInfo{
		Width:      f.Width,
		Height:     f.Height,
		Format:     f.Format,
		Seq:        f.Seq,
		CapturedAt: f.CapturedAt,
	}
}

// Latest returns the most recently published result.
func (c *Core) Latest() (interpret.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.hasLatest
}

// Stats returns a copy of the running counters.
func (c *Core) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// LastFrame appends the latest captured frame to dst[:0].
func (c *Core) LastFrame(dst []byte) (FrameInfo, []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frameInfo, append(dst[:0], c.frame...)
}

// ConfidenceKind reports how published confidences are expressed.
func (c *Core) ConfidenceKind() interpret.ConfidenceKind {
	return c.interp.Kind()
}

// Run drives one cycle per interval until ctx is done. Recoverable errors are
// logged and the loop moves on.
func (c *Core) Run(ctx context.Context, interval time.Duration) error {
	for {
		outcome, err := c.RunCycle(ctx)
		switch {
		case err == nil:
			if res, ok := c.Latest(); ok {
				c.log.WithFields(logrus.Fields{
					"seq":        res.Seq,
					"label":      res.Label,
					"confidence": res.Confidence,
					"latency_ms": float64(res.Latency.Microseconds()) / 1000,
				}).Debug("classified")
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case IsRecoverable(err):
			c.log.WithError(err).WithField("outcome", outcome).Warn("cycle skipped")
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(interval):
		}
	}
}
