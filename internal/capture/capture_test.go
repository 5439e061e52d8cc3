package capture

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/timeutil"
)

func TestSynthetic_AcquireReleasePairs(t *testing.T) {
	ctx := context.Background()
	d := NewSynthetic(4, 3, Solid, 0xFFFF)
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	d.SetClock(timeutil.NewMockClock(start))

	f, err := d.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, pixel.FormatRGB565, f.Format)
	assert.Len(t, f.Data, 4*3*2)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, start, f.CapturedAt)
	assert.True(t, d.Outstanding())

	_, err = d.Acquire(ctx)
	assert.ErrorIs(t, err, ErrFrameOutstanding)

	require.NoError(t, d.Release(f))
	assert.ErrorIs(t, d.Release(f), ErrNotOutstanding, "double release")
	assert.False(t, d.Outstanding())

	f, err = d.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)
	require.NoError(t, d.Release(f))
}

func TestSynthetic_FailuresAndFormat(t *testing.T) {
	ctx := context.Background()
	d := NewSynthetic(2, 2, Gradient, 0)
	d.FailNext(2)
	for i := 0; i < 2; i++ {
		_, err := d.Acquire(ctx)
		assert.ErrorIs(t, err, ErrNoFrame)
	}
	d.ReportFormat(pixel.FormatJPEG)
	f, err := d.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, pixel.FormatJPEG, f.Format)
	require.NoError(t, d.Release(f))

	require.NoError(t, d.Close())
	_, err = d.Acquire(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSynthetic(1, 1, Solid, 0).Acquire(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthetic_Gradient(t *testing.T) {
	d := NewSynthetic(8, 8, Gradient, 0)
	f, err := d.Acquire(context.Background())
	require.NoError(t, err)
	r0, g0, _ := pixel.DecodeRGB565(pixel.At(f.Data, 0))
	r1, g1, _ := pixel.DecodeRGB565(pixel.At(f.Data, 63))
	assert.Equal(t, uint8(0), r0)
	assert.Equal(t, uint8(0), g0)
	assert.Equal(t, uint8(255), r1)
	assert.Equal(t, uint8(255), g1)
}

func TestFiles_CyclesAndValidates(t *testing.T) {
	dir := t.TempDir()
	raw := make([]byte, 2*2*2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rgb565"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte{0xff, 0xd8}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.rgb565"), raw[:3], 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	d, err := NewFiles(dir, 2, 2)
	require.NoError(t, err)
	ctx := context.Background()

	f, err := d.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, pixel.FormatRGB565, f.Format)
	assert.Equal(t, filepath.Join(dir, "a.rgb565"), d.LastPath())
	require.NoError(t, d.Release(f))

	f, err = d.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, pixel.FormatJPEG, f.Format)
	require.NoError(t, d.Release(f))

	_, err = d.Acquire(ctx)
	assert.ErrorIs(t, err, ErrNoFrame, "short raw frame")

	f, err = d.Acquire(ctx)
	require.NoError(t, err, "wraps around")
	assert.Equal(t, filepath.Join(dir, "a.rgb565"), d.LastPath())
	require.NoError(t, d.Release(f))
}

func TestFiles_HugeSizeRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.rgb565")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	// w*h*2 wraps to 0 here, which an empty file would otherwise match.
	d := NewFileList([]string{path}, math.MaxInt/8+1, 4)
	assert.NotPanics(t, func() {
		_, err := d.Acquire(context.Background())
		assert.ErrorIs(t, err, ErrNoFrame)
	})
	assert.False(t, d.slot.out != nil, "no frame handed out")
}

func TestRawFrameFits(t *testing.T) {
	assert.True(t, rawFrameFits(160*120*2, 160, 120))
	assert.True(t, rawFrameFits(2, 1, 1))
	assert.False(t, rawFrameFits(160*120*2-1, 160, 120))
	assert.False(t, rawFrameFits(160*120*2, 120, 160*2))
	assert.False(t, rawFrameFits(0, 0, 0))
	assert.False(t, rawFrameFits(0, math.MaxInt/8+1, 4))
	assert.False(t, rawFrameFits(16, math.MaxInt, math.MaxInt))
}

func TestNewFiles_Empty(t *testing.T) {
	_, err := NewFiles(t.TempDir(), 1, 1)
	assert.Error(t, err)
	_, err = NewFiles(filepath.Join(t.TempDir(), "missing"), 1, 1)
	assert.Error(t, err)
}
