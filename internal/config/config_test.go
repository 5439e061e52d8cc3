package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/edge-classifier/internal/arena"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, RuntimeReference, c.GetRuntime())
	assert.Equal(t, arena.DefaultCapacity, c.GetArenaBytes())
	assert.Equal(t, SourceSynthetic, c.GetSource())
	assert.Equal(t, pixel.FormatRGB565, c.GetFormat())
	assert.Equal(t, 160, c.GetCaptureWidth())
	assert.Equal(t, 120, c.GetCaptureHeight())
	assert.Equal(t, time.Second, c.GetInterval())
	assert.Equal(t, ":8080", c.GetListen())
	assert.Equal(t, 115200, c.GetSerialBaud())
	assert.Equal(t, tensor.Gray, c.GetInputChannels())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "device.json", `{
		"arena_kib": 64,
		"source": "files",
		"source_path": "/data/frames",
		"pixel_format": "jpeg",
		"interval": "250ms",
		"listen": ":9000",
		"input_channels": "rgb"
	}`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64*1024, c.GetArenaBytes())
	assert.Equal(t, SourceFiles, c.GetSource())
	assert.Equal(t, "/data/frames", c.GetSourcePath())
	assert.Equal(t, pixel.FormatJPEG, c.GetFormat())
	assert.Equal(t, 250*time.Millisecond, c.GetInterval())
	assert.Equal(t, ":9000", c.GetListen())
	assert.Equal(t, tensor.RGB, c.GetInputChannels())

	c, err = Load(writeConfig(t, "max.json", `{"capture_width": 4096, "capture_height": 4096}`))
	require.NoError(t, err)
	assert.Equal(t, MaxCaptureDimension, c.GetCaptureWidth())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"runtime", `{"runtime": "tpu"}`, "unknown runtime"},
		{"onnx without model", `{"runtime": "onnx"}`, "needs model_path"},
		{"arena", `{"arena_kib": 0}`, "arena_kib"},
		{"source", `{"source": "usb"}`, "unknown source"},
		{"files without path", `{"source": "files"}`, "needs source_path"},
		{"format", `{"pixel_format": "yuv"}`, "unknown pixel format"},
		{"grayscale capture", `{"pixel_format": "grayscale"}`, "rgb565 or jpeg"},
		{"size", `{"capture_width": -1}`, "capture size"},
		{"huge width", `{"capture_width": 1152921504606846977}`, "exceeds 4096"},
		{"channels", `{"input_channels": "bgr"}`, "input_channels"},
		{"huge height", `{"capture_height": 4097}`, "exceeds 4096"},
		{"interval", `{"interval": "soon"}`, "invalid interval"},
		{"negative interval", `{"interval": "-1s"}`, "must be positive"},
		{"baud", `{"serial_baud": 0}`, "serial_baud"},
		{"json", `{`, "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "c.json", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FileChecks(t *testing.T) {
	_, err := Load(writeConfig(t, "c.yaml", "{}"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "stat")

	big := `{"listen": "` + strings.Repeat("x", 1<<20) + `"}`
	_, err = Load(writeConfig(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}
