// Package config loads the device configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Brownie44l1/edge-classifier/internal/arena"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

// Runtime names.
const (
	RuntimeReference = "reference"
	RuntimeONNX      = "onnx"
)

// Capture source names.
const (
	SourceSynthetic = "synthetic"
	SourceFiles     = "files"
	SourceCamera    = "camera"
)

// MaxCaptureDimension bounds capture_width and capture_height.
const MaxCaptureDimension = 4096

// Config is the device configuration. Every field is optional; the Get*
// methods supply defaults for fields the file leaves out.
type Config struct {
	// Model
	Runtime        *string `json:"runtime,omitempty"`    // "reference" or "onnx"
	ModelPath      *string `json:"model_path,omitempty"` // empty uses the built-in model
	ArenaKiB       *int    `json:"arena_kib,omitempty"`
	InputChannels  *string `json:"input_channels,omitempty"` // "gray" or "rgb", built-in model and onnx input
	ONNXLibrary    *string `json:"onnx_library,omitempty"`
	ONNXInputName  *string `json:"onnx_input_name,omitempty"`
	ONNXOutputName *string `json:"onnx_output_name,omitempty"`

	// Capture
	Source        *string `json:"source,omitempty"` // "synthetic", "files" or "camera"
	SourcePath    *string `json:"source_path,omitempty"`
	CameraDevice  *string `json:"camera_device,omitempty"`
	PixelFormat   *string `json:"pixel_format,omitempty"`
	CaptureWidth  *int    `json:"capture_width,omitempty"`
	CaptureHeight *int    `json:"capture_height,omitempty"`

	// Loop
	Interval *string `json:"interval,omitempty"` // duration string like "1s"

	// Serving and diagnostics
	Listen       *string `json:"listen,omitempty"`
	LogLevel     *string `json:"log_level,omitempty"`
	SerialPort   *string `json:"serial_port,omitempty"`
	SerialBaud   *int    `json:"serial_baud,omitempty"`
	HaltInterval *string `json:"halt_interval,omitempty"`
}

// Default returns an empty config; every getter yields its default.
func Default() *Config {
	return &Config{}
}

// Load reads a JSON config. The path must have a .json extension and the file
// must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	switch r := c.GetRuntime(); r {
	case RuntimeReference:
	case RuntimeONNX:
		if c.GetModelPath() == "" {
			return fmt.Errorf("runtime %q needs model_path", r)
		}
	default:
		return fmt.Errorf("unknown runtime %q", r)
	}

	if _, err := tensor.ParseChannelOrder(c.getInputChannels()); err != nil {
		return fmt.Errorf("input_channels: %w", err)
	}

	if c.ArenaKiB != nil && *c.ArenaKiB <= 0 {
		return fmt.Errorf("arena_kib must be positive, got %d", *c.ArenaKiB)
	}

	switch s := c.GetSource(); s {
	case SourceSynthetic, SourceCamera:
	case SourceFiles:
		if c.GetSourcePath() == "" {
			return fmt.Errorf("source %q needs source_path", s)
		}
	default:
		return fmt.Errorf("unknown source %q", s)
	}

	f, err := pixel.ParseFormat(c.GetPixelFormat())
	if err != nil {
		return err
	}
	if f != pixel.FormatRGB565 && f != pixel.FormatJPEG {
		return fmt.Errorf("pixel_format must be rgb565 or jpeg, got %s", f)
	}

	w, h := c.GetCaptureWidth(), c.GetCaptureHeight()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("capture size must be positive, got %dx%d", w, h)
	}
	if w > MaxCaptureDimension || h > MaxCaptureDimension {
		return fmt.Errorf("capture size %dx%d exceeds %d", w, h, MaxCaptureDimension)
	}

	for name, v := range map[string]*string{"interval": c.Interval, "halt_interval": c.HaltInterval} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}
	return nil
}

func str(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func num(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func dur(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) GetRuntime() string        { return str(c.Runtime, RuntimeReference) }
func (c *Config) GetModelPath() string      { return str(c.ModelPath, "") }
func (c *Config) GetONNXLibrary() string    { return str(c.ONNXLibrary, "") }
func (c *Config) GetONNXInputName() string  { return str(c.ONNXInputName, "input") }
func (c *Config) GetONNXOutputName() string { return str(c.ONNXOutputName, "output") }
func (c *Config) GetSource() string         { return str(c.Source, SourceSynthetic) }
func (c *Config) GetSourcePath() string     { return str(c.SourcePath, "") }
func (c *Config) GetCameraDevice() string   { return str(c.CameraDevice, "0") }
func (c *Config) GetPixelFormat() string    { return str(c.PixelFormat, "rgb565") }
func (c *Config) GetCaptureWidth() int      { return num(c.CaptureWidth, 160) }
func (c *Config) GetCaptureHeight() int     { return num(c.CaptureHeight, 120) }
func (c *Config) GetListen() string         { return str(c.Listen, ":8080") }
func (c *Config) GetLogLevel() string       { return str(c.LogLevel, "info") }
func (c *Config) GetSerialPort() string     { return str(c.SerialPort, "") }
func (c *Config) GetSerialBaud() int        { return num(c.SerialBaud, 115200) }

// GetArenaBytes returns the arena capacity in bytes.
func (c *Config) GetArenaBytes() int {
	if c.ArenaKiB == nil {
		return arena.DefaultCapacity
	}
	return *c.ArenaKiB * 1024
}

func (c *Config) getInputChannels() string { return str(c.InputChannels, "gray") }

// GetInputChannels returns the model input channel order. Validate has
// rejected unknown names.
func (c *Config) GetInputChannels() tensor.ChannelOrder {
	ch, _ := tensor.ParseChannelOrder(c.getInputChannels())
	return ch
}

// GetFormat returns the configured capture format. Validate has rejected
// unknown names.
func (c *Config) GetFormat() pixel.Format {
	f, _ := pixel.ParseFormat(c.GetPixelFormat())
	return f
}

// GetInterval is the pause between capture cycles.
func (c *Config) GetInterval() time.Duration { return dur(c.Interval, time.Second) }

// GetHaltInterval is how often a halted device repeats its diagnostic.
func (c *Config) GetHaltInterval() time.Duration { return dur(c.HaltInterval, time.Second) }
