package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pulse.report/internal/units"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pulse.defaults.json"

// PipelineConfig is the process-wide configuration for acquisition, fitting and
// persistence. It is read once at start-up; nothing mutates it afterwards.
// Unset fields fall back to the defaults returned by the Get* methods.
type PipelineConfig struct {
	// Calibration, in physical time units (fs) per pixel.
	CalibrationFactor *float64 `json:"calibration_factor,omitempty"`
	DisplayUnit       *string  `json:"display_unit,omitempty"`

	// Capture params
	CameraIndex  *int    `json:"camera_index,omitempty"`
	FrameWidth   *int    `json:"frame_width,omitempty"`
	FrameHeight  *int    `json:"frame_height,omitempty"`
	FrameRate    *int    `json:"frame_rate,omitempty"`
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "50ms"

	// Profile extraction params
	BandHalfHeight *int     `json:"band_half_height,omitempty"`
	Channel        *int     `json:"channel,omitempty"`
	SmoothingSigma *float64 `json:"smoothing_sigma,omitempty"`

	// Fit params
	InitialSigma  *float64 `json:"initial_sigma,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty"`
	MinRSquared   *float64 `json:"min_r_squared,omitempty"`

	// Persistence params
	OutputDir   *string `json:"output_dir,omitempty"`
	JPEGQuality *int    `json:"jpeg_quality,omitempty"`
	CatalogPath *string `json:"catalog_path,omitempty"`

	// Control surface params
	Listen         *string `json:"listen,omitempty"`
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`
}

// EmptyPipelineConfig returns a PipelineConfig with all fields set to nil.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
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

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if c.CalibrationFactor != nil && !(*c.CalibrationFactor > 0) {
		return fmt.Errorf("calibration_factor must be positive, got %g", *c.CalibrationFactor)
	}

	if c.DisplayUnit != nil && !units.IsValid(*c.DisplayUnit) {
		return fmt.Errorf("display_unit must be one of %s, got %q", units.GetValidUnitsString(), *c.DisplayUnit)
	}

	for name, v := range map[string]*int{
		"frame_width":  c.FrameWidth,
		"frame_height": c.FrameHeight,
		"frame_rate":   c.FrameRate,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}

	if c.BandHalfHeight != nil && *c.BandHalfHeight <= 0 {
		return fmt.Errorf("band_half_height must be positive, got %d", *c.BandHalfHeight)
	}

	if c.Channel != nil && (*c.Channel < 0 || *c.Channel > 3) {
		return fmt.Errorf("channel must be between 0 and 3, got %d", *c.Channel)
	}

	if c.SmoothingSigma != nil && *c.SmoothingSigma < 0 {
		return fmt.Errorf("smoothing_sigma must be non-negative, got %g", *c.SmoothingSigma)
	}

	if c.InitialSigma != nil && !(*c.InitialSigma > 0) {
		return fmt.Errorf("initial_sigma must be positive, got %g", *c.InitialSigma)
	}

	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}

	if c.MinRSquared != nil && (*c.MinRSquared < 0 || *c.MinRSquared > 1) {
		return fmt.Errorf("min_r_squared must be between 0 and 1, got %g", *c.MinRSquared)
	}

	if c.JPEGQuality != nil && (*c.JPEGQuality < 1 || *c.JPEGQuality > 100) {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", *c.JPEGQuality)
	}

	if c.SerialBaudRate != nil && *c.SerialBaudRate <= 0 {
		return fmt.Errorf("serial_baud_rate must be positive, got %d", *c.SerialBaudRate)
	}

	return nil
}

// GetCalibrationFactor returns the fs-per-pixel calibration or the default.
func (c *PipelineConfig) GetCalibrationFactor() float64 {
	if c.CalibrationFactor == nil {
		return 0.00373
	}
	return *c.CalibrationFactor
}

// GetDisplayUnit returns the unit pulse durations are shown in on the live view.
func (c *PipelineConfig) GetDisplayUnit() string {
	if c.DisplayUnit == nil || *c.DisplayUnit == "" {
		return units.FS
	}
	return *c.DisplayUnit
}

// GetCameraIndex returns the camera device index or the default.
func (c *PipelineConfig) GetCameraIndex() int {
	if c.CameraIndex == nil {
		return 2
	}
	return *c.CameraIndex
}

// GetFrameWidth returns the negotiated capture width or the default.
func (c *PipelineConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 1280
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the negotiated capture height or the default.
func (c *PipelineConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 720
	}
	return *c.FrameHeight
}

// GetFrameRate returns the recorded video frame rate or the default.
func (c *PipelineConfig) GetFrameRate() int {
	if c.FrameRate == nil {
		return 15
	}
	return *c.FrameRate
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *PipelineConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetBandHalfHeight returns the band_half_height value or the default.
func (c *PipelineConfig) GetBandHalfHeight() int {
	if c.BandHalfHeight == nil {
		return 20
	}
	return *c.BandHalfHeight
}

// GetChannel returns the sampled colour channel (0 is blue in BGR order).
func (c *PipelineConfig) GetChannel() int {
	if c.Channel == nil {
		return 0
	}
	return *c.Channel
}

// GetSmoothingSigma returns the smoothing_sigma value or the default.
func (c *PipelineConfig) GetSmoothingSigma() float64 {
	if c.SmoothingSigma == nil {
		return 2
	}
	return *c.SmoothingSigma
}

// GetInitialSigma returns the initial_sigma value or the default.
func (c *PipelineConfig) GetInitialSigma() float64 {
	if c.InitialSigma == nil {
		return 10
	}
	return *c.InitialSigma
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *PipelineConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 800
	}
	return *c.MaxIterations
}

// GetMinRSquared returns the min_r_squared value or the default.
func (c *PipelineConfig) GetMinRSquared() float64 {
	if c.MinRSquared == nil {
		return 0.5
	}
	return *c.MinRSquared
}

// GetOutputDir returns the base directory sessions are created under.
func (c *PipelineConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return ""
	}
	return *c.OutputDir
}

// GetJPEGQuality returns the jpeg_quality value or the default.
func (c *PipelineConfig) GetJPEGQuality() int {
	if c.JPEGQuality == nil {
		return 95
	}
	return *c.JPEGQuality
}

// GetCatalogPath returns the SQLite catalog path; empty disables the catalog.
func (c *PipelineConfig) GetCatalogPath() string {
	if c.CatalogPath == nil {
		return ""
	}
	return *c.CatalogPath
}

// GetListen returns the HTTP listen address or the default.
func (c *PipelineConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8090"
	}
	return *c.Listen
}

// GetSerialPort returns the control pad serial port; empty disables it.
func (c *PipelineConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialBaudRate returns the serial_baud_rate value or the default.
func (c *PipelineConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil {
		return 9600
	}
	return *c.SerialBaudRate
}
