package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeSim      = "sim"
	ModeHardware = "hardware"
)

// Can detection algorithms.
const (
	AlgorithmMinRect = "min-rect"
	AlgorithmBlob    = "blob-detector"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CANBOT_"

var (
	ErrUnsupportedMode      = errors.New("unsupported mode")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// Config holds runtime configuration for the robot, its backends and the
// vision calibration. Fields may be loaded from a JSON or YAML file, then
// overridden by environment variables and command-line flags.
type Config struct {
	Debug    bool   `json:"debug" yaml:"debug" env:"DEBUG"`
	LogLevel string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	LogFile  string `json:"log_file" yaml:"log_file" env:"LOG_FILE"`

	Mode                string `json:"mode" yaml:"mode" env:"MODE"`
	Algorithm           string `json:"algorithm" yaml:"algorithm" env:"ALGORITHM"`
	Headless            bool   `json:"headless" yaml:"headless" env:"HEADLESS"`
	NoMove              bool   `json:"no_move" yaml:"no_move" env:"NO_MOVE"`
	NoBackdoorExtension bool   `json:"no_backdoor_extension" yaml:"no_backdoor_extension" env:"NO_BACKDOOR_EXTENSION"`
	SaveImagesDir       string `json:"save_images_dir" yaml:"save_images_dir" env:"SAVE_IMAGES_DIR"`

	Sim       SimConfig       `json:"sim" yaml:"sim" envPrefix:"SIM_"`
	Hardware  HardwareConfig  `json:"hardware" yaml:"hardware" envPrefix:"HW_"`
	Vision    VisionConfig    `json:"vision" yaml:"vision" envPrefix:"VISION_"`
	Loop      LoopConfig      `json:"loop" yaml:"loop" envPrefix:"LOOP_"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// SimConfig locates the simulator's shared memory file.
type SimConfig struct {
	File string `json:"file" yaml:"file" env:"FILE"`
	// Sleep between sync byte polls.
	PollMicros int `json:"poll_micros" yaml:"poll_micros" env:"POLL_MICROS"`
}

// HardwareConfig describes the motor-controller serial link and the cameras.
type HardwareConfig struct {
	Port               string  `json:"port" yaml:"port" env:"PORT"`
	BaudRate           int     `json:"baud_rate" yaml:"baud_rate" env:"BAUD_RATE"`
	DataBits           int     `json:"data_bits" yaml:"data_bits" env:"DATA_BITS"`
	StopBits           int     `json:"stop_bits" yaml:"stop_bits" env:"STOP_BITS"`
	Parity             string  `json:"parity" yaml:"parity" env:"PARITY"`
	FrontCamera        int     `json:"front_camera" yaml:"front_camera" env:"FRONT_CAMERA"`
	RearCamera         int     `json:"rear_camera" yaml:"rear_camera" env:"REAR_CAMERA"`
	ConfirmTimeoutSecs float64 `json:"confirm_timeout_secs" yaml:"confirm_timeout_secs" env:"CONFIRM_TIMEOUT_SECS"`
}

// HSVRange is an inclusive OpenCV HSV band (H 0-179, S and V 0-255).
type HSVRange struct {
	Lower [3]int `json:"lower" yaml:"lower"`
	Upper [3]int `json:"upper" yaml:"upper"`
}

// ThresholdConfig holds the x bounds of an alignment trapezoid. Near bounds
// apply at the bottom row of the frame, far bounds at the top row.
type ThresholdConfig struct {
	NearMin int `json:"near_min" yaml:"near_min"`
	NearMax int `json:"near_max" yaml:"near_max"`
	FarMin  int `json:"far_min" yaml:"far_min"`
	FarMax  int `json:"far_max" yaml:"far_max"`
}

// RegionConfig is a rectangle expressed as fractions of the frame size.
type RegionConfig struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// VisionConfig is the camera calibration used by the vision pipeline.
type VisionConfig struct {
	Width      int `json:"width" yaml:"width" env:"WIDTH"`
	Height     int `json:"height" yaml:"height" env:"HEIGHT"`
	BlurKernel int `json:"blur_kernel" yaml:"blur_kernel" env:"BLUR_KERNEL"`

	Water HSVRange `json:"water" yaml:"water"`
	Dump  HSVRange `json:"dump" yaml:"dump"`

	// Can selects the arena floor. Dark pixels outside the band are can
	// candidates for both detection algorithms.
	Can HSVRange `json:"can" yaml:"can"`

	MinWaterPixels  int     `json:"min_water_pixels" yaml:"min_water_pixels" env:"MIN_WATER_PIXELS"`
	MinDumpPixels   int     `json:"min_dump_pixels" yaml:"min_dump_pixels" env:"MIN_DUMP_PIXELS"`
	MinCanArea      float64 `json:"min_can_area" yaml:"min_can_area" env:"MIN_CAN_AREA"`
	MinDumpArea     float64 `json:"min_dump_area" yaml:"min_dump_area" env:"MIN_DUMP_AREA"`
	MinAspectRatio  float64 `json:"min_aspect_ratio" yaml:"min_aspect_ratio"`
	FullFrameMargin int     `json:"full_frame_margin" yaml:"full_frame_margin"`

	BlobMaxArea    float64 `json:"blob_max_area" yaml:"blob_max_area"`
	BlobMinInertia float64 `json:"blob_min_inertia" yaml:"blob_min_inertia"`
	BlobMaxInertia float64 `json:"blob_max_inertia" yaml:"blob_max_inertia"`

	WaterDotOffset int     `json:"water_dot_offset" yaml:"water_dot_offset"`
	DumpDotOffset  int     `json:"dump_dot_offset" yaml:"dump_dot_offset"`
	BottomBandFrac float64 `json:"bottom_band_frac" yaml:"bottom_band_frac"`
	CorridorFrac   float64 `json:"corridor_frac" yaml:"corridor_frac"`

	CanThreshold     ThresholdConfig `json:"can_threshold" yaml:"can_threshold"`
	DepositThreshold ThresholdConfig `json:"deposit_threshold" yaml:"deposit_threshold"`
	CanRegion        RegionConfig    `json:"can_region" yaml:"can_region"`
	DepositRegion    RegionConfig    `json:"deposit_region" yaml:"deposit_region"`
}

// LoopConfig tunes the decision loop timers and iteration bounds.
type LoopConfig struct {
	SessionSecs           float64 `json:"session_secs" yaml:"session_secs" env:"SESSION_SECS"`
	BrushOnSecs           float64 `json:"brush_on_secs" yaml:"brush_on_secs" env:"BRUSH_ON_SECS"`
	BrushOffDistance      float64 `json:"brush_off_distance" yaml:"brush_off_distance"`
	MaxSearchSecs         float64 `json:"max_search_secs" yaml:"max_search_secs" env:"MAX_SEARCH_SECS"`
	SweepSteps            int     `json:"sweep_steps" yaml:"sweep_steps"`
	EvadeSteps            int     `json:"evade_steps" yaml:"evade_steps"`
	AlignTimeoutSecs      float64 `json:"align_timeout_secs" yaml:"align_timeout_secs"`
	DumpPhaseSecs         float64 `json:"dump_phase_secs" yaml:"dump_phase_secs"`
	DumpOvershootDistance float64 `json:"dump_overshoot_distance" yaml:"dump_overshoot_distance"`
	ProximityStop         int     `json:"proximity_stop" yaml:"proximity_stop"`
	ProximityTolerance    int     `json:"proximity_tolerance" yaml:"proximity_tolerance"`
	SettleSecs            float64 `json:"settle_secs" yaml:"settle_secs"`
	BackupSecs            float64 `json:"backup_secs" yaml:"backup_secs"`
	FallbackBackupSecs    float64 `json:"fallback_backup_secs" yaml:"fallback_backup_secs"`
}

// TelemetryConfig selects where run telemetry goes. Empty DBPath disables the store.
type TelemetryConfig struct {
	DBPath string      `json:"db_path" yaml:"db_path" env:"DB_PATH"`
	MQTT   MQTTConfig  `json:"mqtt" yaml:"mqtt" envPrefix:"MQTT_"`
	Kafka  KafkaConfig `json:"kafka" yaml:"kafka" envPrefix:"KAFKA_"`
}

// KafkaConfig defines an optional Kafka sink for the same telemetry messages.
type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Brokers []string `json:"brokers" yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `json:"topic" yaml:"topic" env:"TOPIC"`
}

// MQTTConfig defines the optional broker for live telemetry.
type MQTTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Broker   string `json:"broker" yaml:"broker" env:"BROKER"`
	Port     int    `json:"port" yaml:"port" env:"PORT"`
	ClientID string `json:"client_id" yaml:"client_id" env:"CLIENT_ID"`
	Topic    string `json:"topic" yaml:"topic" env:"TOPIC"`
}

// DefaultConfig returns a Config populated with the calibration of the
// 512x512 simulator cameras.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		Mode:      ModeSim,
		Algorithm: AlgorithmMinRect,
		Sim: SimConfig{
			File:       "../sim/file.mmap",
			PollMicros: 50,
		},
		Hardware: HardwareConfig{
			Port:               "/dev/ttyUSB0",
			BaudRate:           115200,
			DataBits:           8,
			StopBits:           1,
			Parity:             "N",
			FrontCamera:        0,
			RearCamera:         1,
			ConfirmTimeoutSecs: 5,
		},
		Vision: VisionConfig{
			Width:            512,
			Height:           512,
			BlurKernel:       51,
			Water:            HSVRange{Lower: [3]int{39, 76, 110}, Upper: [3]int{175, 255, 255}},
			Dump:             HSVRange{Lower: [3]int{0, 176, 0}, Upper: [3]int{78, 255, 255}},
			Can:              HSVRange{Lower: [3]int{0, 0, 69}, Upper: [3]int{179, 255, 255}},
			MinWaterPixels:   50,
			MinDumpPixels:    50,
			MinCanArea:       100,
			MinDumpArea:      600,
			MinAspectRatio:   0.5,
			FullFrameMargin:  5,
			BlobMaxArea:      300000,
			BlobMinInertia:   0.01,
			BlobMaxInertia:   0.7,
			WaterDotOffset:   100,
			DumpDotOffset:    20,
			BottomBandFrac:   0.9473,
			CorridorFrac:     0.21875,
			CanThreshold:     ThresholdConfig{NearMin: 154, NearMax: 358, FarMin: 154, FarMax: 358},
			DepositThreshold: ThresholdConfig{NearMin: 236, NearMax: 276, FarMin: 236, FarMax: 276},
			CanRegion:        RegionConfig{MinX: 0.2, MinY: 0.83, MaxX: 0.8, MaxY: 1},
			DepositRegion:    RegionConfig{MinX: 0.23, MinY: 0.6, MaxX: 0.77, MaxY: 1},
		},
		Loop: LoopConfig{
			SessionSecs:           300,
			BrushOnSecs:           7,
			BrushOffDistance:      100,
			MaxSearchSecs:         10,
			SweepSteps:            8,
			EvadeSteps:            10,
			AlignTimeoutSecs:      15,
			DumpPhaseSecs:         10,
			DumpOvershootDistance: 40,
			ProximityStop:         10,
			ProximityTolerance:    10,
			SettleSecs:            0.5,
			BackupSecs:            0.7,
			FallbackBackupSecs:    1.5,
		},
		Telemetry: TelemetryConfig{
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "can-bot",
				Topic:    "canbot",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "canbot.telemetry",
			},
		},
	}
}

// Validate normalizes mode and algorithm, failing on unsupported values, and
// clamps numeric values to safe ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "s", ModeSim:
		c.Mode = ModeSim
	case "j", "jetson", ModeHardware:
		c.Mode = ModeHardware
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedMode, c.Mode)
	}
	switch c.Algorithm {
	case AlgorithmMinRect, AlgorithmBlob:
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedAlgorithm, c.Algorithm)
	}

	d := DefaultConfig()
	if c.Sim.PollMicros < 0 {
		c.Sim.PollMicros = 0
	}
	if c.Hardware.BaudRate <= 0 {
		c.Hardware.BaudRate = d.Hardware.BaudRate
	}
	if c.Hardware.ConfirmTimeoutSecs <= 0 {
		c.Hardware.ConfirmTimeoutSecs = d.Hardware.ConfirmTimeoutSecs
	}

	v := &c.Vision
	if v.Width <= 0 || v.Height <= 0 {
		v.Width, v.Height = d.Vision.Width, d.Vision.Height
	}
	if v.BlurKernel <= 0 {
		v.BlurKernel = d.Vision.BlurKernel
	}
	// Gaussian kernels must be odd.
	if v.BlurKernel%2 == 0 {
		v.BlurKernel++
	}
	if v.MinWaterPixels <= 0 {
		v.MinWaterPixels = d.Vision.MinWaterPixels
	}
	if v.MinDumpPixels <= 0 {
		v.MinDumpPixels = d.Vision.MinDumpPixels
	}
	if v.MinCanArea <= 0 {
		v.MinCanArea = d.Vision.MinCanArea
	}
	if v.MinDumpArea <= 0 {
		v.MinDumpArea = d.Vision.MinDumpArea
	}
	if v.MinAspectRatio < 0 {
		v.MinAspectRatio = 0
	}
	if v.BlobMaxArea < v.MinCanArea {
		v.BlobMaxArea = d.Vision.BlobMaxArea
	}
	if v.BlobMinInertia < 0 || v.BlobMinInertia > 1 {
		v.BlobMinInertia = d.Vision.BlobMinInertia
	}
	if v.BlobMaxInertia <= v.BlobMinInertia || v.BlobMaxInertia > 1 {
		v.BlobMaxInertia = d.Vision.BlobMaxInertia
	}
	if v.BottomBandFrac <= 0 || v.BottomBandFrac > 1 {
		v.BottomBandFrac = d.Vision.BottomBandFrac
	}
	if v.CorridorFrac <= 0 || v.CorridorFrac > 1 {
		v.CorridorFrac = d.Vision.CorridorFrac
	}
	v.CanRegion = clampRegion(v.CanRegion, d.Vision.CanRegion)
	v.DepositRegion = clampRegion(v.DepositRegion, d.Vision.DepositRegion)

	l := &c.Loop
	if l.SessionSecs <= 0 {
		l.SessionSecs = d.Loop.SessionSecs
	}
	if l.BrushOnSecs <= 0 {
		l.BrushOnSecs = d.Loop.BrushOnSecs
	}
	if l.MaxSearchSecs <= 0 {
		l.MaxSearchSecs = d.Loop.MaxSearchSecs
	}
	if l.SweepSteps < 0 {
		l.SweepSteps = 0
	}
	if l.EvadeSteps <= 0 {
		l.EvadeSteps = d.Loop.EvadeSteps
	}
	if l.AlignTimeoutSecs <= 0 {
		l.AlignTimeoutSecs = d.Loop.AlignTimeoutSecs
	}
	if l.DumpPhaseSecs <= 0 {
		l.DumpPhaseSecs = d.Loop.DumpPhaseSecs
	}
	if l.SettleSecs < 0 {
		l.SettleSecs = 0
	}
	if l.BackupSecs < 0 {
		l.BackupSecs = 0
	}
	if l.FallbackBackupSecs < l.BackupSecs {
		l.FallbackBackupSecs = l.BackupSecs
	}

	if c.Telemetry.MQTT.Port <= 0 {
		c.Telemetry.MQTT.Port = d.Telemetry.MQTT.Port
	}
	if c.Telemetry.Kafka.Enabled && len(c.Telemetry.Kafka.Brokers) == 0 {
		return errors.New("kafka telemetry enabled without brokers")
	}
	return nil
}

func clampRegion(r, fallback RegionConfig) RegionConfig {
	if r.MinX < 0 || r.MinY < 0 || r.MaxX > 1 || r.MaxY > 1 || r.MinX >= r.MaxX || r.MinY >= r.MaxY {
		return fallback
	}
	return r
}

// Session returns the session duration.
func (l LoopConfig) Session() time.Duration { return secs(l.SessionSecs) }

// BrushOn returns how long the brush may stay on without a new grab.
func (l LoopConfig) BrushOn() time.Duration { return secs(l.BrushOnSecs) }

// MaxSearch returns the search time before a sweep.
func (l LoopConfig) MaxSearch() time.Duration { return secs(l.MaxSearchSecs) }

// AlignTimeout returns the alignment budget.
func (l LoopConfig) AlignTimeout() time.Duration { return secs(l.AlignTimeoutSecs) }

// DumpPhase returns the budget of each dump phase.
func (l LoopConfig) DumpPhase() time.Duration { return secs(l.DumpPhaseSecs) }

// Settle returns the pause after a stop-all.
func (l LoopConfig) Settle() time.Duration { return secs(l.SettleSecs) }

// Backup returns the short reposition back-up duration.
func (l LoopConfig) Backup() time.Duration { return secs(l.BackupSecs) }

// FallbackBackup returns the reposition back-up used when the front approach was never confirmed.
func (l LoopConfig) FallbackBackup() time.Duration { return secs(l.FallbackBackupSecs) }

// ConfirmTimeout returns how long to wait for a confirmation line.
func (h HardwareConfig) ConfirmTimeout() time.Duration { return secs(h.ConfirmTimeoutSecs) }

// PollInterval returns the sleep between sync byte polls.
func (s SimConfig) PollInterval() time.Duration {
	return time.Duration(s.PollMicros) * time.Microsecond
}

func secs(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load attempts to read configuration from the given file path. YAML is used
// for .yaml/.yml files, JSON otherwise. If the file does not exist it returns
// DefaultConfig(). Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	if err := ParseEnv(cfg, EnvPrefix); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path, YAML or JSON by extension.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
