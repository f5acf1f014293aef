package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/domain/capture"
	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/domain/hardware"
	"github.com/soocke/can-bot-go/domain/sim"
	"github.com/soocke/can-bot-go/telemetry"
)

// previewInterval caps how often frames are converted for the viewer.
const previewInterval = 50 * time.Millisecond

// AppContainer assembles the backend, telemetry sinks and the frame feed.
// The viewer parts are wired by App.
type AppContainer struct {
	Config  *config.Config
	CfgPath string
	Logger  *slog.Logger

	Device     device.Device
	Images     *telemetry.ImageDumper
	Store      *telemetry.Store
	Publishers []telemetry.Publisher
	Feed       *capture.Feed
}

// DeviceOpener opens the backend selected by cfg.Mode.
type DeviceOpener func(cfg *config.Config, logger *slog.Logger) (device.Device, error)

// OpenDevice attaches to the simulator or opens the robot hardware.
func OpenDevice(cfg *config.Config, logger *slog.Logger) (device.Device, error) {
	switch cfg.Mode {
	case config.ModeSim:
		return sim.Attach(cfg.Sim.File, cfg.Sim.PollInterval(), logger.With("component", "sim"))
	case config.ModeHardware:
		return hardware.Open(cfg.Hardware, cfg.Vision.Width, cfg.Vision.Height, logger.With("component", "hardware"))
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnsupportedMode, cfg.Mode)
	}
}

// BuildContainer constructs all components. Startup I/O failures of the
// device or the store are fatal; optional publishers only log.
func BuildContainer(cfg *config.Config, cfgPath string, logger *slog.Logger, open DeviceOpener) (*AppContainer, error) {
	if open == nil {
		open = OpenDevice
	}
	c := &AppContainer{Config: cfg, CfgPath: cfgPath, Logger: logger}
	dev, err := open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s device: %w", cfg.Mode, err)
	}
	c.Device = dev

	if cfg.SaveImagesDir != "" {
		if c.Images, err = telemetry.NewImageDumper(cfg.SaveImagesDir, logger.With("component", "images")); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}
	if cfg.Telemetry.DBPath != "" {
		if c.Store, err = telemetry.Open(cfg.Telemetry.DBPath); err != nil {
			return nil, errors.Join(fmt.Errorf("open telemetry store: %w", err), c.Close())
		}
	}
	if cfg.Telemetry.MQTT.Enabled {
		if p, err := telemetry.NewMQTTPublisher(cfg.Telemetry.MQTT); err != nil {
			logger.Warn("mqtt publisher disabled", "error", err)
		} else {
			c.Publishers = append(c.Publishers, p)
		}
	}
	if cfg.Telemetry.Kafka.Enabled {
		c.Publishers = append(c.Publishers, telemetry.NewKafkaPublisher(cfg.Telemetry.Kafka))
	}
	c.Feed = capture.NewFeed(logger.With("component", "feed"), previewInterval)
	return c, nil
}

// Close releases the device and the telemetry sinks.
func (c *AppContainer) Close() error {
	var errs []error
	for _, p := range c.Publishers {
		errs = append(errs, p.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Device != nil {
		errs = append(errs, c.Device.Close())
	}
	return errors.Join(errs...)
}
