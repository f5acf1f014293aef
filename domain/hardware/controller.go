// Package hardware drives the physical robot: a microcontroller on a serial
// link executes single-character opcodes and two USB cameras provide frames.
package hardware

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/domain/device"
)

// ErrNoConfirmation is returned when the board closes the link or times out
// before confirming an opcode.
var ErrNoConfirmation = errors.New("no confirmation from controller board")

// Controller implements device.Device over a serial port and two cameras.
type Controller struct {
	port   SerialPorter
	reader *bufio.Reader
	front  Camera
	rear   Camera
	width  int
	height int
	logger *slog.Logger

	mu sync.Mutex
}

// NewController wires an already opened port and cameras. Frames are resized
// to w x h.
func NewController(port SerialPorter, front, rear Camera, w, h int, logger *slog.Logger) *Controller {
	return &Controller{port: port, reader: bufio.NewReader(port), front: front, rear: rear, width: w, height: h, logger: logger}
}

// Open opens the serial port and both cameras described by cfg. Any failure
// is fatal for a run.
func Open(cfg config.HardwareConfig, w, h int, logger *slog.Logger) (*Controller, error) {
	front, err := OpenCamera(cfg.FrontCamera)
	if err != nil {
		return nil, err
	}
	rear, err := OpenCamera(cfg.RearCamera)
	if err != nil {
		_ = front.Close()
		return nil, err
	}
	port, err := OpenPort(cfg.Port, OptionsFromConfig(cfg), cfg.ConfirmTimeout())
	if err != nil {
		_ = front.Close()
		_ = rear.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("hardware ready", "port", cfg.Port, "baud", cfg.BaudRate, "front", cfg.FrontCamera, "rear", cfg.RearCamera)
	}
	return NewController(port, front, rear, w, h, logger), nil
}

func (c *Controller) FrontFrame() (gocv.Mat, error) { return grab(c.front, c.width, c.height) }
func (c *Controller) RearFrame() (gocv.Mat, error)  { return grab(c.rear, c.width, c.height) }

// SendInstruction writes the opcode and waits for the confirmation line.
func (c *Controller) SendInstruction(in device.Instruction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exchange(in)
	return err
}

// DumpCans opens the dump gate. The board does not take a count; n is logged.
func (c *Controller) DumpCans(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("dumping cans", "count", n)
	}
	_, err := c.exchange(device.DumpCans)
	return err
}

// ProximityVector requests a sensor read. The board answers with one line of
// integers separated by spaces or commas.
func (c *Controller) ProximityVector() ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, err := c.exchange(device.RequestProxSensor)
	if err != nil {
		return nil, err
	}
	return parseSensorLine(line)
}

func (c *Controller) exchange(in device.Instruction) (string, error) {
	op, err := in.Opcode()
	if err != nil {
		return "", err
	}
	if _, err := c.port.Write([]byte{op}); err != nil {
		return "", fmt.Errorf("write %s: %w", in, err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		// go.bug.st/serial reports a read timeout as a zero-length read
		return "", fmt.Errorf("%w: %s: %v", ErrNoConfirmation, in, err)
	}
	return strings.TrimSpace(line), nil
}

func parseSensorLine(line string) ([]int, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	vals := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parse sensor reading %q: %w", f, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Close stops all motors, then releases the port and cameras.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.port != nil {
		if _, err := c.exchange(device.StopAll); err != nil && c.logger != nil {
			c.logger.Warn("stop on close", "error", err)
		}
		errs = append(errs, c.port.Close())
		c.port = nil
	}
	for _, cam := range []Camera{c.front, c.rear} {
		if cam != nil {
			errs = append(errs, cam.Close())
		}
	}
	c.front, c.rear = nil, nil
	return errors.Join(errs...)
}

var _ device.Device = (*Controller)(nil)
