// Package sim talks to the external physics simulator through a shared
// memory segment. Exactly one request is in flight at a time: the client
// writes a request code to the sync byte and busy-polls until the simulator
// overwrites it with the acknowledge code.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/timeutil"
)

// Sync byte values.
const (
	CodeFrontCam byte = 1
	CodeMove     byte = 3
	CodeAck      byte = 4
	CodeProx     byte = 5
	CodeRearCam  byte = 6
	CodeDump     byte = 7
)

// Wire layout.
const (
	FrameWidth    = 512
	FrameHeight   = 512
	FrameBytes    = FrameWidth * FrameHeight * 3
	MaxSensors    = 7
	SyncOffset    = 0
	PayloadOffset = 1
	SensorOffset  = 2
	SegmentSize   = PayloadOffset + FrameBytes
)

const statsLogInterval = 5 * time.Second

var (
	// ErrDumpViaInstruction is returned when DumpCans is sent as a plain
	// instruction; the simulator needs the count, so use Client.DumpCans.
	ErrDumpViaInstruction = errors.New("dump must be requested with a can count")
	// ErrClosed is returned by requests issued after Close.
	ErrClosed = errors.New("simulator link closed")
)

// FallbackSensors is substituted for a corrupted sensor block: every sensor
// reports maximal distance.
func FallbackSensors() []int {
	v := make([]int, MaxSensors)
	for i := range v {
		v[i] = 255
	}
	return v
}

// Stats describes protocol activity since the client was created.
type Stats struct {
	Requests     uint64
	Corrupted    uint64
	AvgRoundTrip time.Duration
	MaxRoundTrip time.Duration
}

// Client implements device.Device against a Segment.
type Client struct {
	seg    Segment
	clock  timeutil.Clock
	poll   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	closed  atomic.Bool
	lastLog time.Time

	requests  atomic.Uint64
	corrupted atomic.Uint64
	rttNanos  atomic.Uint64
	rttMax    atomic.Int64
}

// NewClient zeroes seg and returns a client polling every poll interval.
func NewClient(seg Segment, poll time.Duration, clock timeutil.Clock, logger *slog.Logger) *Client {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	seg.Zero()
	return &Client{seg: seg, clock: clock, poll: poll, logger: logger, lastLog: clock.Now()}
}

// Attach maps the simulator file and wraps it in a client.
func Attach(path string, poll time.Duration, logger *slog.Logger) (*Client, error) {
	seg, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("attached to simulator", "file", path, "bytes", seg.Len())
	}
	return NewClient(seg, poll, nil, logger), nil
}

// request performs one handshake. payload is written before the sync byte so
// the simulator never observes a request without its argument.
func (c *Client) request(code byte, payload *byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	start := c.clock.Now()
	if payload != nil {
		c.seg.Store(PayloadOffset, *payload)
	}
	c.seg.Store(SyncOffset, code)
	for c.seg.Load(SyncOffset) != CodeAck {
		if c.closed.Load() {
			return ErrClosed
		}
		if c.poll > 0 {
			c.clock.Sleep(c.poll)
		}
	}
	c.record(c.clock.Since(start))
	return nil
}

func (c *Client) record(rtt time.Duration) {
	c.requests.Add(1)
	c.rttNanos.Add(uint64(rtt.Nanoseconds()))
	for {
		cur := c.rttMax.Load()
		if int64(rtt) <= cur || c.rttMax.CompareAndSwap(cur, int64(rtt)) {
			break
		}
	}
	if c.logger != nil && c.clock.Since(c.lastLog) >= statsLogInterval {
		c.lastLog = c.clock.Now()
		s := c.Stats()
		c.logger.Debug("sim.stats",
			"requests", s.Requests,
			"corrupted", s.Corrupted,
			"avg_rtt", s.AvgRoundTrip,
			"max_rtt", s.MaxRoundTrip,
		)
	}
}

// Stats returns protocol counters.
func (c *Client) Stats() Stats {
	n := c.requests.Load()
	var avg time.Duration
	if n > 0 {
		avg = time.Duration(c.rttNanos.Load() / n)
	}
	return Stats{
		Requests:     n,
		Corrupted:    c.corrupted.Load(),
		AvgRoundTrip: avg,
		MaxRoundTrip: time.Duration(c.rttMax.Load()),
	}
}

func (c *Client) FrontFrame() (gocv.Mat, error) { return c.frame(CodeFrontCam) }
func (c *Client) RearFrame() (gocv.Mat, error)  { return c.frame(CodeRearCam) }

// frame requests an image and converts the RGB block to a BGR matrix.
func (c *Client) frame(code byte) (gocv.Mat, error) {
	if err := c.request(code, nil); err != nil {
		return gocv.NewMat(), err
	}
	buf := make([]byte, FrameBytes)
	if _, err := c.seg.ReadAt(buf, PayloadOffset); err != nil {
		return gocv.NewMat(), fmt.Errorf("read frame: %w", err)
	}
	rgb, err := gocv.NewMatFromBytes(FrameHeight, FrameWidth, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("decode frame: %w", err)
	}
	defer rgb.Close()
	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return bgr, nil
}

// ProximityVector requests the sensor block. A count above MaxSensors marks
// the block as corrupted and yields FallbackSensors.
func (c *Client) ProximityVector() ([]int, error) {
	if err := c.request(CodeProx, nil); err != nil {
		return nil, err
	}
	raw := make([]byte, 1+MaxSensors)
	if _, err := c.seg.ReadAt(raw, PayloadOffset); err != nil {
		return nil, fmt.Errorf("read sensors: %w", err)
	}
	vals, ok := decodeSensors(raw)
	if !ok {
		c.corrupted.Add(1)
		if c.logger != nil {
			c.logger.Warn("sensor block corrupted, using fallback", "count", raw[0])
		}
	}
	return vals, nil
}

// decodeSensors parses [count, values...]. ok is false when count exceeds
// MaxSensors.
func decodeSensors(raw []byte) ([]int, bool) {
	if len(raw) == 0 {
		return FallbackSensors(), false
	}
	n := int(raw[0])
	if n > MaxSensors || n > len(raw)-1 {
		return FallbackSensors(), false
	}
	vals := make([]int, n)
	for i := range vals {
		vals[i] = int(raw[1+i])
	}
	return vals, true
}

// SendInstruction issues a movement or actuator opcode. The simulator has no
// backdoor, so ExtendBackdoor is accepted without a request.
func (c *Client) SendInstruction(in device.Instruction) error {
	switch in {
	case device.ExtendBackdoor:
		if c.logger != nil {
			c.logger.Debug("sim ignores instruction", "instruction", in.String())
		}
		return nil
	case device.DumpCans:
		return ErrDumpViaInstruction
	}
	op, err := in.Opcode()
	if err != nil {
		return err
	}
	return c.request(CodeMove, &op)
}

// DumpCans asks the simulator to release n cans.
func (c *Client) DumpCans(n int) error {
	if n < 0 || n > 255 {
		return fmt.Errorf("dump count %d out of range", n)
	}
	b := byte(n)
	return c.request(CodeDump, &b)
}

// Close unblocks a pending poll and unmaps the segment.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seg.Close()
}

var _ device.Device = (*Client)(nil)
