// Package align implements the closed-loop visual servo that turns the robot
// until a target sits inside a perspective threshold band.
package align

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/domain/vision"
	"github.com/soocke/can-bot-go/timeutil"
)

// Resampler re-measures the target after every step.
type Resampler interface {
	Resample() vision.Point
}

// ResampleFunc adapts a plain function to Resampler.
type ResampleFunc func() vision.Point

func (f ResampleFunc) Resample() vision.Point { return f() }

// Turner issues the corrective turns.
type Turner interface {
	SendInstruction(device.Instruction) error
}

// Result summarizes one alignment attempt.
type Result struct {
	Aligned     bool
	Corrections int
	Resamples   int
	Elapsed     time.Duration
	Last        vision.Point
}

// Controller is stateless between calls; one instance may be reused for
// every alignment in a session.
type Controller struct {
	turner Turner
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewController returns a controller driving turner. clock defaults to the
// real clock when nil.
func NewController(turner Turner, clock timeutil.Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{turner: turner, clock: clock, logger: logger}
}

// Align turns toward target until its x lies strictly inside the band of th
// at the target's row, or until timeout elapses. The target is resampled
// after every step, including the step that declares alignment. Only a
// failed instruction is reported as an error; a timeout is a normal result.
func (c *Controller) Align(target vision.Point, th vision.Threshold, timeout time.Duration, r Resampler) (Result, error) {
	start := c.clock.Now()
	res := Result{Last: target}
	for !res.Aligned && c.clock.Since(start) < timeout {
		lo, hi := th.Bounds(target.Y)
		x := float64(target.X)
		switch {
		case x >= hi:
			if err := c.turn(device.MoveRight, &res); err != nil {
				return res, err
			}
		case x <= lo:
			if err := c.turn(device.MoveLeft, &res); err != nil {
				return res, err
			}
		default:
			res.Aligned = true
		}
		target = r.Resample()
		res.Resamples++
		res.Last = target
	}
	res.Elapsed = c.clock.Since(start)
	if c.logger != nil {
		c.logger.Debug("align finished",
			"aligned", res.Aligned,
			"corrections", res.Corrections,
			"elapsed_ms", res.Elapsed.Milliseconds(),
		)
	}
	return res, nil
}

func (c *Controller) turn(in device.Instruction, res *Result) error {
	if err := c.turner.SendInstruction(in); err != nil {
		return fmt.Errorf("align %s: %w", in, err)
	}
	res.Corrections++
	return nil
}
