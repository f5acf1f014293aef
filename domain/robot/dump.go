package robot

import (
	"errors"
	"fmt"
	"time"

	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/domain/vision"
	"github.com/soocke/can-bot-go/timeutil"
)

const (
	proxReadPause = 200 * time.Millisecond
	proxStepPause = 200 * time.Millisecond
	proxStopPause = 100 * time.Millisecond
	stopPause     = 200 * time.Millisecond
	nudgePause    = 100 * time.Millisecond
	clearPause    = 700 * time.Millisecond
)

// errAborted ends the dump routine early. The held count is kept.
var errAborted = errors.New("dump aborted")

func aborted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errAborted, fmt.Sprintf(format, args...))
}

// dump runs the deposit phases: front approach, reposition, rear search,
// rear align, proximity approach and release. An aborted phase returns
// control to the loop without touching the counters.
func (b *Brain) dump(scan *ScanResult) error {
	if scan.Dump == nil {
		return nil
	}
	err := b.runDump(scan.Dump.Center())
	if errors.Is(err, errAborted) {
		b.logger.Warn("dump routine aborted", "reason", err.Error(), "held", b.session.Held())
		return nil
	}
	return err
}

func (b *Brain) runDump(pos vision.Point) error {
	if err := b.send(device.BrushOff); err != nil {
		return err
	}

	b.logger.Info("approaching deposit zone")
	confirmed, err := b.approachFront(pos)
	if err != nil {
		return err
	}
	if err := b.reposition(confirmed); err != nil {
		return err
	}

	b.logger.Info("searching deposit zone with rear camera")
	pos, err = b.searchRear()
	if err != nil {
		return err
	}

	res, err := b.aligner.Align(pos, b.vis.DepositThreshold(), b.cfg.AlignTimeout(), b.resampleDump(true))
	if err != nil {
		return err
	}
	if err := b.takeResampleErr(); err != nil {
		return err
	}
	if !res.Aligned {
		return aborted("rear align timed out after %d corrections", res.Corrections)
	}

	b.logger.Info("closing in with proximity sensors")
	if err := b.approachProximity(); err != nil {
		return err
	}
	return b.release()
}

// approachFront steps toward the zone with the front camera until its center
// enters the deposit region. A timeout leaves the approach unconfirmed; a
// lost zone aborts.
func (b *Brain) approachFront(pos vision.Point) (bool, error) {
	phase := timeutil.NewStopwatch(b.clock).Start()
	for phase.Elapsed() < b.cfg.DumpPhase() {
		if _, err := b.aligner.Align(pos, b.vis.CanThreshold(), b.cfg.AlignTimeout(), b.resampleDump(false)); err != nil {
			return false, err
		}
		if err := b.takeResampleErr(); err != nil {
			return false, err
		}
		if err := b.send(device.MoveForward); err != nil {
			return false, err
		}
		dump, err := b.locateDump(false)
		if err != nil {
			return false, err
		}
		if dump == nil {
			return false, aborted("deposit zone lost during front approach")
		}
		pos = dump.Center()
		if b.vis.InDepositRegion(pos) {
			b.logger.Info("front approach confirmed", "x", pos.X, "y", pos.Y)
			if b.vis.DistFromAnchor(pos) < b.cfg.DumpOvershootDistance {
				b.logger.Info("overshot deposit zone, stepping back")
				if err := b.send(device.MoveBack); err != nil {
					return false, err
				}
			}
			return true, nil
		}
	}
	b.logger.Info("front approach timed out, continuing unconfirmed")
	return false, nil
}

// reposition stops, then backs up when the rear is clear so the rear camera
// can see the zone. An unconfirmed approach backs up longer.
func (b *Brain) reposition(confirmed bool) error {
	if err := b.send(device.StopAll); err != nil {
		return err
	}
	b.clock.Sleep(b.cfg.Settle())

	rear, err := b.body.RearFrame()
	if err != nil {
		return fmt.Errorf("rear frame: %w", err)
	}
	rearClear := b.vis.PathClear(rear)
	_ = rear.Close()
	if rearClear {
		backup := b.cfg.Backup()
		if !confirmed {
			backup = b.cfg.FallbackBackup()
		}
		b.logger.Info("space behind, stepping back", "duration", backup)
		if err := b.send(device.MoveBack); err != nil {
			return err
		}
		b.clock.Sleep(backup)
	}
	if err := b.send(device.StopAll); err != nil {
		return err
	}
	b.clock.Sleep(stopPause)
	return nil
}

// searchRear turns until the rear camera sees the zone.
func (b *Brain) searchRear() (vision.Point, error) {
	phase := timeutil.NewStopwatch(b.clock).Start()
	for phase.Elapsed() < b.cfg.DumpPhase() {
		dump, err := b.locateDump(true)
		if err != nil {
			return vision.Point{}, err
		}
		if dump != nil {
			b.logger.Info("deposit zone found with rear camera")
			return dump.Center(), nil
		}
		if err := b.send(device.MoveRight); err != nil {
			return vision.Point{}, err
		}
	}
	return vision.Point{}, aborted("rear search timed out")
}

// Proximity vector layout.
const (
	sensorUltraLeft  = 0
	sensorUltraRight = 1
	sensorIRRight    = 5
	sensorIRLeft     = 6
	sensorMissing    = 255
)

func reading(prox []int, i int) int {
	if i < len(prox) {
		return prox[i]
	}
	return sensorMissing
}

// approachProximity backs onto the zone, steering to balance the two
// ultrasonic readings, until both are close or both IR sensors trigger.
func (b *Brain) approachProximity() error {
	phase := timeutil.NewStopwatch(b.clock).Start()
	for phase.Elapsed() < b.cfg.DumpPhase() {
		prox, err := b.body.ProximityVector()
		if err != nil {
			return fmt.Errorf("proximity: %w", err)
		}
		b.clock.Sleep(proxReadPause)

		lu, ru := reading(prox, sensorUltraLeft), reading(prox, sensorUltraRight)
		ir, il := reading(prox, sensorIRRight), reading(prox, sensorIRLeft)
		b.logger.Debug("proximity approach", "reads", prox)

		if (lu < b.cfg.ProximityStop && ru < b.cfg.ProximityStop) || (ir == 1 && il == 1) {
			b.logger.Info("aligned with proximity sensors", "left", lu, "right", ru)
			return nil
		}

		step := device.MoveBack
		if abs(lu-ru) > b.cfg.ProximityTolerance {
			step = device.MoveLeft
			if lu > ru {
				step = device.MoveRight
			}
		}
		if err := b.send(step); err != nil {
			return err
		}
		b.clock.Sleep(proxStepPause)
		if err := b.send(device.StopAll); err != nil {
			return err
		}
		b.clock.Sleep(proxStopPause)
	}
	return aborted("proximity approach timed out")
}

// release nudges back, opens the gate and clears the zone.
func (b *Brain) release() error {
	steps := []struct {
		in    device.Instruction
		pause time.Duration
	}{
		{device.StopAll, stopPause},
		{device.MoveBack, nudgePause},
		{device.StopAll, stopPause},
	}
	for _, s := range steps {
		if err := b.send(s.in); err != nil {
			return err
		}
		b.clock.Sleep(s.pause)
	}

	held := b.session.Held()
	b.logger.Info("dumping cans", "count", held)
	if err := b.body.DumpCans(held); err != nil {
		return fmt.Errorf("dump cans: %w", err)
	}
	b.session.Deposit()

	if err := b.send(device.MoveForward); err != nil {
		return err
	}
	b.clock.Sleep(clearPause)
	b.logger.Info("done dumping", "dumped_total", b.session.Dumped())
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
