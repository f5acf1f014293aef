package robot

import (
	"fmt"

	"github.com/soocke/can-bot-go/domain/align"
	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/domain/vision"
)

// search roams: forward while the path is clear, otherwise turn. After the
// search timer runs out it sweeps in place.
func (b *Brain) search(scan *ScanResult) error {
	if b.session.search.Elapsed() > b.cfg.MaxSearch() {
		return b.sweep()
	}
	if b.vis.PathClear(scan.Blurred) {
		return b.send(device.MoveForward)
	}
	return b.send(device.MoveRight)
}

// sweep turns in short steps looking for a can, or for the deposit zone when
// cans are held. Without a hit it finishes with a long turn.
func (b *Brain) sweep() error {
	b.logger.Info("search timed out, sweeping", "steps", b.cfg.SweepSteps)
	defer b.session.search.Reset()
	for i := 0; i < b.cfg.SweepSteps; i++ {
		if err := b.send(device.MoveRight); err != nil {
			return err
		}
		found, err := b.lookAround()
		if err != nil {
			return err
		}
		if found {
			b.logger.Info("sweep found a target", "step", i+1)
			return nil
		}
	}
	return b.send(device.MoveLongRight)
}

func (b *Brain) lookAround() (bool, error) {
	frame, err := b.body.FrontFrame()
	if err != nil {
		return false, fmt.Errorf("front frame: %w", err)
	}
	defer frame.Close()
	blurred := b.vis.Blur(frame)
	defer blurred.Close()
	if len(b.vis.FindCans(blurred)) > 0 {
		return true, nil
	}
	return b.session.Held() > 0 && b.vis.DetectDumpingZone(blurred, false) != nil, nil
}

// grab lines up with the nearest can and takes one step toward it.
func (b *Brain) grab(scan *ScanResult) error {
	target := scan.Detections[0].Center()
	if _, err := b.aligner.Align(target, b.vis.CanThreshold(), b.cfg.AlignTimeout(), align.ResampleFunc(b.resampleCan)); err != nil {
		return err
	}
	if err := b.takeResampleErr(); err != nil {
		return err
	}
	return b.send(device.MoveForward)
}

// evade backs away from a contact while the rear is clear, then turns.
func (b *Brain) evade() error {
	b.logger.Info("evading")
	for i := 0; i < b.cfg.EvadeSteps; i++ {
		rear, err := b.body.RearFrame()
		if err != nil {
			return fmt.Errorf("rear frame: %w", err)
		}
		rearClear := b.vis.PathClear(rear)
		_ = rear.Close()
		if !rearClear {
			b.logger.Info("rear blocked, turning", "steps_back", i)
			break
		}
		if err := b.send(device.MoveBack); err != nil {
			return err
		}
	}
	return b.send(device.MoveLongRight)
}

func (b *Brain) resampleCan() vision.Point {
	frame, err := b.body.FrontFrame()
	if err != nil {
		b.noteResampleErr(err)
		return b.vis.LostTarget()
	}
	defer frame.Close()
	blurred := b.vis.Blur(frame)
	defer blurred.Close()
	dets := b.vis.FindCans(blurred)
	if len(dets) == 0 {
		return b.vis.LostTarget()
	}
	return dets[0].Center()
}

// locateDump blurs a fresh frame from the selected camera and returns the
// deposit zone, if visible.
func (b *Brain) locateDump(rear bool) (*vision.Detection, error) {
	get := b.body.FrontFrame
	if rear {
		get = b.body.RearFrame
	}
	frame, err := get()
	if err != nil {
		return nil, fmt.Errorf("frame (rear=%t): %w", rear, err)
	}
	defer frame.Close()
	blurred := b.vis.Blur(frame)
	defer blurred.Close()
	return b.vis.DetectDumpingZone(blurred, rear), nil
}

func (b *Brain) resampleDump(rear bool) align.ResampleFunc {
	return func() vision.Point {
		dump, err := b.locateDump(rear)
		if err != nil {
			b.noteResampleErr(err)
			return b.vis.LostTarget()
		}
		if dump == nil {
			return b.vis.LostTarget()
		}
		return dump.Center()
	}
}

func (b *Brain) noteResampleErr(err error) {
	if b.resampleErr == nil {
		b.resampleErr = err
	}
}

func (b *Brain) takeResampleErr() error {
	err := b.resampleErr
	b.resampleErr = nil
	return err
}
