package lx200

import (
	"fmt"
	"log"
	"time"

	"github.com/w1xm/lx200_interface/coord"
)

// slewTolerance is how close the mount must report to the target
// before a slew counts as complete.
var slewTolerance = coord.FromArcsec(60)

// SlewToEquatorial slews to an RA/Dec target and polls until the mount
// reports it within tolerance. It returns ErrAlreadySlewing if another
// slew is in flight, a RejectedError if the mount refuses the target
// (for example below its horizon limit), ErrSlewAborted if AbortSlew
// cuts in, and a SlewTimeoutError past the configured maximum.
func (t *Telescope) SlewToEquatorial(pos coord.Position) error {
	if pos.Frame != coord.Equatorial {
		return fmt.Errorf("equatorial slew needs an equatorial position, got %v frame", pos.Frame)
	}
	if !t.slewing.CompareAndSwap(false, true) {
		return ErrAlreadySlewing
	}
	defer t.slewing.Store(false)
	t.abort.Store(false)

	t.mu.Lock()
	if err := t.setTargetRA(pos.RA); err != nil {
		t.mu.Unlock()
		return err
	}
	if err := t.setTargetDec(pos.Dec); err != nil {
		t.mu.Unlock()
		return err
	}
	start := time.Now()
	if err := t.requestSlew(cmdSlewEquatorial, pos.String(), true); err != nil {
		t.mu.Unlock()
		return err
	}
	// Poll against the mount's own idea of the target, which is
	// rounded to the wire resolution.
	target, err := t.targetEquatorial()
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return t.waitSlew(start, target)
}

// SlewToHorizontal slews to an Alt/Az target. The mount only accepts
// horizontal slews in ALT_AZ alignment, so the current mode is saved,
// forced to ALT_AZ for the duration, and restored on every exit path.
func (t *Telescope) SlewToHorizontal(pos coord.Position) error {
	if pos.Frame != coord.Horizontal {
		return fmt.Errorf("horizontal slew needs a horizontal position, got %v frame", pos.Frame)
	}
	if !t.slewing.CompareAndSwap(false, true) {
		return ErrAlreadySlewing
	}
	defer t.slewing.Store(false)
	t.abort.Store(false)

	t.mu.Lock()
	if err := t.setSlewRate(t.initRate); err != nil {
		t.mu.Unlock()
		return err
	}
	prev, err := t.alignMode()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.curAlign = prev
	if err := t.setTargetAltAz(pos.Alt, pos.Az); err != nil {
		t.mu.Unlock()
		return err
	}
	if err := t.setAlignMode(AlignAltAz); err != nil {
		t.mu.Unlock()
		return err
	}
	target := coord.Hor(t.targetAlt, t.targetAz)
	start := time.Now()
	err = t.requestSlew(cmdSlewHorizontal, target.String(), false)
	t.mu.Unlock()

	if err == nil {
		err = t.waitSlew(start, target)
	}

	t.mu.Lock()
	rerr := t.setAlignMode(prev)
	t.mu.Unlock()
	if rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// requestSlew issues a slew command and decodes the acceptance digit:
// '0', or no reply at all on older firmware, means the slew started.
// withMessage reads the explanatory line that equatorial rejections
// append.
func (t *Telescope) requestSlew(cmd, value string, withMessage bool) error {
	if err := t.link.write([]byte(cmd), true); err != nil {
		return err
	}
	b, err := t.link.read(1, true)
	if err != nil {
		return err
	}
	if len(b) == 1 && b[0] != '0' {
		rej := &RejectedError{Cmd: cmd, Value: value}
		if withMessage {
			line, err := t.link.readLine()
			if err != nil {
				return err
			}
			rej.Message = string(line)
		}
		return rej
	}
	log.Printf("slewing to %s", value)
	return nil
}

// waitSlew polls the mount until it reports within slewTolerance of
// target. The lock is taken per position query so short commands, in
// particular an abort's stop-all, can interleave with the poll.
func (t *Telescope) waitSlew(start time.Time, target coord.Position) error {
	for {
		// AbortSlew has already stopped the mount by the time the flag
		// is visible here.
		if t.abort.Load() {
			return ErrSlewAborted
		}
		if elapsed := time.Since(start); elapsed >= t.cfg.MaxSlewTime.D() {
			t.AbortSlew()
			return &SlewTimeoutError{Target: target, Elapsed: elapsed}
		}

		t.mu.Lock()
		var pos coord.Position
		var err error
		if target.Frame == coord.Horizontal {
			pos, err = t.horizontalPosition()
		} else {
			pos, err = t.equatorialPosition()
		}
		t.mu.Unlock()
		if err != nil {
			return err
		}
		if pos.Within(target, slewTolerance) {
			time.Sleep(t.cfg.StabilizationTime.D())
			log.Printf("slew complete at %v after %v", pos, time.Since(start).Round(time.Millisecond))
			return nil
		}
		time.Sleep(t.cfg.SlewIdleTime.D())
	}
}

// AbortSlew cancels an in-flight slew or fine move. It stops the mount
// immediately rather than waiting for the poll loop to notice the
// flag, then holds for the stabilization delay. Aborting when nothing
// is slewing is a no-op.
func (t *Telescope) AbortSlew() {
	if !t.slewing.Load() {
		return
	}
	t.abort.Store(true)
	if err := t.StopMoveAll(); err != nil {
		log.Printf("stopping mount: %v", err)
	}
	time.Sleep(t.cfg.StabilizationTime.D())
}

func (t *Telescope) targetEquatorial() (coord.Position, error) {
	ra, err := t.targetRA()
	if err != nil {
		return coord.Position{}, err
	}
	dec, err := t.targetDec()
	if err != nil {
		return coord.Position{}, err
	}
	return coord.Equ(ra, dec), nil
}
