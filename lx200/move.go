package lx200

import (
	"log"
	"time"
)

// MoveEast nudges the mount east by arcsec at the given rate, deriving
// the move duration from the calibration table. The first move on an
// uncalibrated mount triggers a full calibration pass.
func (t *Telescope) MoveEast(arcsec float64, rate SlewRate) error {
	return t.moveOffset(East, arcsec, rate)
}

// MoveWest nudges the mount west by arcsec at the given rate.
func (t *Telescope) MoveWest(arcsec float64, rate SlewRate) error {
	return t.moveOffset(West, arcsec, rate)
}

// MoveNorth nudges the mount north by arcsec at the given rate.
func (t *Telescope) MoveNorth(arcsec float64, rate SlewRate) error {
	return t.moveOffset(North, arcsec, rate)
}

// MoveSouth nudges the mount south by arcsec at the given rate.
func (t *Telescope) MoveSouth(arcsec float64, rate SlewRate) error {
	return t.moveOffset(South, arcsec, rate)
}

// Move nudges the mount by arcsec at guide rate, for callers that
// address directions by name.
func (t *Telescope) Move(direction string, arcsec float64) error {
	d, err := ParseDirection(direction)
	if err != nil {
		return err
	}
	return t.moveOffset(d, arcsec, RateGuide)
}

func (t *Telescope) moveOffset(d Direction, arcsec float64, rate SlewRate) error {
	if !t.slewing.CompareAndSwap(false, true) {
		return ErrAlreadySlewing
	}
	defer t.slewing.Store(false)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureCalibrated(); err != nil {
		return err
	}
	duration, err := t.moveDuration(arcsec, d, rate)
	if err != nil {
		return err
	}
	return t.move(d, duration, rate)
}

// move runs the continuous-move command in direction d for exactly
// duration, then stops. The wait is a spin loop: the calibration math
// depends on the duration being honored tightly, and a sleeping
// goroutine wakes too coarsely for that.
func (t *Telescope) move(d Direction, duration time.Duration, rate SlewRate) error {
	if duration <= 0 {
		return ErrInvalidDuration
	}
	if err := t.setSlewRate(rate); err != nil {
		return err
	}
	start, err := t.equatorialPosition()
	if err != nil {
		return err
	}
	if err := t.link.write([]byte(moveCommand(d)), true); err != nil {
		return err
	}
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
	}
	if err := t.stopMove(d); err != nil {
		return err
	}
	end, err := t.equatorialPosition()
	if err != nil {
		return err
	}
	log.Printf("moved %s for %v: %.1f arcsec", d, duration, end.Separation(start).Arcsec())
	return nil
}

// stopMove halts motion in direction d and waits out the rate's settle
// time.
func (t *Telescope) stopMove(d Direction) error {
	if err := t.link.write([]byte(stopMoveCommand(d)), true); err != nil {
		return err
	}
	time.Sleep(t.rate.settleTime())
	return nil
}

// StartMove starts continuous motion in the named direction at the
// current slew rate. The mount keeps moving until StopMove or
// StopMoveAll.
func (t *Telescope) StartMove(direction string) error {
	d, err := ParseDirection(direction)
	if err != nil {
		return err
	}
	if t.slewing.Load() {
		return ErrAlreadySlewing
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.write([]byte(moveCommand(d)), true)
}

// StopMove halts continuous motion in the named direction.
func (t *Telescope) StopMove(direction string) error {
	d, err := ParseDirection(direction)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopMove(d)
}

// StopMoveAll halts all motion immediately. It is safe to call at any
// time, including while a slew is polling.
func (t *Telescope) StopMoveAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.write([]byte(cmdStopAll), true)
}
