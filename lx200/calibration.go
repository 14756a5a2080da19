package lx200

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// calibrationTable maps each (rate, direction) pair to the arcseconds
// the mount covers during one reference-duration move.
type calibrationTable map[SlewRate]map[Direction]float64

// defaultCalibration returns a table with every factor at 1, the
// uncalibrated placeholder.
func defaultCalibration() calibrationTable {
	table := make(calibrationTable, len(slewRates))
	for _, rate := range slewRates {
		table[rate] = make(map[Direction]float64, len(directions))
		for _, d := range directions {
			table[rate][d] = 1
		}
	}
	return table
}

// Calibrated reports whether a full calibration table is in effect,
// either loaded from disk or measured this session.
func (t *Telescope) Calibrated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calibrated
}

// CalibrateMoves measures the mount's real angular speed for every
// (rate, direction) pair and persists the table. Each pair runs two
// timed reference moves; the factor is the mean displacement.
func (t *Telescope) CalibrateMoves() error {
	if !t.slewing.CompareAndSwap(false, true) {
		return ErrAlreadySlewing
	}
	defer t.slewing.Store(false)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calibrateMoves()
}

const calibrationTrials = 2

func (t *Telescope) calibrateMoves() error {
	for _, rate := range slewRates {
		for _, d := range directions {
			log.Printf("calibrating %s %s", rate, d)
			var total float64
			for i := 0; i < calibrationTrials; i++ {
				arcsec, err := t.calibrateMove(d, rate)
				if err != nil {
					return err
				}
				total += arcsec
			}
			t.calibration[rate][d] = total / calibrationTrials
		}
	}
	t.calibrated = true
	t.saveCalibration()
	log.Printf("move calibration complete")
	return nil
}

// calibrateMove runs one reference-duration move and returns the
// angular displacement it produced.
func (t *Telescope) calibrateMove(d Direction, rate SlewRate) (float64, error) {
	start, err := t.equatorialPosition()
	if err != nil {
		return 0, err
	}
	if err := t.move(d, t.cfg.CalibrationTime.D(), rate); err != nil {
		return 0, err
	}
	end, err := t.equatorialPosition()
	if err != nil {
		return 0, err
	}
	return end.Separation(start).Arcsec(), nil
}

// ensureCalibrated runs a full calibration pass the first time a fine
// move needs one.
func (t *Telescope) ensureCalibrated() error {
	if t.calibrated {
		return nil
	}
	log.Printf("fine movement not calibrated; calibrating now")
	return t.calibrateMoves()
}

// moveDuration converts a requested arcsecond offset into a move
// duration using the calibration factor for the pair.
func (t *Telescope) moveDuration(arcsec float64, d Direction, rate SlewRate) (time.Duration, error) {
	factor := t.calibration[rate][d]
	if factor <= 0 {
		return 0, fmt.Errorf("no calibration for %s %s", rate, d)
	}
	secs := arcsec * t.cfg.CalibrationTime.D().Seconds() / factor
	return time.Duration(secs * float64(time.Second)), nil
}

// loadCalibration reads the persisted table. A missing file just means
// the mount is uncalibrated; a corrupt or incomplete one is logged and
// ignored.
func (t *Telescope) loadCalibration() {
	data, err := os.ReadFile(t.cfg.CalibrationFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("reading calibration data: %v", err)
		}
		return
	}
	var table calibrationTable
	if err := json.Unmarshal(data, &table); err != nil {
		log.Printf("parsing calibration data: %v", err)
		return
	}
	for _, rate := range slewRates {
		for _, d := range directions {
			if table[rate][d] <= 0 {
				log.Printf("calibration data incomplete; ignoring %s", t.cfg.CalibrationFile)
				return
			}
		}
	}
	t.calibration = table
	t.calibrated = true
}

// saveCalibration persists the table atomically via a rename. Failures
// are logged and swallowed; losing the file only costs a
// recalibration.
func (t *Telescope) saveCalibration() {
	data, err := json.MarshalIndent(t.calibration, "", "  ")
	if err != nil {
		log.Printf("encoding calibration data: %v", err)
		return
	}
	tmp := t.cfg.CalibrationFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Printf("writing calibration data: %v", err)
		return
	}
	if err := os.Rename(tmp, t.cfg.CalibrationFile); err != nil {
		log.Printf("writing calibration data: %v", err)
	}
}
