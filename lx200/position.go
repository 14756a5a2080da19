package lx200

import (
	"fmt"
	"log"

	"github.com/w1xm/lx200_interface/coord"
)

// RA returns the current right ascension.
func (t *Telescope) RA() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ra()
}

// Dec returns the current declination.
func (t *Telescope) Dec() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dec()
}

// Altitude returns the current altitude.
func (t *Telescope) Altitude() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.altitude()
}

// Azimuth returns the current azimuth, 180-corrected when configured.
func (t *Telescope) Azimuth() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.azimuth()
}

// EquatorialPosition returns the current RA/Dec pair.
func (t *Telescope) EquatorialPosition() (coord.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.equatorialPosition()
}

// HorizontalPosition returns the current Alt/Az pair.
func (t *Telescope) HorizontalPosition() (coord.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.horizontalPosition()
}

// ra queries the current right ascension. After continuous-move
// commands the mount sometimes prefixes a stray digit, so an overlong
// reply is trimmed from the front.
func (t *Telescope) ra() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetRA), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	if len(line) > 8 {
		line = line[1:]
	}
	a, err := coord.ParseHMS(string(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetRA, Got: string(line)}
	}
	return a, nil
}

// dec queries the current declination, with the same stray-digit
// correction as ra.
func (t *Telescope) dec() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetDec), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	if len(line) > 9 {
		line = line[1:]
	}
	a, err := coord.ParseDMS(decodeDegrees(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetDec, Got: string(line)}
	}
	return a, nil
}

func (t *Telescope) altitude() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetAlt), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	a, err := coord.ParseDMS(decodeDegrees(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetAlt, Got: string(line)}
	}
	return a, nil
}

func (t *Telescope) azimuth() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetAz), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	a, err := coord.ParseDMS(decodeDegrees(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetAz, Got: string(line)}
	}
	if t.cfg.Azimuth180Correct {
		a = correctAzimuth(a)
	}
	return a, nil
}

func (t *Telescope) positionRADec() (coord.Angle, coord.Angle, error) {
	ra, err := t.ra()
	if err != nil {
		return 0, 0, err
	}
	dec, err := t.dec()
	if err != nil {
		return 0, 0, err
	}
	return ra, dec, nil
}

func (t *Telescope) positionAltAz() (coord.Angle, coord.Angle, error) {
	alt, err := t.altitude()
	if err != nil {
		return 0, 0, err
	}
	az, err := t.azimuth()
	if err != nil {
		return 0, 0, err
	}
	return alt, az, nil
}

func (t *Telescope) equatorialPosition() (coord.Position, error) {
	ra, dec, err := t.positionRADec()
	if err != nil {
		return coord.Position{}, err
	}
	return coord.Equ(ra, dec), nil
}

func (t *Telescope) horizontalPosition() (coord.Position, error) {
	alt, az, err := t.positionAltAz()
	if err != nil {
		return coord.Position{}, err
	}
	return coord.Hor(alt, az), nil
}

// TargetRA returns the slew target right ascension from the mount.
func (t *Telescope) TargetRA() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targetRA()
}

// TargetDec returns the slew target declination from the mount.
func (t *Telescope) TargetDec() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targetDec()
}

// TargetAltitude returns the last altitude setpoint. The mount cannot
// report it back, so this is the locally cached value.
func (t *Telescope) TargetAltitude() coord.Angle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targetAlt
}

// TargetAzimuth returns the last azimuth setpoint, as requested by the
// caller (before any 180 correction).
func (t *Telescope) TargetAzimuth() coord.Angle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targetAz
}

func (t *Telescope) targetRA() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetTargetRA), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	a, err := coord.ParseHMS(string(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetTargetRA, Got: string(line)}
	}
	return a, nil
}

func (t *Telescope) targetDec() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetTargetDec), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	a, err := coord.ParseDMS(decodeDegrees(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetTargetDec, Got: string(line)}
	}
	return a, nil
}

// SetTargetRA sets the slew target right ascension.
func (t *Telescope) SetTargetRA(ra coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTargetRA(ra)
}

// SetTargetDec sets the slew target declination.
func (t *Telescope) SetTargetDec(dec coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTargetDec(dec)
}

// SetTargetAltitude sets the slew target altitude.
func (t *Telescope) SetTargetAltitude(alt coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTargetAltitude(alt)
}

// SetTargetAzimuth sets the slew target azimuth, applying the 180
// correction when configured.
func (t *Telescope) SetTargetAzimuth(az coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTargetAzimuth(az)
}

func (t *Telescope) setTargetRA(ra coord.Angle) error {
	v := formatRA(ra)
	if err := t.link.write([]byte(fmt.Sprintf(":Sr%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":Sr", Value: v}
	}
	return nil
}

func (t *Telescope) setTargetDec(dec coord.Angle) error {
	v := formatDec(dec)
	if err := t.link.write([]byte(fmt.Sprintf(":Sd%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":Sd", Value: v}
	}
	return nil
}

func (t *Telescope) setTargetAltitude(alt coord.Angle) error {
	v := formatDec(alt)
	if err := t.link.write([]byte(fmt.Sprintf(":Sa%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":Sa", Value: v}
	}
	t.targetAlt = alt
	return nil
}

func (t *Telescope) setTargetAzimuth(az coord.Angle) error {
	// AddDegrees wraps, putting negative azimuths in the [0°, 360°)
	// range formatAz needs.
	wire := az.AddDegrees(0)
	if t.cfg.Azimuth180Correct {
		wire = correctAzimuth(az)
	}
	v := formatAz(wire)
	if err := t.link.write([]byte(fmt.Sprintf(":Sz%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":Sz", Value: v}
	}
	t.targetAz = az
	return nil
}

// setTargetAltAz pushes a horizontal target, azimuth first.
func (t *Telescope) setTargetAltAz(alt, az coord.Angle) error {
	if err := t.setTargetAzimuth(az); err != nil {
		return err
	}
	return t.setTargetAltitude(alt)
}

// Sync makes the mount adopt pos as its current pointing. The reply
// line describes the matched alignment object. Only equatorial
// positions can be synced.
func (t *Telescope) Sync(pos coord.Position) error {
	if pos.Frame != coord.Equatorial {
		return fmt.Errorf("can only sync equatorial positions, got %v frame", pos.Frame)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.setTargetRA(pos.RA); err != nil {
		return err
	}
	if err := t.setTargetDec(pos.Dec); err != nil {
		return err
	}
	if err := t.link.write([]byte(cmdSync), true); err != nil {
		return err
	}
	line, err := t.link.readLine()
	if err != nil {
		return err
	}
	if len(line) == 0 {
		return &UnexpectedReplyError{Cmd: cmdSync, Got: ""}
	}
	log.Printf("synced on %v: %s", pos, line)
	return nil
}
