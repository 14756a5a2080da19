package lx200

import (
	"fmt"
	"strconv"
	"time"

	"github.com/w1xm/lx200_interface/coord"
)

const (
	// checkTimeout bounds the device probe; a cold handbox answers the
	// ACK query slowly.
	checkTimeout = 5 * time.Second
	// updatingTimeout bounds the "Updating planetary data" lines the
	// mount prints after a date change.
	updatingTimeout = 60 * time.Second
	// autoAlignTimeout bounds the automatic alignment routine, which
	// needs the user to confirm stars on the handbox.
	autoAlignTimeout = 5 * time.Minute
)

// checkDevice verifies that an LX200 mount answers on the link by
// querying its alignment mode under a longer timeout.
func (t *Telescope) checkDevice() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.link.setTimeout(checkTimeout); err != nil {
		return err
	}
	_, err := t.alignMode()
	if rerr := t.link.setTimeout(t.link.timeout); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return fmt.Errorf("no LX200 mount found on %q: %w", t.cfg.Device, err)
	}
	return nil
}

// AlignMode queries the mount's alignment mode.
func (t *Telescope) AlignMode() (AlignMode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mode, err := t.alignMode()
	if err == nil {
		t.curAlign = mode
	}
	return mode, err
}

// SetAlignMode switches the mount's alignment mode. Switching to the
// mode already in effect is a no-op.
func (t *Telescope) SetAlignMode(mode AlignMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setAlignMode(mode)
}

// alignMode sends the out-of-band ACK byte and reads the mode letter.
// Some firmware emits a spurious '0' first; the next byte is the real
// answer.
func (t *Telescope) alignMode() (AlignMode, error) {
	if err := t.link.write([]byte{ack}, true); err != nil {
		return 0, err
	}
	b, err := t.link.read(1, true)
	if err != nil {
		return 0, err
	}
	if len(b) == 1 && b[0] == '0' {
		b, err = t.link.read(1, false)
		if err != nil {
			return 0, err
		}
	}
	if len(b) != 1 {
		return 0, &UnexpectedReplyError{Cmd: "ACK", Got: string(b)}
	}
	switch b[0] {
	case 'A':
		return AlignAltAz, nil
	case 'P':
		return AlignPolar, nil
	case 'L':
		return AlignLand, nil
	}
	return 0, &UnexpectedReplyError{Cmd: "ACK", Got: string(b)}
}

// setAlignMode queries the current mode first and only writes on a
// change. The mount does not acknowledge the switch reliably, so the
// boolean reply is read and discarded.
func (t *Telescope) setAlignMode(mode AlignMode) error {
	cur, err := t.alignMode()
	if err != nil {
		return err
	}
	t.curAlign = cur
	if cur == mode {
		return nil
	}
	if err := t.link.write([]byte(mode.command()), true); err != nil {
		return err
	}
	if _, err := t.link.readBool(); err != nil {
		return err
	}
	t.curAlign = mode
	return nil
}

// setHighPrecision switches the mount to long-format coordinates if a
// probe RA query comes back in the 7-character low-precision format.
func (t *Telescope) setHighPrecision() error {
	if err := t.link.write([]byte(cmdGetRA), true); err != nil {
		return err
	}
	line, err := t.link.readLine()
	if err != nil {
		return err
	}
	if len(line) == 7 {
		return t.link.write([]byte(cmdTogglePrecision), true)
	}
	return nil
}

// SlewRate returns the last slew rate set on the mount.
func (t *Telescope) SlewRate() SlewRate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}

// SetSlewRate selects the rate used by slews and continuous moves.
func (t *Telescope) SetSlewRate(rate SlewRate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setSlewRate(rate)
}

// setSlewRate selects the rate. Only the MAX selection is
// acknowledged; the mount wants the field rate picked with :Sw4#
// before :RS# engages it.
func (t *Telescope) setSlewRate(rate SlewRate) error {
	switch rate {
	case RateGuide:
		if err := t.link.write([]byte(cmdRateGuide), true); err != nil {
			return err
		}
	case RateCenter:
		if err := t.link.write([]byte(cmdRateCenter), true); err != nil {
			return err
		}
	case RateFind:
		if err := t.link.write([]byte(cmdRateFind), true); err != nil {
			return err
		}
	case RateMax:
		if err := t.link.write([]byte(cmdSelectMax), true); err != nil {
			return err
		}
		ok, err := t.link.readBool()
		if err != nil {
			return err
		}
		if !ok {
			return &RejectedError{Cmd: cmdSelectMax, Value: rate.String()}
		}
		if err := t.link.write([]byte(cmdRateMax), true); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown slew rate %v", rate)
	}
	t.rate = rate
	return nil
}

// Latitude queries the site latitude stored in the mount.
func (t *Telescope) Latitude() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readAngle(cmdGetLatitude)
}

// SetLatitude stores the site latitude in the mount.
func (t *Telescope) SetLatitude(lat coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLatitude(lat)
}

// Longitude queries the site longitude stored in the mount.
func (t *Telescope) Longitude() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readAngle(cmdGetLongitude)
}

// SetLongitude stores the site longitude in the mount.
func (t *Telescope) SetLongitude(long coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLongitude(long)
}

// readAngle runs a query command whose reply is a sexagesimal degree
// line.
func (t *Telescope) readAngle(cmd string) (coord.Angle, error) {
	if err := t.link.write([]byte(cmd), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	a, err := coord.ParseDMS(decodeDegrees(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmd, Got: string(line)}
	}
	return a, nil
}

func (t *Telescope) setLatitude(lat coord.Angle) error {
	v := formatDec(lat)
	if err := t.link.write([]byte(fmt.Sprintf(":St%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":St", Value: v}
	}
	return nil
}

func (t *Telescope) setLongitude(long coord.Angle) error {
	// LX200 longitudes run 0-360 westward; wrap negative (eastern)
	// values.
	v := formatAz(long.AddDegrees(0))
	if err := t.link.write([]byte(fmt.Sprintf(":Sg%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":Sg", Value: v}
	}
	return nil
}

// Date queries the handbox calendar date.
func (t *Telescope) Date() (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.link.write([]byte(cmdGetDate), true); err != nil {
		return time.Time{}, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(dateLayout, string(line))
	if err != nil {
		return time.Time{}, &UnexpectedReplyError{Cmd: cmdGetDate, Got: string(line)}
	}
	return d, nil
}

// SetDate sets the handbox calendar date.
func (t *Telescope) SetDate(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setDate(now)
}

// setDate sets the date. On acceptance the mount recomputes its
// planetary database and prints two status lines, which are read and
// dropped under a long timeout.
func (t *Telescope) setDate(now time.Time) error {
	v := now.Format(dateLayout)
	if err := t.link.write([]byte(fmt.Sprintf(":SC%s#", v)), true); err != nil {
		return err
	}
	b, err := t.link.read(1, true)
	if err != nil {
		return err
	}
	if len(b) != 1 {
		return &UnexpectedReplyError{Cmd: ":SC", Got: string(b)}
	}
	switch b[0] {
	case '0':
		// A junk null byte follows the rejection digit.
		if _, err := t.link.read(1, false); err != nil {
			return err
		}
		return &RejectedError{Cmd: ":SC", Value: v}
	case '1':
		if _, err := t.link.readLineTimeout(updatingTimeout); err != nil {
			return err
		}
		if _, err := t.link.readLineTimeout(updatingTimeout); err != nil {
			return err
		}
		return nil
	}
	return &UnexpectedReplyError{Cmd: ":SC", Got: string(b)}
}

// LocalTime queries the handbox local time.
func (t *Telescope) LocalTime() (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.link.write([]byte(cmdGetLocalTime), true); err != nil {
		return time.Time{}, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return time.Time{}, err
	}
	v, err := time.Parse(timeLayout, string(line))
	if err != nil {
		return time.Time{}, &UnexpectedReplyError{Cmd: cmdGetLocalTime, Got: string(line)}
	}
	return v, nil
}

// SetLocalTime sets the handbox local time.
func (t *Telescope) SetLocalTime(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocalTime(now)
}

func (t *Telescope) setLocalTime(now time.Time) error {
	v := now.Format(timeLayout)
	if err := t.link.write([]byte(fmt.Sprintf(":SL%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":SL", Value: v}
	}
	return nil
}

// SiderealTime queries the mount's local sidereal time as an hour
// angle.
func (t *Telescope) SiderealTime() (coord.Angle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.siderealTime()
}

func (t *Telescope) siderealTime() (coord.Angle, error) {
	if err := t.link.write([]byte(cmdGetSiderealTime), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	a, err := coord.ParseHMS(string(line))
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetSiderealTime, Got: string(line)}
	}
	return a, nil
}

// SetSiderealTime sets the mount's local sidereal time.
func (t *Telescope) SetSiderealTime(lst coord.Angle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := lst.HMSString()
	if err := t.link.write([]byte(fmt.Sprintf(":SS%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":SS", Value: v}
	}
	return nil
}

// UTCOffset queries the hours added to local time to yield UTC.
func (t *Telescope) UTCOffset() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.link.write([]byte(cmdGetUTCOffset), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetUTCOffset, Got: string(line)}
	}
	return v, nil
}

// SetUTCOffset sets the hours added to local time to yield UTC.
func (t *Telescope) SetUTCOffset(offset float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setUTCOffset(offset)
}

func (t *Telescope) setUTCOffset(offset float64) error {
	v := formatUTCOffset(offset)
	if err := t.link.write([]byte(fmt.Sprintf(":SG%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":SG", Value: v}
	}
	return nil
}

// TrackingRate queries the current tracking rate in hertz.
func (t *Telescope) TrackingRate() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.link.write([]byte(cmdGetTrackingRate), true); err != nil {
		return 0, err
	}
	line, err := t.link.readLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return 0, &UnexpectedReplyError{Cmd: cmdGetTrackingRate, Got: string(line)}
	}
	return v, nil
}

// SetTrackingRate sets the tracking rate in hertz.
func (t *Telescope) SetTrackingRate(rate float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := formatTrackingRate(rate)
	if err := t.link.write([]byte(fmt.Sprintf(":ST%s#", v)), true); err != nil {
		return err
	}
	ok, err := t.link.readBool()
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Cmd: ":ST", Value: v}
	}
	// A new rate only takes effect once tracking restarts.
	return t.link.write([]byte(cmdStartTracking), true)
}

// Tracking reports whether the mount's drive is running, i.e. it is
// not in land mode.
func (t *Telescope) Tracking() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mode, err := t.alignMode()
	if err != nil {
		return false, err
	}
	t.curAlign = mode
	return mode != AlignLand, nil
}

// StartTracking resumes tracking by restoring the alignment mode saved
// by StopTracking. It is a no-op if the mount is already tracking.
func (t *Telescope) StartTracking() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	mode, err := t.alignMode()
	if err != nil {
		return err
	}
	t.curAlign = mode
	if mode == AlignAltAz || mode == AlignPolar {
		return nil
	}
	return t.setAlignMode(t.lastAlign)
}

// StopTracking stops the drive by switching the mount to land mode,
// remembering the current mode for StartTracking.
func (t *Telescope) StopTracking() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	mode, err := t.alignMode()
	if err != nil {
		return err
	}
	t.curAlign = mode
	if mode == AlignLand {
		return nil
	}
	t.lastAlign = mode
	return t.setAlignMode(AlignLand)
}

// AutoAlign runs the mount's automatic alignment routine and waits for
// the handbox to report completion.
func (t *Telescope) AutoAlign() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.link.write([]byte(cmdAutoAlign), true); err != nil {
		return err
	}
	if err := t.link.setTimeout(autoAlignTimeout); err != nil {
		return err
	}
	_, err := t.link.read(1, false)
	if rerr := t.link.setTimeout(t.link.timeout); rerr != nil && err == nil {
		err = rerr
	}
	return err
}
