package lx200

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/w1xm/lx200_interface/coord"
)

// LX200 command frames. Commands begin ':' and end '#'; replies are a
// single ASCII digit, a '#'-terminated line, or nothing at all
// depending on the command.
const (
	cmdGetRA           = ":GR#"
	cmdGetDec          = ":GD#"
	cmdGetAlt          = ":GA#"
	cmdGetAz           = ":GZ#"
	cmdGetTargetRA     = ":Gr#"
	cmdGetTargetDec    = ":Gd#"
	cmdGetLatitude     = ":Gt#"
	cmdGetLongitude    = ":Gg#"
	cmdGetDate         = ":GC#"
	cmdGetLocalTime    = ":GL#"
	cmdGetSiderealTime = ":GS#"
	cmdGetUTCOffset    = ":GG#"
	cmdGetTrackingRate = ":GT#"

	cmdSlewEquatorial  = ":MS#"
	cmdSlewHorizontal  = ":MA#"
	cmdStopAll         = ":Q#"
	cmdTogglePrecision = ":U#"
	cmdStartTracking   = ":TM#"
	cmdSync            = ":CM#"
	cmdAutoAlign       = ":Aa#"

	cmdAlignAltAz = ":AA#"
	cmdAlignPolar = ":AP#"
	cmdAlignLand  = ":AL#"

	cmdRateGuide  = ":RG#"
	cmdRateCenter = ":RC#"
	cmdRateFind   = ":RM#"
	cmdRateMax    = ":RS#"
	cmdSelectMax  = ":Sw4#"
)

// ack is the out-of-band alignment query byte; the mount answers with
// one of 'A', 'P' or 'L'.
const ack = 0x06

// degByte is the degree glyph as the mount encodes it on the wire.
// Decoders rewrite it to ':' before parsing sexagesimal fields.
const degByte = 0xDF

// AlignMode is the mount's alignment mode. Land mode disables tracking.
type AlignMode int

const (
	AlignAltAz AlignMode = iota
	AlignPolar
	AlignLand
)

func (m AlignMode) String() string {
	switch m {
	case AlignAltAz:
		return "ALT_AZ"
	case AlignPolar:
		return "POLAR"
	case AlignLand:
		return "LAND"
	}
	return fmt.Sprintf("AlignMode(%d)", int(m))
}

// ParseAlignMode accepts the mode names used in configuration files.
func ParseAlignMode(s string) (AlignMode, error) {
	switch strings.ToUpper(s) {
	case "ALT_AZ", "ALTAZ":
		return AlignAltAz, nil
	case "POLAR":
		return AlignPolar, nil
	case "LAND":
		return AlignLand, nil
	}
	return 0, fmt.Errorf("unknown align mode %q", s)
}

// command returns the frame that switches the mount into this mode.
func (m AlignMode) command() string {
	switch m {
	case AlignAltAz:
		return cmdAlignAltAz
	case AlignLand:
		return cmdAlignLand
	}
	return cmdAlignPolar
}

// SlewRate is the angular speed class used for slews and fine moves,
// in increasing order of speed.
type SlewRate int

const (
	RateGuide SlewRate = iota
	RateCenter
	RateFind
	RateMax
)

var slewRates = []SlewRate{RateGuide, RateCenter, RateFind, RateMax}

func (r SlewRate) String() string {
	switch r {
	case RateGuide:
		return "GUIDE"
	case RateCenter:
		return "CENTER"
	case RateFind:
		return "FIND"
	case RateMax:
		return "MAX"
	}
	return fmt.Sprintf("SlewRate(%d)", int(r))
}

func (r SlewRate) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *SlewRate) UnmarshalText(text []byte) error {
	v, err := ParseSlewRate(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func ParseSlewRate(s string) (SlewRate, error) {
	switch strings.ToUpper(s) {
	case "GUIDE":
		return RateGuide, nil
	case "CENTER":
		return RateCenter, nil
	case "FIND":
		return RateFind, nil
	case "MAX":
		return RateMax, nil
	}
	return 0, fmt.Errorf("unknown slew rate %q", s)
}

// settleTime is how long the mount keeps drifting after a stop command
// at this rate.
func (r SlewRate) settleTime() time.Duration {
	switch r {
	case RateGuide:
		return 100 * time.Millisecond
	case RateCenter:
		return 200 * time.Millisecond
	case RateFind:
		return 300 * time.Millisecond
	}
	return 400 * time.Millisecond
}

// Direction is a cardinal move direction. East/West move in right
// ascension, North/South in declination.
type Direction int

const (
	East Direction = iota
	West
	North
	South
)

var directions = []Direction{East, West, North, South}

func (d Direction) String() string {
	switch d {
	case East:
		return "E"
	case West:
		return "W"
	case North:
		return "N"
	case South:
		return "S"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "E", "EAST":
		return East, nil
	case "W", "WEST":
		return West, nil
	case "N", "NORTH":
		return North, nil
	case "S", "SOUTH":
		return South, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// wire is the lowercase letter used in :M<d># and :Q<d># frames.
func (d Direction) wire() byte {
	switch d {
	case East:
		return 'e'
	case West:
		return 'w'
	case North:
		return 'n'
	}
	return 's'
}

func moveCommand(d Direction) string { return fmt.Sprintf(":M%c#", d.wire()) }

func stopMoveCommand(d Direction) string { return fmt.Sprintf(":Q%c#", d.wire()) }

// formatRA renders an angle as the wire RA field HH°MM:SS.
func formatRA(a coord.Angle) string {
	h, m, s := a.HMS()
	return fmt.Sprintf("%02d\xdf%02d:%02d", h, m, s)
}

// formatDec renders an angle as the signed wire field ±DD°MM:SS used
// for declination, altitude and latitude.
func formatDec(a coord.Angle) string {
	sign, d, m, s := a.DMS()
	c := byte('+')
	if sign < 0 {
		c = '-'
	}
	return fmt.Sprintf("%c%02d\xdf%02d:%02d", c, d, m, s)
}

// formatAz renders an angle as the unsigned wire field DDD°MM:SS used
// for azimuth and longitude. The angle must already be in [0°, 360°).
func formatAz(a coord.Angle) string {
	_, d, m, s := a.DMS()
	return fmt.Sprintf("%03d\xdf%02d:%02d", d, m, s)
}

// formatTrackingRate renders a tracking rate left-zero-padded to four
// characters, e.g. "60.1" or "02.0".
func formatTrackingRate(v float64) string { return fmt.Sprintf("%04.1f", v) }

// formatUTCOffset renders a UTC offset in hours, e.g. "+3.0".
func formatUTCOffset(v float64) string { return fmt.Sprintf("%+.1f", v) }

const (
	dateLayout = "01/02/06"
	timeLayout = "15:04:05"
)

// decodeDegrees rewrites the wire degree glyph to ':' so sexagesimal
// fields parse uniformly.
func decodeDegrees(line []byte) string {
	return string(bytes.ReplaceAll(line, []byte{degByte}, []byte{':'}))
}

// correctAzimuth compensates for mounts whose azimuth zero points
// south: values below 180° shift up, others shift down. Applying it
// twice returns the original angle.
func correctAzimuth(a coord.Angle) coord.Angle {
	if a.Degrees() < 180 {
		return a.AddDegrees(180)
	}
	return a.AddDegrees(-180)
}
