// Package coord provides the angle and sky-position value types used by
// telescope pointing code: sexagesimal parsing and formatting, angular
// separation, and the equatorial/horizontal transform.
package coord

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Angle is a plane angle in decimal degrees.
type Angle float64

func FromDegrees(d float64) Angle { return Angle(d) }

// FromHours converts an hour angle (1h = 15°) to an Angle.
func FromHours(h float64) Angle { return Angle(h * 15) }

// FromArcsec converts arcseconds to an Angle.
func FromArcsec(as float64) Angle { return Angle(as / 3600) }

func (a Angle) Degrees() float64 { return float64(a) }
func (a Angle) Hours() float64   { return float64(a) / 15 }
func (a Angle) Arcsec() float64  { return float64(a) * 3600 }

// AddDegrees returns the angle shifted by d degrees, wrapped into [0°, 360°).
func (a Angle) AddDegrees(d float64) Angle {
	v := math.Mod(float64(a)+d, 360)
	if v < 0 {
		v += 360
	}
	return Angle(v)
}

// Within reports whether a and b differ by at most eps, taking the
// shorter way around the circle.
func (a Angle) Within(b, eps Angle) bool {
	d := math.Mod(math.Abs(float64(a-b)), 360)
	if d > 180 {
		d = 360 - d
	}
	return d <= float64(eps)
}

// DMS returns the angle split into sign (+1 or -1) and integer degree,
// minute, and second components, rounded to the nearest second.
func (a Angle) DMS() (sign, d, m, s int) {
	v := float64(a)
	sign = 1
	if v < 0 {
		sign = -1
		v = -v
	}
	total := int(math.Round(v * 3600))
	return sign, total / 3600, (total % 3600) / 60, total % 60
}

// HMS returns the angle as integer hour, minute, and second components
// in [0h, 24h), rounded to the nearest second.
func (a Angle) HMS() (h, m, s int) {
	v := math.Mod(a.Hours(), 24)
	if v < 0 {
		v += 24
	}
	total := int(math.Round(v*3600)) % (24 * 3600)
	return total / 3600, (total % 3600) / 60, total % 60
}

// String formats the angle as a signed sexagesimal degree string,
// e.g. "+45:30:00".
func (a Angle) String() string {
	sign, d, m, s := a.DMS()
	c := byte('+')
	if sign < 0 {
		c = '-'
	}
	return fmt.Sprintf("%c%02d:%02d:%02d", c, d, m, s)
}

// HMSString formats the angle as an hour string, e.g. "12:34:56".
func (a Angle) HMSString() string {
	h, m, s := a.HMS()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseDMS parses a sexagesimal degree string such as "-23:00:06".
// Separators may be any mix of ':', '*', ''' and '°'; minutes and
// seconds may carry fractions and trailing components may be omitted.
func ParseDMS(s string) (Angle, error) {
	v, err := parseSexagesimal(s)
	return Angle(v), err
}

// ParseHMS parses a sexagesimal hour string such as "12:34:56" or the
// low-precision "12:34.5" form.
func ParseHMS(s string) (Angle, error) {
	v, err := parseSexagesimal(s)
	return FromHours(v), err
}

func parseSexagesimal(s string) (float64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty angle")
	}
	sign := 1.0
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}
	norm := strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '\'', '°':
			return ':'
		}
		return r
	}, s)
	parts := strings.Split(norm, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad angle %q", orig)
	}
	var v, scale float64 = 0, 1
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return 0, fmt.Errorf("bad angle %q", orig)
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("bad angle %q: %w", orig, err)
		}
		v += f / scale
		scale *= 60
	}
	return sign * v, nil
}

func deg2rad(x float64) float64 { return x * math.Pi / 180 }

func rad2deg(x float64) float64 { return x * 180 / math.Pi }

// EquHor converts between hour-angle/declination and azimuth/altitude
// at latitude phi. The transform is symmetric: applying it to its own
// output returns the original pair.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func EquHor(x, y, phi Angle) (Angle, Angle) {
	xr, yr, phir := deg2rad(float64(x)), deg2rad(float64(y)), deg2rad(float64(phi))
	sx, sy, sphi := math.Sin(xr), math.Sin(yr), math.Sin(phir)
	cx, cy, cphi := math.Cos(xr), math.Cos(yr), math.Cos(phir)

	sq := (sy * sphi) + (cy * cphi * cx)
	q := math.Asin(sq)

	cp := (sy - (sphi * sq)) / (cphi * math.Cos(q))
	if cp > 1 {
		cp = 1
	} else if cp < -1 {
		cp = -1
	}
	p := math.Acos(cp)
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return Angle(rad2deg(p)), Angle(rad2deg(q))
}
