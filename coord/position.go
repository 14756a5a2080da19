package coord

import (
	"fmt"
	"math"
)

// Frame identifies the coordinate frame of a Position.
type Frame int

const (
	// Equatorial positions carry right ascension and declination.
	Equatorial Frame = iota
	// Horizontal positions carry altitude and azimuth.
	Horizontal
)

func (f Frame) String() string {
	switch f {
	case Equatorial:
		return "equatorial"
	case Horizontal:
		return "horizontal"
	}
	return fmt.Sprintf("Frame(%d)", int(f))
}

// Position is a direction on the sky in a fixed frame. The frame is
// chosen at construction and positions are treated as immutable values.
type Position struct {
	Frame Frame
	// RA and Dec are set when Frame is Equatorial.
	RA, Dec Angle
	// Alt and Az are set when Frame is Horizontal.
	Alt, Az Angle
}

// Equ returns an equatorial position.
func Equ(ra, dec Angle) Position { return Position{Frame: Equatorial, RA: ra, Dec: dec} }

// Hor returns a horizontal position.
func Hor(alt, az Angle) Position { return Position{Frame: Horizontal, Alt: alt, Az: az} }

// lonlat returns the spherical longitude and latitude of the position.
func (p Position) lonlat() (Angle, Angle) {
	if p.Frame == Horizontal {
		return p.Az, p.Alt
	}
	return p.RA, p.Dec
}

// Separation returns the great-circle angular distance between p and q.
func (p Position) Separation(q Position) Angle {
	lon1, lat1 := p.lonlat()
	lon2, lat2 := q.lonlat()
	sdLat := math.Sin(deg2rad(float64(lat2-lat1)) / 2)
	sdLon := math.Sin(deg2rad(float64(lon2-lon1)) / 2)
	h := sdLat*sdLat + math.Cos(deg2rad(float64(lat1)))*math.Cos(deg2rad(float64(lat2)))*sdLon*sdLon
	if h > 1 {
		h = 1
	}
	return Angle(rad2deg(2 * math.Asin(math.Sqrt(h))))
}

// Within reports whether q lies within eps of p on the sphere.
func (p Position) Within(q Position, eps Angle) bool {
	return p.Separation(q) <= eps
}

func (p Position) String() string {
	if p.Frame == Horizontal {
		return fmt.Sprintf("alt %s az %s", p.Alt, p.Az)
	}
	return fmt.Sprintf("ra %s dec %s", p.RA.HMSString(), p.Dec)
}
