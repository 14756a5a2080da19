package mount

import "github.com/w1xm/lx200_interface/coord"

type Mount interface {
	SlewToEquatorial(pos coord.Position) error
	SlewToHorizontal(pos coord.Position) error
	AbortSlew()
	StopMoveAll() error
}

type StatusCallback func(status Status)

type Status interface {
	// EquatorialPosition returns RA in hours and declination in degrees.
	EquatorialPosition() (ra, dec float64)
	// HorizontalPosition returns altitude and azimuth in degrees.
	HorizontalPosition() (alt, az float64)
	Moving() bool

	Clone() Status
}

type Mover interface {
	Move(direction string, arcsec float64) error
	StartMove(direction string) error
	StopMove(direction string) error
}

type Tracker interface {
	StartTracking() error
	StopTracking() error
}

type Parker interface {
	Park() error
	Unpark() error
}

type Syncer interface {
	Sync(pos coord.Position) error
}

type Calibrator interface {
	CalibrateMoves() error
}
