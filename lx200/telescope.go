// Package lx200 drives telescope mounts that speak the Meade LX200
// serial protocol. Commands are short ASCII frames of the form
// ":<cmd><payload>#"; replies are a single digit, a '#'-terminated
// line, or nothing at all, depending on the command. On top of the
// codec the package layers a polling slew state machine and a
// fine-move calibrator that learns the mount's angular speed for each
// (rate, direction) pair.
//
// All Telescope methods are safe for concurrent use. Each
// command/response exchange runs under one lock so exchanges never
// interleave on the wire; long operations such as slews release the
// lock between position polls, letting short commands (notably an
// abort's stop-all) cut in.
package lx200

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/w1xm/lx200_interface/coord"
	"github.com/w1xm/lx200_interface/internal/trace"
	"github.com/w1xm/lx200_interface/mount"
)

// Site supplies the observing location pushed to the mount during
// initialization and used to derive the park position.
type Site interface {
	Latitude() coord.Angle
	Longitude() coord.Angle
	// UTCOffset returns the hours added to local time to yield UTC.
	UTCOffset() float64
}

// FixedSite is a Site at constant coordinates.
type FixedSite struct {
	Lat, Long coord.Angle
	UTC       float64
}

func (s FixedSite) Latitude() coord.Angle  { return s.Lat }
func (s FixedSite) Longitude() coord.Angle { return s.Long }
func (s FixedSite) UTCOffset() float64     { return s.UTC }

// Status is a point-in-time snapshot of the mount.
type Status struct {
	// RA is the right ascension in hours.
	// Dec is the declination in decimal degrees.
	RA  float64
	Dec float64
	// Alt and Az are in decimal degrees. Az follows the 0=north
	// convention after the configured 180 degree correction.
	Alt float64
	Az  float64

	AlignMode string
	SlewRate  string

	// Slewing indicates a pending slew or fine move that has not yet
	// completed.
	Slewing    bool
	Tracking   bool
	Parked     bool
	Calibrated bool
}

func (s Status) Clone() mount.Status {
	return s
}

func (s Status) EquatorialPosition() (float64, float64) {
	return s.RA, s.Dec
}

func (s Status) HorizontalPosition() (float64, float64) {
	return s.Alt, s.Az
}

func (s Status) Moving() bool {
	return s.Slewing
}

// Telescope drives one mount over its serial link.
type Telescope struct {
	cfg  Config
	site Site

	statusCallback mount.StatusCallback

	tr *trace.Logger

	mu   sync.Mutex
	link *link

	slewing atomic.Bool
	abort   atomic.Bool

	// The remaining fields are guarded by mu.
	// curAlign is the driver's view of the current alignment mode;
	// lastAlign is the mode to restore when tracking resumes.
	curAlign  AlignMode
	lastAlign AlignMode
	rate      SlewRate
	parked    bool

	calibrated  bool
	calibration calibrationTable

	// Target alt/az are cached locally; the device cannot report them
	// back.
	targetAlt coord.Angle
	targetAz  coord.Angle

	// Parsed from cfg at construction.
	initAlign AlignMode
	initRate  SlewRate
}

// New opens the mount on the configured serial device and, unless
// skip_init is set, verifies it responds and pushes the configured
// alignment mode, site coordinates, date, time, and slew rate.
// statusCallback may be nil; otherwise Watch and state changes report
// snapshots through it. site may be nil, which skips the site setup
// and parks at the configured alt/az instead of the zenith.
func New(cfg Config, site Site, statusCallback mount.StatusCallback) (*Telescope, error) {
	cfg = cfg.withDefaults()
	tr := trace.Open(cfg.TraceFile)
	l, err := openLink(cfg.Device, cfg.Baud, cfg.Timeout.D(), tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	t, err := newTelescope(cfg, site, statusCallback, l, tr)
	if err != nil {
		l.close()
		tr.Close()
		return nil, err
	}
	return t, nil
}

// NewWithConn is New over an already open connection. It is used with
// the Simulator and in tests.
func NewWithConn(cfg Config, site Site, statusCallback mount.StatusCallback, conn Conn) (*Telescope, error) {
	cfg = cfg.withDefaults()
	tr := trace.Open(cfg.TraceFile)
	l, err := newLink(conn, cfg.Timeout.D(), tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	t, err := newTelescope(cfg, site, statusCallback, l, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return t, nil
}

func newTelescope(cfg Config, site Site, statusCallback mount.StatusCallback, l *link, tr *trace.Logger) (*Telescope, error) {
	align, err := ParseAlignMode(cfg.AlignMode)
	if err != nil {
		return nil, err
	}
	rate, err := ParseSlewRate(cfg.SlewRate)
	if err != nil {
		return nil, err
	}
	t := &Telescope{
		cfg:            cfg,
		site:           site,
		statusCallback: statusCallback,
		tr:             tr,
		link:           l,
		curAlign:       align,
		lastAlign:      align,
		rate:           rate,
		initAlign:      align,
		initRate:       rate,
	}
	t.calibration = defaultCalibration()
	t.loadCalibration()
	if err := t.checkDevice(); err != nil {
		return nil, err
	}
	if !cfg.SkipInit {
		if err := t.initTelescope(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// initTelescope pushes the configured state to the mount: alignment
// mode, high precision output, slew rate, and the site coordinates,
// time, and date.
func (t *Telescope) initTelescope() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.setAlignMode(t.initAlign); err != nil {
		return err
	}
	t.lastAlign = t.initAlign
	if err := t.setHighPrecision(); err != nil {
		return err
	}
	if err := t.setSlewRate(t.initRate); err != nil {
		return err
	}
	if t.site == nil {
		log.Printf("no site configured; skipping site and time setup")
		return nil
	}
	if err := t.setLatitude(t.site.Latitude()); err != nil {
		return err
	}
	if err := t.setLongitude(t.site.Longitude()); err != nil {
		return err
	}
	now := time.Now()
	if err := t.setLocalTime(now); err != nil {
		return err
	}
	if err := t.setUTCOffset(t.site.UTCOffset()); err != nil {
		return err
	}
	return t.setDate(now)
}

// Close releases the serial link and the trace file.
func (t *Telescope) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.link.close()
	t.tr.Close()
	return err
}

// Slewing reports whether a slew or fine move is in progress.
func (t *Telescope) Slewing() bool {
	return t.slewing.Load()
}

// Parked reports whether the mount was parked by Park and not yet
// unparked.
func (t *Telescope) Parked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parked
}

// Park slews the mount to its park position and stops tracking. With
// a site configured the park position is the zenith, reached by
// slewing to the current sidereal time at the site latitude;
// otherwise the configured park alt/az is used. Parking an already
// parked mount is a no-op.
func (t *Telescope) Park() error {
	if t.Parked() {
		return nil
	}
	if t.site != nil {
		t.mu.Lock()
		lst, err := t.siderealTime()
		lat := t.site.Latitude()
		t.mu.Unlock()
		if err != nil {
			return err
		}
		if err := t.SlewToEquatorial(coord.Equ(lst, lat)); err != nil {
			return err
		}
	} else {
		pos := coord.Hor(coord.FromDegrees(t.cfg.ParkAlt), coord.FromDegrees(t.cfg.ParkAz))
		if err := t.SlewToHorizontal(pos); err != nil {
			return err
		}
	}
	if err := t.StopTracking(); err != nil {
		return err
	}
	t.mu.Lock()
	t.parked = true
	t.mu.Unlock()
	t.notifyStatus()
	return nil
}

// Unpark resumes tracking after a park and re-pushes the site, date,
// and time, which may have drifted while parked.
func (t *Telescope) Unpark() error {
	if !t.Parked() {
		return nil
	}
	if err := t.StartTracking(); err != nil {
		return err
	}
	if err := t.initTelescope(); err != nil {
		return err
	}
	t.mu.Lock()
	t.parked = false
	t.mu.Unlock()
	t.notifyStatus()
	return nil
}

// Status queries the mount for its current pointing and returns a
// snapshot.
func (t *Telescope) Status() (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status()
}

func (t *Telescope) status() (Status, error) {
	ra, dec, err := t.positionRADec()
	if err != nil {
		return Status{}, err
	}
	alt, az, err := t.positionAltAz()
	if err != nil {
		return Status{}, err
	}
	// Query the mode rather than trusting the cache so that handbox
	// changes show up in the next poll.
	mode, err := t.alignMode()
	if err != nil {
		return Status{}, err
	}
	t.curAlign = mode
	return Status{
		RA:         ra.Hours(),
		Dec:        dec.Degrees(),
		Alt:        alt.Degrees(),
		Az:         az.Degrees(),
		AlignMode:  mode.String(),
		SlewRate:   t.rate.String(),
		Slewing:    t.slewing.Load(),
		Tracking:   mode != AlignLand,
		Parked:     t.parked,
		Calibrated: t.calibrated,
	}, nil
}

// Watch polls the mount at the given interval and reports each
// snapshot to the status callback until ctx is canceled. Poll
// failures are logged and polling continues.
func (t *Telescope) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		status, err := t.Status()
		if err != nil {
			log.Printf("querying status: %v", err)
			continue
		}
		if t.statusCallback != nil {
			t.statusCallback(status)
		}
	}
}

// notifyStatus pushes a fresh snapshot to the status callback after a
// state change. Errors are dropped; the next Watch tick will retry.
func (t *Telescope) notifyStatus() {
	if t.statusCallback == nil {
		return
	}
	status, err := t.Status()
	if err != nil {
		return
	}
	t.statusCallback(status)
}
