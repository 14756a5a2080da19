package lx200

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/w1xm/lx200_interface/coord"
	"github.com/w1xm/lx200_interface/mount"
)

var (
	_ mount.Mount      = (*Telescope)(nil)
	_ mount.Mover      = (*Telescope)(nil)
	_ mount.Tracker    = (*Telescope)(nil)
	_ mount.Parker     = (*Telescope)(nil)
	_ mount.Syncer     = (*Telescope)(nil)
	_ mount.Calibrator = (*Telescope)(nil)
	_ mount.Status     = Status{}
	_ Site             = FixedSite{}
	_ Conn             = (*pipeConn)(nil)
)

// startSimulator runs sim until the test ends.
func startSimulator(t *testing.T, sim *Simulator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("simulator: %v", err)
		}
	})
}

// simConfig speeds the driver timing up for tests against the
// simulator.
func simConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = Duration(time.Second)
	cfg.MaxSlewTime = Duration(30 * time.Second)
	cfg.StabilizationTime = Duration(time.Millisecond)
	cfg.SlewIdleTime = Duration(5 * time.Millisecond)
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "calibration.json")
	return cfg
}

// simSite matches the simulator's built-in site so initialization does
// not move it.
var simSite = FixedSite{
	Lat:  coord.FromDegrees(45),
	Long: coord.FromDegrees(288),
	UTC:  5,
}

// simTelescope starts sim and opens a fully initialized Telescope on
// it. Cleanups run in reverse order, so the telescope closes before
// the simulator stops.
func simTelescope(t *testing.T, sim *Simulator, conn Conn) *Telescope {
	t.Helper()
	startSimulator(t, sim)
	tel, err := NewWithConn(simConfig(t), simSite, nil, conn)
	if err != nil {
		t.Fatalf("NewWithConn: %v", err)
	}
	t.Cleanup(func() {
		if err := tel.Close(); err != nil {
			t.Errorf("closing telescope: %v", err)
		}
	})
	return tel
}

func TestSimulator(t *testing.T) {
	if testing.Short() {
		t.Skip("simulated slews run in real time")
	}
	sim, conn := NewSimulator()
	tel := simTelescope(t, sim, conn)

	t.Run("status", func(t *testing.T) {
		st, err := tel.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.RA != 12 || st.Dec != 20 {
			t.Errorf("position: got ra %v dec %v, want ra 12 dec 20", st.RA, st.Dec)
		}
		// The simulator starts at ra 12h with lst 14h, so the hour angle
		// is 2h.
		az, alt := coord.EquHor(coord.FromHours(2), coord.FromDegrees(20), coord.FromDegrees(45))
		if want := alt.Degrees(); math.Abs(st.Alt-want) > 0.001 {
			t.Errorf("altitude: got %v, want %v", st.Alt, want)
		}
		if want := correctAzimuth(az).Degrees(); math.Abs(st.Az-want) > 0.001 {
			t.Errorf("azimuth: got %v, want %v", st.Az, want)
		}
		if st.AlignMode != "POLAR" || st.SlewRate != "MAX" {
			t.Errorf("modes: got %s/%s, want POLAR/MAX", st.AlignMode, st.SlewRate)
		}
		if st.Slewing || !st.Tracking || st.Parked || st.Calibrated {
			t.Errorf("flags: got %+v", st)
		}
	})

	t.Run("slew equatorial", func(t *testing.T) {
		target := coord.Equ(coord.FromHours(12.2), coord.FromDegrees(22))
		if err := tel.SlewToEquatorial(target); err != nil {
			t.Fatalf("SlewToEquatorial: %v", err)
		}
		if tel.Slewing() {
			t.Error("Slewing reports true after the slew returned")
		}
		waitFor(t, "simulator to settle", func() bool { return !sim.Slewing() })
		ra, dec := sim.Position()
		if got := coord.Equ(ra, dec); !got.Within(target, coord.FromArcsec(1)) {
			t.Errorf("mount settled at %v, want %v", got, target)
		}
	})

	t.Run("slew horizontal", func(t *testing.T) {
		if err := tel.SlewToHorizontal(coord.Hor(coord.FromDegrees(50), coord.FromDegrees(60))); err != nil {
			t.Fatalf("SlewToHorizontal: %v", err)
		}
		if got := tel.TargetAltitude(); got != coord.FromDegrees(50) {
			t.Errorf("TargetAltitude: got %v, want 50", got)
		}
		if got := tel.TargetAzimuth(); got != coord.FromDegrees(60) {
			t.Errorf("TargetAzimuth: got %v, want 60", got)
		}
		mode, err := tel.AlignMode()
		if err != nil {
			t.Fatalf("AlignMode: %v", err)
		}
		if mode != AlignPolar {
			t.Errorf("alignment after slew: got %v, want POLAR", mode)
		}
		waitFor(t, "simulator to settle", func() bool { return !sim.Slewing() })
		// The device sees the 180-corrected azimuth.
		ha, dec := coord.EquHor(correctAzimuth(coord.FromDegrees(60)), coord.FromDegrees(50), coord.FromDegrees(45))
		want := coord.Equ(coord.FromHours(14).AddDegrees(-ha.Degrees()), dec)
		ra, d := sim.Position()
		if got := coord.Equ(ra, d); !got.Within(want, coord.FromArcsec(1)) {
			t.Errorf("mount settled at %v, want %v", got, want)
		}
	})

	t.Run("sync", func(t *testing.T) {
		pos := coord.Equ(coord.FromHours(13), coord.FromDegrees(30))
		if err := tel.Sync(pos); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		ra, dec := sim.Position()
		if ra != coord.FromHours(13) || dec != coord.FromDegrees(30) {
			t.Errorf("position after sync: got ra %v dec %v, want 13h 30", ra.HMSString(), dec)
		}
	})

	t.Run("tracking", func(t *testing.T) {
		on, err := tel.Tracking()
		if err != nil {
			t.Fatalf("Tracking: %v", err)
		}
		if !on {
			t.Fatal("Tracking: got false before stop")
		}
		if err := tel.StopTracking(); err != nil {
			t.Fatalf("StopTracking: %v", err)
		}
		if on, err = tel.Tracking(); err != nil || on {
			t.Errorf("Tracking after stop: got %v, %v", on, err)
		}
		st, err := tel.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Tracking {
			t.Error("status reports tracking while stopped")
		}
		if err := tel.StartTracking(); err != nil {
			t.Fatalf("StartTracking: %v", err)
		}
		if on, err = tel.Tracking(); err != nil || !on {
			t.Errorf("Tracking after start: got %v, %v", on, err)
		}
	})

	t.Run("tracking rate", func(t *testing.T) {
		rate, err := tel.TrackingRate()
		if err != nil {
			t.Fatalf("TrackingRate: %v", err)
		}
		if rate != 60.1 {
			t.Errorf("TrackingRate: got %v, want 60.1", rate)
		}
		if err := tel.SetTrackingRate(59.5); err != nil {
			t.Fatalf("SetTrackingRate: %v", err)
		}
		if rate, err = tel.TrackingRate(); err != nil || rate != 59.5 {
			t.Errorf("TrackingRate after set: got %v, %v", rate, err)
		}
	})

	t.Run("fine move", func(t *testing.T) {
		// Preload a factor so the move does not trigger a full
		// calibration pass: 300 arcsec maps to a 0.2s move.
		tel.mu.Lock()
		tel.calibrated = true
		tel.calibration[RateFind][East] = 7500
		tel.mu.Unlock()

		raBefore, _ := sim.Position()
		if err := tel.MoveEast(300, RateFind); err != nil {
			t.Fatalf("MoveEast: %v", err)
		}
		raAfter, _ := sim.Position()
		if delta := float64(raAfter-raBefore) * 3600; delta < 72 || delta > 540 {
			t.Errorf("east move displaced %.0f arcsec, want about 240", delta)
		}

		_, decBefore := sim.Position()
		if err := tel.StartMove("north"); err != nil {
			t.Fatalf("StartMove: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
		if err := tel.StopMove("north"); err != nil {
			t.Fatalf("StopMove: %v", err)
		}
		_, decAfter := sim.Position()
		if delta := float64(decAfter-decBefore) * 3600; delta < 30 || delta > 600 {
			t.Errorf("north move displaced %.0f arcsec, want about 120", delta)
		}
	})

	t.Run("park", func(t *testing.T) {
		// Start near the zenith so the park slew is short.
		sim.SetPosition(coord.FromHours(13.9), coord.FromDegrees(44.5))
		if err := tel.Park(); err != nil {
			t.Fatalf("Park: %v", err)
		}
		if !tel.Parked() {
			t.Fatal("Parked: got false after Park")
		}
		if on, err := tel.Tracking(); err != nil || on {
			t.Errorf("Tracking while parked: got %v, %v", on, err)
		}
		waitFor(t, "simulator to settle", func() bool { return !sim.Slewing() })
		ra, dec := sim.Position()
		want := coord.Equ(coord.FromHours(14), coord.FromDegrees(45))
		if got := coord.Equ(ra, dec); !got.Within(want, coord.FromArcsec(1)) {
			t.Errorf("parked at %v, want the zenith %v", got, want)
		}
		if err := tel.Unpark(); err != nil {
			t.Fatalf("Unpark: %v", err)
		}
		if tel.Parked() {
			t.Error("Parked: got true after Unpark")
		}
		if on, err := tel.Tracking(); err != nil || !on {
			t.Errorf("Tracking after unpark: got %v, %v", on, err)
		}
	})

	t.Run("abort", func(t *testing.T) {
		errc := make(chan error, 1)
		go func() {
			errc <- tel.SlewToEquatorial(coord.Equ(coord.FromHours(2), coord.FromDegrees(-10)))
		}()
		waitFor(t, "slew to start", sim.Slewing)
		tel.AbortSlew()
		if err := <-errc; !errors.Is(err, ErrSlewAborted) {
			t.Fatalf("aborted slew returned %v, want ErrSlewAborted", err)
		}
		if sim.Slewing() {
			t.Error("simulator still slewing after abort")
		}
		if tel.Slewing() {
			t.Error("Slewing reports true after abort")
		}
	})
}

func TestStatusReflectsHandboxModeChange(t *testing.T) {
	sim, conn := NewSimulator()
	tel := simTelescope(t, sim, conn)

	st, err := tel.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.AlignMode != "POLAR" || !st.Tracking {
		t.Fatalf("initial status: got %s tracking=%v, want POLAR tracking", st.AlignMode, st.Tracking)
	}

	// Someone switches the mode at the handbox, behind the driver's
	// back.
	sim.mu.Lock()
	sim.align = AlignLand
	sim.mu.Unlock()

	if st, err = tel.Status(); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.AlignMode != "LAND" || st.Tracking {
		t.Errorf("status after handbox change: got %s tracking=%v, want LAND not tracking", st.AlignMode, st.Tracking)
	}
}

func TestSimulatorQuirks(t *testing.T) {
	t.Run("spurious align zero and stale digit", func(t *testing.T) {
		sim, conn := NewSimulator()
		sim.SpuriousAlignZero = true
		sim.StaleDigit = true
		tel := simTelescope(t, sim, conn)
		st, err := tel.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.RA != 12 || st.Dec != 20 {
			t.Errorf("position: got ra %v dec %v, want ra 12 dec 20", st.RA, st.Dec)
		}
	})

	t.Run("low precision", func(t *testing.T) {
		sim, conn := NewSimulator()
		sim.LowPrecision = true
		want := 12 + 34.0/60 + 56.0/3600
		sim.SetPosition(coord.FromHours(want), coord.FromDegrees(20))
		tel := simTelescope(t, sim, conn)
		// Initialization toggles the mount to high precision, so the
		// seconds survive.
		st, err := tel.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if math.Abs(st.RA-want) > 1e-4 {
			t.Errorf("RA: got %v, want %v", st.RA, want)
		}
	})

	t.Run("rejected slews", func(t *testing.T) {
		sim, conn := NewSimulator()
		sim.RejectSlews = true
		tel := simTelescope(t, sim, conn)

		err := tel.SlewToEquatorial(coord.Equ(coord.FromHours(10), coord.FromDegrees(10)))
		var rej *RejectedError
		if !errors.As(err, &rej) {
			t.Fatalf("SlewToEquatorial: got %v, want RejectedError", err)
		}
		if rej.Cmd != cmdSlewEquatorial || rej.Message != "Object below horizon." {
			t.Errorf("rejection: got cmd %q message %q", rej.Cmd, rej.Message)
		}

		err = tel.SlewToHorizontal(coord.Hor(coord.FromDegrees(45), coord.FromDegrees(90)))
		if !errors.As(err, &rej) {
			t.Fatalf("SlewToHorizontal: got %v, want RejectedError", err)
		}
		if rej.Cmd != cmdSlewHorizontal || rej.Message != "" {
			t.Errorf("rejection: got cmd %q message %q", rej.Cmd, rej.Message)
		}
		mode, err := tel.AlignMode()
		if err != nil {
			t.Fatalf("AlignMode: %v", err)
		}
		if mode != AlignPolar {
			t.Errorf("alignment after rejected slew: got %v, want POLAR", mode)
		}
	})
}

// strictConn fails the test when a command frame is written while the
// previous exchange's reply is still unread, which is what interleaved
// exchanges would look like on the wire.
type strictConn struct {
	*replyConn
	t *testing.T
}

func (c *strictConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	dirty := len(c.pending)
	c.mu.Unlock()
	if dirty != 0 {
		c.t.Errorf("frame %q written with %d reply bytes unread", p, dirty)
	}
	return c.replyConn.Write(p)
}

func TestExchangesDoNotInterleave(t *testing.T) {
	conn := newReplyConn()
	conn.reply(cmdGetRA, "12:00:00#")
	conn.reply(cmdGetDec, "+45\xdf00:00#")
	conn.reply(":Sr12\xdf30:00#", "1")
	tel := newTestTelescope(t, &strictConn{replyConn: conn, t: t})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ra, err := tel.RA()
				if err != nil {
					t.Errorf("RA: %v", err)
					return
				}
				if ra.Hours() != 12 {
					t.Errorf("RA: got %v hours, want 12 (reply from another exchange?)", ra.Hours())
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := tel.SetTargetRA(coord.FromHours(12.5)); err != nil {
					t.Errorf("SetTargetRA: %v", err)
					return
				}
				if _, err := tel.Dec(); err != nil {
					t.Errorf("Dec: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestWatch(t *testing.T) {
	sim, conn := NewSimulator()
	startSimulator(t, sim)
	statuses := make(chan mount.Status, 64)
	cb := func(st mount.Status) {
		select {
		case statuses <- st:
		default:
		}
	}
	tel, err := NewWithConn(simConfig(t), simSite, cb, conn)
	if err != nil {
		t.Fatalf("NewWithConn: %v", err)
	}
	t.Cleanup(func() {
		if err := tel.Close(); err != nil {
			t.Errorf("closing telescope: %v", err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tel.Watch(ctx, 10*time.Millisecond) }()

	var st mount.Status
	select {
	case st = <-statuses:
	case <-time.After(5 * time.Second):
		t.Fatal("no status update within 5s")
	}
	ra, dec := st.EquatorialPosition()
	if ra != 12 || dec != 20 {
		t.Errorf("status position: got ra %v dec %v, want ra 12 dec 20", ra, dec)
	}
	if st.Moving() {
		t.Error("status reports moving on an idle mount")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
