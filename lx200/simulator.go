package lx200

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/lx200_interface/coord"
)

// Simulator is an in-memory LX200 mount for tests and development. It
// answers the command set the driver speaks, keeps a consistent sky
// model (alt/az derive from RA/Dec through the site latitude and a
// fixed sidereal time), and steps slews and continuous moves on a
// timer. The quirk switches reproduce real-firmware misbehavior.
type Simulator struct {
	conn net.Conn

	// Quirk switches, set before Run.
	//
	// SpuriousAlignZero emits a stray '0' before the alignment mode
	// letter. StaleDigit prefixes RA/Dec replies with a stray digit.
	// RejectSlews refuses :MS#/:MA# the way a mount with the target
	// below its horizon limit would. LowPrecision starts the mount in
	// short coordinate format; :U# toggles it.
	SpuriousAlignZero bool
	StaleDigit        bool
	RejectSlews       bool
	LowPrecision      bool

	mu        sync.Mutex
	ra, dec   coord.Angle
	lat, long coord.Angle
	lst       coord.Angle

	targetRA, targetDec coord.Angle
	targetAlt, targetAz coord.Angle

	align     AlignMode
	rate      SlewRate
	trackRate float64
	utcOffset float64
	dateStr   string
	timeStr   string

	slewing         bool
	slewRA, slewDec coord.Angle
	moving          map[Direction]bool
}

// NewSimulator returns a simulator and the connection to hand to
// NewWithConn.
func NewSimulator() (*Simulator, Conn) {
	a, b := net.Pipe()
	s := &Simulator{
		conn:      a,
		ra:        coord.FromHours(12),
		dec:       coord.FromDegrees(20),
		lat:       coord.FromDegrees(45),
		long:      coord.FromDegrees(288),
		lst:       coord.FromHours(14),
		align:     AlignPolar,
		rate:      RateMax,
		trackRate: 60.1,
		dateStr:   "01/01/00",
		timeStr:   "00:00:00",
		moving:    map[Direction]bool{},
	}
	return s, &pipeConn{conn: b}
}

const (
	// simStep is the discrete simulation step size.
	simStep = 25 * time.Millisecond
	// simSlewVel is the slew speed toward the target in degrees/second.
	simSlewVel = 8.0
)

// simMoveRate is the continuous-move speed per rate, arcsec/second.
var simMoveRate = map[SlewRate]float64{
	RateGuide:  15,
	RateCenter: 120,
	RateFind:   1200,
	RateMax:    14400,
}

// Run steps the mount and serves commands until ctx is canceled or the
// peer closes the connection.
func (s *Simulator) Run(ctx context.Context) error {
	defer s.conn.Close()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(simStep)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblock the reader.
				s.conn.Close()
				return ctx.Err()
			case <-t.C:
			}
			s.step()
		}
	})
	g.Go(s.reader)
	return g.Wait()
}

// Position returns the current simulated RA/Dec.
func (s *Simulator) Position() (coord.Angle, coord.Angle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ra, s.dec
}

// SetPosition points the simulated mount, bypassing physics.
func (s *Simulator) SetPosition(ra, dec coord.Angle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ra, s.dec = ra, dec
}

// Slewing reports whether a simulated slew is still in progress.
func (s *Simulator) Slewing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slewing
}

func (s *Simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt := simStep.Seconds()
	if s.slewing {
		s.ra = approachWrapped(s.ra, s.slewRA, simSlewVel*dt)
		s.dec = approachLinear(s.dec, s.slewDec, simSlewVel*dt)
		if s.ra == s.slewRA && s.dec == s.slewDec {
			s.slewing = false
		}
	}
	v := simMoveRate[s.rate] / 3600 * dt
	if s.moving[East] {
		s.ra = s.ra.AddDegrees(v)
	}
	if s.moving[West] {
		s.ra = s.ra.AddDegrees(-v)
	}
	if s.moving[North] {
		s.dec = clampDec(s.dec.Degrees() + v)
	}
	if s.moving[South] {
		s.dec = clampDec(s.dec.Degrees() - v)
	}
}

// approachWrapped moves cur toward target by at most step degrees, the
// short way around the circle, snapping when within one step.
func approachWrapped(cur, target coord.Angle, step float64) coord.Angle {
	delta := math.Mod(float64(target-cur)+540, 360) - 180
	if math.Abs(delta) <= step {
		return target
	}
	if delta < 0 {
		step = -step
	}
	return cur.AddDegrees(step)
}

func approachLinear(cur, target coord.Angle, step float64) coord.Angle {
	delta := float64(target - cur)
	if math.Abs(delta) <= step {
		return target
	}
	if delta < 0 {
		step = -step
	}
	return coord.Angle(float64(cur) + step)
}

func clampDec(v float64) coord.Angle {
	if v > 90 {
		v = 90
	}
	if v < -90 {
		v = -90
	}
	return coord.Angle(v)
}

// scanCommands splits the byte stream into ':'-prefixed '#'-terminated
// frames, with the bare ACK byte as its own token.
func scanCommands(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	if data[0] == ack {
		return 1, data[:1], nil
	}
	if i := bytes.IndexByte(data, '#'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (s *Simulator) reader() error {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(scanCommands)
	for scanner.Scan() {
		cmd := scanner.Text()
		log.Printf("tel->sim: %q", cmd)
		if err := s.handle(cmd); err != nil {
			log.Printf("handling %q: %v", cmd, err)
		}
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("reading link: %w", err)
	}
	return nil
}

func (s *Simulator) handle(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd == "\x06" {
		return s.replyAlign()
	}
	if !strings.HasPrefix(cmd, ":") || !strings.HasSuffix(cmd, "#") {
		return fmt.Errorf("malformed command %q", cmd)
	}
	body := cmd[1 : len(cmd)-1]

	switch body {
	case "GR":
		if s.LowPrecision {
			h, m, sec := s.ra.HMS()
			return s.send("%s%02d:%02d.%d#", s.stale(), h, m, sec/6)
		}
		return s.send("%s%s#", s.stale(), s.ra.HMSString())
	case "GD":
		return s.send("%s%s#", s.stale(), formatDec(s.dec))
	case "GA":
		alt, _ := s.altAz()
		return s.send("%s#", formatDec(alt))
	case "GZ":
		_, az := s.altAz()
		return s.send("%s#", formatAz(az))
	case "Gr":
		return s.send("%s#", s.targetRA.HMSString())
	case "Gd":
		return s.send("%s#", formatDec(s.targetDec))
	case "Gt":
		return s.send("%s#", formatDec(s.lat))
	case "Gg":
		return s.send("%s#", formatAz(s.long))
	case "GC":
		return s.send("%s#", s.dateStr)
	case "GL":
		return s.send("%s#", s.timeStr)
	case "GS":
		return s.send("%s#", s.lst.HMSString())
	case "GG":
		return s.send("%s#", formatUTCOffset(s.utcOffset))
	case "GT":
		return s.send("%s#", formatTrackingRate(s.trackRate))

	case "AA":
		s.align = AlignAltAz
		return s.send("1")
	case "AP":
		s.align = AlignPolar
		return s.send("1")
	case "AL":
		s.align = AlignLand
		return s.send("1")
	case "Aa":
		return s.send("1")

	case "RG":
		s.rate = RateGuide
		return nil
	case "RC":
		s.rate = RateCenter
		return nil
	case "RM":
		s.rate = RateFind
		return nil
	case "RS":
		s.rate = RateMax
		return nil
	case "Sw4":
		return s.send("1")

	case "U":
		s.LowPrecision = !s.LowPrecision
		return nil
	case "TM":
		return nil

	case "MS":
		if s.RejectSlews {
			return s.send("1Object below horizon.#")
		}
		s.slewRA, s.slewDec = s.targetRA, s.targetDec
		s.slewing = true
		return s.send("0")
	case "MA":
		if s.RejectSlews || s.align != AlignAltAz {
			return s.send("1")
		}
		ha, dec := coord.EquHor(s.targetAz, s.targetAlt, s.lat)
		s.slewRA = s.lst.AddDegrees(-ha.Degrees())
		s.slewDec = dec
		s.slewing = true
		return s.send("0")
	case "CM":
		s.ra, s.dec = s.targetRA, s.targetDec
		return s.send("synced#")

	case "Q":
		s.slewing = false
		s.moving = map[Direction]bool{}
		return nil
	case "Qe", "Qw", "Qn", "Qs":
		delete(s.moving, simDirection(body[1]))
		return nil
	case "Me", "Mw", "Mn", "Ms":
		s.moving[simDirection(body[1])] = true
		return nil
	}

	if len(body) >= 2 {
		if handled, err := s.handleSet(body[:2], body[2:]); handled {
			return err
		}
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// handleSet serves the two-letter set commands carrying a payload.
func (s *Simulator) handleSet(op, arg string) (bool, error) {
	switch op {
	case "Sr":
		return true, s.storeAngle(&s.targetRA, arg, coord.ParseHMS)
	case "Sd":
		return true, s.storeAngle(&s.targetDec, arg, coord.ParseDMS)
	case "Sa":
		return true, s.storeAngle(&s.targetAlt, arg, coord.ParseDMS)
	case "Sz":
		return true, s.storeAngle(&s.targetAz, arg, coord.ParseDMS)
	case "St":
		return true, s.storeAngle(&s.lat, arg, coord.ParseDMS)
	case "Sg":
		return true, s.storeAngle(&s.long, arg, coord.ParseDMS)
	case "SS":
		return true, s.storeAngle(&s.lst, arg, coord.ParseHMS)
	case "SL":
		s.timeStr = arg
		return true, s.send("1")
	case "SC":
		s.dateStr = arg
		if err := s.send("1"); err != nil {
			return true, err
		}
		if err := s.send("Updating planetary data#"); err != nil {
			return true, err
		}
		return true, s.send("#")
	case "SG":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return true, s.send("0")
		}
		s.utcOffset = v
		return true, s.send("1")
	case "ST":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return true, s.send("0")
		}
		s.trackRate = v
		return true, s.send("1")
	}
	return false, nil
}

func (s *Simulator) storeAngle(dst *coord.Angle, arg string, parse func(string) (coord.Angle, error)) error {
	a, err := parse(decodeDegrees([]byte(arg)))
	if err != nil {
		return s.send("0")
	}
	*dst = a
	return s.send("1")
}

func (s *Simulator) replyAlign() error {
	if s.SpuriousAlignZero {
		if err := s.send("0"); err != nil {
			return err
		}
	}
	switch s.align {
	case AlignAltAz:
		return s.send("A")
	case AlignLand:
		return s.send("L")
	}
	return s.send("P")
}

// stale returns the stray digit prefix when the quirk is switched on.
func (s *Simulator) stale() string {
	if s.StaleDigit {
		return "1"
	}
	return ""
}

// altAz derives the horizontal position from RA/Dec at the simulated
// site and sidereal time.
func (s *Simulator) altAz() (coord.Angle, coord.Angle) {
	ha := s.lst.AddDegrees(-s.ra.Degrees())
	az, alt := coord.EquHor(ha, s.dec, s.lat)
	return alt, az
}

func simDirection(c byte) Direction {
	switch c {
	case 'e':
		return East
	case 'w':
		return West
	case 'n':
		return North
	}
	return South
}

func (s *Simulator) send(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	log.Printf("sim->tel: %q", msg)
	_, err := io.WriteString(s.conn, msg)
	return err
}

// pipeConn adapts the net.Pipe end to the serial Conn interface: read
// deadlines emulate the serial timeout, returning a zero-length read,
// and buffer resets are no-ops since an in-memory pipe holds no stale
// hardware buffers.
type pipeConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *pipeConn) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := p.conn.Read(b)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

func (p *pipeConn) Write(b []byte) (int, error) { return p.conn.Write(b) }

func (p *pipeConn) Close() error { return p.conn.Close() }

func (p *pipeConn) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *pipeConn) ResetInputBuffer() error { return nil }

func (p *pipeConn) ResetOutputBuffer() error { return nil }
