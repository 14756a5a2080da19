package lx200

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// replyConn is an in-memory wire for driver tests. Each Write carries
// exactly one command frame; the scripted replies for that frame are
// appended to the read buffer, and every frame is logged so tests can
// assert on command order. Reads return (0, nil) once the buffer is
// drained, like a serial read timeout.
type replyConn struct {
	mu      sync.Mutex
	replies map[string][]string
	hits    map[string]int
	frames  []string
	pending []byte
}

func newReplyConn() *replyConn {
	return &replyConn{
		replies: make(map[string][]string),
		hits:    make(map[string]int),
	}
}

// reply scripts successive replies for a command frame. The last entry
// repeats once the script is exhausted; frames with no script get no
// reply at all.
func (c *replyConn) reply(frame string, replies ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[frame] = replies
}

func (c *replyConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := string(p)
	c.frames = append(c.frames, frame)
	if script := c.replies[frame]; len(script) > 0 {
		i := c.hits[frame]
		if i >= len(script) {
			i = len(script) - 1
		}
		c.hits[frame]++
		c.pending = append(c.pending, script[i]...)
	}
	return len(p), nil
}

func (c *replyConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		// Read timeout.
		return 0, nil
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *replyConn) Close() error                       { return nil }
func (c *replyConn) SetReadTimeout(time.Duration) error { return nil }
func (c *replyConn) ResetInputBuffer() error            { return nil }
func (c *replyConn) ResetOutputBuffer() error           { return nil }

// sent returns a copy of the logged frames.
func (c *replyConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

// count returns how many times frame was written.
func (c *replyConn) count(frame string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f == frame {
			n++
		}
	}
	return n
}

// assertSent checks that want appears, in order, as a subsequence of
// the frames written to conn.
func assertSent(t *testing.T, conn *replyConn, want ...string) {
	t.Helper()
	frames := conn.sent()
	i := 0
	for _, f := range frames {
		if i < len(want) && f == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Errorf("sent frames %q missing ordered subsequence %q", frames, want)
	}
}

// newTestTelescope wires a Telescope directly to conn, bypassing the
// device probe and init sequence, with timing tuned for tests.
func newTestTelescope(t *testing.T, conn Conn) *Telescope {
	t.Helper()
	l, err := newLink(conn, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("newLink: %v", err)
	}
	cfg := DefaultConfig()
	cfg.StabilizationTime = 0
	cfg.SlewIdleTime = Duration(time.Millisecond)
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "calibration.json")
	return &Telescope{
		cfg:         cfg,
		link:        l,
		curAlign:    AlignPolar,
		lastAlign:   AlignPolar,
		rate:        RateMax,
		initAlign:   AlignPolar,
		initRate:    RateMax,
		calibration: defaultCalibration(),
	}
}
