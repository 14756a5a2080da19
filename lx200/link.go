package lx200

import (
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/w1xm/lx200_interface/internal/trace"
)

//go:generate mockgen -source=link.go -destination=mock_conn.go -package=lx200

// Conn is the byte stream to the mount. go.bug.st/serial ports satisfy
// it directly; tests and the simulator substitute in-memory
// implementations. Read must return (0, nil) when the read timeout
// expires with no data, matching serial port semantics.
type Conn interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// link owns the serial connection. It provides the byte primitives the
// codec is built on: write with stale-output flush, fixed-size read
// with stale-input flush, and read-to-terminator. Every transfer is
// mirrored to the trace log. The link itself is not goroutine safe;
// Telescope serializes exchanges with its own lock.
type link struct {
	conn    Conn
	timeout time.Duration
	trace   *trace.Logger
}

// openLink opens device at the given baud rate, 8 data bits, no
// parity, one stop bit.
func openLink(device string, baud int, timeout time.Duration, tr *trace.Logger) (*link, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, &LinkError{Op: "open", Err: err}
	}
	l, err := newLink(port, timeout, tr)
	if err != nil {
		port.Close()
		return nil, err
	}
	return l, nil
}

func newLink(conn Conn, timeout time.Duration, tr *trace.Logger) (*link, error) {
	if err := conn.SetReadTimeout(timeout); err != nil {
		return nil, &LinkError{Op: "set timeout", Err: err}
	}
	return &link{conn: conn, timeout: timeout, trace: tr}, nil
}

func (l *link) close() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

// setTimeout changes the read timeout until the next call. Callers
// that override it must restore l.timeout afterwards.
func (l *link) setTimeout(t time.Duration) error {
	if l.conn == nil {
		return &LinkError{Op: "set timeout", Err: ErrNotOpen}
	}
	if err := l.conn.SetReadTimeout(t); err != nil {
		return &LinkError{Op: "set timeout", Err: err}
	}
	return nil
}

// write sends data. When flush is set, bytes still queued for
// transmission from an earlier exchange are discarded first.
func (l *link) write(data []byte, flush bool) error {
	if l.conn == nil {
		return &LinkError{Op: "write", Err: ErrNotOpen}
	}
	if flush {
		if err := l.conn.ResetOutputBuffer(); err != nil {
			return &LinkError{Op: "flush output", Err: err}
		}
	}
	l.trace.Record("write", data)
	for len(data) > 0 {
		n, err := l.conn.Write(data)
		if err != nil {
			return &LinkError{Op: "write", Err: err}
		}
		data = data[n:]
	}
	return nil
}

// read returns up to n bytes, stopping early when the read timeout
// expires. When flush is set, stale unread input from an earlier
// exchange is discarded first. A short or empty result is not an
// error; decoders treat missing data per their reply grammar.
func (l *link) read(n int, flush bool) ([]byte, error) {
	if l.conn == nil {
		return nil, &LinkError{Op: "read", Err: ErrNotOpen}
	}
	if flush {
		if err := l.conn.ResetInputBuffer(); err != nil {
			return nil, &LinkError{Op: "flush input", Err: err}
		}
	}
	buf := make([]byte, n)
	filled := 0
	for filled < n {
		m, err := l.conn.Read(buf[filled:])
		if err != nil {
			return nil, &LinkError{Op: "read", Err: err}
		}
		if m == 0 {
			// Read timeout.
			break
		}
		filled += m
	}
	l.trace.Record("read ", buf[:filled])
	return buf[:filled], nil
}

// readLine reads up to and including a '#' terminator and returns the
// payload without it. On timeout it returns whatever arrived.
func (l *link) readLine() ([]byte, error) {
	if l.conn == nil {
		return nil, &LinkError{Op: "read", Err: ErrNotOpen}
	}
	var line []byte
	one := make([]byte, 1)
	for {
		m, err := l.conn.Read(one)
		if err != nil {
			return nil, &LinkError{Op: "read", Err: err}
		}
		if m == 0 {
			// Read timeout; return the partial line.
			break
		}
		if one[0] == '#' {
			break
		}
		line = append(line, one[0])
	}
	l.trace.Record("read ", line)
	return line, nil
}

// readLineTimeout reads a line under a temporary read timeout, used
// for commands with long device-side processing.
func (l *link) readLineTimeout(t time.Duration) ([]byte, error) {
	if err := l.setTimeout(t); err != nil {
		return nil, err
	}
	line, err := l.readLine()
	if rerr := l.setTimeout(l.timeout); rerr != nil && err == nil {
		err = rerr
	}
	return line, err
}

// readBool reads a one-digit boolean reply. Only '1' is success;
// anything else, including no data at all, reads as failure so that
// commands the mount silently acknowledges do not error.
func (l *link) readBool() (bool, error) {
	b, err := l.read(1, true)
	if err != nil {
		return false, err
	}
	return len(b) == 1 && b[0] == '1', nil
}
