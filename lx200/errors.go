package lx200

import (
	"errors"
	"fmt"
	"time"

	"github.com/w1xm/lx200_interface/coord"
)

var (
	// ErrNotOpen is returned when an operation is attempted before the
	// serial link has been opened, or after it has been closed.
	ErrNotOpen = errors.New("device not open")

	// ErrAlreadySlewing is returned when a slew or fine move is
	// requested while another slew is still in progress. Requests are
	// not queued; the caller must wait or abort first.
	ErrAlreadySlewing = errors.New("telescope is slewing")

	// ErrInvalidDuration is returned when a fine move would run for a
	// zero or negative duration. No command is sent to the mount.
	ErrInvalidDuration = errors.New("move duration must be positive")

	// ErrSlewAborted is returned by a slew that was cancelled through
	// AbortSlew. The mount has already been stopped when it surfaces.
	ErrSlewAborted = errors.New("slew aborted")
)

// LinkError reports a failure of the serial link itself: open, read,
// write, or buffer control. Link errors are fatal for the current
// operation and are never retried.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string { return fmt.Sprintf("link %s: %v", e.Op, e.Err) }

func (e *LinkError) Unwrap() error { return e.Err }

// UnexpectedReplyError reports a reply outside the grammar expected for
// a command. It usually means the device on the other end is not an
// LX200 mount or the exchange has desynchronized.
type UnexpectedReplyError struct {
	Cmd string
	Got string
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("unexpected reply to %q: %q", e.Cmd, e.Got)
}

// RejectedError reports that the mount explicitly refused a command.
// Value carries the attempted value so the caller can correct and
// retry; Message carries the error line some rejections append.
type RejectedError struct {
	Cmd     string
	Value   string
	Message string
}

func (e *RejectedError) Error() string {
	s := fmt.Sprintf("command %q rejected", e.Cmd)
	if e.Value != "" {
		s += fmt.Sprintf(" (value %q)", e.Value)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// SlewTimeoutError reports a slew that exceeded the configured maximum
// duration. The mount has been stopped before this error surfaces.
type SlewTimeoutError struct {
	Target  coord.Position
	Elapsed time.Duration
}

func (e *SlewTimeoutError) Error() string {
	return fmt.Sprintf("slew to %v aborted after %v: max slew time reached", e.Target, e.Elapsed)
}
