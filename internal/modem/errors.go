package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrPortNotFound is returned when the configured device path does not
	// exist. The device is unplugged or the path is wrong.
	ErrPortNotFound = errors.New("serial port not found")

	// ErrPortOpen is returned when the device exists but cannot be claimed,
	// typically because another process holds it or permissions are missing
	// (the user is not in the dialout group).
	ErrPortOpen = errors.New("cannot open serial port")

	// ErrIO is returned when a read or write on an open port fails twice in a
	// row, once before and once after a reconnect.
	ErrIO = errors.New("serial I/O error")

	// ErrTimeout is returned when the completion condition did not hold before
	// the deadline.
	ErrTimeout = errors.New("timed out waiting for modem response")

	// ErrInvalidConfig is returned by NewSession for unusable settings.
	ErrInvalidConfig = errors.New("invalid serial configuration")
)

// Error carries the transcript collected by the failed operation so callers
// can show what the modem said before things went wrong.
type Error struct {
	Op         string
	Transcript string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TranscriptOf returns the partial transcript attached to err, if any.
func TranscriptOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Transcript
	}
	return ""
}

// IsPortUnavailable reports whether err means the device could not be opened
// at all, as opposed to a fault on an open handle.
func IsPortUnavailable(err error) bool {
	return errors.Is(err, ErrPortNotFound) || errors.Is(err, ErrPortOpen)
}
