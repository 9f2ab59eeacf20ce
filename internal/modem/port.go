package modem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is the part of serial.Port the session relies on.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Opener claims the named device with the given mode.
type Opener func(name string, mode *serial.Mode) (Port, error)

// SerialOpener opens a real device through go.bug.st/serial. Absolute paths
// are checked for existence first so an unplugged modem is reported as
// ErrPortNotFound rather than a generic open failure.
func SerialOpener(name string, mode *serial.Mode) (Port, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			return nil, portNotFound(name)
		}
	}

	p, err := serial.Open(name, mode)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, portNotFound(name)
		}
		return nil, fmt.Errorf("%w %s: %v (if permission is denied, add the user to the dialout group)", ErrPortOpen, name, err)
	}
	return p, nil
}

// ListPorts returns the serial devices currently visible to the OS.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func portNotFound(name string) error {
	ports, err := ListPorts()
	if err != nil || len(ports) == 0 {
		return fmt.Errorf("%w: %s (ensure the device is connected)", ErrPortNotFound, name)
	}
	return fmt.Errorf("%w: %s (available: %s)", ErrPortNotFound, name, strings.Join(ports, ", "))
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: true,
			RTS: true,
		},
	}
}
