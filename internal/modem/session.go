package modem

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pccr10001/smsnotify/pkg/logger"
)

// maxAttempts bounds every session operation: the first try plus one retry
// after a reconnect.
const maxAttempts = 2

const readBufferSize = 256

type Config struct {
	PortName          string
	BaudRate          int
	InterCommandDelay time.Duration
	// ReadPoll is the port read timeout. Reads return empty after it so the
	// read loop can check its deadline.
	ReadPoll time.Duration
	Opener   Opener
}

func (c *Config) setDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.ReadPoll <= 0 {
		c.ReadPoll = 100 * time.Millisecond
	}
	if c.Opener == nil {
		c.Opener = SerialOpener
	}
}

func (c *Config) validate() error {
	if c.PortName == "" {
		return fmt.Errorf("%w: port name is required", ErrInvalidConfig)
	}
	if c.BaudRate < 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	}
	if c.InterCommandDelay < 0 {
		return fmt.Errorf("%w: negative inter-command delay", ErrInvalidConfig)
	}
	return nil
}

// Session owns the one serial connection to the modem. The connection is
// opened lazily, reopened after any I/O fault, and only touched while mu is
// held, so the halves of one exchange never interleave with another's.
type Session struct {
	cfg Config

	mu   sync.Mutex
	port Port
	// last is the transcript of the previous successful read cycle. It lets
	// WaitForPrompt skip reading when the prompt came with the command reply.
	last string
}

func NewSession(cfg Config) (*Session, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Session{cfg: cfg}, nil
}

func (s *Session) PortName() string {
	return s.cfg.PortName
}

// IsOpen reports whether a validated connection is currently held.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Execute writes command followed by CR, waits the inter-command delay and
// reads until done holds on the normalized transcript or timeout elapses.
func (s *Session) Execute(command string, done Condition, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.run("execute "+command, true, func(tr *strings.Builder) error {
		logger.Log.Debugf("[%s] TX: %s", s.cfg.PortName, command)
		if err := s.write([]byte(command + "\r")); err != nil {
			return err
		}
		if s.cfg.InterCommandDelay > 0 {
			time.Sleep(s.cfg.InterCommandDelay)
		}
		return s.readUntil(done, timeout, tr)
	})
}

// WaitForPrompt reads until prompt arrives. It returns an empty transcript
// without reading when the previous read cycle already contained the prompt.
func (s *Session) WaitForPrompt(prompt byte, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.run("wait for prompt", true, func(tr *strings.Builder) error {
		if strings.IndexByte(s.last, prompt) >= 0 {
			logger.Log.Debugf("[%s] prompt already received", s.cfg.PortName)
			return nil
		}
		return s.readUntil(func(n string) bool { return strings.IndexByte(n, prompt) >= 0 }, timeout, tr)
	})
}

// ReadResponse reads until done holds without writing anything first.
func (s *Session) ReadResponse(done Condition, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.run("read response", true, func(tr *strings.Builder) error {
		return s.readUntil(done, timeout, tr)
	})
}

// WriteRaw writes b as-is, with no framing and no read phase.
func (s *Session) WriteRaw(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.run("write raw", false, func(*strings.Builder) error {
		logger.Log.Debugf("[%s] TX: %d raw bytes", s.cfg.PortName, len(b))
		return s.write(b)
	})
	return err
}

// Reconnect closes the current connection, ignoring close errors, and opens
// a fresh one.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnect()
}

// Close releases the device. The next operation reopens it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.last = ""
	return err
}

// run executes one operation with the open/retry discipline: the connection
// is opened if needed, an I/O fault triggers one reconnect and a second try,
// and a timeout is returned as is. Open failures are never retried here.
func (s *Session) run(op string, record bool, fn func(tr *strings.Builder) error) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := s.ensureOpen(); err != nil {
			return "", &Error{Op: op, Err: err}
		}

		var tr strings.Builder
		err := fn(&tr)
		if err == nil {
			if record {
				s.last = tr.String()
			}
			return tr.String(), nil
		}
		if errors.Is(err, ErrTimeout) {
			return tr.String(), &Error{Op: op, Transcript: tr.String(), Err: err}
		}

		if attempt >= maxAttempts {
			logger.Log.Errorf("[%s] %s failed after reconnect: %v", s.cfg.PortName, op, err)
			return tr.String(), &Error{Op: op, Transcript: tr.String(), Err: fmt.Errorf("%w: %v", ErrIO, err)}
		}

		logger.Log.Warnf("[%s] %s: I/O fault (%v), reconnecting", s.cfg.PortName, op, err)
		if rerr := s.reconnect(); rerr != nil {
			return tr.String(), &Error{Op: op, Transcript: tr.String(), Err: rerr}
		}
	}
}

func (s *Session) ensureOpen() error {
	if s.port != nil {
		return nil
	}

	p, err := s.cfg.Opener(s.cfg.PortName, serialMode(s.cfg.BaudRate))
	if err != nil {
		if IsPortUnavailable(err) {
			return err
		}
		return fmt.Errorf("%w %s: %v", ErrPortOpen, s.cfg.PortName, err)
	}

	// The handle is only published once every setup step succeeded.
	if err := s.prepare(p); err != nil {
		_ = p.Close()
		return fmt.Errorf("%w %s: %v", ErrPortOpen, s.cfg.PortName, err)
	}

	s.port = p
	logger.Log.Infof("[%s] Port opened at %d baud", s.cfg.PortName, s.cfg.BaudRate)
	return nil
}

func (s *Session) prepare(p Port) error {
	if err := p.SetReadTimeout(s.cfg.ReadPoll); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}
	if err := p.SetDTR(true); err != nil {
		return fmt.Errorf("assert DTR: %w", err)
	}
	if err := p.SetRTS(true); err != nil {
		return fmt.Errorf("assert RTS: %w", err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	if err := p.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (s *Session) reconnect() error {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	s.last = ""
	logger.Log.Infof("[%s] Reconnecting", s.cfg.PortName)
	return s.ensureOpen()
}

func (s *Session) write(b []byte) error {
	n, err := s.port.Write(b)
	if err != nil {
		return err
	}
	if n < len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// readUntil appends everything read to tr and returns nil as soon as done
// holds on the normalized text, ErrTimeout when the deadline passes first,
// or the read error.
func (s *Session) readUntil(done Condition, timeout time.Duration, tr *strings.Builder) error {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, readBufferSize)

	for time.Now().Before(deadline) {
		n, err := s.port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		tr.Write(buf[:n])
		logger.Log.Debugf("[%s] RX: %q", s.cfg.PortName, buf[:n])

		if done(Normalize(tr.String())) {
			return nil
		}
	}
	return ErrTimeout
}
