package modem_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pccr10001/smsnotify/internal/modem"
	"go.bug.st/serial"
)

func newTestSession(t *testing.T, port *fakePort) (*modem.Session, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{port: port}
	s, err := modem.NewSession(modem.Config{
		PortName: "/dev/ttyFAKE0",
		BaudRate: 115200,
		ReadPoll: time.Millisecond,
		Opener:   opener.open,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, opener
}

func okOrError() modem.Condition {
	return modem.ContainsAny("OK", "ERROR")
}

func TestNewSession(t *testing.T) {
	t.Run("ErrInvalidConfig without port name", func(t *testing.T) {
		_, err := modem.NewSession(modem.Config{})
		if !errors.Is(err, modem.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got: %v", err)
		}
	})

	t.Run("Opens lazily", func(t *testing.T) {
		s, opener := newTestSession(t, newFakePort(nil))
		if opener.openCount() != 0 {
			t.Errorf("expected no open before first use, got %d", opener.openCount())
		}
		if s.IsOpen() {
			t.Error("session should report closed before first use")
		}
	})
}

func TestSessionExecute(t *testing.T) {
	t.Run("Returns exactly when the condition holds", func(t *testing.T) {
		port := newFakePort(nil)
		port.queue("AT\r", "\r\nO", "K\r\n", "+EXTRA: 1\r\n")
		s, _ := newTestSession(t, port)

		tr, err := s.Execute("AT", okOrError(), time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := port.readCount(); got != 3 {
			t.Errorf("expected 3 reads, got %d", got)
		}
		if strings.Contains(tr, "EXTRA") {
			t.Errorf("transcript contains data past the completion point: %q", tr)
		}
		if rest := port.unread(); len(rest) != 1 || rest[0] != "+EXTRA: 1\r\n" {
			t.Errorf("expected trailing chunk to stay unread, got %q", rest)
		}
		if w := port.written(); len(w) != 1 || w[0] != "AT\r" {
			t.Errorf("expected single write \"AT\\r\", got %q", w)
		}
	})

	t.Run("Opens with 8N1 and asserts DTR and RTS", func(t *testing.T) {
		port := newFakePort(func(string) []string { return []string{"OK\r\n"} })
		s, opener := newTestSession(t, port)

		if _, err := s.Execute("AT", okOrError(), time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opener.openCount() != 1 {
			t.Errorf("expected one open, got %d", opener.openCount())
		}
		if port.mode.DataBits != 8 || port.mode.Parity != serial.NoParity || port.mode.StopBits != serial.OneStopBit {
			t.Errorf("unexpected mode: %+v", port.mode)
		}
		if !port.dtr || !port.rts {
			t.Error("DTR and RTS should be asserted")
		}
	})

	t.Run("ErrTimeout carries the partial transcript", func(t *testing.T) {
		port := newFakePort(func(string) []string { return []string{"AT\r\n"} })
		s, opener := newTestSession(t, port)

		start := time.Now()
		tr, err := s.Execute("AT", okOrError(), 50*time.Millisecond)
		if !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if time.Since(start) < 50*time.Millisecond {
			t.Error("returned before the timeout elapsed")
		}
		if tr != "AT\r\n" || modem.TranscriptOf(err) != "AT\r\n" {
			t.Errorf("unexpected transcript %q / %q", tr, modem.TranscriptOf(err))
		}
		if opener.openCount() != 1 {
			t.Errorf("timeouts must not reconnect, got %d opens", opener.openCount())
		}
	})

	t.Run("I/O fault reconnects once and retries", func(t *testing.T) {
		port := newFakePort(func(string) []string { return []string{"OK\r\n"} })
		port.writeErrs = []error{io.ErrClosedPipe}
		s, opener := newTestSession(t, port)

		tr, err := s.Execute("AT", okOrError(), time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(tr, "OK") {
			t.Errorf("unexpected transcript %q", tr)
		}
		if opener.openCount() != 2 {
			t.Errorf("expected open + reconnect, got %d opens", opener.openCount())
		}
	})

	t.Run("Second I/O fault surfaces ErrIO without another retry", func(t *testing.T) {
		port := newFakePort(nil)
		port.writeErrs = []error{io.ErrClosedPipe, io.ErrClosedPipe, io.ErrClosedPipe}
		s, opener := newTestSession(t, port)

		_, err := s.Execute("AT", okOrError(), time.Second)
		if !errors.Is(err, modem.ErrIO) {
			t.Fatalf("expected ErrIO, got: %v", err)
		}
		if opener.openCount() != 2 {
			t.Errorf("expected exactly one reconnect, got %d opens", opener.openCount())
		}
		if w := port.written(); len(w) != 2 {
			t.Errorf("expected two write attempts, got %d", len(w))
		}
	})

	t.Run("Read fault is retried from the command", func(t *testing.T) {
		port := newFakePort(func(string) []string { return []string{"OK\r\n"} })
		port.readErrs = []error{io.EOF}
		s, opener := newTestSession(t, port)

		if _, err := s.Execute("AT+CMGF=1", okOrError(), time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opener.openCount() != 2 {
			t.Errorf("expected one reconnect, got %d opens", opener.openCount())
		}
		w := port.written()
		if len(w) != 2 || w[0] != "AT+CMGF=1\r" || w[1] != "AT+CMGF=1\r" {
			t.Errorf("expected command written twice, got %q", w)
		}
	})

	t.Run("Port unavailable is not retried", func(t *testing.T) {
		port := newFakePort(nil)
		s, opener := newTestSession(t, port)
		opener.errs = []error{modem.ErrPortNotFound}

		_, err := s.Execute("AT", okOrError(), time.Second)
		if !errors.Is(err, modem.ErrPortNotFound) {
			t.Fatalf("expected ErrPortNotFound, got: %v", err)
		}
		if !modem.IsPortUnavailable(err) {
			t.Error("IsPortUnavailable should hold")
		}
		if opener.openCount() != 1 {
			t.Errorf("expected a single open attempt, got %d", opener.openCount())
		}
		if s.IsOpen() {
			t.Error("session must stay closed after a failed open")
		}
	})

	t.Run("Generic open failure maps to ErrPortOpen", func(t *testing.T) {
		s, opener := newTestSession(t, newFakePort(nil))
		opener.errs = []error{errors.New("device busy")}

		_, err := s.Execute("AT", okOrError(), time.Second)
		if !errors.Is(err, modem.ErrPortOpen) {
			t.Fatalf("expected ErrPortOpen, got: %v", err)
		}
	})
}

func TestSessionWaitForPrompt(t *testing.T) {
	t.Run("Short-circuits when the prompt came with the command reply", func(t *testing.T) {
		port := newFakePort(func(string) []string { return []string{"\r\n> "} })
		s, _ := newTestSession(t, port)

		if _, err := s.Execute(`AT+CMGS="+40722000000"`, modem.ContainsAny(">", "ERROR"), time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reads := port.readCount()
		port.queue("should not be read")

		tr, err := s.WaitForPrompt('>', time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr != "" {
			t.Errorf("expected empty transcript, got %q", tr)
		}
		if port.readCount() != reads {
			t.Error("WaitForPrompt read from the port despite a cached prompt")
		}
	})

	t.Run("Reads until the prompt arrives", func(t *testing.T) {
		port := newFakePort(nil)
		port.queue("\r\n", "> ")
		s, _ := newTestSession(t, port)

		tr, err := s.WaitForPrompt('>', time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(tr, ">") {
			t.Errorf("unexpected transcript %q", tr)
		}
	})
}

func TestSessionWriteRawAndReadResponse(t *testing.T) {
	port := newFakePort(func(w string) []string {
		if strings.HasSuffix(w, "\x1a") {
			return []string{"\r\n+CMGS: 7\r\n", "\r\nOK\r\n"}
		}
		return nil
	})
	s, _ := newTestSession(t, port)

	if err := s.WriteRaw([]byte("Test\x1a")); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	tr, err := s.ReadResponse(func(n string) bool {
		return strings.Contains(n, "OK") && strings.Contains(n, "+CMGS:")
	}, time.Second)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !strings.Contains(tr, "+CMGS: 7") {
		t.Errorf("unexpected transcript %q", tr)
	}
	if w := port.written(); len(w) != 1 || w[0] != "Test\x1a" {
		t.Errorf("expected raw payload without framing, got %q", w)
	}
}

func TestSessionReconnect(t *testing.T) {
	port := newFakePort(nil)
	s, opener := newTestSession(t, port)

	if err := s.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if err := s.Reconnect(); err != nil {
		t.Fatalf("second Reconnect: %v", err)
	}
	if opener.openCount() != 2 {
		t.Errorf("expected two opens, got %d", opener.openCount())
	}
	if !s.IsOpen() {
		t.Error("session should be open after Reconnect")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.IsOpen() || !port.closed {
		t.Error("Close should release the port")
	}
}

func TestNormalize(t *testing.T) {
	got := modem.Normalize("AT\r\r\n\r\nOK\r\n  > ")
	if got != "AT\nOK\n>\n" {
		t.Errorf("unexpected normalization %q", got)
	}
}
