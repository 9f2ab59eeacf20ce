package modem_test

import (
	"io"
	"sync"
	"time"

	"github.com/pccr10001/smsnotify/internal/modem"
	"go.bug.st/serial"
)

// fakePort is a scripted modem. Each Write may queue reply chunks through
// respond; each Read hands out one queued chunk, or nothing after a short
// pause, the way a serial port with a read timeout behaves.
type fakePort struct {
	mu sync.Mutex

	pending   []string
	reads     int
	writes    []string
	writeErrs []error
	readErrs  []error
	respond   func(written string) []string

	closed bool
	dtr    bool
	rts    bool
	mode   *serial.Mode
}

func newFakePort(respond func(string) []string) *fakePort {
	return &fakePort{respond: respond}
}

func (p *fakePort) queue(chunks ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, chunks...)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writeErrs) > 0 {
		err := p.writeErrs[0]
		p.writeErrs = p.writeErrs[1:]
		if err != nil {
			p.writes = append(p.writes, string(b))
			return 0, err
		}
	}
	p.writes = append(p.writes, string(b))
	if p.respond != nil {
		p.pending = append(p.pending, p.respond(string(b))...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.readErrs) > 0 {
		err := p.readErrs[0]
		p.readErrs = p.readErrs[1:]
		if err != nil {
			p.mu.Unlock()
			return 0, err
		}
	}
	if len(p.pending) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	chunk := p.pending[0]
	p.pending = p.pending[1:]
	p.reads++
	p.mu.Unlock()
	return copy(b, chunk), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) SetDTR(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dtr = v
	return nil
}

func (p *fakePort) SetRTS(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rts = v
	return nil
}

func (p *fakePort) ResetInputBuffer() error  { return nil }
func (p *fakePort) ResetOutputBuffer() error { return nil }

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakePort) readCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

func (p *fakePort) unread() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pending...)
}

// fakeOpener hands out the same port on every open and counts opens.
type fakeOpener struct {
	mu    sync.Mutex
	port  *fakePort
	opens int
	errs  []error
}

func (o *fakeOpener) open(name string, mode *serial.Mode) (modem.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if len(o.errs) > 0 {
		err := o.errs[0]
		o.errs = o.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	o.port.mu.Lock()
	o.port.closed = false
	o.port.mode = mode
	o.port.mu.Unlock()
	return o.port, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

var _ io.ReadWriteCloser = (*fakePort)(nil)
