package sms

import (
	"time"

	"github.com/pccr10001/smsnotify/internal/modem"
)

//go:generate go tool mockgen -source=link.go -destination=mock_link.go -package=sms

// Link is the line-level view of the modem the engine drives. modem.Session
// implements it.
type Link interface {
	Execute(command string, done modem.Condition, timeout time.Duration) (string, error)
	WaitForPrompt(prompt byte, timeout time.Duration) (string, error)
	ReadResponse(done modem.Condition, timeout time.Duration) (string, error)
	WriteRaw(b []byte) error
	Reconnect() error
	Close() error
}

var _ Link = (*modem.Session)(nil)
