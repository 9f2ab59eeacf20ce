package sms

import "errors"

var (
	// ErrUnresponsive is returned when the modem does not answer AT with OK,
	// even after a reconnect.
	ErrUnresponsive = errors.New("modem unresponsive")

	// ErrModem is returned when the modem answers a step with an error
	// result code. The wrapping message carries the code.
	ErrModem = errors.New("modem error")

	// ErrNoConfirmation is returned when the final read ends without either
	// the OK/+CMGS: pair or an error result code.
	ErrNoConfirmation = errors.New("no send confirmation from modem")

	// ErrInvalidDestination is returned for empty numbers or numbers that
	// would break AT command framing.
	ErrInvalidDestination = errors.New("invalid destination number")

	// ErrInvalidCommand is returned by Command for input that is not a single
	// AT command line.
	ErrInvalidCommand = errors.New("invalid AT command")

	// ErrInvalidConfig is returned by NewEngine for unusable timeouts.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)
