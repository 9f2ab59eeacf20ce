package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pccr10001/smsnotify/internal/modem"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

// maxAttempts covers the first dialog and the single replay after a soft
// reset.
const maxAttempts = 2

type Config struct {
	// Name labels log lines, usually the port name.
	Name           string
	CommandTimeout time.Duration
	SendTimeout    time.Duration
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "modem"
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 4 * time.Second
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 20 * time.Second
	}
}

func (c *Config) validate() error {
	if c.CommandTimeout < 0 || c.SendTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// Engine sends text mode SMS over a Link. One Send runs at a time: the whole
// AT dialog, including its retry, holds mu, and every other use of the link
// goes through the engine.
type Engine struct {
	link Link
	cfg  Config
	mu   sync.Mutex
}

func NewEngine(link Link, cfg Config) (*Engine, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: nil link", ErrInvalidConfig)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{link: link, cfg: cfg}, nil
}

// Send delivers text to destination and reports the outcome. It never
// returns an error: every failure ends up in a Result with Success false
// and the transcript collected so far. ctx is honoured until the payload is
// written; a cancellation at the prompt aborts message input with ESC.
// After the payload the dialog runs to confirmation or timeout.
func (e *Engine) Send(ctx context.Context, destination, text string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Result{Segments: Segments(text)}
	if n := utf8.RuneCountInString(text); n > MaxSingleLength {
		res.Oversize = true
		logger.Log.Warnf("[%s] SMS length is %d characters (%d segments); modem/network may truncate", e.cfg.Name, n, res.Segments)
	}

	var tr strings.Builder
	if err := validDestination(destination); err != nil {
		return e.fail(res, &tr, err)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(res, &tr, err)
	}

	out, err := e.checkAlive()
	tr.WriteString(out)
	if err != nil {
		return e.fail(res, &tr, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			logger.Log.Warnf("[%s] Send to %s failed (%v); soft reset and retry", e.cfg.Name, destination, lastErr)
			tr.WriteString(e.softReset())
		}

		out, err := e.dialog(ctx, destination, text)
		tr.WriteString(out)
		if err == nil {
			res.Success = true
			res.MessageID = MessageID(out)
			res.Transcript = tr.String()
			logger.Log.Infof("[%s] SMS sent to %s (id=%q, attempts=%d)", e.cfg.Name, destination, res.MessageID, attempt)
			return res
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return e.fail(res, &tr, lastErr)
}

// Probe checks that the modem answers AT.
func (e *Engine) Probe() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.link.Execute(CmdAttention, OKOrError, e.cfg.CommandTimeout)
	if err != nil {
		return out, err
	}
	if !HasOK(out) {
		return out, ErrUnresponsive
	}
	return out, nil
}

// Command runs one raw AT command for diagnostics and returns whatever the
// modem answered up to OK, an error code or the timeout. It is serialized
// with sends.
func (e *Engine) Command(cmd string, timeout time.Duration) (string, error) {
	cmd = strings.TrimSpace(cmd)
	if !strings.HasPrefix(strings.ToUpper(cmd), "AT") || strings.ContainsAny(cmd, "\r\n\x1a") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}
	if timeout <= 0 {
		timeout = e.cfg.CommandTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	logger.Log.Infof("[%s] Diagnostic command: %s", e.cfg.Name, cmd)
	out, err := e.link.Execute(cmd, OKOrError, timeout)
	if err != nil && out == "" {
		out = modem.TranscriptOf(err)
	}
	return out, err
}

// Close releases the device once any send in progress has finished.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link.Close()
}

// Reconnect forces the link to reopen the device, waiting for any send in
// progress to finish first.
func (e *Engine) Reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link.Reconnect()
}

// checkAlive sends AT and requires OK, reconnecting and trying once more
// when the first answer is missing or wrong.
func (e *Engine) checkAlive() (string, error) {
	var tr strings.Builder
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Log.Warnf("[%s] No OK to AT, reconnecting", e.cfg.Name)
			if err := e.link.Reconnect(); err != nil {
				return tr.String(), fmt.Errorf("%w: %w", ErrUnresponsive, err)
			}
		}

		out, err := e.link.Execute(CmdAttention, OKOrError, e.cfg.CommandTimeout)
		tr.WriteString(out)
		if err == nil && HasOK(out) {
			return tr.String(), nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return tr.String(), fmt.Errorf("%w: %w", ErrUnresponsive, lastErr)
	}
	return tr.String(), fmt.Errorf("%w: modem did not respond with OK to AT", ErrUnresponsive)
}

// dialog runs text mode, recipient, prompt, payload and confirmation once.
// The returned transcript covers this attempt only.
func (e *Engine) dialog(ctx context.Context, destination, text string) (string, error) {
	var tr strings.Builder

	out, err := e.link.Execute(CmdTextMode, OKOrError, e.cfg.CommandTimeout)
	tr.WriteString(out)
	if err != nil {
		return tr.String(), fmt.Errorf("set text mode: %w", err)
	}
	if line := ErrorLine(out); line != "" {
		return tr.String(), fmt.Errorf("%w at %s: %s", ErrModem, CmdTextMode, line)
	}

	if err := ctx.Err(); err != nil {
		return tr.String(), err
	}
	cmd := CmdSend(destination)
	out, err = e.link.Execute(cmd, PromptOrError, e.cfg.CommandTimeout)
	tr.WriteString(out)
	if err != nil {
		return tr.String(), fmt.Errorf("set recipient: %w", err)
	}
	if line := ErrorLine(out); line != "" {
		return tr.String(), fmt.Errorf("%w at %s: %s", ErrModem, cmd, line)
	}

	out, err = e.link.WaitForPrompt(Prompt, e.cfg.CommandTimeout)
	tr.WriteString(out)
	if err != nil {
		if errors.Is(err, modem.ErrTimeout) {
			// A late prompt would swallow the soft reset as message text.
			tr.WriteString(e.abortPrompt())
		}
		return tr.String(), fmt.Errorf("wait for prompt: %w", err)
	}

	// The modem is in message input mode from here on: leaving without a
	// payload needs ESC, or the next command becomes message text.
	if err := ctx.Err(); err != nil {
		tr.WriteString(e.abortPrompt())
		return tr.String(), err
	}
	payload := append([]byte(text), CtrlZ)
	if err := e.link.WriteRaw(payload); err != nil {
		return tr.String(), fmt.Errorf("write payload: %w", err)
	}

	out, err = e.link.ReadResponse(SubmittedOrError, e.cfg.SendTimeout)
	tr.WriteString(out)
	if line := ErrorLine(out); line != "" {
		return tr.String(), fmt.Errorf("%w after payload: %s", ErrModem, line)
	}
	if err != nil {
		if errors.Is(err, modem.ErrTimeout) {
			return tr.String(), fmt.Errorf("%w: %w", ErrNoConfirmation, err)
		}
		return tr.String(), fmt.Errorf("read confirmation: %w", err)
	}
	if !HasSubmitted(out) {
		return tr.String(), ErrNoConfirmation
	}
	return tr.String(), nil
}

// abortPrompt sends ESC to leave message input mode without sending and
// reads the OK that follows. Failures only end up in the transcript.
func (e *Engine) abortPrompt() string {
	var tr strings.Builder
	logger.Log.Infof("[%s] Aborting message input", e.cfg.Name)
	if err := e.link.WriteRaw([]byte{Escape}); err != nil {
		fmt.Fprintf(&tr, "\n-- abort prompt: %v\n", err)
		return tr.String()
	}
	out, err := e.link.ReadResponse(OKOrError, e.cfg.CommandTimeout)
	tr.WriteString(out)
	if err != nil {
		fmt.Fprintf(&tr, "\n-- abort prompt: %v\n", err)
	}
	return tr.String()
}

// softReset issues ATZ then AT. Failures are recorded in the returned
// transcript and otherwise ignored.
func (e *Engine) softReset() string {
	var tr strings.Builder
	for _, cmd := range []string{CmdReset, CmdAttention} {
		out, err := e.link.Execute(cmd, OKOrError, e.cfg.CommandTimeout)
		tr.WriteString(out)
		if err != nil {
			fmt.Fprintf(&tr, "\n-- soft reset %s: %v\n", cmd, err)
		}
	}
	return tr.String()
}

func (e *Engine) fail(res Result, tr *strings.Builder, err error) Result {
	if partial := modem.TranscriptOf(err); partial != "" && !strings.HasSuffix(tr.String(), partial) {
		tr.WriteString(partial)
	}
	fmt.Fprintf(tr, "\n-- send failed: %v\n", err)

	res.Success = false
	res.Error = err.Error()
	res.Transcript = tr.String()
	logger.Log.Warnf("[%s] SMS send failed: %v", e.cfg.Name, err)
	logger.Log.Debugf("[%s] Transcript: %q", e.cfg.Name, res.Transcript)
	return res
}

// retryable reports whether a failed dialog is worth a soft reset and a
// second run. A missing device or a cancelled caller is not.
func retryable(err error) bool {
	if modem.IsPortUnavailable(err) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func validDestination(d string) error {
	if strings.TrimSpace(d) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	if strings.ContainsAny(d, "\"\r\n\x1a") {
		return fmt.Errorf("%w: %q", ErrInvalidDestination, d)
	}
	return nil
}
