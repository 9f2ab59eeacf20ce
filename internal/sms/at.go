package sms

import (
	"regexp"
	"strings"

	"github.com/pccr10001/smsnotify/internal/modem"
)

const (
	CmdAttention = "AT"
	CmdReset     = "ATZ"
	CmdTextMode  = "AT+CMGF=1"

	// Response tokens
	OK        = "OK"
	ERROR     = "ERROR"
	CmsError  = "+CMS ERROR"
	CmeError  = "+CME ERROR"
	Submitted = "+CMGS:"

	Prompt byte = '>'
	CtrlZ  byte = 0x1A
	Escape byte = 0x1B
)

var messageIDPattern = regexp.MustCompile(`\+CMGS:\s*(\d+)`)

// CmdSend builds the text mode submit command for destination.
func CmdSend(destination string) string {
	return `AT+CMGS="` + destination + `"`
}

// HasOK and ErrorLine look at normalized lines.

func hasLine(s string, match func(line string) bool) bool {
	for _, line := range strings.Split(s, "\n") {
		if match(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// HasOK reports a final OK result line.
func HasOK(s string) bool {
	return hasLine(modem.Normalize(s), func(l string) bool { return l == OK })
}

// HasError reports ERROR, +CMS ERROR or +CME ERROR.
func HasError(s string) bool {
	return ErrorLine(s) != ""
}

// ErrorLine returns the first error result line, e.g. "+CMS ERROR: 500".
func ErrorLine(s string) string {
	for _, line := range strings.Split(modem.Normalize(s), "\n") {
		if line == ERROR || strings.Contains(line, CmsError) || strings.Contains(line, CmeError) {
			return line
		}
	}
	return ""
}

// HasSubmitted reports the OK + "+CMGS:" pair that confirms a send. Some
// modems print "+CMGS:" on the same line as the payload echo.
func HasSubmitted(s string) bool {
	return HasOK(s) && strings.Contains(s, Submitted)
}

// MessageID extracts the reference number from a "+CMGS: <n>" line.
func MessageID(s string) string {
	m := messageIDPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func OKOrError(s string) bool {
	return HasOK(s) || HasError(s)
}

func PromptOrError(s string) bool {
	return strings.IndexByte(s, Prompt) >= 0 || HasError(s)
}

func SubmittedOrError(s string) bool {
	return HasSubmitted(s) || HasError(s)
}

var (
	_ modem.Condition = OKOrError
	_ modem.Condition = PromptOrError
	_ modem.Condition = SubmittedOrError
)
