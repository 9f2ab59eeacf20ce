package sms

import (
	gsm "github.com/warthog618/sms"
)

// MaxSingleLength is the number of characters that fit in one GSM 7-bit
// message. Longer texts are sent anyway but may be split or truncated.
const MaxSingleLength = 160

// Result is the outcome of one Send. Success implies the modem confirmed the
// submission with OK and +CMGS: and reported no error. MessageID is empty
// when the confirmation carried no reference number.
type Result struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id,omitempty"`
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
	Oversize   bool   `json:"oversize,omitempty"`
	Segments   int    `json:"segments,omitempty"`
}

// Segments returns how many SMS-SUBMIT PDUs the network would need for
// text, or 0 when it cannot be encoded.
func Segments(text string) int {
	pdus, err := gsm.Encode([]byte(text))
	if err != nil {
		return 0
	}
	return len(pdus)
}
