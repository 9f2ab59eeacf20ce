package modem

import "strings"

// Condition decides whether a read cycle is complete. It receives the
// normalized transcript accumulated so far.
type Condition func(normalized string) bool

// Normalize turns raw modem output into trimmed, non-empty lines, each
// terminated by "\n". Carriage returns count as line breaks.
func Normalize(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r", "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ContainsAny is a Condition that holds once any token shows up.
func ContainsAny(tokens ...string) Condition {
	return func(s string) bool {
		for _, t := range tokens {
			if strings.Contains(s, t) {
				return true
			}
		}
		return false
	}
}
