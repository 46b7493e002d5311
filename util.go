package main

import (
	"fmt"
	"strings"
	"time"
)

// asciiLower lowercases A-Z only. We deliberately do not case fold multibyte
// characters; uniqueness of nicks and channel names is byte-wise after this.
func asciiLower(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] = b[i] - 'A' + 'a'
		}
	}
	return string(b)
}

// canonicalizeNick converts the given nick to its canonical representation
// (which must be unique).
//
// Note: We don't check validity or strip whitespace.
func canonicalizeNick(n string) string {
	return asciiLower(n)
}

// canonicalizeChannel converts the given channel name to its canonical
// representation (which must be unique).
func canonicalizeChannel(c string) string {
	return asciiLower(c)
}

// isValidNick checks if a nickname is valid. Nicks are non-empty and consist
// of letters, digits, '-', or '_'.
func isValidNick(n string) bool {
	if len(n) == 0 {
		return false
	}

	for i := 0; i < len(n); i++ {
		c := n[i]

		if c >= 'a' && c <= 'z' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' || c == '_' {
			continue
		}

		return false
	}

	return true
}

// isChannelName says whether the string names a channel at all. This is a
// looser check than isValidChannel. PRIVMSG uses it to decide whether a
// target is a channel or a nick.
func isChannelName(s string) bool {
	return len(s) > 0 && (s[0] == '#' || s[0] == '&')
}

// isValidChannel checks a channel name for validity. Channels start with '#'
// or '&'. The remaining characters are unrestricted except those that would
// break the line protocol or target lists.
func isValidChannel(c string) bool {
	if !isChannelName(c) || len(c) < 2 {
		return false
	}

	for i := 1; i < len(c); i++ {
		switch c[i] {
		case '\r', '\n', ' ', ',':
			return false
		}
	}

	return true
}

func isNumericCommand(command string) bool {
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseCompactDuration parses durations of the form ([0-9]+[dhms])+, such as
// 1h30m or 2d.
func parseCompactDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}

	var total time.Duration
	n := int64(0)
	digits := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c >= '0' && c <= '9' {
			n = n*10 + int64(c-'0')
			digits = true
			continue
		}

		if !digits {
			return 0, fmt.Errorf("malformed duration")
		}

		switch c {
		case 'd':
			total += time.Duration(n) * 24 * time.Hour
		case 'h':
			total += time.Duration(n) * time.Hour
		case 'm':
			total += time.Duration(n) * time.Minute
		case 's':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("unknown duration unit %q", c)
		}

		n = 0
		digits = false
	}

	if digits {
		return 0, fmt.Errorf("trailing number without unit")
	}

	return total, nil
}

// formatElapsed renders a duration the way we report it in chat, e.g.
// "1d 2h 3m 4s". Sub-second durations render as "0s".
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	secs := int64(d.Seconds())

	days := secs / 86400
	secs %= 86400
	hours := secs / 3600
	secs %= 3600
	mins := secs / 60
	secs %= 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}

	return strings.Join(parts, " ")
}
