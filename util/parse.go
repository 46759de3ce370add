package util

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// ParseBytes parses a human-readable size string (e.g. "10MB", "512KB", "2GB",
// "64k", "1024") into bytes. Units are binary.
func ParseBytes(s string) (int64, error) {
	in := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	var multiplier int64 = 1
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", gib}, {"MB", mib}, {"KB", kib},
		{"G", gib}, {"M", mib}, {"K", kib}, {"B", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSpace(s[:len(s)-len(u.suffix)])
			break
		}
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil || val < 0 {
		return 0, fmt.Errorf("invalid size %q", in)
	}
	return val * multiplier, nil
}

// ParseSize parses a size like ParseBytes. Returns defaultBytes if the string
// is empty or cannot be parsed.
func ParseSize(s string, defaultBytes int64) int64 {
	n, err := ParseBytes(s)
	if err != nil {
		return defaultBytes
	}
	return n
}

// FormatSize renders n with the largest binary unit dividing it exactly.
func FormatSize(n int64) string {
	switch {
	case n != 0 && n%gib == 0:
		return fmt.Sprintf("%dGB", n/gib)
	case n != 0 && n%mib == 0:
		return fmt.Sprintf("%dMB", n/mib)
	case n != 0 && n%kib == 0:
		return fmt.Sprintf("%dKB", n/kib)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Unescape interprets Go escape sequences such as \n, \r\n, \t and \x00 in s,
// so delimiters can be written in config files and on the command line.
func Unescape(s string) ([]byte, error) {
	if !strings.Contains(s, `\`) {
		return []byte(s), nil
	}
	out, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid escape sequence in %q", s)
	}
	return []byte(out), nil
}

// Escape is the inverse of Unescape for display.
func Escape(p []byte) string {
	q := strconv.Quote(string(p))
	return q[1 : len(q)-1]
}
