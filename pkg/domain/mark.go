package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultNumberWidth is used when settings carry no number format.
const DefaultNumberWidth = 3

// NumberFormat describes how sequence numbers are padded.
type NumberFormat struct {
	Width   int
	Pattern string
}

// ParseNumberFormat accepts a run of zeros ("000") or a printf style
// zero-padded integer verb ("%03d"). An empty pattern yields the default width.
func ParseNumberFormat(pattern string) (NumberFormat, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return NumberFormat{Width: DefaultNumberWidth, Pattern: strings.Repeat("0", DefaultNumberWidth)}, nil
	}
	if strings.Trim(p, "0") == "" {
		return checkWidth(len(p), p)
	}
	if strings.HasPrefix(p, "%0") && strings.HasSuffix(p, "d") {
		w, err := strconv.Atoi(p[2 : len(p)-1])
		if err != nil {
			return NumberFormat{}, ValidationError{Field: "number_format", Message: fmt.Sprintf("unsupported pattern %q", pattern)}
		}
		return checkWidth(w, p)
	}
	return NumberFormat{}, ValidationError{Field: "number_format", Message: fmt.Sprintf("unsupported pattern %q", pattern)}
}

func checkWidth(w int, pattern string) (NumberFormat, error) {
	if w < 1 || w > 9 {
		return NumberFormat{}, ValidationError{Field: "number_format", Message: fmt.Sprintf("width %d out of range 1-9", w)}
	}
	return NumberFormat{Width: w, Pattern: pattern}, nil
}

// Format zero-pads n to the configured width. Numbers wider than the format
// are rendered in full rather than truncated.
func (f NumberFormat) Format(n int) string {
	w := f.Width
	if w <= 0 {
		w = DefaultNumberWidth
	}
	return fmt.Sprintf("%0*d", w, n)
}

// FormatMark composes prefix and padded sequence number.
func FormatMark(prefix string, n int, format NumberFormat) string {
	return prefix + format.Format(n)
}

// ParseMark splits a mark into its prefix and trailing sequence number.
// A mark without trailing digits is a bare prefix (numbered == false).
// Prefixes never end in a digit, which the settings loader enforces.
func ParseMark(mark string) (prefix string, number int, numbered bool) {
	m := strings.TrimSpace(mark)
	i := len(m)
	for i > 0 && m[i-1] >= '0' && m[i-1] <= '9' {
		i--
	}
	if i == len(m) {
		return m, 0, false
	}
	n, err := strconv.Atoi(m[i:])
	if err != nil {
		return m, 0, false
	}
	return m[:i], n, true
}
