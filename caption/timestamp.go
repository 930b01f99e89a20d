package caption

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimestamp converts a cue time marker into seconds. It accepts
// H:M:S[.fraction] and M:S[.fraction]; a comma is accepted as the fraction
// separator. Any other marker yields 0 and an error wrapping
// ErrMalformedTimestamp.
func ParseTimestamp(marker string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(marker), ":")

	var hours, minutes uint64
	var secField string
	var err error
	switch len(fields) {
	case 3:
		if hours, err = parseUnit(fields[0]); err != nil {
			return 0, malformed(marker)
		}
		if minutes, err = parseUnit(fields[1]); err != nil {
			return 0, malformed(marker)
		}
		secField = fields[2]
	case 2:
		if minutes, err = parseUnit(fields[0]); err != nil {
			return 0, malformed(marker)
		}
		secField = fields[1]
	default:
		return 0, malformed(marker)
	}

	secs, ok := parseSeconds(secField)
	if !ok {
		return 0, malformed(marker)
	}

	return float64(hours)*3600 + float64(minutes)*60 + secs, nil
}

// Seconds is ParseTimestamp with the error dropped.
func Seconds(marker string) float64 {
	s, _ := ParseTimestamp(marker)
	return s
}

func malformed(marker string) error {
	return fmt.Errorf("%w: %q", ErrMalformedTimestamp, marker)
}

func parseUnit(s string) (uint64, error) {
	if s == "" || !isDigits(s) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return strconv.ParseUint(s, 10, 32)
}

func parseSeconds(s string) (float64, bool) {
	s = strings.Replace(s, ",", ".", 1)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) {
		return 0, false
	}
	if hasFrac && (frac == "" || !isDigits(frac)) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
