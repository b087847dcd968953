package rinex

import "fmt"

// ParseUint decodes a fixed-width unsigned decimal field: leading spaces,
// then digits to the end of the field.
func ParseUint(field []byte) (int64, error) {
	i := 0
	for i < len(field) && field[i] == ' ' {
		i++
	}
	if i == len(field) {
		return 0, fmt.Errorf("%w: empty integer field %q", ErrBadFormat, field)
	}
	var v int64
	for ; i < len(field); i++ {
		c := field[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: bad digit in %q", ErrBadFormat, field)
		}
		v = v*10 + int64(c-'0')
	}
	return v, nil
}

// ParseFixed decodes a signed fixed-point field as value times 10^frac:
// optional leading spaces, an optional minus sign, integer digits, a
// decimal point, fractional digits, then only spaces or a line terminator.
// Fewer than frac fractional digits are scaled up; more than frac fail.
func ParseFixed(field []byte, frac int) (int64, error) {
	i := 0
	for i < len(field) && field[i] == ' ' {
		i++
	}
	neg := false
	if i < len(field) && field[i] == '-' {
		neg = true
		i++
	}

	var v int64
	digits := 0
	for ; i < len(field) && field[i] >= '0' && field[i] <= '9'; i++ {
		v = v*10 + int64(field[i]-'0')
		digits++
	}
	if i == len(field) || field[i] != '.' {
		return 0, fmt.Errorf("%w: missing decimal point in %q", ErrBadFormat, field)
	}
	i++

	seen := 0
	for ; i < len(field) && field[i] >= '0' && field[i] <= '9'; i++ {
		if seen == frac {
			return 0, fmt.Errorf("%w: too many fractional digits in %q", ErrBadFormat, field)
		}
		v = v*10 + int64(field[i]-'0')
		seen++
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: no digits in %q", ErrBadFormat, field)
	}
	for ; seen < frac; seen++ {
		v *= 10
	}

	for ; i < len(field); i++ {
		switch field[i] {
		case ' ', '\r', '\n', 0:
		default:
			return 0, fmt.Errorf("%w: trailing garbage in %q", ErrBadFormat, field)
		}
	}

	if neg {
		v = -v
	}
	return v, nil
}

// blank reports whether the field contains only spaces (or nothing).
func blank(field []byte) bool {
	for _, c := range field {
		if c != ' ' {
			return false
		}
	}
	return true
}
