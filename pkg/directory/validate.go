package directory

import (
	"fmt"
)

// validName reports whether s is a valid category, device or counter set
// name: non-empty, ASCII letters, digits, space and underscore only.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == ' ', c == '_':
		default:
			return false
		}
	}
	return true
}

// validText reports whether s is non-empty printable ASCII. Counter names,
// descriptions and units use this looser rule.
func validText(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

func checkName(kind, name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %s name %q", ErrInvalidName, kind, name)
	}
	return nil
}
