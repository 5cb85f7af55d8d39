package router

import (
	"regexp"
	"strings"
	"unicode"

	"PulseChat/tools/errs"
)

const maxContentRunes = 2000

var (
	reIdent = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)
	reRoom  = regexp.MustCompile(`^[a-zA-Z0-9_\s-]{1,100}$`)
)

func validIdent(s string) bool { return reIdent.MatchString(s) }

func validRoom(s string) bool { return reRoom.MatchString(s) }

// sanitizeContent trims, strips control characters (newlines and tabs
// survive) and caps the length. Runs before persistence or broadcast.
func sanitizeContent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	runes := []rune(s)
	if len(runes) > maxContentRunes {
		s = string(runes[:maxContentRunes])
	}
	return s
}

func requireIdent(name, value string) error {
	if !validIdent(value) {
		return errs.ErrMalformed.WithDetail("invalid " + name)
	}
	return nil
}

func requireRoom(value string) error {
	if !validRoom(value) {
		return errs.ErrMalformed.WithDetail("invalid room name")
	}
	return nil
}
