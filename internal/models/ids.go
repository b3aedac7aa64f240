package models

import (
	"strings"
	"unicode/utf8"
)

// MaxIDLength bounds user, gateway and device ids.
const MaxIDLength = 128

// CheckID rejects ids that cannot be used as a single document path
// segment: empty, longer than MaxIDLength, "." or "..", containing "/" or a
// control character, or of the reserved __name__ form.
func CheckID(field, id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return Validationf("%s is required", field)
	case len(id) > MaxIDLength:
		return Validationf("%s must be at most %d bytes", field, MaxIDLength)
	case !utf8.ValidString(id):
		return Validationf("%s must be valid UTF-8", field)
	case id == "." || id == "..":
		return Validationf("%s must not be %q", field, id)
	case strings.Contains(id, "/"):
		return Validationf("%s must not contain '/'", field)
	case strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		return Validationf("%s must not be of the form __name__", field)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return Validationf("%s must not contain control characters", field)
		}
	}
	return nil
}
