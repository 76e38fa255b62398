package templates

import (
	"fmt"
	"regexp"
	"strings"
)

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ValidateName checks that name can appear in operation names and routes.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name %q: must start with a lowercase letter and contain only lowercase letters, digits and hyphens", name)
	}
	return nil
}

// SanitizeName converts a directory name into a resource name: lowercase,
// with runs of other characters collapsed into a single hyphen.
func SanitizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	out = strings.TrimLeft(out, "0123456789-")
	if out == "" {
		return "items"
	}
	return out
}
