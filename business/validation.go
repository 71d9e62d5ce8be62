package business

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/liamcoop/vouchermacro/macro"
)

// ErrInvalidBusiness is returned for malformed business names or identities.
// It matches macro.ErrInvalidInput under errors.Is.
var ErrInvalidBusiness = fmt.Errorf("%w: invalid business", macro.ErrInvalidInput)

const maxNameLength = 100

// ValidateName checks a business name. Names become part of artifact paths
// and URLs, so separators and control characters are rejected.
func ValidateName(name string) error {
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: name %q has leading or trailing whitespace", ErrInvalidBusiness, name)
	}
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidBusiness)
	}
	if n > maxNameLength {
		return fmt.Errorf("%w: name length %d exceeds maximum of %d characters", ErrInvalidBusiness, n, maxNameLength)
	}
	for _, r := range name {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: name %q contains %q", ErrInvalidBusiness, name, r)
		}
	}
	return nil
}

// ValidateIdentity checks that identity looks like an e-mail address: a single
// @ with text on both sides and no whitespace.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: identity cannot be empty", ErrInvalidBusiness)
	}
	if strings.IndexFunc(identity, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: identity %q contains whitespace", ErrInvalidBusiness, identity)
	}
	local, domain, ok := strings.Cut(identity, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return fmt.Errorf("%w: identity %q is not an e-mail address", ErrInvalidBusiness, identity)
	}
	return nil
}
