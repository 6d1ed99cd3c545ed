// Package extension validates extension identifiers and resolves them to download URLs.
package extension

import (
	"fmt"
	"strings"

	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
)

// IDLength is the fixed length of an extension identifier.
const IDLength = 32

// ValidID reports whether s is a well-formed extension identifier:
// exactly 32 characters, each in the range 'a' through 'p'.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'p' {
			return false
		}
	}
	return true
}

// ValidateID returns an ErrInvalidIdentifier error when id is malformed.
func ValidateID(id string) error {
	if ValidID(id) {
		return nil
	}
	return fmt.Errorf("%w: %q must be %d characters in a-p", pkgerrors.ErrInvalidIdentifier, id, IDLength)
}

// ValidateIDs checks every identifier and reports all malformed ones in a single error.
func ValidateIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if !ValidID(id) {
			invalid = append(invalid, fmt.Sprintf("%q", id))
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidIdentifier, strings.Join(invalid, ", "))
}
