package iars

import "fmt"

// MaxIdentifierLen is the longest identifier archive.org accepts.
const MaxIdentifierLen = 100

// InvalidIdentifierError is returned by NewItem when the
// identifier violates archive.org's naming rules.
type InvalidIdentifierError string

// Error implements the error interface
func (e InvalidIdentifierError) Error() string {
	return fmt.Sprintf("iars: invalid item identifier %q", string(e))
}

// ValidateIdentifier reports whether ident is a legal archive.org
// item identifier.
//
// Identifiers are limited to ASCII letters, digits, underscores,
// dashes, and periods. The first character must be alphanumeric,
// and the whole identifier must be no longer than MaxIdentifierLen
// bytes.
func ValidateIdentifier(ident string) bool {
	if len(ident) == 0 || len(ident) > MaxIdentifierLen {
		return false
	}
	if !alnum(ident[0]) {
		return false
	}
	for i := 1; i < len(ident); i++ {
		c := ident[i]
		if !alnum(c) && c != '_' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func alnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
