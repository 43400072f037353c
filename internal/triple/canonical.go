package triple

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// Reference grammar shared by the triplex parser, the rule classifier and
// the substitution engine.
const (
	// PrefixPattern matches a prefix: ASCII letters followed by optional digits.
	PrefixPattern = `[A-Za-z]+[0-9]*`

	// NamePattern matches an attribute name.
	NamePattern = `[A-Za-z][A-Za-z0-9_]*`

	// LiteralMarker marks a bound (value) reference: $L.D.
	LiteralMarker = '$'
)

var prefixRe = regexp.MustCompile(`^` + PrefixPattern + `$`)

// IsPrefix reports whether s is a syntactically valid prefix.
func IsPrefix(s string) bool {
	return prefixRe.MatchString(s)
}

// Normalize returns s in Unicode NFC form.
// Rule text and triplex strings are normalized before matching so that
// decomposed Cyrillic letters (И + combining breve) compare equal to their
// precomposed forms.
func Normalize(s string) string {
	return norm.NFC.String(s)
}
