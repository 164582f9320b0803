// Package encoding turns binary keys (hashes, UUIDs) into short
// filesystem and URL safe identifiers.
package encoding

import (
	"encoding/base32"
	"strings"
)

// crockford is Crockford's Base32 alphabet without padding.
//
//nolint:gochecknoglobals
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

//nolint:gochecknoglobals
var crockfordNormalizer = strings.NewReplacer(" ", "", "O", "0", "I", "1", "L", "1")

// EncodeCrockfordB32LC encodes input with Crockford's Base32 alphabet in lowercase.
// The alphabet leaves out I, L, O and U so ids survive being read aloud.
func EncodeCrockfordB32LC(input []byte) string {
	return strings.ToLower(crockford.EncodeToString(input))
}

// NormalizeCrockfordB32LC folds a hand-typed id into its canonical form:
// spaces are dropped, O reads as 0, I and L read as 1, and the result is lowercase.
func NormalizeCrockfordB32LC(input string) string {
	return strings.ToLower(crockfordNormalizer.Replace(strings.ToUpper(input)))
}
