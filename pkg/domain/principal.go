package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "privylocker/pkg/domain-errors"
)

// MaxPrincipalLength bounds a principal identifier in bytes. It fits base58
// encoded 32-byte public keys and UUID strings alike.
const MaxPrincipalLength = 64

// Principal identifies a signing identity: a document owner or a verifier.
// Invariant: 1..MaxPrincipalLength bytes of valid UTF-8 without whitespace or
// control characters.
//
// Construct via ParsePrincipal at trust boundaries; direct casting bypasses
// validation.
type Principal string

// ParsePrincipal validates external input as a Principal.
//
// Errors: CodeInvalidInput for empty, oversized, non-UTF-8 or whitespace-bearing input.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal cannot be empty")
	}
	if len(s) > MaxPrincipalLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be 64 bytes or less")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "principal contains invalid characters")
		}
	}
	return Principal(s), nil
}

func (p Principal) String() string {
	return string(p)
}

// IsNil reports whether the principal is unset.
func (p Principal) IsNil() bool {
	return p == ""
}
