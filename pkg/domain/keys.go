package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	dErrors "privylocker/pkg/domain-errors"
)

// Storage keys are derived deterministically from stable identifiers so that two
// attempts to create the same record collide on the key instead of racing.
// Each key is the lowercase hex SHA-256 of length-prefixed seeds.
const (
	profileSeed  = "user-profile"
	documentSeed = "document"
	shareSeed    = "share"

	keyLength = sha256.Size * 2
)

// ProfileKey locates a UserProfile. Derived from the owner.
type ProfileKey string

// DocumentKey locates a Document. Derived from the owner's profile and the
// pre-increment document counter.
type DocumentKey string

// ShareKey locates a ShareSession. Derived from the document and the verifier,
// so at most one session exists per (document, verifier) pair.
type ShareKey string

// DeriveProfileKey returns the storage key of owner's profile.
func DeriveProfileKey(owner Principal) ProfileKey {
	return ProfileKey(deriveKey([]byte(profileSeed), []byte(owner)))
}

// DeriveDocumentKey returns the storage key of the document at index for the profile.
func DeriveDocumentKey(profile ProfileKey, index uint64) DocumentKey {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], index)
	return DocumentKey(deriveKey([]byte(documentSeed), []byte(profile), le[:]))
}

// DeriveShareKey returns the storage key of the session granting verifier access
// to the document.
func DeriveShareKey(document DocumentKey, verifier Principal) ShareKey {
	return ShareKey(deriveKey([]byte(shareSeed), []byte(document), []byte(verifier)))
}

func deriveKey(seeds ...[]byte) string {
	h := sha256.New()
	var prefix [4]byte
	for _, seed := range seeds {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(seed)))
		h.Write(prefix[:])
		h.Write(seed)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ParseDocumentKey validates external input as a DocumentKey.
func ParseDocumentKey(s string) (DocumentKey, error) {
	k, err := parseKey(s, "document key")
	if err != nil {
		return "", err
	}
	return DocumentKey(k), nil
}

// ParseShareKey validates external input as a ShareKey.
func ParseShareKey(s string) (ShareKey, error) {
	k, err := parseKey(s, "share key")
	if err != nil {
		return "", err
	}
	return ShareKey(k), nil
}

func parseKey(s, name string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" cannot be empty")
	}
	if len(s) != keyLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" must be 64 hex characters")
	}
	return s, nil
}

func (k ProfileKey) String() string  { return string(k) }
func (k DocumentKey) String() string { return string(k) }
func (k ShareKey) String() string    { return string(k) }
