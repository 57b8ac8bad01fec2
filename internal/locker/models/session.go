package models

import (
	"time"

	"privylocker/internal/confidential"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
)

// SessionStatus is the externally visible state of a share session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusExpired SessionStatus = "expired"
	SessionStatusRevoked SessionStatus = "revoked"
)

// ShareSession is a time-bounded, revocable grant of one document to one verifier.
//
// Invariants:
//   - Key is derived from (Document, Verifier); at most one session per pair
//   - DerivedHandle is minted for this session alone
//   - ExpiresAt is fixed at creation; sessions are never extended
//   - Revoked only moves false -> true
//
// Expired is derived from the clock and never stored.
type ShareSession struct {
	Key           domain.ShareKey     `json:"key"`
	Owner         domain.Principal    `json:"owner"`
	Document      domain.DocumentKey  `json:"document"`
	Verifier      domain.Principal    `json:"verifier"`
	DerivedHandle confidential.Handle `json:"derived_handle"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	Revoked       bool                `json:"revoked"`
	RevokedAt     *time.Time          `json:"revoked_at,omitempty"`
}

func NewShareSession(
	doc *Document,
	verifier domain.Principal,
	derived confidential.Handle,
	ttl time.Duration,
	now time.Time,
) (*ShareSession, error) {
	if doc == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires a document")
	}
	if verifier.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verifier cannot be empty")
	}
	if derived.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "derived handle cannot be empty")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidExpiry, "ttl must be positive")
	}
	expiresAt := now.Add(ttl)
	if !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidExpiry, "ttl is out of range")
	}
	return &ShareSession{
		Key:           domain.DeriveShareKey(doc.Key, verifier),
		Owner:         doc.Owner,
		Document:      doc.Key,
		Verifier:      verifier,
		DerivedHandle: derived,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
	}, nil
}

// IsExpired reports whether the session's deadline has passed at now.
func (s *ShareSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsAccessible reports whether the verifier may still use the session at now.
func (s *ShareSession) IsAccessible(now time.Time) bool {
	return !s.Revoked && !s.IsExpired(now)
}

// Status classifies the session at now. Revocation wins over expiry.
func (s *ShareSession) Status(now time.Time) SessionStatus {
	switch {
	case s.Revoked:
		return SessionStatusRevoked
	case s.IsExpired(now):
		return SessionStatusExpired
	default:
		return SessionStatusActive
	}
}

// CanRevoke checks that caller owns the session.
func (s *ShareSession) CanRevoke(caller domain.Principal) error {
	if s.Owner != caller {
		return dErrors.New(dErrors.CodeUnauthorized, "only the session owner can revoke it")
	}
	return nil
}

// ApplyRevocation marks the session revoked. Returns false when it already was.
// Must only be called after CanRevoke returns nil.
func (s *ShareSession) ApplyRevocation(now time.Time) bool {
	if s.Revoked {
		return false
	}
	s.Revoked = true
	s.RevokedAt = &now
	return true
}
