package models

import (
	"time"

	"privylocker/internal/confidential"
	"privylocker/pkg/domain"
)

// AccessAction is the decryption-right change a caller must apply at the
// Confidential Value Service after a local commit.
type AccessAction string

const (
	AccessActionGrant  AccessAction = "grant"
	AccessActionRevoke AccessAction = "revoke"
)

// AccessChange is the second phase of a committed operation: the grant or
// revoke call that brings the service's access lists in line with local state.
type AccessChange struct {
	Action    AccessAction        `json:"action"`
	Handle    confidential.Handle `json:"handle"`
	Principal domain.Principal    `json:"principal"`
	Signer    domain.Principal    `json:"signer"`
	// Subject is the document or share key the change belongs to.
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
}

func GrantFor(h confidential.Handle, principal, signer domain.Principal, subject string, now time.Time) *AccessChange {
	return &AccessChange{
		Action:     AccessActionGrant,
		Handle:     h,
		Principal:  principal,
		Signer:     signer,
		Subject:    subject,
		OccurredAt: now,
	}
}

func RevokeFor(h confidential.Handle, principal, signer domain.Principal, subject string, now time.Time) *AccessChange {
	return &AccessChange{
		Action:     AccessActionRevoke,
		Handle:     h,
		Principal:  principal,
		Signer:     signer,
		Subject:    subject,
		OccurredAt: now,
	}
}
