package models

import (
	"time"

	"privylocker/internal/confidential"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
)

const (
	MaxFingerprintLength = 64
	MaxBlobURILength     = 200
)

// Document references one uploaded sensitive value.
//
// Invariants:
//   - Key is derived from the owner's profile and Index
//   - Fingerprint is at most 64 bytes, BlobURI at most 200 bytes
//   - SensitiveHandle is set
//   - Immutable after creation
type Document struct {
	Key             domain.DocumentKey  `json:"key"`
	Owner           domain.Principal    `json:"owner"`
	Index           uint64              `json:"index"`
	Fingerprint     string              `json:"fingerprint"`
	BlobURI         string              `json:"blob_uri"`
	SensitiveHandle confidential.Handle `json:"sensitive_handle"`
	CreatedAt       time.Time           `json:"created_at"`
}

func NewDocument(
	profile *UserProfile,
	fingerprint string,
	blobURI string,
	handle confidential.Handle,
	now time.Time,
) (*Document, error) {
	if profile == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document requires an owner profile")
	}
	if len(fingerprint) > MaxFingerprintLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fingerprint must be 64 bytes or less")
	}
	if len(blobURI) > MaxBlobURILength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "blob_uri must be 200 bytes or less")
	}
	if handle.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sensitive handle cannot be empty")
	}
	index := profile.NextDocumentIndex()
	return &Document{
		Key:             domain.DeriveDocumentKey(profile.Key, index),
		Owner:           profile.Owner,
		Index:           index,
		Fingerprint:     fingerprint,
		BlobURI:         blobURI,
		SensitiveHandle: handle,
		CreatedAt:       now,
	}, nil
}

// IsOwnedBy reports whether p may spawn share sessions for the document.
func (d *Document) IsOwnedBy(p domain.Principal) bool {
	return d.Owner == p
}
