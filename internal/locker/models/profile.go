package models

import (
	"math"
	"time"

	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
)

// UserProfile is the per-owner registry entry and document counter.
//
// Invariants:
//   - Owner is immutable and Key is derived from it
//   - DocumentCount starts at 0 and only ever increases by one per upload
//   - Never deleted
type UserProfile struct {
	Key           domain.ProfileKey `json:"key"`
	Owner         domain.Principal  `json:"owner"`
	DocumentCount uint64            `json:"document_count"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func NewUserProfile(owner domain.Principal, now time.Time) (*UserProfile, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile owner cannot be empty")
	}
	return &UserProfile{
		Key:       domain.DeriveProfileKey(owner),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NextDocumentIndex is the index the next uploaded document will be keyed by.
func (p *UserProfile) NextDocumentIndex() uint64 {
	return p.DocumentCount
}

// CanRecordUpload checks that the counter has room for one more document.
func (p *UserProfile) CanRecordUpload() error {
	if p.DocumentCount == math.MaxUint64 {
		return dErrors.New(dErrors.CodeCounterOverflow, "document counter is at its maximum")
	}
	return nil
}

// ApplyUpload increments the document counter.
// Must only be called after CanRecordUpload returns nil.
func (p *UserProfile) ApplyUpload(now time.Time) {
	p.DocumentCount++
	p.UpdatedAt = now
}

// RecordUpload validates and applies an upload in one call.
// Prefer CanRecordUpload + ApplyUpload inside transactions.
func (p *UserProfile) RecordUpload(now time.Time) error {
	if err := p.CanRecordUpload(); err != nil {
		return err
	}
	p.ApplyUpload(now)
	return nil
}
