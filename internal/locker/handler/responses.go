package handler

import (
	"time"

	"privylocker/internal/locker/models"
	"privylocker/internal/locker/service"
)

type ProfileResponse struct {
	Key           string    `json:"key"`
	Owner         string    `json:"owner"`
	DocumentCount uint64    `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toProfileResponse(p *models.UserProfile) *ProfileResponse {
	return &ProfileResponse{
		Key:           p.Key.String(),
		Owner:         p.Owner.String(),
		DocumentCount: p.DocumentCount,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type DocumentResponse struct {
	Key             string    `json:"key"`
	Owner           string    `json:"owner"`
	Index           uint64    `json:"index"`
	Fingerprint     string    `json:"fingerprint"`
	BlobURI         string    `json:"blob_uri"`
	SensitiveHandle string    `json:"sensitive_handle"`
	CreatedAt       time.Time `json:"created_at"`
}

func toDocumentResponse(d *models.Document) *DocumentResponse {
	return &DocumentResponse{
		Key:             d.Key.String(),
		Owner:           d.Owner.String(),
		Index:           d.Index,
		Fingerprint:     d.Fingerprint,
		BlobURI:         d.BlobURI,
		SensitiveHandle: d.SensitiveHandle.String(),
		CreatedAt:       d.CreatedAt,
	}
}

type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
}

// AccessChangeResponse is the confidential service call the caller must make
// to finish an operation.
type AccessChangeResponse struct {
	Action    string `json:"action"`
	Handle    string `json:"handle"`
	Principal string `json:"principal"`
	Signer    string `json:"signer"`
}

func toAccessChangeResponse(c *models.AccessChange) *AccessChangeResponse {
	if c == nil {
		return nil
	}
	return &AccessChangeResponse{
		Action:    string(c.Action),
		Handle:    c.Handle.String(),
		Principal: c.Principal.String(),
		Signer:    c.Signer.String(),
	}
}

type UploadResponse struct {
	Document       *DocumentResponse     `json:"document"`
	RequiredAccess *AccessChangeResponse `json:"required_access"`
}

type SessionResponse struct {
	Key           string     `json:"key"`
	DocumentKey   string     `json:"document_key"`
	Owner         string     `json:"owner"`
	Verifier      string     `json:"verifier"`
	DerivedHandle string     `json:"derived_handle"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

func toSessionResponse(s *models.ShareSession, now time.Time) *SessionResponse {
	return &SessionResponse{
		Key:           s.Key.String(),
		DocumentKey:   s.Document.String(),
		Owner:         s.Owner.String(),
		Verifier:      s.Verifier.String(),
		DerivedHandle: s.DerivedHandle.String(),
		Status:        string(s.Status(now)),
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		Revoked:       s.Revoked,
		RevokedAt:     s.RevokedAt,
	}
}

type SessionResultResponse struct {
	Session        *SessionResponse      `json:"session"`
	RequiredAccess *AccessChangeResponse `json:"required_access"`
}

func toSessionResultResponse(r *service.SessionResult, now time.Time) *SessionResultResponse {
	return &SessionResultResponse{
		Session:        toSessionResponse(r.Session, now),
		RequiredAccess: toAccessChangeResponse(r.Access),
	}
}

type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

type PendingRevocationsResponse struct {
	Revocations []*AccessChangeResponse `json:"revocations"`
}

// ShareStatusResponse is the public verify view of a share.
type ShareStatusResponse struct {
	ShareKey      string    `json:"share_key"`
	Status        string    `json:"status"`
	Accessible    bool      `json:"accessible"`
	DocumentKey   string    `json:"document_key"`
	Owner         string    `json:"owner"`
	Verifier      string    `json:"verifier"`
	DerivedHandle string    `json:"derived_handle"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func toShareStatusResponse(v *service.ShareView) *ShareStatusResponse {
	return &ShareStatusResponse{
		ShareKey:      v.Session.Key.String(),
		Status:        string(v.Status),
		Accessible:    v.Accessible,
		DocumentKey:   v.Session.Document.String(),
		Owner:         v.Session.Owner.String(),
		Verifier:      v.Session.Verifier.String(),
		DerivedHandle: v.Session.DerivedHandle.String(),
		ExpiresAt:     v.Session.ExpiresAt,
	}
}
