package handler

import (
	"encoding/base64"
	"strings"

	"privylocker/internal/locker/models"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
)

// maxCiphertextLength bounds the decoded sensitive ciphertext.
const maxCiphertextLength = 4096

// UploadDocumentRequest is the body of POST /documents.
type UploadDocumentRequest struct {
	Fingerprint string `json:"fingerprint"`
	BlobURI     string `json:"blob_uri"`
	// Ciphertext is standard base64.
	Ciphertext string `json:"ciphertext"`

	ciphertext []byte
}

func (r *UploadDocumentRequest) Normalize() {
	r.Fingerprint = strings.TrimSpace(r.Fingerprint)
	r.BlobURI = strings.TrimSpace(r.BlobURI)
	r.Ciphertext = strings.TrimSpace(r.Ciphertext)
}

// Validate implements httputil.Validatable.
func (r *UploadDocumentRequest) Validate() error {
	if len(r.Fingerprint) > models.MaxFingerprintLength {
		return dErrors.New(dErrors.CodeValidation, "fingerprint must be 64 bytes or less")
	}
	if len(r.BlobURI) > models.MaxBlobURILength {
		return dErrors.New(dErrors.CodeValidation, "blob_uri must be 200 bytes or less")
	}
	if r.Ciphertext == "" {
		return dErrors.New(dErrors.CodeValidation, "ciphertext is required")
	}
	ct, err := base64.StdEncoding.DecodeString(r.Ciphertext)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "ciphertext must be base64")
	}
	if len(ct) > maxCiphertextLength {
		return dErrors.New(dErrors.CodeValidation, "ciphertext is too large")
	}
	r.ciphertext = ct
	return nil
}

// DecodedCiphertext returns the ciphertext bytes once Validate succeeded.
func (r *UploadDocumentRequest) DecodedCiphertext() []byte {
	return r.ciphertext
}

// CreateShareRequest is the body of POST /documents/{documentKey}/shares.
type CreateShareRequest struct {
	Verifier   string `json:"verifier"`
	TTLSeconds int64  `json:"ttl_seconds"`

	verifier domain.Principal
}

func (r *CreateShareRequest) Validate() error {
	if strings.TrimSpace(r.Verifier) == "" {
		return dErrors.New(dErrors.CodeValidation, "verifier is required")
	}
	v, err := domain.ParsePrincipal(r.Verifier)
	if err != nil {
		return err
	}
	r.verifier = v
	return nil
}

func (r *CreateShareRequest) ParsedVerifier() domain.Principal {
	return r.verifier
}
