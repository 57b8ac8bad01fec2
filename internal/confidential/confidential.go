// Package confidential defines the boundary to the Confidential Value Service:
// the external system that holds encrypted values behind opaque handles.
//
// The locker never sees plaintext. It asks the service to register ciphertext,
// to derive new handles from existing ones, and (through the caller) to grant or
// revoke decryption rights per principal.
package confidential

import (
	"context"

	"privylocker/pkg/domain"
)

// Handle is an opaque reference to an encrypted value held by the service.
type Handle string

// Zero is the handle of the encrypted constant 0. Combining any handle with Zero
// yields a fresh handle over the same value.
const Zero Handle = "0"

func (h Handle) String() string { return string(h) }

// IsNil reports whether the handle is unset.
func (h Handle) IsNil() bool { return h == "" }

// Service is the Confidential Value Service contract. Every call is synchronous
// and either succeeds or has no effect.
type Service interface {
	// CreateHandle registers ciphertext on behalf of signer and returns its handle.
	CreateHandle(ctx context.Context, ciphertext []byte, signer domain.Principal) (Handle, error)
	// Combine homomorphically adds a and b into a new, independent handle.
	Combine(ctx context.Context, a, b Handle, signer domain.Principal) (Handle, error)
	// GrantAccess allows principal to decrypt the value behind h.
	GrantAccess(ctx context.Context, h Handle, principal, signer domain.Principal) error
	// RevokeAccess withdraws principal's decryption right on h.
	RevokeAccess(ctx context.Context, h Handle, principal, signer domain.Principal) error
}

// Rekey mints a handle over the same value as h that shares no access-control
// state with it.
func Rekey(ctx context.Context, svc Service, h Handle, signer domain.Principal) (Handle, error) {
	return svc.Combine(ctx, h, Zero, signer)
}
