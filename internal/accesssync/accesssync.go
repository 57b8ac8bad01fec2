// Package accesssync carries committed access changes from the locker to the
// Confidential Value Service's access lists.
//
// The locker commits local state first and emits the required grant or revoke
// afterwards. Publishers deliver those intents; Apply performs one against the
// service. Delivery is at-least-once and Apply is idempotent at the service.
package accesssync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"privylocker/internal/confidential"
	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
)

// ErrUnknownAction marks a change no version of Apply can perform.
var ErrUnknownAction = errors.New("unknown access action")

// Apply performs change against svc.
func Apply(ctx context.Context, svc confidential.Service, change models.AccessChange) error {
	switch change.Action {
	case models.AccessActionGrant:
		return svc.GrantAccess(ctx, change.Handle, change.Principal, change.Signer)
	case models.AccessActionRevoke:
		return svc.RevokeAccess(ctx, change.Handle, change.Principal, change.Signer)
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, change.Action)
	}
}

// MemoryPublisher records published changes in order.
type MemoryPublisher struct {
	mu      sync.Mutex
	changes []models.AccessChange
	err     error
}

var _ ports.AccessPublisher = (*MemoryPublisher)(nil)

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, change models.AccessChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, change)
	return nil
}

// FailWith makes subsequent Publish calls return err. Nil restores success.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Changes returns a copy of everything published so far.
func (p *MemoryPublisher) Changes() []models.AccessChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AccessChange, len(p.changes))
	copy(out, p.changes)
	return out
}

// DirectPublisher applies every change to the service synchronously. Used when
// the process itself hosts the confidential engine.
type DirectPublisher struct {
	svc confidential.Service
}

var _ ports.AccessPublisher = (*DirectPublisher)(nil)

func NewDirectPublisher(svc confidential.Service) *DirectPublisher {
	return &DirectPublisher{svc: svc}
}

func (p *DirectPublisher) Publish(ctx context.Context, change models.AccessChange) error {
	return Apply(ctx, p.svc, change)
}
