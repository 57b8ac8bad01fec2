// Package ports defines the interfaces the locker service depends on.
// Stores return sentinel errors; the service translates them to domain codes.
package ports

import (
	"context"
	"time"

	"privylocker/internal/locker/models"
	"privylocker/pkg/domain"
)

// ProfileStore persists user profiles keyed by the owner-derived profile key.
type ProfileStore interface {
	// Create stores a new profile. Returns sentinel.ErrAlreadyExists on a taken key.
	Create(ctx context.Context, profile *models.UserProfile) error
	// FindByKey returns sentinel.ErrNotFound when no profile exists.
	FindByKey(ctx context.Context, key domain.ProfileKey) (*models.UserProfile, error)
	// Update overwrites an existing profile. Returns sentinel.ErrNotFound when absent.
	Update(ctx context.Context, profile *models.UserProfile) error
}

// DocumentStore persists immutable documents keyed by (profile, index).
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByKey(ctx context.Context, key domain.DocumentKey) (*models.Document, error)
	// FindByKeys returns the documents that exist among keys, ordered by index.
	FindByKeys(ctx context.Context, keys []domain.DocumentKey) ([]*models.Document, error)
}

// SessionStore persists share sessions keyed by (document, verifier).
type SessionStore interface {
	Create(ctx context.Context, session *models.ShareSession) error
	FindByKey(ctx context.Context, key domain.ShareKey) (*models.ShareSession, error)
	Update(ctx context.Context, session *models.ShareSession) error
	// ListByDocument returns every session of a document ordered by creation time.
	ListByDocument(ctx context.Context, doc domain.DocumentKey) ([]*models.ShareSession, error)
	// ListExpiredUnrevoked returns sessions of doc whose expiry is at or before now
	// and that were never revoked.
	ListExpiredUnrevoked(ctx context.Context, doc domain.DocumentKey, now time.Time) ([]*models.ShareSession, error)
}

// Stores groups the stores visible inside one transaction.
type Stores interface {
	Profiles() ProfileStore
	Documents() DocumentStore
	Sessions() SessionStore
}

// StoreTx runs fn atomically: every write fn makes through stores commits, or none do.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}

// AccessPublisher emits committed access changes for an external syncer.
type AccessPublisher interface {
	Publish(ctx context.Context, change models.AccessChange) error
}

// StatusCache caches share sessions for the public verify view.
type StatusCache interface {
	// Get returns sentinel.ErrNotFound on a miss.
	Get(ctx context.Context, key domain.ShareKey) (*models.ShareSession, error)
	Set(ctx context.Context, session *models.ShareSession, ttl time.Duration) error
	Invalidate(ctx context.Context, key domain.ShareKey) error
}

type txScopeKey struct{}

// WithTxScope tags ctx with the principal whose records a transaction touches.
// Lock-based transactions use it to pick a shard.
func WithTxScope(ctx context.Context, scope domain.Principal) context.Context {
	return context.WithValue(ctx, txScopeKey{}, scope)
}

// TxScope returns the scope set by WithTxScope, or "".
func TxScope(ctx context.Context) domain.Principal {
	if p, ok := ctx.Value(txScopeKey{}).(domain.Principal); ok {
		return p
	}
	return ""
}
