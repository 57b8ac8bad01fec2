// Package store implements the locker stores in memory and on PostgreSQL.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/pkg/domain"
	"privylocker/pkg/platform/sentinel"
)

// InMemory keeps profiles, documents and sessions in maps guarded by one RWMutex.
// Values are stored and returned by copy so callers cannot mutate shared state.
//
// Writes made through the stores returned by Profiles, Documents and Sessions
// commit immediately. Use ShardedTx to group writes atomically.
type InMemory struct {
	mu        sync.RWMutex
	profiles  map[domain.ProfileKey]models.UserProfile
	documents map[domain.DocumentKey]models.Document
	sessions  map[domain.ShareKey]models.ShareSession
}

func NewInMemory() *InMemory {
	return &InMemory{
		profiles:  make(map[domain.ProfileKey]models.UserProfile),
		documents: make(map[domain.DocumentKey]models.Document),
		sessions:  make(map[domain.ShareKey]models.ShareSession),
	}
}

var _ ports.Stores = (*InMemory)(nil)

func (s *InMemory) Profiles() ports.ProfileStore   { return &memProfiles{tx: s.begin(), autocommit: true} }
func (s *InMemory) Documents() ports.DocumentStore { return &memDocuments{tx: s.begin(), autocommit: true} }
func (s *InMemory) Sessions() ports.SessionStore   { return &memSessions{tx: s.begin(), autocommit: true} }

// pending holds writes staged by a transaction.
type pending[K comparable, V any] struct {
	creates map[K]V
	updates map[K]V
}

func newPending[K comparable, V any]() pending[K, V] {
	return pending[K, V]{creates: make(map[K]V), updates: make(map[K]V)}
}

func (p pending[K, V]) get(k K) (V, bool) {
	if v, ok := p.creates[k]; ok {
		return v, true
	}
	v, ok := p.updates[k]
	return v, ok
}

func (p pending[K, V]) put(k K, v V) {
	if _, ok := p.creates[k]; ok {
		p.creates[k] = v
		return
	}
	p.updates[k] = v
}

func (p *pending[K, V]) reset() {
	*p = newPending[K, V]()
}

// checkPending verifies staged creates are still free and staged updates still
// exist in base. Caller holds the base lock.
func checkPending[K comparable, V any](p pending[K, V], base map[K]V) error {
	for k := range p.creates {
		if _, ok := base[k]; ok {
			return fmt.Errorf("commit %v: %w", k, sentinel.ErrAlreadyExists)
		}
	}
	for k := range p.updates {
		if _, ok := base[k]; !ok {
			return fmt.Errorf("commit %v: %w", k, sentinel.ErrNotFound)
		}
	}
	return nil
}

func applyPending[K comparable, V any](p pending[K, V], base map[K]V) {
	for k, v := range p.creates {
		base[k] = v
	}
	for k, v := range p.updates {
		base[k] = v
	}
}

// memTx is a read-your-writes view over InMemory. Nothing reaches the base maps
// until commit, which applies every staged write or none.
type memTx struct {
	base      *InMemory
	profiles  pending[domain.ProfileKey, models.UserProfile]
	documents pending[domain.DocumentKey, models.Document]
	sessions  pending[domain.ShareKey, models.ShareSession]
}

func (s *InMemory) begin() *memTx {
	return &memTx{
		base:      s,
		profiles:  newPending[domain.ProfileKey, models.UserProfile](),
		documents: newPending[domain.DocumentKey, models.Document](),
		sessions:  newPending[domain.ShareKey, models.ShareSession](),
	}
}

func (t *memTx) Profiles() ports.ProfileStore   { return &memProfiles{tx: t} }
func (t *memTx) Documents() ports.DocumentStore { return &memDocuments{tx: t} }
func (t *memTx) Sessions() ports.SessionStore   { return &memSessions{tx: t} }

func (t *memTx) commit() error {
	t.base.mu.Lock()
	defer t.base.mu.Unlock()
	defer t.discard()

	if err := checkPending(t.profiles, t.base.profiles); err != nil {
		return err
	}
	if err := checkPending(t.documents, t.base.documents); err != nil {
		return err
	}
	if err := checkPending(t.sessions, t.base.sessions); err != nil {
		return err
	}
	applyPending(t.profiles, t.base.profiles)
	applyPending(t.documents, t.base.documents)
	applyPending(t.sessions, t.base.sessions)
	return nil
}

func (t *memTx) discard() {
	t.profiles.reset()
	t.documents.reset()
	t.sessions.reset()
}

func (t *memTx) profile(k domain.ProfileKey) (models.UserProfile, bool) {
	if v, ok := t.profiles.get(k); ok {
		return v, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	v, ok := t.base.profiles[k]
	return v, ok
}

func (t *memTx) document(k domain.DocumentKey) (models.Document, bool) {
	if v, ok := t.documents.get(k); ok {
		return v, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	v, ok := t.base.documents[k]
	return v, ok
}

func (t *memTx) session(k domain.ShareKey) (models.ShareSession, bool) {
	if v, ok := t.sessions.get(k); ok {
		return v, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	v, ok := t.base.sessions[k]
	return v, ok
}

type memProfiles struct {
	tx         *memTx
	autocommit bool
}

func (s *memProfiles) Create(_ context.Context, p *models.UserProfile) error {
	if _, ok := s.tx.profile(p.Key); ok {
		return fmt.Errorf("profile %s: %w", p.Key, sentinel.ErrAlreadyExists)
	}
	s.tx.profiles.creates[p.Key] = *p
	return s.done()
}

func (s *memProfiles) FindByKey(_ context.Context, key domain.ProfileKey) (*models.UserProfile, error) {
	p, ok := s.tx.profile(key)
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", key, sentinel.ErrNotFound)
	}
	return &p, nil
}

func (s *memProfiles) Update(_ context.Context, p *models.UserProfile) error {
	if _, ok := s.tx.profile(p.Key); !ok {
		return fmt.Errorf("profile %s: %w", p.Key, sentinel.ErrNotFound)
	}
	s.tx.profiles.put(p.Key, *p)
	return s.done()
}

func (s *memProfiles) done() error {
	if s.autocommit {
		return s.tx.commit()
	}
	return nil
}

type memDocuments struct {
	tx         *memTx
	autocommit bool
}

func (s *memDocuments) Create(_ context.Context, d *models.Document) error {
	if _, ok := s.tx.document(d.Key); ok {
		return fmt.Errorf("document %s: %w", d.Key, sentinel.ErrAlreadyExists)
	}
	s.tx.documents.creates[d.Key] = *d
	if s.autocommit {
		return s.tx.commit()
	}
	return nil
}

func (s *memDocuments) FindByKey(_ context.Context, key domain.DocumentKey) (*models.Document, error) {
	d, ok := s.tx.document(key)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", key, sentinel.ErrNotFound)
	}
	return &d, nil
}

func (s *memDocuments) FindByKeys(_ context.Context, keys []domain.DocumentKey) ([]*models.Document, error) {
	out := make([]*models.Document, 0, len(keys))
	for _, k := range keys {
		if d, ok := s.tx.document(k); ok {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

type memSessions struct {
	tx         *memTx
	autocommit bool
}

func (s *memSessions) Create(_ context.Context, sess *models.ShareSession) error {
	if _, ok := s.tx.session(sess.Key); ok {
		return fmt.Errorf("session %s: %w", sess.Key, sentinel.ErrAlreadyExists)
	}
	s.tx.sessions.creates[sess.Key] = cloneSession(*sess)
	return s.done()
}

func (s *memSessions) FindByKey(_ context.Context, key domain.ShareKey) (*models.ShareSession, error) {
	sess, ok := s.tx.session(key)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, sentinel.ErrNotFound)
	}
	out := cloneSession(sess)
	return &out, nil
}

func (s *memSessions) Update(_ context.Context, sess *models.ShareSession) error {
	if _, ok := s.tx.session(sess.Key); !ok {
		return fmt.Errorf("session %s: %w", sess.Key, sentinel.ErrNotFound)
	}
	s.tx.sessions.put(sess.Key, cloneSession(*sess))
	return s.done()
}

func (s *memSessions) ListByDocument(_ context.Context, doc domain.DocumentKey) ([]*models.ShareSession, error) {
	return s.list(func(sess models.ShareSession) bool { return sess.Document == doc }), nil
}

func (s *memSessions) ListExpiredUnrevoked(_ context.Context, doc domain.DocumentKey, now time.Time) ([]*models.ShareSession, error) {
	return s.list(func(sess models.ShareSession) bool {
		return sess.Document == doc && !sess.Revoked && sess.IsExpired(now)
	}), nil
}

func (s *memSessions) list(match func(models.ShareSession) bool) []*models.ShareSession {
	merged := make(map[domain.ShareKey]models.ShareSession)
	s.tx.base.mu.RLock()
	for k, v := range s.tx.base.sessions {
		merged[k] = v
	}
	s.tx.base.mu.RUnlock()
	for k, v := range s.tx.sessions.creates {
		merged[k] = v
	}
	for k, v := range s.tx.sessions.updates {
		merged[k] = v
	}

	out := make([]*models.ShareSession, 0)
	for _, v := range merged {
		if match(v) {
			c := cloneSession(v)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memSessions) done() error {
	if s.autocommit {
		return s.tx.commit()
	}
	return nil
}

func cloneSession(s models.ShareSession) models.ShareSession {
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		s.RevokedAt = &t
	}
	return s
}
