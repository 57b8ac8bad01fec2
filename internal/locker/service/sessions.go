package service

import (
	"context"
	"errors"
	"math"
	"time"

	"privylocker/internal/confidential"
	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/platform/sentinel"
	"privylocker/pkg/requestcontext"
)

// maxTTLSeconds is the longest ttl representable as a time.Duration.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// CreateSessionCommand grants verifier time-bounded access to a document.
type CreateSessionCommand struct {
	Owner      domain.Principal
	Document   domain.DocumentKey
	Verifier   domain.Principal
	TTLSeconds int64
}

// SessionResult is a share session and the access change the caller must apply.
// Access is nil when the call changed nothing.
type SessionResult struct {
	Session *models.ShareSession
	Access  *models.AccessChange
}

// ShareView is the public classification of a share session.
type ShareView struct {
	Session *models.ShareSession
	Status  models.SessionStatus
	// Accessible is the verifier's current right to use the derived handle.
	Accessible bool
}

// CreateSession mints a derived handle for verifier by combining the document
// handle with the encrypted zero, and binds it to an expiry.
//
// Errors: CodeNotFound for an unknown document, CodeUnauthorized when owner does
// not own it, CodeInvalidExpiry unless 0 < ttl (and within the configured cap),
// CodeSessionAlreadyExists when the (document, verifier) pair has a session,
// CodeConfidentialService when the combine fails. No record is written on error.
func (s *Service) CreateSession(ctx context.Context, cmd CreateSessionCommand) (_ *SessionResult, err error) {
	start := time.Now()
	defer func() { s.observe(opCreateSession, start, err) }()

	if cmd.Verifier.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "verifier is required")
	}

	ctx = ports.WithTxScope(ctx, cmd.Owner)
	now := requestcontext.Now(ctx)
	key := domain.DeriveShareKey(cmd.Document, cmd.Verifier)

	var session *models.ShareSession
	err = s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		doc, err := stores.Documents().FindByKey(ctx, cmd.Document)
		if err != nil {
			return storeError(err, "document not found", "failed to load document")
		}
		if !doc.IsOwnedBy(cmd.Owner) {
			return dErrors.New(dErrors.CodeUnauthorized, "only the document owner can share it")
		}
		ttl, err := s.sessionTTL(cmd.TTLSeconds)
		if err != nil {
			return err
		}

		if _, err := stores.Sessions().FindByKey(ctx, key); err == nil {
			return dErrors.New(dErrors.CodeSessionAlreadyExists, "a session already exists for this verifier")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}

		derived, err := confidential.Rekey(ctx, s.values, doc.SensitiveHandle, cmd.Owner)
		if err != nil {
			return confidentialError(err, "failed to derive session handle")
		}

		session, err = models.NewShareSession(doc, cmd.Verifier, derived, ttl, now)
		if err != nil {
			return asValidation(err)
		}
		if err := stores.Sessions().Create(ctx, session); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.New(dErrors.CodeSessionAlreadyExists, "a session already exists for this verifier")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, session)
	access := models.GrantFor(session.DerivedHandle, session.Verifier, session.Owner, session.Key.String(), now)
	s.afterCommit(ctx, access)
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	s.logInfo(ctx, "share session created",
		"owner", session.Owner,
		"document_key", session.Document,
		"share_key", session.Key,
		"verifier", session.Verifier,
		"expires_at", session.ExpiresAt,
	)
	return &SessionResult{Session: session, Access: access}, nil
}

func (s *Service) sessionTTL(seconds int64) (time.Duration, error) {
	if seconds <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidExpiry, "ttl_seconds must be positive")
	}
	if seconds > maxTTLSeconds {
		return 0, dErrors.New(dErrors.CodeInvalidExpiry, "ttl_seconds is out of range")
	}
	ttl := time.Duration(seconds) * time.Second
	if s.maxTTL > 0 && ttl > s.maxTTL {
		return 0, dErrors.New(dErrors.CodeInvalidExpiry, "ttl_seconds exceeds the maximum share lifetime")
	}
	return ttl, nil
}

// RevokeSession marks a session revoked. Revoking an already revoked session
// succeeds without a change and returns a nil Access. The record is kept.
//
// Errors: CodeNotFound, CodeUnauthorized when caller does not own the session.
func (s *Service) RevokeSession(ctx context.Context, caller domain.Principal, key domain.ShareKey) (_ *SessionResult, err error) {
	start := time.Now()
	defer func() { s.observe(opRevokeSession, start, err) }()

	ctx = ports.WithTxScope(ctx, caller)
	now := requestcontext.Now(ctx)

	var (
		session *models.ShareSession
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		var err error
		session, err = stores.Sessions().FindByKey(ctx, key)
		if err != nil {
			return storeError(err, "session not found", "failed to load session")
		}
		if err := session.CanRevoke(caller); err != nil {
			return err
		}
		changed = session.ApplyRevocation(now)
		if !changed {
			return nil
		}
		if err := stores.Sessions().Update(ctx, session); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &SessionResult{Session: session}, nil
	}

	s.invalidate(ctx, session)
	access := models.RevokeFor(session.DerivedHandle, session.Verifier, session.Owner, session.Key.String(), now)
	s.afterCommit(ctx, access)
	if s.metrics != nil {
		s.metrics.SessionsRevoked.Inc()
	}
	s.logInfo(ctx, "share session revoked",
		"owner", session.Owner,
		"share_key", session.Key,
		"verifier", session.Verifier,
	)
	return &SessionResult{Session: session, Access: access}, nil
}

// ShareStatus classifies a session at the request time. It is public: anyone
// holding the share key may check it.
func (s *Service) ShareStatus(ctx context.Context, key domain.ShareKey) (*ShareView, error) {
	session, err := s.loadSession(ctx, key)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	return &ShareView{
		Session:    session,
		Status:     session.Status(now),
		Accessible: session.IsAccessible(now),
	}, nil
}

// loadSession reads through the status cache when one is configured. Only
// sessions that are no longer accessible are cached: neither expiry nor
// revocation can be undone, so a cached entry never reports access that a
// concurrent revocation already removed.
func (s *Service) loadSession(ctx context.Context, key domain.ShareKey) (*models.ShareSession, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.cacheLookup("hit")
			return cached, nil
		case errors.Is(err, sentinel.ErrNotFound):
			s.cacheLookup("miss")
		default:
			s.cacheLookup("error")
			s.logError(ctx, "share status cache read failed", "error", err, "share_key", key)
		}
	}

	session, err := s.reads.Sessions().FindByKey(ctx, key)
	if err != nil {
		return nil, storeError(err, "session not found", "failed to load session")
	}
	if s.cache != nil && !session.IsAccessible(requestcontext.Now(ctx)) {
		if err := s.cache.Set(ctx, session, s.cacheTTL); err != nil {
			s.logError(ctx, "share status cache write failed", "error", err, "share_key", key)
		}
	}
	return session, nil
}

func (s *Service) cacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
}

// GetSession returns a session to its owner or its verifier.
func (s *Service) GetSession(ctx context.Context, caller domain.Principal, key domain.ShareKey) (*models.ShareSession, error) {
	session, err := s.reads.Sessions().FindByKey(ctx, key)
	if err != nil {
		return nil, storeError(err, "session not found", "failed to load session")
	}
	if session.Owner != caller && session.Verifier != caller {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the owner or verifier can view this session")
	}
	return session, nil
}

// ListSessions returns every session of a document to its owner.
func (s *Service) ListSessions(ctx context.Context, caller domain.Principal, doc domain.DocumentKey) ([]*models.ShareSession, error) {
	if _, err := s.GetDocument(ctx, caller, doc); err != nil {
		return nil, err
	}
	sessions, err := s.reads.Sessions().ListByDocument(ctx, doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}

// PendingRevocations lists the revoke calls an external reaper should make for
// sessions of doc that expired without being revoked. The locker itself never
// retracts a grant on expiry.
func (s *Service) PendingRevocations(ctx context.Context, caller domain.Principal, doc domain.DocumentKey) ([]*models.AccessChange, error) {
	if _, err := s.GetDocument(ctx, caller, doc); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	sessions, err := s.reads.Sessions().ListExpiredUnrevoked(ctx, doc, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired sessions")
	}
	out := make([]*models.AccessChange, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, models.RevokeFor(sess.DerivedHandle, sess.Verifier, sess.Owner, sess.Key.String(), now))
	}
	return out, nil
}
