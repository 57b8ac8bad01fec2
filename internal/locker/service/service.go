// Package service implements the locker: the user registry, the document store
// and the share session manager, each running its writes in one transaction.
//
// Local state and the Confidential Value Service's access lists are two systems
// of record. Every committing operation returns the AccessChange that must be
// applied at the service. The locker emits it after commit and the configured
// publisher applies it on the caller's behalf.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"privylocker/internal/confidential"
	"privylocker/internal/locker/metrics"
	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/platform/sentinel"
)

const (
	opInitialize    = "initialize_profile"
	opUpload        = "upload_document"
	opCreateSession = "create_session"
	opRevokeSession = "revoke_session"

	// maxStatusCacheTTL bounds how long a cached session may lag a revocation
	// committed by another replica.
	maxStatusCacheTTL = 30 * time.Second
)

// Service orchestrates the locker operations.
type Service struct {
	tx        ports.StoreTx
	reads     ports.Stores
	values    confidential.Service
	publisher ports.AccessPublisher
	cache     ports.StatusCache
	cacheTTL  time.Duration
	maxTTL    time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAccessPublisher emits every committed AccessChange to p.
func WithAccessPublisher(p ports.AccessPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithStatusCache serves share status lookups from cache. ttl is capped at 30s.
func WithStatusCache(cache ports.StatusCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl <= 0 || ttl > maxStatusCacheTTL {
			ttl = maxStatusCacheTTL
		}
		s.cacheTTL = ttl
	}
}

// WithMaxShareTTL rejects share sessions longer than d. Zero means unbounded.
func WithMaxShareTTL(d time.Duration) Option {
	return func(s *Service) {
		s.maxTTL = d
	}
}

// New constructs a Service. tx scopes writes; reads serves lookups outside transactions.
func New(tx ports.StoreTx, reads ports.Stores, values confidential.Service, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("store transaction is required")
	}
	if reads == nil {
		return nil, errors.New("read stores are required")
	}
	if values == nil {
		return nil, errors.New("confidential value service is required")
	}
	s := &Service{tx: tx, reads: reads, values: values}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// afterCommit publishes the access change and never fails the operation: the
// local commit is durable and the change is returned to the caller regardless.
func (s *Service) afterCommit(ctx context.Context, change *models.AccessChange) {
	if change == nil || s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, *change); err != nil {
		if s.metrics != nil {
			s.metrics.AccessPublishErrors.Inc()
		}
		s.logError(ctx, "failed to publish access change",
			"error", err,
			"action", change.Action,
			"subject", change.Subject,
		)
	}
}

func (s *Service) invalidate(ctx context.Context, change *models.ShareSession) {
	if s.cache == nil || change == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, change.Key); err != nil {
		s.logError(ctx, "failed to invalidate share status cache",
			"error", err,
			"share_key", change.Key,
		)
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(op, start)
	if err != nil {
		s.metrics.IncrementFailure(op, string(dErrors.CodeOf(err)))
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg, args...)
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg, args...)
}

// asValidation converts constructor invariant violations to validation errors
// and passes every other code through.
func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}

// storeError maps store failures. Coded errors pass through, not-found becomes
// CodeNotFound with msg, anything else is internal.
func storeError(err error, notFound string, internal string) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internal)
}

func confidentialError(err error, msg string) error {
	return dErrors.Wrap(err, dErrors.CodeConfidentialService, msg)
}
