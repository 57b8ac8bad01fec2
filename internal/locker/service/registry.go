package service

import (
	"context"
	"errors"
	"time"

	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/platform/sentinel"
	"privylocker/pkg/requestcontext"
)

// InitializeProfile registers owner with an empty document counter.
//
// Errors: CodeAlreadyInitialized when a profile exists for owner.
func (s *Service) InitializeProfile(ctx context.Context, owner domain.Principal) (_ *models.UserProfile, err error) {
	start := time.Now()
	defer func() { s.observe(opInitialize, start, err) }()

	ctx = ports.WithTxScope(ctx, owner)
	profile, err := models.NewUserProfile(owner, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}

	err = s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		if err := stores.Profiles().Create(ctx, profile); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.New(dErrors.CodeAlreadyInitialized, "profile already initialized")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ProfilesInitialized.Inc()
	}
	s.logInfo(ctx, "profile initialized",
		"owner", owner,
		"profile_key", profile.Key,
	)
	return profile, nil
}

// GetProfile returns owner's profile.
func (s *Service) GetProfile(ctx context.Context, owner domain.Principal) (*models.UserProfile, error) {
	profile, err := s.reads.Profiles().FindByKey(ctx, domain.DeriveProfileKey(owner))
	if err != nil {
		return nil, storeError(err, "profile not initialized", "failed to load profile")
	}
	return profile, nil
}
