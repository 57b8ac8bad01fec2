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

// MaxListLimit caps one page of ListDocuments.
const MaxListLimit = 100

// UploadCommand carries one document upload.
type UploadCommand struct {
	Owner       domain.Principal
	Fingerprint string
	BlobURI     string
	// Ciphertext is the encrypted sensitive value, opaque to the locker.
	Ciphertext []byte
}

// UploadResult is the stored document and the grant the caller must apply so
// the owner can decrypt it.
type UploadResult struct {
	Document *models.Document
	Access   *models.AccessChange
}

// Upload registers the ciphertext with the confidential service and stores a
// document under the owner's next index. The counter increment and the
// document commit together or not at all.
//
// Errors: CodeNotFound when owner has no profile, CodeCounterOverflow,
// CodeConfidentialService when the handle cannot be created, CodeValidation
// for oversized fields.
func (s *Service) Upload(ctx context.Context, cmd UploadCommand) (_ *UploadResult, err error) {
	start := time.Now()
	defer func() { s.observe(opUpload, start, err) }()

	if len(cmd.Fingerprint) > models.MaxFingerprintLength {
		return nil, dErrors.New(dErrors.CodeValidation, "fingerprint must be 64 bytes or less")
	}
	if len(cmd.BlobURI) > models.MaxBlobURILength {
		return nil, dErrors.New(dErrors.CodeValidation, "blob_uri must be 200 bytes or less")
	}
	if len(cmd.Ciphertext) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "ciphertext is required")
	}

	ctx = ports.WithTxScope(ctx, cmd.Owner)
	now := requestcontext.Now(ctx)
	profileKey := domain.DeriveProfileKey(cmd.Owner)

	var doc *models.Document
	err = s.tx.RunInTx(ctx, func(stores ports.Stores) error {
		profile, err := stores.Profiles().FindByKey(ctx, profileKey)
		if err != nil {
			return storeError(err, "profile not initialized", "failed to load profile")
		}
		if err := profile.CanRecordUpload(); err != nil {
			return err
		}

		handle, err := s.values.CreateHandle(ctx, cmd.Ciphertext, cmd.Owner)
		if err != nil {
			return confidentialError(err, "failed to create sensitive handle")
		}

		doc, err = models.NewDocument(profile, cmd.Fingerprint, cmd.BlobURI, handle, now)
		if err != nil {
			return asValidation(err)
		}
		if err := stores.Documents().Create(ctx, doc); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.New(dErrors.CodeConflict, "document index already taken")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
		}

		profile.ApplyUpload(now)
		if err := stores.Profiles().Update(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	access := models.GrantFor(doc.SensitiveHandle, cmd.Owner, cmd.Owner, doc.Key.String(), now)
	s.afterCommit(ctx, access)
	if s.metrics != nil {
		s.metrics.DocumentsUploaded.Inc()
	}
	s.logInfo(ctx, "document uploaded",
		"owner", cmd.Owner,
		"document_key", doc.Key,
		"document_index", doc.Index,
	)
	return &UploadResult{Document: doc, Access: access}, nil
}

// GetDocument returns a document to its owner.
//
// Errors: CodeNotFound, CodeUnauthorized when caller is not the owner.
func (s *Service) GetDocument(ctx context.Context, caller domain.Principal, key domain.DocumentKey) (*models.Document, error) {
	doc, err := s.reads.Documents().FindByKey(ctx, key)
	if err != nil {
		return nil, storeError(err, "document not found", "failed to load document")
	}
	if !doc.IsOwnedBy(caller) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the document owner can view it")
	}
	return doc, nil
}

// ListDocuments returns up to limit of owner's documents starting at index offset.
func (s *Service) ListDocuments(ctx context.Context, owner domain.Principal, offset uint64, limit int) ([]*models.Document, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	profile, err := s.GetProfile(ctx, owner)
	if err != nil {
		return nil, err
	}
	if offset >= profile.DocumentCount {
		return []*models.Document{}, nil
	}

	end := profile.DocumentCount
	if remaining := end - offset; remaining > uint64(limit) {
		end = offset + uint64(limit)
	}
	keys := make([]domain.DocumentKey, 0, end-offset)
	for i := offset; i < end; i++ {
		keys = append(keys, domain.DeriveDocumentKey(profile.Key, i))
	}

	docs, err := s.reads.Documents().FindByKeys(ctx, keys)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}
