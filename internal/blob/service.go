// Package blob hands out presigned URLs for the encrypted document blobs that
// documents reference by blob_uri. The locker never proxies blob bytes.
package blob

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/requestcontext"
)

const (
	keyPrefix = "documents/"
	// ownerPrefixLen is how much of the profile key scopes an owner's objects.
	ownerPrefixLen = 16

	defaultExpires = 15 * time.Minute
)

// Upload is a presigned PUT for a fresh object.
type Upload struct {
	Key       string
	BlobURI   string
	URL       string
	ExpiresAt time.Time
}

// Download is a presigned GET for an existing object.
type Download struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

type Service struct {
	presigner Presigner
	bucket    string
	expires   time.Duration
}

func NewService(presigner Presigner, bucket string, expires time.Duration) (*Service, error) {
	if presigner == nil {
		return nil, errors.New("presigner is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if expires <= 0 {
		expires = defaultExpires
	}
	return &Service{presigner: presigner, bucket: bucket, expires: expires}, nil
}

// NewUpload allocates an object key under owner's prefix and presigns a PUT.
func (s *Service) NewUpload(ctx context.Context, owner domain.Principal) (*Upload, error) {
	key := ownerPrefix(owner) + uuid.NewString()
	url, err := s.presigner.PresignPut(ctx, s.bucket, key, s.expires)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to presign upload")
	}
	return &Upload{
		Key:       key,
		BlobURI:   s.URI(key),
		URL:       url,
		ExpiresAt: requestcontext.Now(ctx).Add(s.expires),
	}, nil
}

// NewDownload presigns a GET for key. Only the owner whose prefix the key
// carries may read it.
func (s *Service) NewDownload(ctx context.Context, owner domain.Principal, key string) (*Download, error) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, keyPrefix) || strings.Contains(key, "..") {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid blob key")
	}
	if !strings.HasPrefix(key, ownerPrefix(owner)) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "blob belongs to another owner")
	}
	url, err := s.presigner.PresignGet(ctx, s.bucket, key, s.expires)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to presign download")
	}
	return &Download{
		Key:       key,
		URL:       url,
		ExpiresAt: requestcontext.Now(ctx).Add(s.expires),
	}, nil
}

// URI is the blob_uri stored on a document for key.
func (s *Service) URI(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func ownerPrefix(owner domain.Principal) string {
	return keyPrefix + domain.DeriveProfileKey(owner).String()[:ownerPrefixLen] + "/"
}
