package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"privylocker/internal/confidential"
	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/pkg/domain"
	"privylocker/pkg/platform/sentinel"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists profiles, documents and sessions in PostgreSQL.
// Counters are NUMERIC(20,0) so the full uint64 range round-trips.
type PostgresStore struct {
	db        DBTX
	forUpdate bool
}

var _ ports.Stores = (*PostgresStore)(nil)

// NewPostgres constructs a store whose writes autocommit.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to tx. Reads of mutable rows take
// row locks so read-modify-write sequences serialize.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: tx, forUpdate: true}
}

func (s *PostgresStore) Profiles() ports.ProfileStore   { return pgProfiles{s} }
func (s *PostgresStore) Documents() ports.DocumentStore { return pgDocuments{s} }
func (s *PostgresStore) Sessions() ports.SessionStore   { return pgSessions{s} }

func (s *PostgresStore) lockClause() string {
	if s.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type pgProfiles struct{ s *PostgresStore }

func (p pgProfiles) Create(ctx context.Context, profile *models.UserProfile) error {
	_, err := p.s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (key, owner, document_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, profile.Key.String(), profile.Owner.String(), formatU64(profile.DocumentCount), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create profile: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (p pgProfiles) FindByKey(ctx context.Context, key domain.ProfileKey) (*models.UserProfile, error) {
	var (
		profile models.UserProfile
		rawKey  string
		owner   string
		count   string
	)
	err := p.s.db.QueryRowContext(ctx, `
		SELECT key, owner, document_count::text, created_at, updated_at
		FROM user_profiles WHERE key = $1`+p.s.lockClause(), key.String()).
		Scan(&rawKey, &owner, &count, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if profile.DocumentCount, err = parseU64(count); err != nil {
		return nil, fmt.Errorf("find profile: document_count: %w", err)
	}
	profile.Key = domain.ProfileKey(rawKey)
	profile.Owner = domain.Principal(owner)
	return &profile, nil
}

func (p pgProfiles) Update(ctx context.Context, profile *models.UserProfile) error {
	res, err := p.s.db.ExecContext(ctx, `
		UPDATE user_profiles SET document_count = $2, updated_at = $3 WHERE key = $1
	`, profile.Key.String(), formatU64(profile.DocumentCount), profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return expectOneRow(res, "update profile")
}

type pgDocuments struct{ s *PostgresStore }

const documentColumns = `key, owner, doc_index::text, fingerprint, blob_uri, sensitive_handle, created_at`

func (d pgDocuments) Create(ctx context.Context, doc *models.Document) error {
	_, err := d.s.db.ExecContext(ctx, `
		INSERT INTO documents (key, profile_key, owner, doc_index, fingerprint, blob_uri, sensitive_handle, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.Key.String(), domain.DeriveProfileKey(doc.Owner).String(), doc.Owner.String(), formatU64(doc.Index),
		doc.Fingerprint, doc.BlobURI, doc.SensitiveHandle.String(), doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create document: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (d pgDocuments) FindByKey(ctx context.Context, key domain.DocumentKey) (*models.Document, error) {
	row := d.s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE key = $1`, key.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (d pgDocuments) FindByKeys(ctx context.Context, keys []domain.DocumentKey) ([]*models.Document, error) {
	if len(keys) == 0 {
		return []*models.Document{}, nil
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	rows, err := d.s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE key = ANY($1) ORDER BY doc_index`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Document, 0, len(keys))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("find documents: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc                  models.Document
		key, owner, index    string
		fingerprint, blobURI string
		handle               string
	)
	if err := row.Scan(&key, &owner, &index, &fingerprint, &blobURI, &handle, &doc.CreatedAt); err != nil {
		return nil, err
	}
	idx, err := parseU64(index)
	if err != nil {
		return nil, fmt.Errorf("doc_index: %w", err)
	}
	doc.Key = domain.DocumentKey(key)
	doc.Owner = domain.Principal(owner)
	doc.Index = idx
	doc.Fingerprint = fingerprint
	doc.BlobURI = blobURI
	doc.SensitiveHandle = confidential.Handle(handle)
	return &doc, nil
}

type pgSessions struct{ s *PostgresStore }

const sessionColumns = `key, owner, document_key, verifier, derived_handle, created_at, expires_at, revoked, revoked_at`

func (q pgSessions) Create(ctx context.Context, sess *models.ShareSession) error {
	_, err := q.s.db.ExecContext(ctx, `
		INSERT INTO share_sessions (key, owner, document_key, verifier, derived_handle, created_at, expires_at, revoked, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sess.Key.String(), sess.Owner.String(), sess.Document.String(), sess.Verifier.String(),
		sess.DerivedHandle.String(), sess.CreatedAt, sess.ExpiresAt, sess.Revoked, nullTime(sess.RevokedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create session: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (q pgSessions) FindByKey(ctx context.Context, key domain.ShareKey) (*models.ShareSession, error) {
	row := q.s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM share_sessions WHERE key = $1`+q.s.lockClause(), key.String())
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (q pgSessions) Update(ctx context.Context, sess *models.ShareSession) error {
	res, err := q.s.db.ExecContext(ctx, `
		UPDATE share_sessions SET revoked = $2, revoked_at = $3 WHERE key = $1
	`, sess.Key.String(), sess.Revoked, nullTime(sess.RevokedAt))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return expectOneRow(res, "update session")
}

func (q pgSessions) ListByDocument(ctx context.Context, doc domain.DocumentKey) ([]*models.ShareSession, error) {
	return q.list(ctx, `
		SELECT `+sessionColumns+` FROM share_sessions
		WHERE document_key = $1 ORDER BY created_at, key`, doc.String())
}

func (q pgSessions) ListExpiredUnrevoked(ctx context.Context, doc domain.DocumentKey, now time.Time) ([]*models.ShareSession, error) {
	return q.list(ctx, `
		SELECT `+sessionColumns+` FROM share_sessions
		WHERE document_key = $1 AND NOT revoked AND expires_at <= $2
		ORDER BY created_at, key`, doc.String(), now)
}

func (q pgSessions) list(ctx context.Context, query string, args ...any) ([]*models.ShareSession, error) {
	rows, err := q.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ShareSession, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func scanSession(row rowScanner) (*models.ShareSession, error) {
	var (
		sess                      models.ShareSession
		key, owner, doc, verifier string
		handle                    string
		revokedAt                 sql.NullTime
	)
	if err := row.Scan(&key, &owner, &doc, &verifier, &handle, &sess.CreatedAt, &sess.ExpiresAt, &sess.Revoked, &revokedAt); err != nil {
		return nil, err
	}
	sess.Key = domain.ShareKey(key)
	sess.Owner = domain.Principal(owner)
	sess.Document = domain.DocumentKey(doc)
	sess.Verifier = domain.Principal(verifier)
	sess.DerivedHandle = confidential.Handle(handle)
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	return &sess, nil
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func formatU64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
