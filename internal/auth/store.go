// Package auth is the credential store: user accounts, dashboard sessions,
// and the API keys every memory operation is scoped to.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/models"
)

const pgUniqueViolation = "23505"

type Store struct {
	db               *pgxpool.Pool
	sessionTTL       time.Duration
	defaultRateLimit int
}

func NewStore(db *pgxpool.Pool, sessionTTL time.Duration, defaultRateLimit int) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 72 * time.Hour
	}
	if defaultRateLimit <= 0 {
		defaultRateLimit = 100
	}
	return &Store{db: db, sessionTTL: sessionTTL, defaultRateLimit: defaultRateLimit}
}

func (s *Store) CreateUser(ctx context.Context, email, password string) (uuid.UUID, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.Internal, "signup failed", err)
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx,
		"INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id",
		email, hash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return uuid.Nil, apperr.New(apperr.Conflict, "email already registered")
		}
		return uuid.Nil, apperr.Wrap(apperr.Database, "signup failed", err)
	}
	return id, nil
}

func (s *Store) VerifyCredentials(ctx context.Context, email, password string) (uuid.UUID, error) {
	var id uuid.UUID
	var hash string
	err := s.db.QueryRow(ctx,
		"SELECT id, password_hash FROM users WHERE email = $1",
		email,
	).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing user and wrong password are indistinguishable.
		return uuid.Nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.Database, "login failed", err)
	}

	if !VerifyPassword(hash, password) {
		return uuid.Nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	return id, nil
}

func (s *Store) CreateSession(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.Internal, "login failed", err)
	}

	expiresAt := time.Now().Add(s.sessionTTL)
	_, err = s.db.Exec(ctx,
		"INSERT INTO sessions (user_id, token, expires_at) VALUES ($1, $2, $3)",
		userID, token, expiresAt,
	)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.Database, "login failed", err)
	}
	return token, expiresAt, nil
}

// ResolveSession returns nil for missing and expired tokens alike, so callers
// cannot be used as a token-guessing oracle. Expired rows are left in place.
func (s *Store) ResolveSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, nil
	}

	var sess models.Session
	err := s.db.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.expires_at, s.created_at, u.email
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token = $1 AND s.expires_at > NOW()`,
		token,
	).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt, &sess.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "session lookup failed", err)
	}
	sess.Token = token
	return &sess, nil
}

// DeleteSession is idempotent; deleting an absent token is not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.Exec(ctx, "DELETE FROM sessions WHERE token = $1", token); err != nil {
		return apperr.Wrap(apperr.Database, "logout failed", err)
	}
	return nil
}

// GetUserByEmail resolves an account id; NotFound when no such account.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.Database, "user lookup failed", err)
	}
	return id, nil
}

// FindActiveKeyByName returns the newest active key with the given name, or
// (nil, nil) when none exists. Used by the MCP service-account resolver.
func (s *Store) FindActiveKeyByName(ctx context.Context, name string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, key, user_id, name, is_active, rate_limit, usage_count, scopes,
		        last_used_at, expires_at, created_at
		 FROM api_keys WHERE name = $1 AND is_active = true
		 ORDER BY created_at DESC LIMIT 1`,
		name,
	).Scan(&k.ID, &k.Key, &k.UserID, &k.Name, &k.IsActive, &k.RateLimit, &k.UsageCount,
		&k.Scopes, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "API key lookup failed", err)
	}
	return &k, nil
}

type CreateKeyParams struct {
	Name          string
	ExpiresInDays int
	RateLimit     int
	Scopes        []string
}

// CreateAPIKey mints a new key. The returned model carries the raw key value;
// this is the only moment it is ever available in full.
func (s *Store) CreateAPIKey(ctx context.Context, userID uuid.UUID, params CreateKeyParams) (*models.APIKey, error) {
	raw, err := GenerateAPIKey()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to generate API key", err)
	}

	if params.Name == "" {
		params.Name = "Default Key"
	}
	if params.RateLimit <= 0 {
		params.RateLimit = s.defaultRateLimit
	}
	if len(params.Scopes) == 0 {
		params.Scopes = []string{models.ScopeRead, models.ScopeWrite}
	}

	var expiresAt *time.Time
	if params.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, params.ExpiresInDays)
		expiresAt = &t
	}

	key := &models.APIKey{
		Key:       raw,
		UserID:    userID,
		Name:      params.Name,
		IsActive:  true,
		RateLimit: params.RateLimit,
		Scopes:    params.Scopes,
		ExpiresAt: expiresAt,
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO api_keys (key, user_id, name, expires_at, rate_limit, scopes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		raw, userID, params.Name, expiresAt, params.RateLimit, params.Scopes,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to create API key", err)
	}

	return key, nil
}

// FindAPIKeyByValue returns (nil, nil) when no key matches.
func (s *Store) FindAPIKeyByValue(ctx context.Context, raw string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, key, user_id, name, is_active, rate_limit, usage_count, scopes,
		        last_used_at, expires_at, created_at
		 FROM api_keys WHERE key = $1`,
		raw,
	).Scan(&k.ID, &k.Key, &k.UserID, &k.Name, &k.IsActive, &k.RateLimit, &k.UsageCount,
		&k.Scopes, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "API key lookup failed", err)
	}
	return &k, nil
}

// GetAPIKey fetches a key by id, scoped to its owner. NotFound covers both
// absent and foreign-owned ids.
func (s *Store) GetAPIKey(ctx context.Context, userID, keyID uuid.UUID) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, key, user_id, name, is_active, rate_limit, usage_count, scopes,
		        last_used_at, expires_at, created_at
		 FROM api_keys WHERE id = $1 AND user_id = $2`,
		keyID, userID,
	).Scan(&k.ID, &k.Key, &k.UserID, &k.Name, &k.IsActive, &k.RateLimit, &k.UsageCount,
		&k.Scopes, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "API key not found or unauthorized")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "API key lookup failed", err)
	}
	return &k, nil
}

// ListAPIKeys returns the owner's keys, newest first, with values masked.
func (s *Store) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, key, user_id, name, is_active, rate_limit, usage_count, scopes,
		        last_used_at, expires_at, created_at
		 FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to list API keys", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Key, &k.UserID, &k.Name, &k.IsActive, &k.RateLimit,
			&k.UsageCount, &k.Scopes, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "failed to list API keys", err)
		}
		k.Key = MaskKey(k.Key)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to list API keys", err)
	}
	return keys, nil
}

// RotateAPIKey mints a replacement inheriting the old key's expiry, rate limit
// and scopes, then deactivates the old one. The old row stays for audit; its
// value is permanently unusable.
func (s *Store) RotateAPIKey(ctx context.Context, userID, keyID uuid.UUID) (*models.APIKey, error) {
	old, err := s.GetAPIKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	raw, err := GenerateAPIKey()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to rotate API key", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to rotate API key", err)
	}
	defer tx.Rollback(ctx)

	newKey := &models.APIKey{
		Key:       raw,
		UserID:    userID,
		Name:      old.Name + " (Rotated)",
		IsActive:  true,
		RateLimit: old.RateLimit,
		Scopes:    old.Scopes,
		ExpiresAt: old.ExpiresAt,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO api_keys (key, user_id, name, is_active, expires_at, rate_limit, scopes)
		 VALUES ($1, $2, $3, true, $4, $5, $6)
		 RETURNING id, created_at`,
		raw, userID, newKey.Name, old.ExpiresAt, old.RateLimit, old.Scopes,
	).Scan(&newKey.ID, &newKey.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to rotate API key", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE api_keys SET is_active = false WHERE id = $1", keyID); err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to rotate API key", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Database, "failed to rotate API key", err)
	}
	return newKey, nil
}

// DeleteAPIKey hard-deletes the key; memories and usage rows cascade.
func (s *Store) DeleteAPIKey(ctx context.Context, userID, keyID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM api_keys WHERE id = $1 AND user_id = $2",
		keyID, userID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Database, "failed to delete API key", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "API key not found or unauthorized")
	}
	return nil
}
