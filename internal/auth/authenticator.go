package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/models"
	"github.com/recallhq/memory-api/internal/ratelimit"
)

// KeyFinder is the slice of Store the authenticator needs.
type KeyFinder interface {
	FindAPIKeyByValue(ctx context.Context, raw string) (*models.APIKey, error)
}

// Authenticator runs the per-request key state machine shared by REST and
// MCP: lookup, active/expiry checks, then the rolling-window rate check.
type Authenticator struct {
	keys    KeyFinder
	limiter ratelimit.Limiter
}

func NewAuthenticator(keys KeyFinder, limiter ratelimit.Limiter) *Authenticator {
	return &Authenticator{keys: keys, limiter: limiter}
}

// Authenticate validates rawKey and charges it one request against its rate
// limit. Not-found and inactive yield the same client-facing message; the
// distinction exists only in server logs, so callers cannot enumerate keys.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if rawKey == "" {
		return nil, apperr.New(apperr.Unauthorized,
			"API key is required. Please provide an API key in the X-API-Key header")
	}

	key, err := a.keys.FindAPIKeyByValue(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	if key == nil {
		slog.Debug("API key rejected", "reason", "not found")
		return nil, apperr.New(apperr.Unauthorized, "invalid or inactive API key")
	}
	if !key.IsActive {
		slog.Debug("API key rejected", "reason", "inactive", "key_id", key.ID)
		return nil, apperr.New(apperr.Unauthorized, "invalid or inactive API key")
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		slog.Debug("API key rejected", "reason", "expired", "key_id", key.ID)
		return key, apperr.New(apperr.Unauthorized, "API key has expired")
	}

	res, err := a.limiter.Allow(ctx, key.ID.String(), key.RateLimit)
	if err != nil {
		// The counter is advisory; a broken limiter backend should not
		// take the API down with it.
		slog.Warn("rate limiter unavailable, allowing request", "key_id", key.ID, "error", err)
		return key, nil
	}
	if !res.Allowed {
		return key, apperr.Newf(apperr.TooManyRequests,
			"Rate limit exceeded. Maximum %d requests per hour", key.RateLimit).
			WithRetryAfter(res.RetryAfter)
	}

	return key, nil
}
