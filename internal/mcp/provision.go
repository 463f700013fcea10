package mcp

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/recallhq/memory-api/internal/apperr"
	"github.com/recallhq/memory-api/internal/auth"
	"github.com/recallhq/memory-api/internal/config"
	"github.com/recallhq/memory-api/internal/models"
)

// KeyResolver supplies an API key for MCP requests that did not carry one.
type KeyResolver interface {
	Key(ctx context.Context) (string, error)
}

// Resolver implements demo-mode auto-provisioning: when a request arrives
// without an API key it lazily creates (or finds) a shared service account
// and key. Concurrent cold-start requests collapse into a single provision
// via singleflight; the resolved key is cached for the process lifetime.
type Resolver struct {
	store  *auth.Store
	cfg    config.MCPConfig
	group  singleflight.Group
	cached atomic.Value // string
}

func NewResolver(store *auth.Store, cfg config.MCPConfig) *Resolver {
	return &Resolver{store: store, cfg: cfg}
}

func (r *Resolver) Key(ctx context.Context) (string, error) {
	if !r.cfg.DemoMode {
		return "", apperr.New(apperr.Unauthorized, "API key required in X-API-Key header")
	}
	if v := r.cached.Load(); v != nil {
		return v.(string), nil
	}

	v, err, _ := r.group.Do("service-key", func() (any, error) {
		if v := r.cached.Load(); v != nil {
			return v.(string), nil
		}
		key, err := r.provision(ctx)
		if err != nil {
			return "", err
		}
		r.cached.Store(key)
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) provision(ctx context.Context) (string, error) {
	// Reuse an existing service key before minting a new one, so restarts
	// don't accumulate keys.
	existing, err := r.store.FindActiveKeyByName(ctx, r.cfg.ServiceKeyName)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.Key, nil
	}

	userID, err := r.store.GetUserByEmail(ctx, r.cfg.ServiceEmail)
	if apperr.KindOf(err) == apperr.NotFound {
		// Throwaway password: the service account is never logged into.
		password, perr := auth.GenerateSessionToken()
		if perr != nil {
			return "", perr
		}
		userID, err = r.store.CreateUser(ctx, r.cfg.ServiceEmail, password)
		if apperr.KindOf(err) == apperr.Conflict {
			// Another instance won the race; use its account.
			userID, err = r.store.GetUserByEmail(ctx, r.cfg.ServiceEmail)
		}
	}
	if err != nil {
		return "", err
	}

	key, err := r.store.CreateAPIKey(ctx, userID, auth.CreateKeyParams{
		Name:          r.cfg.ServiceKeyName,
		ExpiresInDays: 365,
		RateLimit:     r.cfg.ServiceRateLimit,
		Scopes:        []string{models.ScopeRead, models.ScopeWrite},
	})
	if err != nil {
		return "", err
	}
	slog.Info("provisioned MCP service key", "user_id", userID, "key_id", key.ID)
	return key.Key, nil
}
