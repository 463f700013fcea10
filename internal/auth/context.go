package auth

import (
	"context"

	"github.com/recallhq/memory-api/internal/models"
)

type ctxKey int

const (
	apiKeyCtxKey ctxKey = iota
	sessionCtxKey
)

func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyCtxKey, key)
}

func APIKeyFromContext(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(apiKeyCtxKey).(*models.APIKey)
	return k
}

func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func SessionFromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionCtxKey).(*models.Session)
	return s
}
