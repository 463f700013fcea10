// Package api assembles the HTTP surface: REST endpoints for the dashboard
// and key-scoped memory operations, plus the MCP JSON-RPC endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/recallhq/memory-api/internal/api/handlers"
	"github.com/recallhq/memory-api/internal/api/middleware"
	"github.com/recallhq/memory-api/internal/auth"
	"github.com/recallhq/memory-api/internal/config"
	"github.com/recallhq/memory-api/internal/embedding"
	"github.com/recallhq/memory-api/internal/mcp"
	"github.com/recallhq/memory-api/internal/memory"
	"github.com/recallhq/memory-api/internal/models"
	"github.com/recallhq/memory-api/internal/ratelimit"
	"github.com/recallhq/memory-api/internal/usage"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	queue usage.Enqueuer
}

// NewRouter wires the service graph. The redis client and queue may be nil;
// rate limiting then falls back to the in-process limiter and usage
// accounting to direct best-effort writes.
func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, queue usage.Enqueuer) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		queue: queue,
	}
}

func (rt *Router) Setup() (http.Handler, error) {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	var limiter ratelimit.Limiter
	if rt.redis != nil {
		limiter = ratelimit.NewRedisLimiter(rt.redis)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	store := auth.NewStore(rt.db, rt.cfg.Auth.SessionTTL, rt.cfg.Auth.DefaultRateLimit)
	authenticator := auth.NewAuthenticator(store, limiter)

	usageSvc := usage.NewService(rt.db)
	recorder := usage.NewRecorder(rt.queue, usageSvc)

	apikeyMW := auth.NewAPIKeyMiddleware(authenticator, store, rt.cfg.Auth.APIKeyHeader, recorder)
	sessionMW := auth.NewSessionMiddleware(store)

	embedder, err := embedding.NewProvider(rt.cfg.Embedding)
	if err != nil {
		return nil, err
	}
	memorySvc := memory.NewPGService(rt.db, embedder, rt.cfg.Embedding.Dimension)

	// Credential endpoints: no key exists yet, so limit by client address.
	authH := handlers.NewAuthHandler(store)
	ipLimit := middleware.NewIPRateLimiter(5, 10)
	r.Route("/auth", func(r chi.Router) {
		r.Use(ipLimit.Limit)
		r.Post("/signup", authH.Signup)
		r.Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
		r.Get("/me", authH.Me)
	})

	// Dashboard key management: session cookie required.
	keyH := handlers.NewAPIKeyHandler(store, usageSvc)
	r.Group(func(r chi.Router) {
		r.Use(sessionMW.Require)
		r.Post("/generate-api-key", keyH.Generate)
		r.Get("/manage-api-keys", keyH.Manage)
		r.Post("/manage-api-keys", keyH.Manage)
		r.Delete("/manage-api-keys", keyH.Manage)
	})

	// Memory endpoints: API key required, scope per operation.
	memH := handlers.NewMemoryHandler(memorySvc)
	r.Group(func(r chi.Router) {
		r.Use(apikeyMW.Authenticate)
		r.With(apikeyMW.RequireScope(models.ScopeWrite)).Post("/store-memory", memH.Store)
		r.With(apikeyMW.RequireScope(models.ScopeRead)).Post("/retrieve-memories", memH.Retrieve)
		r.With(apikeyMW.RequireScope(models.ScopeRead)).Get("/list-memories", memH.List)
		r.With(apikeyMW.RequireScope(models.ScopeWrite)).Post("/delete-memory", memH.Delete)
	})

	// MCP: authentication happens inside the dispatcher because key-less
	// calls may auto-provision a demo credential.
	resolver := mcp.NewResolver(store, rt.cfg.MCP)
	mcpServer := mcp.NewServer(memorySvc, authenticator, resolver, recorder)
	r.Post("/mcp-server", mcpServer.ServeHTTP)
	r.Get("/mcp-stream", mcpServer.ServeStream)

	return r, nil
}
