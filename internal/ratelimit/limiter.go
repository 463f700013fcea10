// Package ratelimit tracks per-API-key request counts in a fixed one-hour
// window anchored at first use. The policy is pluggable: a process-local map
// for single-instance deployments, Redis-backed counters when requests may
// land on multiple instances.
package ratelimit

import (
	"context"
	"time"
)

// Window is the rolling interval a key's rate_limit applies to.
const Window = time.Hour

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow checks and increments the counter for keyID. The counter is
	// advisory: losing it (process restart, Redis flush) resets the window
	// rather than failing requests.
	Allow(ctx context.Context, keyID string, limit int) (Result, error)
}
