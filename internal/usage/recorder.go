package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Enqueuer hands a usage record to the background queue. Implemented by
// queue.Client; nil when Redis is unavailable.
type Enqueuer interface {
	EnqueueUsageRecord(apiKeyID, endpoint, method string, statusCode int) error
}

// Recorder is the fire-and-forget front for usage accounting. It prefers the
// queue; without one (or on enqueue failure) it falls back to a detached
// direct write. Failures are swallowed and logged, never returned.
type Recorder struct {
	queue Enqueuer
	svc   *Service
}

func NewRecorder(queue Enqueuer, svc *Service) *Recorder {
	return &Recorder{queue: queue, svc: svc}
}

func (r *Recorder) Record(apiKeyID uuid.UUID, endpoint, method string, statusCode int) {
	if r.queue != nil {
		err := r.queue.EnqueueUsageRecord(apiKeyID.String(), endpoint, method, statusCode)
		if err == nil {
			return
		}
		slog.Warn("usage enqueue failed, writing directly", "error", err)
	}

	if r.svc == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.svc.Append(ctx, apiKeyID, endpoint, method, statusCode); err != nil {
			slog.Warn("usage write failed", "api_key_id", apiKeyID, "error", err)
		}
	}()
}
