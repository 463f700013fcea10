package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/recallhq/memory-api/internal/queue"
	"github.com/recallhq/memory-api/internal/usage"
)

// UsageWorker drains usage:record tasks into the append-only log.
type UsageWorker struct {
	svc *usage.Service
}

func NewUsageWorker(svc *usage.Service) *UsageWorker {
	return &UsageWorker{svc: svc}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.UsageRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal usage payload: %w", err)
	}

	keyID, err := uuid.Parse(payload.APIKeyID)
	if err != nil {
		return fmt.Errorf("parse api key id %q: %w", payload.APIKeyID, err)
	}

	return w.svc.Append(ctx, keyID, payload.Endpoint, payload.Method, payload.StatusCode)
}
