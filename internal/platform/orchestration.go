// AngelaMos | 2026
// orchestration.go

package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/acey-control-center/internal/collaborator"
)

const OrchestrationStream = "acey:orchestration"

// Orchestrator hands permission bundles to the assistant orchestration
// service by appending them to a Redis stream.
type Orchestrator struct {
	client *redis.Client
	maxLen int64
}

func NewOrchestrator(client *redis.Client, maxLen int64) *Orchestrator {
	return &Orchestrator{client: client, maxLen: maxLen}
}

func (o *Orchestrator) Publish(
	ctx context.Context,
	payload collaborator.OrchestrationPayload,
) (collaborator.Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return collaborator.Ack{}, fmt.Errorf("encode orchestration payload: %w", err)
	}

	id, err := o.client.XAdd(ctx, &redis.XAddArgs{
		Stream: OrchestrationStream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]any{
			"user_id": payload.UserID,
			"action":  string(payload.Action),
			"payload": body,
		},
	}).Result()
	if err != nil {
		return collaborator.Ack{}, fmt.Errorf("publish orchestration: %w", err)
	}

	return collaborator.Ack{ID: id, Accepted: true}, nil
}
