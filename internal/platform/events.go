// AngelaMos | 2026
// events.go

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/acey-control-center/internal/notification"
)

const recentEventsKey = "acey:events:recent"

// EventLog keeps the most recent platform events in a capped Redis list,
// oldest first.
type EventLog struct {
	client   *redis.Client
	capacity int64
	now      func() time.Time
}

func NewEventLog(client *redis.Client, capacity int64) *EventLog {
	return &EventLog{client: client, capacity: capacity, now: time.Now}
}

func (l *EventLog) Append(ctx context.Context, eventType string, data map[string]any) error {
	e := notification.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: l.now().UTC(),
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, recentEventsKey, body)
	if l.capacity > 0 {
		pipe.LTrim(ctx, recentEventsKey, -l.capacity, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	return nil
}

func (l *EventLog) Recent(ctx context.Context) ([]notification.Event, error) {
	raw, err := l.client.LRange(ctx, recentEventsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}

	events := make([]notification.Event, 0, len(raw))
	for _, item := range raw {
		var e notification.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, e)
	}

	return events, nil
}
