package analytics

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis list keys the sink RPUSHes accounting records onto, repurposing
// the teacher's dotted subject-naming convention from events.subjects.go
// ("switchboard.registrations.<endpoint>") for reg-event accounting
// streams instead of call events.
const (
	registrationStreamKey = "regcore.analytics.registrations"
	subscriptionStreamKey = "regcore.analytics.subscriptions"
)

// RedisSink is a fire-and-forget accounting sink: it RPUSHes a JSON
// envelope per record and never blocks the caller on a failed push beyond
// logging it, matching the "analytics sink" out-of-scope collaborator's
// best-effort contract.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink constructs a RedisSink over an already-connected client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) RecordRegistration(ctx context.Context, rec RegistrationRecord) {
	encoded, err := json.Marshal(rec)
	if err != nil {
		slog.Error("[ANALYTICS] failed to encode registration record", "error", err)
		return
	}
	if err := s.client.RPush(ctx, registrationStreamKey, encoded).Err(); err != nil {
		slog.Warn("[ANALYTICS] failed to push registration record", "error", err)
	}
}

func (s *RedisSink) RecordSubscription(ctx context.Context, rec SubscriptionRecord) {
	encoded, err := json.Marshal(rec)
	if err != nil {
		slog.Error("[ANALYTICS] failed to encode subscription record", "error", err)
		return
	}
	if err := s.client.RPush(ctx, subscriptionStreamKey, encoded).Err(); err != nil {
		slog.Warn("[ANALYTICS] failed to push subscription record", "error", err)
	}
}
