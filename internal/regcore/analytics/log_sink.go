package analytics

import (
	"context"
	"log/slog"
)

// LogSink records accounting entries as structured log lines. It is the
// default, dependency-free sink for standalone/dev use.
type LogSink struct{}

// NewLogSink constructs a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) RecordRegistration(ctx context.Context, rec RegistrationRecord) {
	slog.Info("[ANALYTICS] registration",
		"aor", rec.AOR,
		"binding_id", rec.BindingID,
		"contact_uri", rec.ContactURI,
		"expires_delta_seconds", rec.ExpiresDeltaSeconds)
}

func (s *LogSink) RecordSubscription(ctx context.Context, rec SubscriptionRecord) {
	slog.Info("[ANALYTICS] subscription",
		"aor", rec.AOR,
		"subscription_id", rec.SubscriptionID,
		"req_uri", rec.ReqURI,
		"expires_delta_seconds", rec.ExpiresDeltaSeconds)
}
