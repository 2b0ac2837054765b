package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
)

type fakeSink struct {
	registrations []RegistrationRecord
	subscriptions []SubscriptionRecord
}

func (f *fakeSink) RecordRegistration(ctx context.Context, rec RegistrationRecord) {
	f.registrations = append(f.registrations, rec)
}

func (f *fakeSink) RecordSubscription(ctx context.Context, rec SubscriptionRecord) {
	f.subscriptions = append(f.subscriptions, rec)
}

func TestBridgeRecordSkipsNoOpEvents(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	bridge := NewBridge(sink)

	bindings := []classifier.ClassifiedBinding{
		{BindingID: "B1", Event: classifier.ContactRegistered},
	}
	subs := []classifier.ClassifiedSubscription{
		{SubscriptionID: "S1", Event: classifier.SubUnchanged},
	}

	bridge.Record(context.Background(), now, "alice", bindings, subs)

	if len(sink.registrations) != 0 || len(sink.subscriptions) != 0 {
		t.Errorf("unchanged/registered events must not emit analytics records, got %v %v", sink.registrations, sink.subscriptions)
	}
}

func TestBridgeRecordCreatedUsesDeltaFromNow(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	bridge := NewBridge(sink)

	bindings := []classifier.ClassifiedBinding{
		{BindingID: "B1", New: &aor.Binding{ContactURI: "sip:a@1", Expires: now.Add(3600 * time.Second)}, Event: classifier.ContactCreated},
	}

	bridge.Record(context.Background(), now, "alice", bindings, nil)

	if len(sink.registrations) != 1 {
		t.Fatalf("registrations = %d, want 1", len(sink.registrations))
	}
	got := sink.registrations[0].ExpiresDeltaSeconds
	if got < 3599 || got > 3600 {
		t.Errorf("ExpiresDeltaSeconds = %d, want ~3600", got)
	}
}

func TestBridgeRecordTerminalEventsUseZeroDelta(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	bridge := NewBridge(sink)

	bindings := []classifier.ClassifiedBinding{
		{BindingID: "B1", Old: &aor.Binding{ContactURI: "sip:a@1"}, Event: classifier.ContactDeactivated},
	}
	subs := []classifier.ClassifiedSubscription{
		{SubscriptionID: "S1", Old: &aor.Subscription{ReqURI: "sip:a@1"}, Event: classifier.SubTerminated, Reason: classifier.ReasonDeactivated},
	}

	bridge.Record(context.Background(), now, "alice", bindings, subs)

	if sink.registrations[0].ExpiresDeltaSeconds != 0 {
		t.Errorf("deactivated binding must record 0 delta, got %d", sink.registrations[0].ExpiresDeltaSeconds)
	}
	if sink.subscriptions[0].ExpiresDeltaSeconds != 0 {
		t.Errorf("terminated subscription must record 0 delta, got %d", sink.subscriptions[0].ExpiresDeltaSeconds)
	}
}

func TestBridgeRecordRefreshedUsesDeltaBetweenOldAndNew(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	bridge := NewBridge(sink)

	bindings := []classifier.ClassifiedBinding{
		{
			BindingID: "B1",
			Old:       &aor.Binding{Expires: now.Add(3600 * time.Second)},
			New:       &aor.Binding{Expires: now.Add(7200 * time.Second)},
			Event:     classifier.ContactRefreshed,
		},
	}

	bridge.Record(context.Background(), now, "alice", bindings, nil)

	if got := sink.registrations[0].ExpiresDeltaSeconds; got != 3600 {
		t.Errorf("ExpiresDeltaSeconds = %d, want 3600", got)
	}
}
