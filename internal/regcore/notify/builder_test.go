package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
)

func TestBuildNotifySetsEventAndSubscriptionState(t *testing.T) {
	now := time.Now()
	sub := &aor.Subscription{
		SubscriptionID: "S1:F1",
		ReqURI:         "sip:watcher@example.com",
		FromURI:        "sip:alice@example.com",
		FromTag:        "from-tag",
		ToURI:          "sip:scscf.example.com",
		ToTag:          "to-tag",
		CallID:         "call-1",
		Expires:        now.Add(600 * time.Second),
	}
	cs := classifier.ClassifiedSubscription{
		SubscriptionID: "S1:F1",
		New:            sub,
		Event:          classifier.SubRefreshed,
		NotifyRequired: true,
	}

	b := NewBuilder("sip:scscf.example.com")
	req, err := b.BuildNotify(now, cs, []byte("<reginfo/>"), 4)
	if err != nil {
		t.Fatalf("BuildNotify: %v", err)
	}

	eventHdr := req.GetHeader("Event")
	if eventHdr == nil || eventHdr.Value() != "reg" {
		t.Errorf("Event header = %v, want reg", eventHdr)
	}

	stateHdr := req.GetHeader("Subscription-State")
	if stateHdr == nil || !strings.HasPrefix(stateHdr.Value(), "active;expires=") {
		t.Errorf("Subscription-State header = %v, want active;expires=...", stateHdr)
	}

	cseqHdr := req.CSeq()
	if cseqHdr == nil || cseqHdr.SeqNo != 4 {
		t.Errorf("CSeq = %v, want 4", cseqHdr)
	}
}

func TestBuildNotifyTerminatedSubscriptionStateCarriesReason(t *testing.T) {
	now := time.Now()
	sub := &aor.Subscription{
		ReqURI:  "sip:watcher@example.com",
		FromURI: "sip:alice@example.com",
		ToURI:   "sip:scscf.example.com",
		CallID:  "call-1",
	}
	cs := classifier.ClassifiedSubscription{
		Old:            sub,
		Event:          classifier.SubTerminated,
		Reason:         classifier.ReasonDeactivated,
		NotifyRequired: true,
	}

	b := NewBuilder("sip:scscf.example.com")
	req, err := b.BuildNotify(now, cs, []byte("<reginfo/>"), 1)
	if err != nil {
		t.Fatalf("BuildNotify: %v", err)
	}

	stateHdr := req.GetHeader("Subscription-State")
	if stateHdr == nil || stateHdr.Value() != "terminated;reason=deactivated" {
		t.Errorf("Subscription-State header = %v, want terminated;reason=deactivated", stateHdr)
	}
}

func TestBuildNotifyRejectsInvalidRequestURI(t *testing.T) {
	cs := classifier.ClassifiedSubscription{
		New: &aor.Subscription{ReqURI: "not a uri"},
	}
	b := NewBuilder("sip:scscf.example.com")
	if _, err := b.BuildNotify(time.Now(), cs, nil, 1); err == nil {
		t.Errorf("expected error for invalid request uri")
	}
}
