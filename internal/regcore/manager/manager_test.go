package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/notify"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// fakeTransport records every NOTIFY's CSeq without touching a socket.
type fakeTransport struct {
	cseqs []uint32
}

func (f *fakeTransport) Send(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	if c := req.CSeq(); c != nil {
		f.cseqs = append(f.cseqs, c.SeqNo)
	}
	return sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil), nil
}

// fakeHSS is an in-memory hss.Client stand-in: every public id resolves to
// the same aor-id unless explicitly registered otherwise.
type fakeHSS struct {
	irs map[string]*hss.IRSInfo
	// deregs records every UpdateRegistrationState call's reason.
	deregs []hss.DeregReason
}

func newFakeHSS(defaultIMPU string, associatedURIs []aor.AssociatedURI) *fakeHSS {
	return &fakeHSS{irs: map[string]*hss.IRSInfo{
		defaultIMPU: {DefaultIMPU: defaultIMPU, AssociatedURIs: associatedURIs, SCSCFURI: "sip:scscf.example.com"},
	}}
}

func (f *fakeHSS) GetRegistrationData(ctx context.Context, publicID string) (*hss.IRSInfo, error) {
	if info, ok := f.irs[publicID]; ok {
		return info, nil
	}
	return nil, hss.ErrNotFound
}

func (f *fakeHSS) UpdateRegistrationState(ctx context.Context, query hss.IRSQuery) (*hss.IRSInfo, error) {
	f.deregs = append(f.deregs, query.Reason)
	info, ok := f.irs[query.PublicID]
	if !ok {
		return nil, hss.ErrNotFound
	}
	return info, nil
}

func newTestManager(h *fakeHSS) *Manager {
	store := s4.NewMemoryStore(s4.MemoryStoreConfig{})
	return New(store, h, nil, nil, nil, "sip:scscf.example.com")
}

func TestRegisterSubscriberCreatesAoR(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", []aor.AssociatedURI{{URI: "sip:alice@example.com"}})
	mgr := newTestManager(h)

	bindings := map[string]*aor.Binding{
		"B1": {ContactURI: "sip:a@1.2.3.4", Expires: time.Now().Add(time.Hour)},
	}
	result, err := mgr.RegisterSubscriber(ctx, "alice", "sip:scscf.example.com", h.irs["alice"].AssociatedURIs, bindings)
	if err != nil {
		t.Fatalf("RegisterSubscriber: %v", err)
	}
	if result.Status != 200 {
		t.Fatalf("Status = %d, want 200", result.Status)
	}

	stored, _, err := mgr.Store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Store.Get: %v", err)
	}
	if len(stored.Bindings) != 1 {
		t.Errorf("stored bindings = %d, want 1", len(stored.Bindings))
	}
	if stored.NotifyCSeq != 1 {
		t.Errorf("NotifyCSeq = %d, want 1", stored.NotifyCSeq)
	}
}

func TestReregisterSubscriberCascadesSubscriptionOnContactRemoval(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", []aor.AssociatedURI{{URI: "sip:alice@example.com"}})
	mgr := newTestManager(h)

	a := aor.New("alice", "sip:scscf.example.com")
	a.AssociatedURIs = h.irs["alice"].AssociatedURIs
	a.Bindings["B1"] = &aor.Binding{ContactURI: "sip:a@1.2.3.4", Expires: time.Now().Add(time.Hour)}
	a.Subscriptions["S1"] = &aor.Subscription{SubscriptionID: "S1", ReqURI: "sip:a@1.2.3.4", Expires: time.Now().Add(time.Hour)}
	if _, err := mgr.Store.Put(ctx, "alice", a); err != nil {
		t.Fatalf("Put: %v", err)
	}

	result, err := mgr.ReregisterSubscriber(ctx, "alice", a.AssociatedURIs, nil, []string{"B1"})
	if err != nil {
		t.Fatalf("ReregisterSubscriber: %v", err)
	}
	if result.Status != 200 {
		t.Fatalf("Status = %d, want 200", result.Status)
	}

	stored, _, err := mgr.Store.Get(ctx, "alice")
	if !errors.Is(err, s4.ErrNotFound) {
		t.Fatalf("AoR with no bindings left must be gone, got err=%v stored=%v", err, stored)
	}
	if len(h.deregs) != 1 || h.deregs[0] != hss.DeregUser {
		t.Errorf("deregs = %v, want one DeregUser call", h.deregs)
	}
}

func TestDeregisterSubscriberIsIdempotentOn404(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", nil)
	mgr := newTestManager(h)

	result, err := mgr.DeregisterSubscriber(ctx, "bob", classifier.TriggerUser)
	if err != nil {
		t.Fatalf("DeregisterSubscriber: %v", err)
	}
	if result.Status != 200 {
		t.Errorf("Status = %d, want 200 (idempotent on unknown public id)", result.Status)
	}
}

func TestNotifyCSeqStrictlyIncreasesAcrossSends(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", []aor.AssociatedURI{{URI: "sip:alice@example.com"}})

	store := s4.NewMemoryStore(s4.MemoryStoreConfig{})
	transport := &fakeTransport{}
	sender := notify.NewSender(notify.NewBuilder("sip:scscf.example.com"), transport, notify.DefaultSenderConfig())
	mgr := New(store, h, sender, nil, nil, "sip:scscf.example.com")

	a := aor.New("alice", "sip:scscf.example.com")
	a.AssociatedURIs = h.irs["alice"].AssociatedURIs
	a.Bindings["B1"] = &aor.Binding{ContactURI: "sip:a@1.2.3.4", Expires: time.Now().Add(time.Hour)}
	a.Subscriptions["S1"] = &aor.Subscription{
		SubscriptionID: "S1",
		ReqURI:         "sip:watcher@5.6.7.8",
		FromURI:        "sip:watcher@5.6.7.8",
		ToURI:          "sip:alice@example.com",
		CallID:         "call-1",
		Expires:        time.Now().Add(time.Hour),
	}
	if _, err := store.Put(ctx, "alice", a); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := mgr.ReregisterSubscriber(ctx, "alice", a.AssociatedURIs, map[string]*aor.Binding{
		"B1": {ContactURI: "sip:a@1.2.3.4", Expires: time.Now().Add(2 * time.Hour)},
	}, nil); err != nil {
		t.Fatalf("first ReregisterSubscriber: %v", err)
	}
	if _, err := mgr.ReregisterSubscriber(ctx, "alice", a.AssociatedURIs, map[string]*aor.Binding{
		"B1": {ContactURI: "sip:a@1.2.3.4", Expires: time.Now().Add(3 * time.Hour)},
	}, nil); err != nil {
		t.Fatalf("second ReregisterSubscriber: %v", err)
	}

	if len(transport.cseqs) != 2 {
		t.Fatalf("NOTIFY sends = %d, want 2", len(transport.cseqs))
	}
	if transport.cseqs[1] <= transport.cseqs[0] {
		t.Errorf("second NOTIFY CSeq %d must exceed first %d", transport.cseqs[1], transport.cseqs[0])
	}

	stored, _, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Store.Get: %v", err)
	}
	if stored.Subscriptions["S1"].CSeqOfLastNotify != transport.cseqs[1] {
		t.Errorf("stored CSeqOfLastNotify = %d, want %d (the CSeq actually sent)", stored.Subscriptions["S1"].CSeqOfLastNotify, transport.cseqs[1])
	}
}

func TestUpdateAssociatedURIsNotifiesExistingSubscriptionWithoutTouchingBindings(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", []aor.AssociatedURI{{URI: "sip:alice@example.com"}})
	mgr := newTestManager(h)

	a := aor.New("alice", "sip:scscf.example.com")
	a.AssociatedURIs = h.irs["alice"].AssociatedURIs
	a.Bindings["B1"] = &aor.Binding{ContactURI: "sip:a@1.2.3.4", Expires: time.Now().Add(time.Hour)}
	a.Subscriptions["S1"] = &aor.Subscription{SubscriptionID: "S1", ReqURI: "sip:a@1.2.3.4", Expires: time.Now().Add(time.Hour)}
	a.NotifyCSeq = 1
	if _, err := mgr.Store.Put(ctx, "alice", a); err != nil {
		t.Fatalf("Put: %v", err)
	}

	newURIs := []aor.AssociatedURI{
		{URI: "sip:alice@example.com"},
		{URI: "sip:alice2@example.com"},
	}
	result, err := mgr.UpdateAssociatedURIs(ctx, "alice", newURIs)
	if err != nil {
		t.Fatalf("UpdateAssociatedURIs: %v", err)
	}
	if result.Status != 200 {
		t.Fatalf("Status = %d, want 200", result.Status)
	}
	if len(result.AssociatedURIs) != 2 {
		t.Errorf("AssociatedURIs = %v, want 2 entries", result.AssociatedURIs)
	}

	stored, _, err := mgr.Store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Store.Get: %v", err)
	}
	if len(stored.Bindings) != 1 {
		t.Errorf("bindings must be untouched, got %d", len(stored.Bindings))
	}
	if _, ok := stored.Subscriptions["S1"]; !ok {
		t.Errorf("subscription S1 must survive an associated-URIs-only update")
	}
	if stored.NotifyCSeq != 2 {
		t.Errorf("NotifyCSeq = %d, want 2 (bumped once by this patch)", stored.NotifyCSeq)
	}
}

func TestUpdateAssociatedURIsReturns404ForUnknownAoR(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", nil)
	mgr := newTestManager(h)

	result, err := mgr.UpdateAssociatedURIs(ctx, "bob", []aor.AssociatedURI{{URI: "sip:bob@example.com"}})
	if err == nil {
		t.Fatalf("UpdateAssociatedURIs on unknown AoR must fail")
	}
	if result.Status != 404 {
		t.Errorf("Status = %d, want 404", result.Status)
	}
}

func TestUpdateSubscriptionRejectsAoRWithNoBindings(t *testing.T) {
	ctx := context.Background()
	h := newFakeHSS("alice", []aor.AssociatedURI{{URI: "sip:alice@example.com"}})
	mgr := newTestManager(h)

	a := aor.New("alice", "sip:scscf.example.com")
	if _, err := mgr.Store.Put(ctx, "alice", a); err != nil {
		t.Fatalf("Put: %v", err)
	}

	sub := &aor.Subscription{ReqURI: "sip:watcher@5.6.7.8", Expires: time.Now().Add(time.Hour)}
	result, err := mgr.UpdateSubscription(ctx, "alice", "S1", sub)
	if err == nil {
		t.Fatalf("UpdateSubscription on empty AoR must fail")
	}
	if result.Status != 400 {
		t.Errorf("Status = %d, want 400", result.Status)
	}
}
