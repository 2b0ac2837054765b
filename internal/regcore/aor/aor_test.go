package aor

import (
	"testing"
	"time"
)

func TestBindingIsExpired(t *testing.T) {
	now := time.Now()
	b := &Binding{Expires: now.Add(time.Second)}
	if b.IsExpired(now) {
		t.Errorf("binding expiring in the future reported expired")
	}

	expired := &Binding{Expires: now}
	if !expired.IsExpired(now) {
		t.Errorf("binding with Expires == now must be classified expired")
	}

	past := &Binding{Expires: now.Add(-time.Second)}
	if !past.IsExpired(now) {
		t.Errorf("binding with Expires in the past must be expired")
	}
}

func TestBindingTTLClampsToZero(t *testing.T) {
	now := time.Now()
	b := &Binding{Expires: now.Add(-10 * time.Second)}
	if got := b.TTL(now); got != 0 {
		t.Errorf("TTL() = %v, want 0", got)
	}
}

func TestGenerateBindingIDStableForSameContact(t *testing.T) {
	id1 := GenerateBindingID("sip:alice@1.2.3.4", "urn:uuid:abc")
	id2 := GenerateBindingID("sip:alice@1.2.3.4", "urn:uuid:abc")
	if id1 != id2 {
		t.Errorf("GenerateBindingID not stable: %q != %q", id1, id2)
	}
	if len(id1) != 16 {
		t.Errorf("GenerateBindingID length = %d, want 16", len(id1))
	}

	other := GenerateBindingID("sip:alice@1.2.3.4", "urn:uuid:def")
	if id1 == other {
		t.Errorf("different instance ids produced the same binding id")
	}
}

func TestDefaultURIPrefersNonBarred(t *testing.T) {
	a := New("sip:alice@example.com", "sip:scscf.example.com")
	a.AssociatedURIs = []AssociatedURI{
		{URI: "sip:alice-barred@example.com", Barred: true},
		{URI: "sip:alice@example.com", Barred: false},
	}
	if got := a.DefaultURI(); got != "sip:alice@example.com" {
		t.Errorf("DefaultURI() = %q, want sip:alice@example.com", got)
	}
}

func TestDefaultURIFallsBackToPublicID(t *testing.T) {
	a := New("sip:alice@example.com", "sip:scscf.example.com")
	if got := a.DefaultURI(); got != a.DefaultPublicID {
		t.Errorf("DefaultURI() = %q, want fallback to DefaultPublicID", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New("sip:alice@example.com", "sip:scscf.example.com")
	a.Bindings["b1"] = &Binding{ContactURI: "sip:a@1.2.3.4", Path: []string{"sip:proxy1"}}
	a.NotifyCSeq = 5

	clone := a.Clone()
	clone.Bindings["b1"].ContactURI = "sip:mutated@5.6.7.8"
	clone.Bindings["b1"].Path[0] = "sip:mutated-proxy"
	clone.NotifyCSeq = 99

	if a.Bindings["b1"].ContactURI != "sip:a@1.2.3.4" {
		t.Errorf("mutating clone leaked into original binding contact")
	}
	if a.Bindings["b1"].Path[0] != "sip:proxy1" {
		t.Errorf("mutating clone leaked into original binding path")
	}
	if a.NotifyCSeq != 5 {
		t.Errorf("mutating clone leaked into original NotifyCSeq")
	}
}

func TestEmpty(t *testing.T) {
	var nilAoR *AoR
	if !nilAoR.Empty() {
		t.Errorf("nil AoR must report Empty")
	}

	a := New("sip:alice@example.com", "sip:scscf.example.com")
	if !a.Empty() {
		t.Errorf("AoR with no bindings must report Empty")
	}

	a.Bindings["b1"] = &Binding{}
	if a.Empty() {
		t.Errorf("AoR with a binding must not report Empty")
	}
}
