// Package aor defines the Address-of-Record document: the in-memory shape
// of a subscriber's bindings, reg-event subscriptions and associated URIs.
package aor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AssociatedURI is one member of an AoR's implicit registration set.
type AssociatedURI struct {
	URI    string `json:"uri"`
	Barred bool   `json:"barred,omitempty"`
}

// Binding is a single contact registered against an AoR via REGISTER.
type Binding struct {
	AddressOfRecord string `json:"address_of_record"`
	ContactURI      string `json:"contact_uri"`
	CallID          string `json:"call_id"`
	CSeq            uint32 `json:"cseq"`

	// Expires is the absolute expiration instant. A binding with
	// Expires after now is active; at or before now it is implicitly
	// expired and must not appear in a committed AoR.
	Expires time.Time `json:"expires"`

	QValue    float32  `json:"q,omitempty"`
	Path      []string `json:"path,omitempty"`
	PrivateID string   `json:"private_id,omitempty"`
	Emergency bool     `json:"emergency,omitempty"`
	TimerID   string   `json:"timer_id,omitempty"`
}

// IsExpired reports whether the binding is expired as of now.
func (b *Binding) IsExpired(now time.Time) bool {
	return !b.Expires.After(now)
}

// TTL returns the remaining time until expiration, clamped to zero.
func (b *Binding) TTL(now time.Time) time.Duration {
	remaining := b.Expires.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GenerateBindingID derives an opaque binding id from the contact URI and
// instance id, stable across REGISTER refreshes of the same contact.
func GenerateBindingID(contactURI, instanceID string) string {
	data := contactURI
	if instanceID != "" {
		data += ";" + instanceID
	}
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// Subscription is a watcher's interest in an AoR's reg-event state,
// established by a SUBSCRIBE to the reg event package (RFC 3680).
type Subscription struct {
	SubscriptionID string   `json:"subscription_id"`
	ReqURI         string   `json:"req_uri"`
	FromURI        string   `json:"from_uri"`
	FromTag        string   `json:"from_tag"`
	ToURI          string   `json:"to_uri"`
	ToTag          string   `json:"to_tag"`
	CallID         string   `json:"call_id"`
	Route          []string `json:"route,omitempty"`
	Expires        time.Time `json:"expires"`

	// CSeqOfLastNotify is the CSeq used on the most recently sent NOTIFY
	// for this subscription; the next NOTIFY uses CSeqOfLastNotify+1.
	CSeqOfLastNotify uint32 `json:"cseq_of_last_notify"`
}

// IsExpired reports whether the subscription is expired as of now.
func (s *Subscription) IsExpired(now time.Time) bool {
	return !s.Expires.After(now)
}

// AoR is the full document identified by a canonical default public id.
type AoR struct {
	DefaultPublicID string                   `json:"default_public_id"`
	AssociatedURIs  []AssociatedURI          `json:"associated_uris"`
	Bindings        map[string]*Binding      `json:"bindings"`
	Subscriptions   map[string]*Subscription `json:"subscriptions"`

	// NotifyCSeq increases by exactly one per mutation touching
	// bindings, subscriptions or associated URIs. The follow-up patch that
	// records each subscription's CSeqOfLastNotify after a send leaves it
	// unchanged.
	NotifyCSeq uint32 `json:"notify_cseq"`
	SCSCFURI   string `json:"scscf_uri"`
}

// New returns an empty AoR for the given public id and S-CSCF.
func New(defaultPublicID, scscfURI string) *AoR {
	return &AoR{
		DefaultPublicID: defaultPublicID,
		Bindings:        make(map[string]*Binding),
		Subscriptions:   make(map[string]*Subscription),
		SCSCFURI:        scscfURI,
	}
}

// DefaultURI returns the first non-barred associated URI, or the default
// public id if none is marked, matching invariant I4.
func (a *AoR) DefaultURI() string {
	for _, u := range a.AssociatedURIs {
		if !u.Barred {
			return u.URI
		}
	}
	return a.DefaultPublicID
}

// Clone returns a deep-enough copy for use as an independent "old" or "new"
// snapshot during classification; Binding/Subscription values are copied,
// not shared, so a caller mutating one snapshot never affects the other.
func (a *AoR) Clone() *AoR {
	if a == nil {
		return nil
	}
	out := &AoR{
		DefaultPublicID: a.DefaultPublicID,
		NotifyCSeq:      a.NotifyCSeq,
		SCSCFURI:        a.SCSCFURI,
		Bindings:        make(map[string]*Binding, len(a.Bindings)),
		Subscriptions:   make(map[string]*Subscription, len(a.Subscriptions)),
	}
	out.AssociatedURIs = append([]AssociatedURI(nil), a.AssociatedURIs...)
	for id, b := range a.Bindings {
		cp := *b
		cp.Path = append([]string(nil), b.Path...)
		out.Bindings[id] = &cp
	}
	for id, s := range a.Subscriptions {
		cp := *s
		cp.Route = append([]string(nil), s.Route...)
		out.Subscriptions[id] = &cp
	}
	return out
}

// Empty reports whether the AoR has no active bindings.
func (a *AoR) Empty() bool {
	return a == nil || len(a.Bindings) == 0
}
