// Package classifier implements the pure lifecycle classification of
// bindings and subscriptions between two AoR snapshots. It performs no I/O
// and holds no state: classify is a total function of its inputs.
package classifier

import (
	"fmt"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
)

// Trigger distinguishes why bindings/subscriptions are being removed, since
// the same "present in old, absent in new" transition means different
// things to a user re-register versus an admin/HSS-driven removal versus a
// timeout sweep.
type Trigger int

const (
	// TriggerUser is a subscriber-initiated re-register or unsubscribe.
	TriggerUser Trigger = iota
	// TriggerAdmin is an HSS/administrator-driven removal.
	TriggerAdmin
	// TriggerTimeout is a natural expiry sweep.
	TriggerTimeout
)

func (t Trigger) String() string {
	switch t {
	case TriggerUser:
		return "user"
	case TriggerAdmin:
		return "admin"
	case TriggerTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ContactEvent is the lifecycle tag assigned to one binding's transition.
type ContactEvent int

const (
	ContactRegistered ContactEvent = iota
	ContactCreated
	ContactRefreshed
	ContactShortened
	ContactExpired
	ContactDeactivated
	ContactUnregistered
)

func (e ContactEvent) String() string {
	switch e {
	case ContactRegistered:
		return "registered"
	case ContactCreated:
		return "created"
	case ContactRefreshed:
		return "refreshed"
	case ContactShortened:
		return "shortened"
	case ContactExpired:
		return "expired"
	case ContactDeactivated:
		return "deactivated"
	case ContactUnregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the event removes the contact from reg-info.
func (e ContactEvent) IsTerminal() bool {
	switch e {
	case ContactExpired, ContactDeactivated, ContactUnregistered:
		return true
	default:
		return false
	}
}

// SubEvent is the lifecycle tag assigned to one subscription's transition.
type SubEvent int

const (
	SubCreated SubEvent = iota
	SubRefreshed
	SubShortened
	SubUnchanged
	SubExpired
	SubTerminated
)

func (e SubEvent) String() string {
	switch e {
	case SubCreated:
		return "created"
	case SubRefreshed:
		return "refreshed"
	case SubShortened:
		return "shortened"
	case SubUnchanged:
		return "unchanged"
	case SubExpired:
		return "expired"
	case SubTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the subscription is gone from the new AoR.
func (e SubEvent) IsTerminal() bool {
	return e == SubExpired || e == SubTerminated
}

// SubReason is the reason recorded alongside a terminal subscription
// event. The notify package sends it as the wire value in
// Subscription-State: terminated;reason=...
type SubReason string

const (
	ReasonNone        SubReason = ""
	ReasonTimeout     SubReason = "timeout"
	ReasonDeactivated SubReason = "deactivated"
	ReasonUnsubscribed SubReason = "unsubscribed"
)

// ClassifiedBinding is one binding-id's classification, carrying handles
// into the old/new AoR snapshots rather than owning copies (Design Note:
// "Ownership of classified entries" — no heap ownership required; callers
// must keep both snapshots alive for the classified list's lifetime).
type ClassifiedBinding struct {
	BindingID string
	Old       *aor.Binding
	New       *aor.Binding
	Event     ContactEvent

	// NotifyRequired mirrors the subscription-level flag's intent for
	// bindings feeding reg-info bodies: every classified binding is a
	// candidate payload item, but whether it is *emitted* on a given
	// NOTIFY is decided per-subscription (see notify package). This
	// field records whether this binding's reg-info state itself
	// changed versus the old snapshot.
	NotifyRequired bool
	Reason         string
}

// ClassifiedSubscription is one subscription-id's classification.
type ClassifiedSubscription struct {
	SubscriptionID string
	Old            *aor.Subscription
	New            *aor.Subscription
	Event          SubEvent
	Reason         SubReason
	NotifyRequired bool
	TraceReason    string
}

// Classify compares the old and new binding/subscription maps and produces
// one ClassifiedBinding per binding-id and one ClassifiedSubscription per
// subscription-id. cascaded holds the subscription-ids the Patch Builder
// has already determined are being removed because their parent contact
// went away; it must be supplied by the caller since the classifier never
// inspects binding/subscription URI adjacency itself. It is pure: it
// performs no I/O and its result depends only on its arguments.
func Classify(
	now time.Time,
	trigger Trigger,
	oldBindings, newBindings map[string]*aor.Binding,
	oldSubs, newSubs map[string]*aor.Subscription,
	cascaded map[string]bool,
	assocURIsChanged bool,
) ([]ClassifiedBinding, []ClassifiedSubscription) {
	bindings := classifyBindings(trigger, oldBindings, newBindings, assocURIsChanged)
	subs := classifySubscriptions(now, trigger, oldSubs, newSubs, cascaded, assocURIsChanged)
	return bindings, subs
}

func classifyBindings(trigger Trigger, oldBindings, newBindings map[string]*aor.Binding, assocURIsChanged bool) []ClassifiedBinding {
	ids := unionBindingIDs(oldBindings, newBindings)
	out := make([]ClassifiedBinding, 0, len(ids))
	for _, id := range ids {
		old, hadOld := oldBindings[id]
		nw, hasNew := newBindings[id]

		cb := ClassifiedBinding{BindingID: id, Old: old, New: nw}
		switch {
		case !hadOld && hasNew:
			cb.Event = ContactCreated
			cb.NotifyRequired = true
			cb.Reason = "new binding"
		case hadOld && hasNew:
			switch {
			case nw.Expires.After(old.Expires):
				cb.Event = ContactRefreshed
				cb.NotifyRequired = true
				cb.Reason = "expires extended"
			case nw.Expires.Before(old.Expires):
				cb.Event = ContactShortened
				cb.NotifyRequired = true
				cb.Reason = "expires reduced"
			default:
				cb.Event = ContactRegistered
				cb.NotifyRequired = assocURIsChanged
				cb.Reason = "unchanged"
				if assocURIsChanged {
					cb.Reason = "unchanged contact, associated URIs changed"
				}
			}
		case hadOld && !hasNew:
			cb.NotifyRequired = true
			switch trigger {
			case TriggerAdmin:
				cb.Event = ContactDeactivated
				cb.Reason = "removed by admin/HSS"
			case TriggerTimeout:
				cb.Event = ContactExpired
				cb.Reason = "expiry sweep"
			default:
				cb.Event = ContactUnregistered
				cb.Reason = "removed by user re-register"
			}
		}
		out = append(out, cb)
	}
	return out
}

func classifySubscriptions(
	now time.Time,
	trigger Trigger,
	oldSubs, newSubs map[string]*aor.Subscription,
	cascaded map[string]bool,
	assocURIsChanged bool,
) []ClassifiedSubscription {
	ids := unionSubIDs(oldSubs, newSubs)
	out := make([]ClassifiedSubscription, 0, len(ids))
	for _, id := range ids {
		old, hadOld := oldSubs[id]
		nw, hasNew := newSubs[id]

		cs := ClassifiedSubscription{SubscriptionID: id, Old: old, New: nw}
		switch {
		case !hadOld && hasNew:
			cs.Event = SubCreated
			cs.NotifyRequired = true
			cs.TraceReason = "new subscription"
		case hadOld && hasNew:
			switch {
			case nw.Expires.After(old.Expires):
				cs.Event = SubRefreshed
				cs.NotifyRequired = true
				cs.TraceReason = "expires extended"
			case nw.Expires.Before(old.Expires):
				cs.Event = SubShortened
				cs.NotifyRequired = true
				cs.TraceReason = "expires reduced"
			default:
				cs.Event = SubUnchanged
				cs.NotifyRequired = assocURIsChanged
				cs.TraceReason = "unchanged"
				if assocURIsChanged {
					cs.TraceReason = "unchanged, associated URIs changed"
				}
			}
		case hadOld && !hasNew:
			cs.NotifyRequired = true
			switch {
			case cascaded[id]:
				cs.Event = SubTerminated
				cs.Reason = ReasonDeactivated
				cs.TraceReason = "cascaded: parent contact removed"
			case old.IsExpired(now):
				cs.Event = SubExpired
				cs.Reason = ReasonTimeout
				cs.TraceReason = "natural expiry"
			default:
				cs.Event = SubTerminated
				cs.Reason = ReasonUnsubscribed
				cs.TraceReason = fmt.Sprintf("user-initiated unsubscribe (trigger=%s)", trigger)
			}
		}
		out = append(out, cs)
	}
	return out
}

func unionBindingIDs(a, b map[string]*aor.Binding) []string {
	seen := make(map[string]bool, len(a)+len(b))
	ids := make([]string, 0, len(a)+len(b))
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func unionSubIDs(a, b map[string]*aor.Subscription) []string {
	seen := make(map[string]bool, len(a)+len(b))
	ids := make([]string, 0, len(a)+len(b))
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
