// Package analytics maps classified lifecycle events to per-binding and
// per-subscription accounting records with signed expiry deltas.
package analytics

import (
	"context"
	"time"

	"github.com/sebas/regcore/internal/regcore/classifier"
)

// RegistrationRecord is one accounting entry for a binding transition.
// ExpiresDeltaSeconds of 0 signals deregistration.
type RegistrationRecord struct {
	AOR                 string
	BindingID           string
	ContactURI          string
	ExpiresDeltaSeconds int64
}

// SubscriptionRecord is one accounting entry for a subscription
// transition. ExpiresDeltaSeconds of 0 signals termination.
type SubscriptionRecord struct {
	AOR                 string
	SubscriptionID      string
	ReqURI              string
	ExpiresDeltaSeconds int64
}

// Sink is the fire-and-forget accounting collaborator consumed by Bridge.
type Sink interface {
	RecordRegistration(ctx context.Context, rec RegistrationRecord)
	RecordSubscription(ctx context.Context, rec SubscriptionRecord)
}

// Bridge walks classified lists and emits one record per binding/
// subscription whose event is not a no-op.
type Bridge struct {
	sink Sink
}

// NewBridge constructs a Bridge over sink.
func NewBridge(sink Sink) *Bridge {
	return &Bridge{sink: sink}
}

// Record emits accounting records for aorID's classified bindings and
// subscriptions as of now.
func (b *Bridge) Record(ctx context.Context, now time.Time, aorID string, bindings []classifier.ClassifiedBinding, subs []classifier.ClassifiedSubscription) {
	for _, cb := range bindings {
		if cb.Event == classifier.ContactRegistered {
			continue
		}
		contactURI := ""
		if cb.New != nil {
			contactURI = cb.New.ContactURI
		} else if cb.Old != nil {
			contactURI = cb.Old.ContactURI
		}
		b.sink.RecordRegistration(ctx, RegistrationRecord{
			AOR:                 aorID,
			BindingID:           cb.BindingID,
			ContactURI:          contactURI,
			ExpiresDeltaSeconds: bindingExpiresDelta(now, cb),
		})
	}

	for _, cs := range subs {
		if cs.Event == classifier.SubUnchanged {
			continue
		}
		reqURI := ""
		if cs.New != nil {
			reqURI = cs.New.ReqURI
		} else if cs.Old != nil {
			reqURI = cs.Old.ReqURI
		}
		b.sink.RecordSubscription(ctx, SubscriptionRecord{
			AOR:                 aorID,
			SubscriptionID:      cs.SubscriptionID,
			ReqURI:              reqURI,
			ExpiresDeltaSeconds: subscriptionExpiresDelta(now, cs),
		})
	}
}

func bindingExpiresDelta(now time.Time, cb classifier.ClassifiedBinding) int64 {
	switch cb.Event {
	case classifier.ContactCreated:
		return int64(cb.New.Expires.Sub(now).Seconds())
	case classifier.ContactRefreshed, classifier.ContactShortened:
		return int64(cb.New.Expires.Sub(cb.Old.Expires).Seconds())
	default:
		return 0
	}
}

func subscriptionExpiresDelta(now time.Time, cs classifier.ClassifiedSubscription) int64 {
	switch cs.Event {
	case classifier.SubCreated:
		return int64(cs.New.Expires.Sub(now).Seconds())
	case classifier.SubRefreshed, classifier.SubShortened:
		return int64(cs.New.Expires.Sub(cs.Old.Expires).Seconds())
	default:
		return 0
	}
}
