package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/apierr"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/patch"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// UpdateSubscription creates or refreshes a single reg-event subscription
// against an existing AoR. An AoR with no active bindings has nothing to
// report on, so it is rejected per §4.2 rather than silently subscribed.
func (m *Manager) UpdateSubscription(ctx context.Context, publicID, subscriptionID string, sub *aor.Subscription) (*Result, error) {
	info, err := m.HSS.GetRegistrationData(ctx, publicID)
	if errors.Is(err, hss.ErrNotFound) {
		return &Result{Status: 404}, err
	}
	if err != nil {
		return &Result{Status: 500}, err
	}

	for attempt := 0; attempt < m.maxRetries(); attempt++ {
		current, version, err := m.Store.Get(ctx, info.DefaultIMPU)
		if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 404}, err
		}
		if err != nil {
			return &Result{Status: 500}, err
		}
		if current.Empty() {
			return &Result{Status: 400}, apierr.ErrInvalidInput
		}

		sub.SubscriptionID = subscriptionID

		p := patch.New()
		p.UpdateSubscriptions = map[string]*aor.Subscription{subscriptionID: sub}

		updated, patchVersion, err := m.Store.Patch(ctx, info.DefaultIMPU, p, version)
		if isVersionConflict(err) {
			continue
		}
		if err != nil {
			return &Result{Status: 500}, err
		}

		now := time.Now()
		m.pipeline(ctx, now, info.DefaultIMPU, classifier.TriggerUser,
			current.Bindings, updated.Bindings,
			current.Subscriptions, updated.Subscriptions,
			nil, false,
			updated.AssociatedURIs, updated.NotifyCSeq, patchVersion, "")

		return &Result{
			Status:         200,
			Bindings:       updated.Bindings,
			AssociatedURIs: updated.AssociatedURIs,
		}, nil
	}
	return &Result{Status: 503}, s4.ErrVersionConflict
}

// RemoveSubscription tears down one subscription (SUBSCRIBE Expires: 0, or
// an explicit unsubscribe), independent of any binding change.
func (m *Manager) RemoveSubscription(ctx context.Context, publicID, subscriptionID string) (*Result, error) {
	info, err := m.HSS.GetRegistrationData(ctx, publicID)
	if errors.Is(err, hss.ErrNotFound) {
		return &Result{Status: 200}, nil
	}
	if err != nil {
		return &Result{Status: 500}, err
	}

	for attempt := 0; attempt < m.maxRetries(); attempt++ {
		current, version, err := m.Store.Get(ctx, info.DefaultIMPU)
		if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 200}, nil
		}
		if err != nil {
			return &Result{Status: 500}, err
		}
		if _, ok := current.Subscriptions[subscriptionID]; !ok {
			return &Result{Status: 200, Bindings: current.Bindings, AssociatedURIs: current.AssociatedURIs}, nil
		}

		p := patch.New()
		p.RemoveSubscriptions = []string{subscriptionID}

		updated, patchVersion, err := m.Store.Patch(ctx, info.DefaultIMPU, p, version)
		if isVersionConflict(err) {
			continue
		}
		if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 200}, nil
		}
		if err != nil {
			return &Result{Status: 500}, err
		}

		now := time.Now()
		m.pipeline(ctx, now, info.DefaultIMPU, classifier.TriggerUser,
			current.Bindings, updated.Bindings,
			current.Subscriptions, updated.Subscriptions,
			nil, false,
			updated.AssociatedURIs, updated.NotifyCSeq, patchVersion, "")

		return &Result{
			Status:         200,
			Bindings:       updated.Bindings,
			AssociatedURIs: updated.AssociatedURIs,
		}, nil
	}
	return &Result{Status: 503}, s4.ErrVersionConflict
}
