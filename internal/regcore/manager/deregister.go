package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// DeregisterSubscriber tears down an entire AoR: every binding is
// DEACTIVATED (admin), EXPIRED (timeout) or UNREGISTERED (user) and every subscription
// TERMINATED, in one commit. The CSeq on the terminal NOTIFY is
// old.NotifyCSeq+1 even though the document itself is deleted.
func (m *Manager) DeregisterSubscriber(ctx context.Context, publicID string, trigger classifier.Trigger) (*Result, error) {
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

		nextCSeq := current.NotifyCSeq + 1

		if err := m.Store.Delete(ctx, info.DefaultIMPU, version); isVersionConflict(err) {
			continue
		} else if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 200}, nil
		} else if err != nil {
			return &Result{Status: 500}, err
		}

		now := time.Now()
		deregReason := triggerToDeregReason(trigger)

		m.pipeline(ctx, now, info.DefaultIMPU, trigger,
			current.Bindings, map[string]*aor.Binding{},
			current.Subscriptions, map[string]*aor.Subscription{},
			nil, false,
			current.AssociatedURIs, nextCSeq, "", deregReason)

		return &Result{Status: 200}, nil
	}
	return &Result{Status: 503}, s4.ErrVersionConflict
}
