package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/patch"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// RemoveBindings resolves publicID to an aor_id via HSS, then removes
// bindingIDs and cascades any subscription whose contact is going away.
// A 404 from HSS or S4 is treated as idempotent success (P5).
func (m *Manager) RemoveBindings(ctx context.Context, publicID string, bindingIDs []string, trigger classifier.Trigger) (*Result, error) {
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

		removedURIs := patch.RemovedContactURIs(current.Bindings, bindingIDs, nil)
		cascaded := patch.CascadeSet(removedURIs, current.Subscriptions)

		p := patch.New()
		p.RemoveBindings = bindingIDs
		for id := range cascaded {
			p.RemoveSubscriptions = append(p.RemoveSubscriptions, id)
		}

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
		var deregReason hss.DeregReason
		if updated.Empty() {
			deregReason = triggerToDeregReason(trigger)
		}

		m.pipeline(ctx, now, info.DefaultIMPU, trigger,
			current.Bindings, updated.Bindings,
			current.Subscriptions, updated.Subscriptions,
			cascaded, false,
			updated.AssociatedURIs, updated.NotifyCSeq, patchVersion, deregReason)

		return &Result{
			Status:         200,
			Bindings:       updated.Bindings,
			AssociatedURIs: updated.AssociatedURIs,
		}, nil
	}
	return &Result{Status: 503}, s4.ErrVersionConflict
}
