package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/patch"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// UpdateAssociatedURIs is the associated-URI-only administrative patch:
// it replaces an AoR's implicit registration set without touching
// bindings or subscriptions, grounded on SubscriberManager::
// update_associated_uris/patch_associated_uris in the source. Every
// existing subscription still receives a NOTIFY, since the reg-info body
// for unchanged contacts must reflect the new associated-URI set.
//
// Unlike the other five operations, the CSeq bump on this path is the
// builder's choice rather than mandatory (§4.3); this core follows the
// source's own choice and bumps it, building the patch directly instead
// of through patch.New() so the distinction stays visible at the call
// site.
func (m *Manager) UpdateAssociatedURIs(ctx context.Context, aorID string, associatedURIs []aor.AssociatedURI) (*Result, error) {
	for attempt := 0; attempt < m.maxRetries(); attempt++ {
		current, version, err := m.Store.Get(ctx, aorID)
		if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 404}, err
		}
		if err != nil {
			return &Result{Status: 500}, err
		}

		p := &patch.Patch{
			AssociatedURIs:        associatedURIs,
			AssociatedURIsChanged: true,
			IncrementCSeq:         true,
		}

		updated, patchVersion, err := m.Store.Patch(ctx, aorID, p, version)
		if isVersionConflict(err) {
			continue
		}
		if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 404}, err
		}
		if err != nil {
			return &Result{Status: 500}, err
		}

		now := time.Now()
		m.pipeline(ctx, now, aorID, classifier.TriggerAdmin,
			current.Bindings, updated.Bindings,
			current.Subscriptions, updated.Subscriptions,
			nil, true,
			updated.AssociatedURIs, updated.NotifyCSeq, patchVersion, "")

		return &Result{
			Status:         200,
			Bindings:       updated.Bindings,
			AssociatedURIs: updated.AssociatedURIs,
		}, nil
	}
	return &Result{Status: 503}, s4.ErrVersionConflict
}
