package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/patch"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// ReregisterSubscriber refreshes/replaces bindings on an existing AoR,
// cascading subscription removal for any contact going away, and
// deregisters with HSS iff the post-commit bindings are empty (Open
// Question (a)).
func (m *Manager) ReregisterSubscriber(ctx context.Context, aorID string, associatedURIs []aor.AssociatedURI, updatedBindings map[string]*aor.Binding, removeBindingIDs []string) (*Result, error) {
	var (
		oldSnapshot *aor.AoR
		newAoR      *aor.AoR
		newVersion  string
		cascaded    map[string]bool
	)

	for attempt := 0; attempt < m.maxRetries(); attempt++ {
		current, version, err := m.Store.Get(ctx, aorID)
		if errors.Is(err, s4.ErrNotFound) {
			return &Result{Status: 404}, err
		}
		if err != nil {
			return &Result{Status: 500}, err
		}
		oldSnapshot = current

		removedURIs := patch.RemovedContactURIs(current.Bindings, removeBindingIDs, updatedBindings)
		cascaded = patch.CascadeSet(removedURIs, current.Subscriptions)

		p := patch.New()
		p.UpdateBindings = updatedBindings
		p.RemoveBindings = removeBindingIDs
		if len(cascaded) > 0 {
			for id := range cascaded {
				p.RemoveSubscriptions = append(p.RemoveSubscriptions, id)
			}
		}
		p.AssociatedURIs = associatedURIs
		p.AssociatedURIsChanged = true

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
		newAoR = updated
		newVersion = patchVersion
		break
	}

	if newAoR == nil {
		return &Result{Status: 503}, s4.ErrVersionConflict
	}

	now := time.Now()
	cseq := newAoR.NotifyCSeq

	var deregReason hss.DeregReason
	if newAoR.Empty() {
		deregReason = hss.DeregUser
	}

	irsInfo := m.pipeline(ctx, now, aorID, classifier.TriggerUser,
		oldSnapshot.Bindings, newAoR.Bindings,
		oldSnapshot.Subscriptions, newAoR.Subscriptions,
		cascaded, true,
		newAoR.AssociatedURIs, cseq, newVersion, deregReason)

	return &Result{
		Status:         200,
		Bindings:       newAoR.Bindings,
		AssociatedURIs: newAoR.AssociatedURIs,
		IRSInfo:        irsInfo,
	}, nil
}
