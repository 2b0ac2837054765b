package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/apierr"
	"github.com/sebas/regcore/internal/regcore/classifier"
)

// RegisterSubscriber handles a fresh registration: no existing AoR for
// aorID is expected. Builds an AoR from newBindings/associatedURIs, sets
// notify_cseq=1, PUTs to S4, then classifies against an empty old AoR
// (every binding CREATED, no subscriptions).
func (m *Manager) RegisterSubscriber(ctx context.Context, aorID, scscfURI string, associatedURIs []aor.AssociatedURI, newBindings map[string]*aor.Binding) (*Result, error) {
	if len(associatedURIs) == 0 && len(newBindings) > 0 {
		return &Result{Status: 400}, fmt.Errorf("%w: associated_uris empty for non-empty bindings", apierr.ErrInvalidInput)
	}

	a := aor.New(aorID, scscfURI)
	a.AssociatedURIs = associatedURIs
	a.Bindings = newBindings
	a.NotifyCSeq = 1

	version, err := m.Store.Put(ctx, aorID, a)
	if err != nil {
		return &Result{Status: 500}, err
	}

	now := time.Now()
	_ = m.pipeline(ctx, now, aorID, classifier.TriggerUser,
		nil, a.Bindings,
		nil, a.Subscriptions,
		nil, true,
		a.AssociatedURIs, a.NotifyCSeq, version, "")

	return &Result{
		Status:         200,
		Bindings:       a.Bindings,
		AssociatedURIs: a.AssociatedURIs,
	}, nil
}
