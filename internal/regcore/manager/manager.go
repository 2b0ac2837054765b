// Package manager implements the Subscriber Manager: the five SIP-facing
// public operations plus the administrative associated-URIs-only patch,
// orchestrating the GET/PATCH retry loop against S4 and the fixed
// post-commit pipeline (classify -> notify -> analytics -> HSS-if-empty
// -> third-party fan-out).
package manager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sebas/regcore/internal/regcore/analytics"
	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/classifier"
	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/notify"
	"github.com/sebas/regcore/internal/regcore/patch"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// MaxRetries bounds the GET-PATCH retry loop on version conflict (§5's
// "hard cap (e.g., 3)").
const MaxRetries = 3

// ThirdPartyRegistrar stands in for the out-of-scope third-party REGISTER
// dispatch collaborator named in the purpose statement: an external
// system this core drives off classified bindings but does not own.
type ThirdPartyRegistrar interface {
	Notify(ctx context.Context, aorID string, bindings []classifier.ClassifiedBinding) error
}

// LoggingThirdPartyRegistrar is the default ThirdPartyRegistrar: it logs
// the fan-out it would have performed and never fails.
type LoggingThirdPartyRegistrar struct{}

func (LoggingThirdPartyRegistrar) Notify(ctx context.Context, aorID string, bindings []classifier.ClassifiedBinding) error {
	slog.Debug("[MANAGER] third-party fan-out (no-op default)", "aor_id", aorID, "bindings", len(bindings))
	return nil
}

// Result is the HTTP-style outcome and post-mutation view every public
// operation returns.
type Result struct {
	Status         int
	Bindings       map[string]*aor.Binding
	AssociatedURIs []aor.AssociatedURI
	IRSInfo        *hss.IRSInfo
}

// Manager is the Subscriber Manager. All collaborators are constructed
// explicitly and passed in; there is no process-wide singleton state
// (Design Note: "Global/module state").
type Manager struct {
	Store        s4.Store
	HSS          hss.Client
	Sender       *notify.Sender
	Analytics    *analytics.Bridge
	ThirdParty   ThirdPartyRegistrar
	SCSCFURI     string
	MaxRetries   int
}

// New constructs a Manager with MaxRetries defaulted if unset.
func New(store s4.Store, hssClient hss.Client, sender *notify.Sender, bridge *analytics.Bridge, thirdParty ThirdPartyRegistrar, scscfURI string) *Manager {
	if thirdParty == nil {
		thirdParty = LoggingThirdPartyRegistrar{}
	}
	return &Manager{
		Store:      store,
		HSS:        hssClient,
		Sender:     sender,
		Analytics:  bridge,
		ThirdParty: thirdParty,
		SCSCFURI:   scscfURI,
		MaxRetries: MaxRetries,
	}
}

func (m *Manager) maxRetries() int {
	if m.MaxRetries <= 0 {
		return MaxRetries
	}
	return m.MaxRetries
}

// pipeline runs classify -> notify -> analytics -> HSS-if-empty ->
// third-party fan-out, in that fixed order (§4.2/§5), for one committed
// mutation. Failures in notify/analytics/HSS/third-party are logged and
// swallowed: the store commit already stands.
func (m *Manager) pipeline(
	ctx context.Context,
	now time.Time,
	aorID string,
	trigger classifier.Trigger,
	oldBindings, newBindings map[string]*aor.Binding,
	oldSubs, newSubs map[string]*aor.Subscription,
	cascaded map[string]bool,
	assocURIsChanged bool,
	associatedURIs []aor.AssociatedURI,
	cseq uint32,
	version string,
	deregisterReasonIfEmpty hss.DeregReason,
) *hss.IRSInfo {
	bindings, subs := classifier.Classify(now, trigger, oldBindings, newBindings, oldSubs, newSubs, cascaded, assocURIsChanged)

	if m.Sender != nil {
		results := m.Sender.Send(ctx, now, associatedURIs, cseq, bindings, subs)
		for _, r := range results {
			if r.Err != nil {
				slog.Error("[MANAGER] notify failed, store commit stands", "aor_id", aorID, "subscription_id", r.SubscriptionID, "error", r.Err)
			}
		}
		m.writeBackNotifyCSeqs(ctx, aorID, version, newSubs, results)
	}

	if m.Analytics != nil {
		m.Analytics.Record(ctx, now, aorID, bindings, subs)
	}

	var irsInfo *hss.IRSInfo
	if len(newBindings) == 0 && deregisterReasonIfEmpty != "" && m.HSS != nil {
		info, err := m.HSS.UpdateRegistrationState(ctx, hss.IRSQuery{PublicID: aorID, SCSCFURI: m.SCSCFURI, Reason: deregisterReasonIfEmpty})
		if err != nil {
			slog.Error("[MANAGER] HSS deregistration notification failed", "aor_id", aorID, "reason", deregisterReasonIfEmpty, "error", err)
		} else {
			irsInfo = info
		}
	}

	if m.ThirdParty != nil {
		if err := m.ThirdParty.Notify(ctx, aorID, bindings); err != nil {
			slog.Error("[MANAGER] third-party fan-out failed", "aor_id", aorID, "error", err)
		}
	}

	return irsInfo
}

// writeBackNotifyCSeqs persists the CSeq actually used on each sent NOTIFY
// into the subscription's CSeqOfLastNotify (§4.4: "updated in-store
// atomically with the send"), so the next NOTIFY for that subscription
// strictly increases instead of reusing cseq_of_last_notify+1 forever. An
// empty version (the AoR document no longer exists, as after a full
// deregister) or a conflicted follow-up patch is left for the
// subscription's next natural mutation to correct.
func (m *Manager) writeBackNotifyCSeqs(ctx context.Context, aorID, version string, newSubs map[string]*aor.Subscription, results []notify.SendResult) {
	if version == "" {
		return
	}
	updates := make(map[string]*aor.Subscription)
	for _, r := range results {
		if r.Err != nil || r.CSeqUsed == 0 {
			continue
		}
		sub, ok := newSubs[r.SubscriptionID]
		if !ok {
			continue
		}
		cp := *sub
		cp.CSeqOfLastNotify = r.CSeqUsed
		updates[r.SubscriptionID] = &cp
	}
	if len(updates) == 0 {
		return
	}

	p := &patch.Patch{UpdateSubscriptions: updates}
	if _, _, err := m.Store.Patch(ctx, aorID, p, version); err != nil {
		slog.Warn("[MANAGER] failed to persist notify cseq, next notify will retry from stale cseq", "aor_id", aorID, "error", err)
	}
}

// triggerToDeregReason maps a classifier.Trigger to the HSS wire reason
// used when a mutation leaves bindings empty.
func triggerToDeregReason(t classifier.Trigger) hss.DeregReason {
	switch t {
	case classifier.TriggerAdmin:
		return hss.DeregAdmin
	case classifier.TriggerTimeout:
		return hss.DeregTimeout
	default:
		return hss.DeregUser
	}
}

// isVersionConflict reports whether err should trigger a GET-PATCH retry.
func isVersionConflict(err error) bool {
	return errors.Is(err, s4.ErrVersionConflict)
}
