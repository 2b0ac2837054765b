// Package patch builds the typed mutation documents the Subscriber Manager
// hands to the S4 store, and computes subscription cascade removals.
package patch

import "github.com/sebas/regcore/internal/regcore/aor"

// Patch carries exactly the fields being mutated. A nil UpdateBindings/
// RemoveBindings/UpdateSubscriptions/RemoveSubscriptions means "no change
// to that dimension"; AssociatedURIs is only applied when
// AssociatedURIsChanged is true, since an empty slice is itself a valid
// replacement value distinct from "leave unchanged".
type Patch struct {
	UpdateBindings map[string]*aor.Binding
	RemoveBindings []string

	UpdateSubscriptions map[string]*aor.Subscription
	RemoveSubscriptions []string

	AssociatedURIs        []aor.AssociatedURI
	AssociatedURIsChanged bool

	IncrementCSeq bool
}

// New returns an empty patch with IncrementCSeq set, the default for any
// mutation that must be visible to watchers.
func New() *Patch {
	return &Patch{IncrementCSeq: true}
}

// ComputeCascade returns the subscription ids whose ReqURI matches one of
// the contact URIs going away (removed bindings, or bindings rewritten to
// a different contact URI), per invariant I2.
func ComputeCascade(removedOrRewrittenContactURIs []string, subs map[string]*aor.Subscription) []string {
	if len(subs) == 0 || len(removedOrRewrittenContactURIs) == 0 {
		return nil
	}
	gone := make(map[string]bool, len(removedOrRewrittenContactURIs))
	for _, uri := range removedOrRewrittenContactURIs {
		gone[uri] = true
	}

	var cascaded []string
	for id, s := range subs {
		if gone[s.ReqURI] {
			cascaded = append(cascaded, id)
		}
	}
	return cascaded
}

// CascadeSet is a convenience wrapper turning ComputeCascade's slice result
// into the membership map the classifier consumes.
func CascadeSet(removedOrRewrittenContactURIs []string, subs map[string]*aor.Subscription) map[string]bool {
	ids := ComputeCascade(removedOrRewrittenContactURIs, subs)
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// RemovedContactURIs returns the contact URIs that disappear when
// removeBindingIDs are dropped and updatedBindings replaces the listed
// ids' contacts with a different URI than they currently hold.
func RemovedContactURIs(current map[string]*aor.Binding, removeBindingIDs []string, updatedBindings map[string]*aor.Binding) []string {
	var uris []string
	for _, id := range removeBindingIDs {
		if b, ok := current[id]; ok {
			uris = append(uris, b.ContactURI)
		}
	}
	for id, nw := range updatedBindings {
		if old, ok := current[id]; ok && old.ContactURI != nw.ContactURI {
			uris = append(uris, old.ContactURI)
		}
	}
	return uris
}
