// Package events holds the dotted subject-naming convention used to name
// expiry notifications, repurposed from the
// teacher's call-event subject hierarchy to this core's AoR-event
// hierarchy.
package events

import "fmt"

// Subject naming conventions.
//
// Hierarchy:
//   regcore.aors.<aor_id>.<event_suffix>   - Per-AoR expiry/mutation events
//
// Wildcard subscriptions:
//   regcore.aors.>                         - All AoR events
//   regcore.aors.*.expired                 - All expiry events

const (
	// SubjectPrefix is the root of all regcore subjects.
	SubjectPrefix = "regcore"

	// SubjectAoRs is the root of per-AoR event subjects.
	SubjectAoRs = SubjectPrefix + ".aors"

	// SubjectExpired is the suffix used when a TTL sweep drops bindings.
	SubjectExpired = "expired"
)

// AoRSubject builds a subject for a specific AoR event.
// Example: AoRSubject("alice", "expired") => "regcore.aors.alice.expired"
func AoRSubject(aorID, eventSuffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectAoRs, aorID, eventSuffix)
}

// Handler is the signature of a callback for an AoR-scoped subject. No
// code in this module invokes it: the in-memory store's expiry sweep
// reports through s4.ExpiryHandler, which takes only the aor id.
type Handler func(subject string, aorID string)
