// Package s4 defines the versioned AoR backing store contract consumed by
// the Subscriber Manager, plus an in-memory and a Redis-backed
// implementation of it.
package s4

import (
	"context"
	"errors"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/patch"
)

// Sentinel errors surfaced to callers per the error kinds in the store
// protocol: 404 -> ErrNotFound, 412 -> ErrVersionConflict, 5xx/timeout ->
// ErrUnavailable.
var (
	ErrNotFound       = errors.New("s4: aor not found")
	ErrVersionConflict = errors.New("s4: version conflict")
	ErrUnavailable    = errors.New("s4: store unavailable")
)

// Store is the versioned GET/PUT/PATCH/DELETE contract over AoR documents.
type Store interface {
	// Get returns the current AoR and its opaque version token.
	// ErrNotFound if absent.
	Get(ctx context.Context, aorID string) (*aor.AoR, string, error)

	// Put creates or fully replaces the AoR, used only for first-time
	// registration, and returns the new version token.
	Put(ctx context.Context, aorID string, a *aor.AoR) (string, error)

	// Patch applies p to the AoR currently at version, returning the
	// post-image and its new version. ErrVersionConflict if version is
	// stale; ErrNotFound if the AoR does not exist.
	Patch(ctx context.Context, aorID string, p *patch.Patch, version string) (*aor.AoR, string, error)

	// Delete removes the AoR if it is still at version.
	// ErrVersionConflict if stale; ErrNotFound if already absent.
	Delete(ctx context.Context, aorID string, version string) error
}

// ExpiryHandler is invoked when a TTL sweep silently drops bindings past
// their Expires instant, without the store holding a back-reference to
// whatever owns it (Design Note: "Cyclic references").
type ExpiryHandler func(aorID string)
