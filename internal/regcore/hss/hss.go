// Package hss is the consumed Home Subscriber Server interface: public-id
// resolution to an implicit registration set, and registration-state
// signalling (including deregistration reason codes).
package hss

import (
	"context"
	"errors"

	"github.com/sebas/regcore/internal/regcore/aor"
)

var (
	ErrNotFound    = errors.New("hss: public id not found")
	ErrUnavailable = errors.New("hss: unavailable")
)

// DeregReason is the wire value carried in an update_registration_state
// request signalling why a subscriber is being deregistered.
type DeregReason string

const (
	DeregUser    DeregReason = "dereg-user"
	DeregAdmin   DeregReason = "dereg-admin"
	DeregTimeout DeregReason = "dereg-timeout"
)

// IRSInfo is the implicit registration set data returned by the HSS.
type IRSInfo struct {
	DefaultIMPU    string
	AssociatedURIs []aor.AssociatedURI
	SCSCFURI       string
}

// IRSQuery is the Cx-SAR-like request used both to fetch registration
// state on first registration and to signal a deregistration reason.
type IRSQuery struct {
	PublicID string
	SCSCFURI string
	Reason   DeregReason
}

// Client is the HSS interface consumed by the Subscriber Manager.
type Client interface {
	// GetRegistrationData is a read-only cache lookup resolving a
	// public id to its implicit registration set. ErrNotFound if the
	// public id is unknown, which is fatal for the calling operation.
	GetRegistrationData(ctx context.Context, publicID string) (*IRSInfo, error)

	// UpdateRegistrationState issues a Cx-SAR-like request, used for
	// both initial-registration state fetch and deregistration
	// signalling.
	UpdateRegistrationState(ctx context.Context, query IRSQuery) (*IRSInfo, error)
}
