// Package apierr maps the Subscriber Manager's internal sentinel errors to
// the HTTP-style status codes the public contract returns.
package apierr

import (
	"errors"

	"github.com/sebas/regcore/internal/regcore/hss"
	"github.com/sebas/regcore/internal/regcore/s4"
)

// ErrInvalidInput is returned for malformed input such as an unknown
// public-id format or a missing default IMPU.
var ErrInvalidInput = errors.New("apierr: invalid input")

// StatusCode maps err to the HTTP-style status code the spec's error
// kinds specify. nil maps to 200.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, s4.ErrNotFound), errors.Is(err, hss.ErrNotFound):
		return 404
	case errors.Is(err, s4.ErrVersionConflict):
		return 503
	case errors.Is(err, ErrInvalidInput):
		return 400
	case errors.Is(err, s4.ErrUnavailable), errors.Is(err, hss.ErrUnavailable):
		return 500
	default:
		return 500
	}
}
