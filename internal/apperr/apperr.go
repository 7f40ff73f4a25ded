// Package apperr defines the error taxonomy shared by the storage engine's
// services. Handlers translate these sentinels into HTTP statuses in one
// place, so the single-shot and chunked upload paths report failures the same
// way.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrNotFound covers both "does not exist" and "exists but belongs to
	// another owner". The two are deliberately indistinguishable so lookups
	// never leak another owner's namespace.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is used only where revealing existence is acceptable,
	// e.g. a private blob referenced by id.
	ErrAccessDenied = errors.New("access denied")

	ErrDuplicateName     = errors.New("duplicate name")
	ErrCircularReference = errors.New("circular reference")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrIncomplete is returned by finalize when chunks are missing.
	ErrIncomplete = errors.New("upload incomplete")

	// ErrIntegrity means authenticated decryption failed. It always surfaces
	// to the caller; corrupted plaintext is never served.
	ErrIntegrity = errors.New("integrity check failed")

	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// StatusCode maps a service error to the HTTP status the handlers respond
// with. Unknown errors map to 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAccessDenied):
		return fiber.StatusForbidden
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrCircularReference):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrIncomplete):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUpstreamUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
