package bridge

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors classifying request failures for HTTP status mapping.
var (
	// ErrInvalidConfig means the caller-supplied provider config is malformed.
	ErrInvalidConfig = errors.New("invalid provider config")
	// ErrEmptyCatalog means no provider produced a usable tool.
	ErrEmptyCatalog = errors.New("no tools available from any provider")
	// ErrInvalidIdentifier means the model asked for a tool name that does
	// not resolve to a registered provider.
	ErrInvalidIdentifier = errors.New("invalid tool identifier")
	// ErrRoundLimit means the model kept requesting tools past the cap.
	ErrRoundLimit = errors.New("tool round limit exceeded")
)

// StatusCode maps a bridge error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrEmptyCatalog), errors.Is(err, ErrInvalidIdentifier):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
