package billing

import (
	"errors"

	"github.com/openwebui-monitor/server/internal/pricing"
	"github.com/openwebui-monitor/server/internal/tokencount"
)

// Billing failure kinds surfaced to callers.
var (
	// ErrStoreUnavailable wraps transient store failures; callers may retry
	// the whole event.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUserNotFound indicates the billed user has no account row. The
	// transaction rolls back entirely: no debit, no ledger row.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInput indicates a caller passed values that should have been
	// rejected upstream, such as negative token counts.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorType returns the wire identifier for a billing failure.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, pricing.ErrInvalidPrice):
		return "INVALID_PRICE"
	case errors.Is(err, pricing.ErrModelNotFound):
		return "MODEL_NOT_FOUND"
	case errors.Is(err, tokencount.ErrUnsupportedContent):
		return "UNSUPPORTED_CONTENT"
	default:
		return "UNKNOWN_ERROR"
	}
}
