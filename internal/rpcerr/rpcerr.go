// Package rpcerr classifies handler errors into the wire-visible error
// codes the dispatcher reports to clients (§7): INVALID_PARAMS,
// METHOD_NOT_FOUND, UNAUTHORIZED, INTERNAL_ERROR. Handlers never construct
// wire errors directly; they return Go errors (ideally *parampluck.
// InvalidParamsError or a sentinel from this package) and the dispatcher
// does the classification in one place.
package rpcerr

import (
	"errors"
	"strings"

	"github.com/workspace/codexmonitord/internal/parampluck"
)

type Code string

const (
	CodeInvalidParams  Code = "INVALID_PARAMS"
	CodeMethodNotFound Code = "METHOD_NOT_FOUND"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// ErrMethodNotFound and ErrUnauthorized are sentinels handlers/dispatcher
// code can return or wrap to force a specific classification.
var (
	ErrMethodNotFound = errors.New("method not found")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Wire is the JSON shape of an RPC error per §7: {"code", "message"}.
type Wire struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Classify maps an error returned by a handler (or the dispatcher itself)
// to a wire error. Unwrapped via errors.As/Is so wrapped sentinels and
// parampluck errors are recognised through layers of fmt.Errorf("%w").
func Classify(err error) Wire {
	if err == nil {
		return Wire{}
	}
	var invalidParams *parampluck.InvalidParamsError
	switch {
	case errors.As(err, &invalidParams):
		return Wire{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, ErrMethodNotFound):
		return Wire{Code: CodeMethodNotFound, Message: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return Wire{Code: CodeUnauthorized, Message: err.Error()}
	}

	// §4G's text-based fallback for plain-text errors coming out of the
	// ops/child layer, which has no reason to know about typed errors.
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lower, "unknown method:"):
		return Wire{Code: CodeMethodNotFound, Message: msg}
	case strings.Contains(lower, "missing or invalid"),
		strings.HasPrefix(lower, "missing "),
		strings.HasPrefix(lower, "invalid "):
		return Wire{Code: CodeInvalidParams, Message: msg}
	default:
		return Wire{Code: CodeInternal, Message: msg}
	}
}

// SerializationFailure is the fixed degraded response used when a result
// itself cannot be marshalled (§7: "should never happen").
func SerializationFailure() Wire {
	return Wire{Code: CodeInternal, Message: "serialization failed"}
}
