// Package errors provides structured error kinds shared by both protocol
// front ends.
package errors

// Code is a machine-readable error kind.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation marks malformed input or an unknown platform.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNotFound marks an unknown signal, context or activation id.
	CodeNotFound Code = "NOT_FOUND"
	// CodeExpiredContext marks a context past its TTL.
	CodeExpiredContext Code = "EXPIRED_CONTEXT"
	// CodeUpstreamTimeout marks an AI or platform call that exceeded its bound.
	CodeUpstreamTimeout Code = "UPSTREAM_TIMEOUT"
	// CodeUpstreamFailure marks an AI or platform call that failed outright.
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
	// CodeAuthorization marks a principal without access. Never surfaced as is.
	CodeAuthorization Code = "AUTHORIZATION_ERROR"
)

// JSON-RPC error codes used by the protocol front ends. The reserved range
// is reused where a standard code exists.
const (
	JSONRPCInvalidParams   int64 = -32602
	JSONRPCInternalError   int64 = -32603
	JSONRPCNotFound        int64 = -32004
	JSONRPCExpiredContext  int64 = -32005
	JSONRPCUpstreamTimeout int64 = -32006
	JSONRPCUpstreamFailure int64 = -32007
)

// JSONRPCCode maps the code onto a numeric JSON-RPC error code.
func (c Code) JSONRPCCode() int64 {
	switch c {
	case CodeValidation:
		return JSONRPCInvalidParams
	case CodeNotFound, CodeAuthorization:
		return JSONRPCNotFound
	case CodeExpiredContext:
		return JSONRPCExpiredContext
	case CodeUpstreamTimeout:
		return JSONRPCUpstreamTimeout
	case CodeUpstreamFailure:
		return JSONRPCUpstreamFailure
	default:
		return JSONRPCInternalError
	}
}

// Retryable reports whether repeating the same request may succeed.
func (c Code) Retryable() bool {
	return c == CodeUpstreamTimeout || c == CodeUpstreamFailure
}
