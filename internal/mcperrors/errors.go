// Package mcperrors implements the error taxonomy of spec §7: a small set
// of kinds, each wrapping an underlying cause, so callers can branch on
// `errors.As` without the gateway's packages depending on each other's
// concrete error types.
package mcperrors

import (
	"fmt"

	"github.com/mcpdock/gateway/internal/mcptypes"
)

// Kind classifies an error into one of the taxonomy's six buckets.
type Kind string

const (
	KindConfig     Kind = "config"
	KindTransport  Kind = "transport"
	KindBackend    Kind = "backend"
	KindProxy      Kind = "proxy"
	KindSession    Kind = "session"
	KindCompliance Kind = "compliance"
)

// Error is a taxonomy-tagged error with an optional JSON-RPC error code for
// kinds that surface directly to clients.
type Error struct {
	Kind    Kind
	Code    int // JSON-RPC error code, 0 if not applicable
	Op      string
	Err     error
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ToMessage renders e as a JSON-RPC error response echoing id, falling
// back to the internal-error code if e carries no JSON-RPC code of its
// own.
func (e *Error) ToMessage(id []byte) *mcptypes.Message {
	code := e.Code
	if code == 0 {
		code = CodeInternalError
	}
	return mcptypes.NewError(id, code, e.Error(), nil)
}

func newf(kind Kind, op string, code int, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Err: err, Message: fmt.Sprintf(format, args...)}
}

// Transport-level sentinel causes. Transport clients wrap one of these as
// the Err of a KindTransport *Error.
var (
	ErrConnectFailed = fmt.Errorf("connect failed")
	ErrProtocolError = fmt.Errorf("malformed protocol frame")
	ErrPeerClosed    = fmt.Errorf("peer closed connection")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrPeerError     = fmt.Errorf("peer returned a JSON-RPC error")
)

func Transport(op string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: cause}
}

func Config(op string, format string, args ...any) *Error {
	return newf(KindConfig, op, 0, nil, format, args...)
}

func Backend(op string, cause error) *Error {
	return &Error{Kind: KindBackend, Op: op, Err: cause}
}

// Proxy-kind helpers carry a JSON-RPC code because proxy errors are
// forwarded verbatim to the calling client as error envelopes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Server-error range reserved for gateway/backend-originated failures
	// (spec §4.3 rule 5).
	CodeServerErrorRangeStart = -32099
	CodeServerErrorRangeEnd   = -32000
)

func ProxyNotRunning(proxyName string) *Error {
	return &Error{Kind: KindProxy, Op: "route", Code: CodeInternalError, Message: fmt.Sprintf("proxy %q is not running", proxyName)}
}

func BackendNotVerified(backendName string) *Error {
	return &Error{Kind: KindProxy, Op: "route", Code: CodeServerErrorRangeEnd, Message: fmt.Sprintf("backend %q is not verified", backendName)}
}

func ToolNotExposed(name string) *Error {
	return &Error{Kind: KindProxy, Op: "tools/call", Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found (tool %q not exposed)", name)}
}

func Session(op string, format string, args ...any) *Error {
	return newf(KindSession, op, 0, nil, format, args...)
}

// HTTPStatusToJSONRPCCode maps an HTTP status code from an HTTP-transport
// backend into the JSON-RPC server-error range per spec §4.3 rule 5.
func HTTPStatusToJSONRPCCode(status int) int {
	if status < 400 {
		return 0
	}
	offset := status % 100
	if offset > 99 {
		offset = 99
	}
	return CodeServerErrorRangeStart + offset
}
