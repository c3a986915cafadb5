package kt

import "fmt"

// Kind classifies an Error the way spec §7 taxonomizes failures: by what
// went wrong, not by a server-specific numeric code. This mirrors
// twmb/franz-go/pkg/kerr's approach of mapping a wire-level signal onto a
// small fixed vocabulary of error values, adapted from "code table" to
// "kind enum" because KT/TT don't expose a stable numeric code per failure.
type Kind int

const (
	// KindConfiguration: unknown serializer, missing optional backend, bad
	// option combination. Raised at construction; unrecoverable.
	KindConfiguration Kind = iota
	// KindConnection: dial failure, timeout, EOF, partial read. Triggers
	// Connection disposal; may be retried by the caller.
	KindConnection
	// KindProtocol: unexpected op byte, malformed frame, unknown status
	// code, odd-length list where pairs were expected. Fatal for the
	// current Connection.
	KindProtocol
	// KindServer: server-signaled failure (binary-A 0xBF, binary-B nonzero
	// status byte, HTTP unexpected status). The Connection is still
	// reusable when the framing completed.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the error type returned for all Configuration, Connection,
// Protocol, and Server failures. Logical failures (spec §7) are never
// represented as an Error; they're surfaced as sentinel zero values or
// booleans per call site.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("kt: %s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("kt: %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, kt.ErrKind(kt.KindConnection)) style checks, or more
// simply use errors.As(err, &ktErr) and switch on ktErr.Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// ErrKind returns a sentinel *Error of the given kind with no message,
// suitable for use with errors.Is.
func ErrKind(k Kind) *Error { return &Error{Kind: k} }

func configErr(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func connErr(cause error, format string, args ...any) error {
	return &Error{Kind: KindConnection, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func protoErr(format string, args ...any) error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

func serverErr(format string, args ...any) error {
	return &Error{Kind: KindServer, Message: fmt.Sprintf(format, args...)}
}
