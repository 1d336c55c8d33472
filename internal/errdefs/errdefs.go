// Package errdefs defines the error taxonomy shared by the parser, graph builder,
// registry and call layers.
//
// Every error produced by mcptape that callers need to react to carries a Kind.
// Kinds decide policy: configuration errors abort a run before it starts,
// transient call errors may be retried, permanent call errors become FAIL results,
// registry errors degrade to a cache miss and discovery errors degrade parameter
// mapping to pass-through.
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// Kind classifies an error by how the caller should treat it.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransientCall Kind = "transient_call"
	KindPermanentCall Kind = "permanent_call"
	KindRegistry      Kind = "registry"
	KindDiscovery     Kind = "discovery"
)

// Cause narrows down what went wrong on a call. The retry controller keys its
// allow-list on causes.
type Cause string

const (
	CauseTimeout    Cause = "timeout"
	CauseConnection Cause = "connection"
	CauseIO         Cause = "io"
	CauseTool       Cause = "tool"
	CauseValidation Cause = "validation"
	CauseUnknown    Cause = "unknown"
)

// Error is the concrete error type carrying a Kind and Cause.
type Error struct {
	Kind  Kind
	Cause Cause
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configurationf builds a ConfigurationError from a format string.
func Configurationf(format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Cause: CauseValidation, Err: fmt.Errorf(format, args...)}
}

// Configuration wraps err as a ConfigurationError for operation op.
func Configuration(op string, err error) error {
	return &Error{Kind: KindConfiguration, Cause: CauseValidation, Op: op, Err: err}
}

// Transient wraps err as a retryable call error.
func Transient(op string, cause Cause, err error) error {
	return &Error{Kind: KindTransientCall, Cause: cause, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable call error.
func Permanent(op string, cause Cause, err error) error {
	return &Error{Kind: KindPermanentCall, Cause: cause, Op: op, Err: err}
}

// Registry wraps err as a registry (storage) error.
func Registry(op string, err error) error {
	return &Error{Kind: KindRegistry, Cause: CauseIO, Op: op, Err: err}
}

// Discovery wraps err as a schema discovery error.
func Discovery(op string, err error) error {
	return &Error{Kind: KindDiscovery, Cause: CauseUnknown, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CauseOf returns the cause recorded on err, classifying raw errors on the fly.
func CauseOf(err error) Cause {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Cause != "" {
		return e.Cause
	}
	_, cause := classify(err)
	return cause
}

func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
func IsTransient(err error) bool     { return KindOf(err) == KindTransientCall }
func IsPermanent(err error) bool     { return KindOf(err) == KindPermanentCall }
func IsRegistry(err error) bool      { return KindOf(err) == KindRegistry }
func IsDiscovery(err error) bool     { return KindOf(err) == KindDiscovery }

// Classify wraps a raw error coming out of a protocol call into the taxonomy.
// Errors that already carry a Kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind, cause := classify(err)
	return &Error{Kind: kind, Cause: cause, Op: op, Err: err}
}

func classify(err error) (Kind, Cause) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTransientCall, CauseTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransientCall, CauseTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) {
		return KindTransientCall, CauseConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransientCall, CauseConnection
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindTransientCall, CauseIO
	}

	return KindPermanentCall, CauseUnknown
}
