// Package errors provides error values that carry a gRPC status code, an
// optional public message, and a stack trace, while remaining compatible
// with the standard library error interfaces.
//
// Protocol level failures are expected to be created once as sentinels and
// then marked at the point they are returned:
//
//	var ErrInvalidGrant = errors.NewC("invalid_grant", codes.InvalidArgument)
//
//	func verify(...) error {
//	    if !ok {
//	        return errors.Mark(ErrInvalidGrant, 0)
//	    }
//	    return nil
//	}
//
// Callers test against the sentinel with errors.Is.
package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MaxStackDepth is the maximum number of stackframes captured per error.
var MaxStackDepth = 32

// Error is an error with an attached gRPC code and stacktrace. It can be
// used wherever the builtin error interface is expected.
type Error struct {
	Err    error
	stack  []uintptr
	prefix string

	// gRPC status code to associate with an error response.
	code codes.Code

	// HTTP status code overriding the one mapped from the gRPC code.
	httpStatusCode int

	// Message safe to return to a client.
	publicMessage string
}

// New makes an Error from the given value. If the value is already an error
// it is used directly, otherwise it is formatted with %v. The stacktrace
// points at the caller of New.
func New(e interface{}) *Error {
	return newError(e, codes.Unknown, 1)
}

// NewC makes an Error with a gRPC status code attached.
func NewC(e interface{}, code codes.Code) *Error {
	return newError(e, code, 1)
}

// Errorf creates a new error with a formatted message. Drop-in replacement
// for fmt.Errorf that captures a stacktrace.
func Errorf(format string, a ...interface{}) *Error {
	return newError(fmt.Errorf(format, a...), codes.Unknown, 1)
}

func newError(e interface{}, code codes.Code, skip int) *Error {
	var err error
	switch e := e.(type) {
	case error:
		err = e
	default:
		err = fmt.Errorf("%v", e)
	}
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2+skip, stack[:])
	return &Error{Err: err, stack: stack[:length], code: code}
}

// Wrap makes an Error from the given value, preserving an existing *Error.
// The skip parameter indicates how far up the stack to start the
// stacktrace: 0 is from the caller of Wrap.
func Wrap(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		return err
	}
	return newError(e, codes.Unknown, 1+skip)
}

// Mark takes an error and resets the stack trace to the point Mark was
// called, keeping the code and messages of the original. Use when returning
// a sentinel so the trace identifies the return site rather than package
// initialization. The original stays in the unwrap chain, so errors.Is
// against the sentinel keeps working.
func Mark(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		stack := make([]uintptr, MaxStackDepth)
		length := runtime.Callers(2+skip, stack[:])
		return &Error{
			Err:            err,
			stack:          stack[:length],
			code:           err.code,
			httpStatusCode: err.httpStatusCode,
			publicMessage:  err.publicMessage,
		}
	}
	return Wrap(e, 1+skip)
}

// WrapPrefix is like Wrap but prefixes the error message. The wrapped
// error stays in the unwrap chain.
func WrapPrefix(e interface{}, prefix string, skip int) *Error {
	if e == nil {
		return nil
	}
	err := Wrap(e, 1+skip)
	return &Error{
		Err:            err,
		stack:          err.stack,
		code:           err.code,
		httpStatusCode: err.httpStatusCode,
		publicMessage:  err.publicMessage,
		prefix:         prefix,
	}
}

// WithCode takes an error and attaches a gRPC status code to it, wrapping
// if needed.
func WithCode(err error, code codes.Code) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, 1).WithCode(code)
}

// WithPublicMessage attaches a client-safe message to an error, wrapping if
// needed.
func WithPublicMessage(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, 1).WithPublicMessage(msg)
}

// Error returns the underlying error's message.
func (err *Error) Error() string {
	msg := err.Err.Error()
	if err.prefix != "" {
		msg = err.prefix + ": " + msg
	}
	return msg
}

// Unwrap exposes the wrapped error for errors.Is and errors.As.
func (err *Error) Unwrap() error {
	return err.Err
}

// Code returns the gRPC status code associated with the error.
func (err *Error) Code() codes.Code {
	return err.code
}

// WithCode sets the gRPC status code associated with the error.
func (err *Error) WithCode(code codes.Code) *Error {
	err.code = code
	return err
}

// PublicMessage returns the message that should be shown to a client.
func (err *Error) PublicMessage() string {
	if err.publicMessage != "" {
		return err.publicMessage
	}
	return err.Error()
}

// WithPublicMessage sets the message that should be shown to a client.
func (err *Error) WithPublicMessage(msg string) *Error {
	err.publicMessage = msg
	return err
}

// HTTPStatusCode returns the HTTP status for the error. An explicitly set
// status wins, otherwise the gRPC code is mapped.
func (err *Error) HTTPStatusCode() int {
	if err.httpStatusCode != 0 {
		return err.httpStatusCode
	}
	switch err.code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// WithHTTPStatusCode sets an explicit HTTP status for the error.
func (err *Error) WithHTTPStatusCode(code int) *Error {
	err.httpStatusCode = code
	return err
}

// GRPCStatus returns a gRPC status object for the error.
func (err *Error) GRPCStatus() *status.Status {
	return status.New(err.code, err.PublicMessage())
}

// Stack renders the captured call stack, one frame per line.
func (err *Error) Stack() []byte {
	buf := bytes.Buffer{}
	frames := runtime.CallersFrames(err.stack)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return buf.Bytes()
}

// ErrorStack returns the error message followed by the callstack.
func (err *Error) ErrorStack() string {
	return err.Error() + "\n" + string(err.Stack())
}

// Code returns a gRPC status code for any error. Nil maps to codes.OK,
// errors that expose a Code() method report their own, everything else is
// codes.Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var ce interface{ Code() codes.Code }
	if stderrors.As(err, &ce) {
		return ce.Code()
	}
	return codes.Unknown
}

// HTTPStatusCode returns an HTTP status code for any error.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var he interface{ HTTPStatusCode() int }
	if stderrors.As(err, &he) {
		return he.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}

// Is reports whether any error in err's tree matches target. Re-exported so
// callers don't need to import both this package and the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target. Re-exported
// for the same reason as Is.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
