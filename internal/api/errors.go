package api

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned when the pipeline could not be reached or
// answered with a non-2xx status that did not carry an application envelope.
// Callers should prefer the predicate functions (IsTransport, HasStatusCode)
// over asserting on this type directly.
type TransportError struct {
	operation  string
	statusCode int
	status     string
	body       []byte
	err        error
}

func (e *TransportError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.operation, e.err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.operation, e.statusCode, e.Reason())
}

// Unwrap returns the underlying network or decode error, if any.
func (e *TransportError) Unwrap() error { return e.err }

// Operation returns "METHOD /path" for the call that failed.
func (e *TransportError) Operation() string { return e.operation }

// StatusCode is 0 when no response was received.
func (e *TransportError) StatusCode() int { return e.statusCode }

// Body returns the raw response body, untouched.
func (e *TransportError) Body() []byte { return e.body }

// Reason is the status text, or the network error when there was no response.
func (e *TransportError) Reason() string {
	if e.status != "" {
		return e.status
	}
	if e.statusCode != 0 {
		return http.StatusText(e.statusCode)
	}
	if e.err != nil {
		return e.err.Error()
	}
	return "transport failure"
}

// ApplicationError is returned for a {"success": false} envelope. The
// original error code, message, class and trace id stay attached.
type ApplicationError struct {
	operation  string
	statusCode int
	status     string
	code       string
	message    string
	class      string
	retryable  bool
	traceID    string
	body       []byte
}

func (e *ApplicationError) Error() string {
	msg := fmt.Sprintf("%s: HTTP %d: %s", e.operation, e.statusCode, e.Reason())
	if e.code != "" && e.message != "" {
		msg += " (" + e.message + ")"
	}
	if e.traceID != "" {
		msg += " trace=" + e.traceID
	}
	return msg
}

// Reason returns error.code, else error.message, else the HTTP status text.
func (e *ApplicationError) Reason() string {
	switch {
	case e.code != "":
		return e.code
	case e.message != "":
		return e.message
	case e.status != "":
		return e.status
	default:
		return http.StatusText(e.statusCode)
	}
}

func (e *ApplicationError) Operation() string { return e.operation }
func (e *ApplicationError) StatusCode() int   { return e.statusCode }
func (e *ApplicationError) Code() string      { return e.code }
func (e *ApplicationError) Message() string   { return e.message }

// Class is the pipeline's error class (validation, business_rule, transient, ...).
func (e *ApplicationError) Class() string   { return e.class }
func (e *ApplicationError) Retryable() bool { return e.retryable }
func (e *ApplicationError) TraceID() string { return e.traceID }
func (e *ApplicationError) Body() []byte    { return e.body }

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsApplication reports whether err is an *ApplicationError.
func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}

// HasCode reports whether err is an application error with the given error.code.
func HasCode(err error, code string) bool {
	var ae *ApplicationError
	return errors.As(err, &ae) && ae.code == code
}

// HasStatusCode reports whether err carries the given HTTP status, whichever
// kind of failure it is.
func HasStatusCode(err error, code int) bool {
	var ae *ApplicationError
	if errors.As(err, &ae) {
		return ae.statusCode == code
	}
	var te *TransportError
	return errors.As(err, &te) && te.statusCode == code
}

// Reason extracts the priority-ordered failure reason from err, falling back
// to err.Error() for errors outside the taxonomy.
func Reason(err error) string {
	var ae *ApplicationError
	if errors.As(err, &ae) {
		return ae.Reason()
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Reason()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
