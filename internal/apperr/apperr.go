// Package apperr defines the typed error taxonomy shared by the crawl
// pipeline, storage layer, and the HTTP/MCP surfaces.
package apperr

import "fmt"

// Kind is one of the error kinds named in the error-handling design.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindNotFound   Kind = "NotFoundError"
	KindConflict   Kind = "ConflictError"
	KindFetch      Kind = "FetchError"
	KindExtract    Kind = "ExtractError"
	KindAnnotator  Kind = "AnnotatorError"
	KindStorage    Kind = "StorageError"
	KindAuth       Kind = "AuthError"
	KindCancelled  Kind = "CancelledError"
	KindInternal   Kind = "InternalError"
)

// Error is a typed, wrapped error carrying a stable Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string, err error) *Error { return new_(KindValidation, msg, err) }
func NotFound(msg string, err error) *Error   { return new_(KindNotFound, msg, err) }
func Conflict(msg string, err error) *Error   { return new_(KindConflict, msg, err) }
func Fetch(msg string, err error) *Error      { return new_(KindFetch, msg, err) }
func Extract(msg string, err error) *Error    { return new_(KindExtract, msg, err) }
func Annotator(msg string, err error) *Error  { return new_(KindAnnotator, msg, err) }
func Storage(msg string, err error) *Error    { return new_(KindStorage, msg, err) }
func Auth(msg string, err error) *Error       { return new_(KindAuth, msg, err) }
func Cancelled(msg string, err error) *Error  { return new_(KindCancelled, msg, err) }
func Internal(msg string, err error) *Error   { return new_(KindInternal, msg, err) }

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if asError(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps an error Kind to the HTTP status used uniformly by both
// internal/httpapi and the MCP REST shim.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindAuth:
		return 401
	case KindCancelled:
		return 499
	case KindStorage, KindFetch, KindExtract, KindAnnotator, KindInternal:
		return 500
	default:
		return 500
	}
}
