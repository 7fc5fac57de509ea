// Package errs defines the error-kind taxonomy shared by the ledger, the PSP
// clients, the invoice orchestrator, the event engine, and the webhook
// ingress handlers. A Kind is not a sentinel value — many distinct causes can
// share a Kind — but every Kind maps to exactly one HTTP status.
package errs

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed, independent of its message.
type Kind int

const (
	// Internal covers everything not otherwise classified: PSP 5xx, decode
	// failures, unexpected DB errors. Default zero value.
	Internal Kind = iota
	// NotFound means the referenced row or webhook subject doesn't exist.
	NotFound
	// Validation means a precondition on the caller-supplied input failed.
	Validation
	// Forbidden means a signature or ACL check failed.
	Forbidden
	// AlreadyApplied is internal-only: it marks an idempotent insert that
	// lost the race. Callers must never let it escape past the ledger.
	AlreadyApplied
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Forbidden:
		return "forbidden"
	case AlreadyApplied:
		return "already_applied"
	default:
		return "internal"
	}
}

// Error wraps a cause with a Kind, preserving the original error chain so
// callers can still errors.Is / errors.As through it.
type Error struct {
	kind   Kind
	msg    string
	cause  error
	fields map[string]interface{}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns e's classified failure kind. Use KindOf for an arbitrary
// error, which defaults to Internal.
func (e *Error) Kind() Kind { return e.kind }

// Fields returns the Validation field map, if any (e.g. {"buyer_currency":
// "USD", "seller_currency": "BTC"}).
func (e *Error) Fields() map[string]interface{} { return e.fields }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// Wrap tags an existing error with kind, preserving it as the cause.
func Wrap(kind Kind, cause error, msg string) *Error {
	return newErr(kind, msg, errors.WithStack(cause))
}

// New creates a fresh error of kind with no cause.
func New(kind Kind, msg string) *Error {
	return newErr(kind, msg, nil)
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return newErr(NotFound, fmtSprintf(format, args...), nil)
}

// Internalf builds an Internal error with no cause; use Wrap to attach one.
func Internalf(format string, args ...interface{}) *Error {
	return newErr(Internal, fmtSprintf(format, args...), nil)
}

// Forbiddenf builds a Forbidden error.
func Forbiddenf(format string, args ...interface{}) *Error {
	return newErr(Forbidden, fmtSprintf(format, args...), nil)
}

// AlreadyAppliedErr is the single sentinel-shaped AlreadyApplied error the
// ledger returns from increase_amount_captured when the unique
// (account_id, transaction_id) constraint rejects a duplicate insert.
func AlreadyAppliedErr() *Error {
	return newErr(AlreadyApplied, "transaction already applied", nil)
}

// Validationf builds a Validation error carrying the offending fields.
func Validationf(fields map[string]interface{}, format string, args ...interface{}) *Error {
	e := newErr(Validation, fmtSprintf(format, args...), nil)
	e.fields = fields
	return e
}

// KindOf extracts the Kind of err, defaulting to Internal for anything not
// produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// statusTable is the single kind→HTTP-status mapping consumed by
// internal/webhookingress and any future read surface.
var statusTable = map[Kind]int{
	NotFound:       http.StatusNotFound,
	Validation:     http.StatusBadRequest,
	Forbidden:      http.StatusForbidden,
	AlreadyApplied: http.StatusInternalServerError, // never expected to surface
	Internal:       http.StatusInternalServerError,
}

// HTTPStatus maps err's Kind to a status code via the single table above.
func HTTPStatus(err error) int {
	return statusTable[KindOf(err)]
}

func fmtSprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
