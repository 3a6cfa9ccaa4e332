// Package accesserr defines the failure kinds shared by every access-control
// component. Callers inspect them with errors.Is against the package sentinels
// or with KindOf.
package accesserr

import (
	"errors"
	"fmt"
)

// Kind classifies an access-control failure
type Kind int

const (
	Unknown Kind = iota
	Unauthorized
	NoTenant
	Forbidden
	NotFound
	DuplicateName
	DuplicateAssignment
	RoleInUse
	ProtectedRole
	CannotDisableSystemPage
	PointInUse
	Validation
	StoreUnavailable
)

var kindNames = map[Kind]string{
	Unknown:                 "unknown",
	Unauthorized:            "unauthorized",
	NoTenant:                "no_tenant",
	Forbidden:               "forbidden",
	NotFound:                "not_found",
	DuplicateName:           "duplicate_name",
	DuplicateAssignment:     "duplicate_assignment",
	RoleInUse:               "role_in_use",
	ProtectedRole:           "protected_role",
	CannotDisableSystemPage: "cannot_disable_system_page",
	PointInUse:              "point_in_use",
	Validation:              "validation_error",
	StoreUnavailable:        "store_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned across component boundaries
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, ErrForbidden) matches any
// Forbidden error regardless of op or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// Sentinels for errors.Is
var (
	ErrUnauthorized            = &Error{Kind: Unauthorized}
	ErrNoTenant                = &Error{Kind: NoTenant}
	ErrForbidden               = &Error{Kind: Forbidden}
	ErrNotFound                = &Error{Kind: NotFound}
	ErrDuplicateName           = &Error{Kind: DuplicateName}
	ErrDuplicateAssignment     = &Error{Kind: DuplicateAssignment}
	ErrRoleInUse               = &Error{Kind: RoleInUse}
	ErrProtectedRole           = &Error{Kind: ProtectedRole}
	ErrCannotDisableSystemPage = &Error{Kind: CannotDisableSystemPage}
	ErrPointInUse              = &Error{Kind: PointInUse}
	ErrValidation              = &Error{Kind: Validation}
	ErrStoreUnavailable        = &Error{Kind: StoreUnavailable}
)

// New creates an error of the given kind
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Store wraps a driver or connection failure as StoreUnavailable. Errors that
// already carry a kind are returned unchanged.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: StoreUnavailable, Op: op, Err: err}
}

// KindOf returns the kind of the outermost access error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return KindOf(err) == NotFound
}

// IsForbidden checks if an error denies access
func IsForbidden(err error) bool {
	return KindOf(err) == Forbidden
}

// IsStoreUnavailable checks if a decision could not be made because the
// backing store failed
func IsStoreUnavailable(err error) bool {
	return KindOf(err) == StoreUnavailable
}
