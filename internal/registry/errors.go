package registry

import (
	"errors"
	"fmt"
)

// Class groups error codes by the kind of guard that produced them.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassAuthorization Class = "authorization"
	ClassState         Class = "state"
	ClassArithmetic    Class = "arithmetic"
	ClassStructural    Class = "structural"
)

// Code identifies a specific rejection reason.
type Code string

const (
	CodeStringEmpty     Code = "StringEmpty"
	CodeStringTooLong   Code = "StringTooLong"
	CodeValueOutOfRange Code = "ValueOutOfRange"
	CodeInvalidFeeBps   Code = "InvalidFeeBps"
	CodeMetadataInvalid Code = "MetadataInvalid"

	CodeInvalidAuthority Code = "InvalidAuthority"
	CodeInvalidAdmin     Code = "InvalidAdmin"

	CodeDeploymentInactive  Code = "DeploymentInactive"
	CodeWritesDisabled      Code = "WritesDisabled"
	CodeRepoInactive        Code = "RepoInactive"
	CodeModuleInactive      Code = "ModuleInactive"
	CodeModuleImmutable     Code = "ModuleImmutable"
	CodeAlreadyDeprecated   Code = "AlreadyDeprecated"
	CodeNotBootstrapped     Code = "NotBootstrapped"
	CodeObservationDisabled Code = "ObservationDisabled"
	CodeModuleLimitReached  Code = "ModuleLimitReached"

	CodeCounterOverflow         Code = "CounterOverflow"
	CodeObservationDataTooLarge Code = "ObservationDataTooLarge"

	CodeInvalidAddress Code = "InvalidAddress"
	CodeInternalError  Code = "InternalError"
	CodeNotFound       Code = "NotFound"
	CodeAlreadyExists  Code = "AlreadyExists"
)

// Class returns the taxonomy bucket for c.
func (c Code) Class() Class {
	switch c {
	case CodeStringEmpty, CodeStringTooLong, CodeValueOutOfRange, CodeInvalidFeeBps, CodeMetadataInvalid:
		return ClassValidation
	case CodeInvalidAuthority, CodeInvalidAdmin:
		return ClassAuthorization
	case CodeDeploymentInactive, CodeWritesDisabled, CodeRepoInactive, CodeModuleInactive,
		CodeModuleImmutable, CodeAlreadyDeprecated, CodeNotBootstrapped, CodeObservationDisabled,
		CodeModuleLimitReached:
		return ClassState
	case CodeCounterOverflow, CodeObservationDataTooLarge:
		return ClassArithmetic
	default:
		return ClassStructural
	}
}

// Error is returned by every engine operation that is rejected.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrStringEmpty             = &Error{Code: CodeStringEmpty}
	ErrStringTooLong           = &Error{Code: CodeStringTooLong}
	ErrValueOutOfRange         = &Error{Code: CodeValueOutOfRange}
	ErrInvalidFeeBps           = &Error{Code: CodeInvalidFeeBps}
	ErrMetadataInvalid         = &Error{Code: CodeMetadataInvalid}
	ErrInvalidAuthority        = &Error{Code: CodeInvalidAuthority}
	ErrInvalidAdmin            = &Error{Code: CodeInvalidAdmin}
	ErrDeploymentInactive      = &Error{Code: CodeDeploymentInactive}
	ErrWritesDisabled          = &Error{Code: CodeWritesDisabled}
	ErrRepoInactive            = &Error{Code: CodeRepoInactive}
	ErrModuleInactive          = &Error{Code: CodeModuleInactive}
	ErrModuleImmutable         = &Error{Code: CodeModuleImmutable}
	ErrAlreadyDeprecated       = &Error{Code: CodeAlreadyDeprecated}
	ErrNotBootstrapped         = &Error{Code: CodeNotBootstrapped}
	ErrObservationDisabled     = &Error{Code: CodeObservationDisabled}
	ErrModuleLimitReached      = &Error{Code: CodeModuleLimitReached}
	ErrCounterOverflow         = &Error{Code: CodeCounterOverflow}
	ErrObservationDataTooLarge = &Error{Code: CodeObservationDataTooLarge}
	ErrInvalidAddress          = &Error{Code: CodeInvalidAddress}
	ErrInternal                = &Error{Code: CodeInternalError}
	ErrNotFound                = &Error{Code: CodeNotFound}
	ErrAlreadyExists           = &Error{Code: CodeAlreadyExists}
)

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func internalError(msg string, err error) *Error {
	return &Error{Code: CodeInternalError, Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}

// CodeOf extracts the registry code from err, or "" if err is not a registry error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ClassOf extracts the error class from err, or "" if err is not a registry error.
func ClassOf(err error) Class {
	code := CodeOf(err)
	if code == "" {
		return ""
	}
	return code.Class()
}
