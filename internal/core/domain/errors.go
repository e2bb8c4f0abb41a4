package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// PolicyErrorKind names a policy failure.
type PolicyErrorKind string

const (
	ErrNotAuthenticated   PolicyErrorKind = "NotAuthenticated"
	ErrAuthenticated      PolicyErrorKind = "Authenticated"
	ErrForbiddenRole      PolicyErrorKind = "ForbiddenRole"
	ErrNoMatchingRole     PolicyErrorKind = "NoMatchingRole"
	ErrForbiddenService   PolicyErrorKind = "ForbiddenService"
	ErrNoMatchingAccess   PolicyErrorKind = "NoMatchingAccess"
	ErrUnauthorizedMethod PolicyErrorKind = "UnauthorizedMethod"
	ErrNoReferer          PolicyErrorKind = "NoReferer"
	ErrRefererMismatch    PolicyErrorKind = "RefererMismatch"
	ErrNoRedirectTarget   PolicyErrorKind = "NoRedirectTarget"
)

// PolicyError is the hard failure of a policy attribute that had no
// redirect target configured.
type PolicyError struct {
	// Kind identifies the violated rule.
	Kind PolicyErrorKind `json:"kind"`

	// Attribute is the name of the attribute that failed.
	Attribute string `json:"attribute,omitempty"`

	// Detail is a human-readable explanation.
	Detail string `json:"detail,omitempty"`

	// Data carries the offending value (role name, method, referer...).
	Data any `json:"data,omitempty"`
}

// NewPolicyError creates a policy error.
func NewPolicyError(kind PolicyErrorKind, attribute, detail string) *PolicyError {
	return &PolicyError{Kind: kind, Attribute: attribute, Detail: detail}
}

// WithData attaches the offending value to the error.
func (e *PolicyError) WithData(data any) *PolicyError {
	e.Data = data
	return e
}

func (e *PolicyError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

// HTTPStatusCode returns the suggested HTTP status for this failure.
func (e *PolicyError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrNotAuthenticated:
		return http.StatusUnauthorized
	case ErrAuthenticated, ErrForbiddenRole, ErrNoMatchingRole, ErrForbiddenService, ErrNoMatchingAccess, ErrNoReferer, ErrRefererMismatch:
		return http.StatusForbidden
	case ErrUnauthorizedMethod:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// IsPolicyError reports whether err is a PolicyError of the given kind.
// An empty kind matches any policy error.
func IsPolicyError(err error, kind PolicyErrorKind) bool {
	var pe *PolicyError
	if !errors.As(err, &pe) {
		return false
	}
	return kind == "" || pe.Kind == kind
}

// Validation failure reasons.
const (
	ReasonMissing = "missing"
	ReasonType    = "type"
	ReasonMin     = "min"
	ReasonMax     = "max"
	ReasonMinLen  = "minLen"
	ReasonMaxLen  = "maxLen"
	ReasonValues  = "values"
	ReasonMime    = "mime"
	ReasonFormat  = "format"
	ReasonSchema  = "schema"
)

// ValidationError identifies the field and constraint that rejected a value.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Value  any    `json:"value,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e *ValidationError) Error() string {
	field := e.Field
	if field == "" {
		field = "<value>"
	}
	if e.Detail != "" {
		return fmt.Sprintf("validation failed for %s (%s): %s", field, e.Reason, e.Detail)
	}
	return fmt.Sprintf("validation failed for %s (%s)", field, e.Reason)
}

// HTTPStatusCode returns 400: the client sent data that broke a contract.
func (e *ValidationError) HTTPStatusCode() int {
	return http.StatusBadRequest
}

// IsMissingField reports whether err is a ValidationError for a missing field.
func IsMissingField(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Reason == ReasonMissing
}

// OutputError reports a response that failed a deferred output contract.
type OutputError struct {
	Err *ValidationError
}

func (e *OutputError) Error() string {
	return "output contract violated: " + e.Err.Error()
}

func (e *OutputError) Unwrap() error { return e.Err }

// HTTPStatusCode is always 500: the server produced invalid output.
func (e *OutputError) HTTPStatusCode() int {
	return http.StatusInternalServerError
}

// DispatchErrorKind names a dispatcher failure.
type DispatchErrorKind string

const (
	ErrRebootLimit       DispatchErrorKind = "reboot_limit"
	ErrUnknownController DispatchErrorKind = "unknown_controller"
	ErrUnknownAction     DispatchErrorKind = "unknown_action"
)

// DispatchError is raised by the flow controller itself.
type DispatchError struct {
	Kind  DispatchErrorKind
	Route Route
	Limit int
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case ErrRebootLimit:
		return fmt.Sprintf("dispatch re-entry limit %d exceeded at %s", e.Limit, e.Route)
	case ErrUnknownController:
		return fmt.Sprintf("unknown controller %q", e.Route.Controller)
	case ErrUnknownAction:
		return fmt.Sprintf("unknown action %q on controller %q", e.Route.Action, e.Route.Controller)
	default:
		return fmt.Sprintf("dispatch error %s at %s", e.Kind, e.Route)
	}
}

// HTTPStatusCode maps unresolvable routes to 404 and loops to 500.
func (e *DispatchError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrUnknownController, ErrUnknownAction:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// IsDispatchError reports whether err is a DispatchError of the given kind.
func IsDispatchError(err error, kind DispatchErrorKind) bool {
	var de *DispatchError
	if !errors.As(err, &de) {
		return false
	}
	return kind == "" || de.Kind == kind
}

// HookDeniedError is returned when a plugin hook denies a request outright.
type HookDeniedError struct {
	Hook   string
	Reason string
	// Status overrides the default 403 (e.g. 429 for rate limits).
	Status int
}

func (e *HookDeniedError) Error() string {
	return fmt.Sprintf("denied by hook %s: %s", e.Hook, e.Reason)
}

// HTTPStatusCode returns Status, or 403 when unset.
func (e *HookDeniedError) HTTPStatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusForbidden
}

// IsHookDenied reports whether err is a hook denial.
func IsHookDenied(err error) bool {
	var he *HookDeniedError
	return errors.As(err, &he)
}

// StatusCoder is implemented by errors that suggest an HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

// HTTPStatus returns the status suggested by err, or 500.
func HTTPStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}
