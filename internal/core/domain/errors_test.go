package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestPolicyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *PolicyError
		expected string
	}{
		{
			name:     "kind only",
			err:      NewPolicyError(ErrNotAuthenticated, "Auth", ""),
			expected: "NotAuthenticated",
		},
		{
			name:     "kind and detail",
			err:      NewPolicyError(ErrForbiddenRole, "Auth", "role banned is forbidden"),
			expected: "ForbiddenRole: role banned is forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "not authenticated",
			err:      NewPolicyError(ErrNotAuthenticated, "Auth", ""),
			expected: http.StatusUnauthorized,
		},
		{
			name:     "forbidden role",
			err:      NewPolicyError(ErrForbiddenRole, "Auth", ""),
			expected: http.StatusForbidden,
		},
		{
			name:     "referer mismatch",
			err:      NewPolicyError(ErrRefererMismatch, "Referer", ""),
			expected: http.StatusForbidden,
		},
		{
			name:     "method",
			err:      NewPolicyError(ErrUnauthorizedMethod, "Method", ""),
			expected: http.StatusMethodNotAllowed,
		},
		{
			name:     "no redirect target",
			err:      NewPolicyError(ErrNoRedirectTarget, "Redirect", ""),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "validation",
			err:      &ValidationError{Field: "id", Reason: ReasonMin},
			expected: http.StatusBadRequest,
		},
		{
			name:     "output",
			err:      &OutputError{Err: &ValidationError{Field: "total", Reason: ReasonType}},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "unknown action",
			err:      &DispatchError{Kind: ErrUnknownAction, Route: Route{"account", "nope"}},
			expected: http.StatusNotFound,
		},
		{
			name:     "reboot limit",
			err:      &DispatchError{Kind: ErrRebootLimit, Limit: 3},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "hook denied",
			err:      &HookDeniedError{Hook: "throttle", Reason: "rate limit"},
			expected: http.StatusForbidden,
		},
		{
			name:     "wrapped",
			err:      fmt.Errorf("dispatch: %w", NewPolicyError(ErrNotAuthenticated, "Auth", "")),
			expected: http.StatusUnauthorized,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("policy: %w", NewPolicyError(ErrRefererMismatch, "Referer", "").WithData("https://evil.com"))

	if !IsPolicyError(wrapped, ErrRefererMismatch) {
		t.Error("IsPolicyError(kind) = false, want true")
	}
	if !IsPolicyError(wrapped, "") {
		t.Error("IsPolicyError(any) = false, want true")
	}
	if IsPolicyError(wrapped, ErrNoReferer) {
		t.Error("IsPolicyError(other kind) = true, want false")
	}

	var pe *PolicyError
	if !errors.As(wrapped, &pe) || pe.Data != "https://evil.com" {
		t.Errorf("PolicyError data = %+v", pe)
	}

	if !IsMissingField(&ValidationError{Field: "id", Reason: ReasonMissing}) {
		t.Error("IsMissingField = false, want true")
	}
	if IsMissingField(&ValidationError{Field: "id", Reason: ReasonMin}) {
		t.Error("IsMissingField(min) = true, want false")
	}

	out := &OutputError{Err: &ValidationError{Field: "id", Reason: ReasonMissing}}
	if !IsMissingField(out) {
		t.Error("OutputError should unwrap to its ValidationError")
	}

	if !IsDispatchError(&DispatchError{Kind: ErrRebootLimit}, ErrRebootLimit) {
		t.Error("IsDispatchError = false, want true")
	}
	if !IsHookDenied(fmt.Errorf("x: %w", &HookDeniedError{Hook: "h"})) {
		t.Error("IsHookDenied = false, want true")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "items[2].id", Reason: ReasonMin, Detail: "minimum 1"}
	if got, want := err.Error(), "validation failed for items[2].id (min): minimum 1"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	err = &ValidationError{Reason: ReasonType}
	if got, want := err.Error(), "validation failed for <value> (type)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
