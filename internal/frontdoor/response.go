package frontdoor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// sink is the per-request Redirector and Renderer. Redirects are only
// validated here; the Location header is written once the dispatch returns.
type sink struct {
	w       http.ResponseWriter
	written bool
}

var (
	_ ports.Redirector = (*sink)(nil)
	_ ports.Renderer   = (*sink)(nil)
)

func (s *sink) Redirect(_ context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid redirect target: %w", err)
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid redirect scheme %q", u.Scheme)
	}
	return nil
}

// Render writes the view as JSON.
func (s *sink) Render(_ context.Context, view ports.RenderView) error {
	data := view.Data
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	s.writeHeaders(view.Headers)
	s.w.Header().Set("Content-Type", "application/json")
	status := view.Status
	if status == 0 {
		status = http.StatusOK
	}
	s.w.WriteHeader(status)
	s.written = true
	_, err = s.w.Write(append(body, '\n'))
	return err
}

func (s *sink) writeHeaders(headers map[string]string) {
	for k, v := range headers {
		s.w.Header().Set(k, v)
	}
}

// ErrorBody is the JSON shape of a failed dispatch.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// errorDetail classifies err. Unclassified errors are reported as internal
// without their message.
func errorDetail(err error) ErrorDetail {
	var (
		pe *domain.PolicyError
		oe *domain.OutputError
		ve *domain.ValidationError
		de *domain.DispatchError
		he *domain.HookDeniedError
		mb *http.MaxBytesError
	)
	switch {
	case errors.As(err, &pe):
		return ErrorDetail{Type: string(pe.Kind), Message: pe.Error()}
	case errors.As(err, &oe):
		return ErrorDetail{Type: "output", Message: "response failed its output contract"}
	case errors.As(err, &ve):
		return ErrorDetail{Type: "validation", Message: ve.Error(), Field: ve.Field, Reason: ve.Reason}
	case errors.As(err, &de):
		if de.Kind == domain.ErrRebootLimit {
			return ErrorDetail{Type: string(de.Kind), Message: "internal error"}
		}
		return ErrorDetail{Type: string(de.Kind), Message: de.Error()}
	case errors.As(err, &he):
		return ErrorDetail{Type: "hook_denied", Message: he.Reason}
	case errors.As(err, &mb):
		return ErrorDetail{Type: "body_too_large", Message: mb.Error()}
	default:
		return ErrorDetail{Type: "internal", Message: "internal error"}
	}
}

func errorStatus(err error) int {
	var mb *http.MaxBytesError
	if errors.As(err, &mb) {
		return http.StatusRequestEntityTooLarge
	}
	return domain.HTTPStatus(err)
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: detail})
}
