// Package testutil provides fakes for the dispatch collaborators and HTTP
// replay helpers shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// Request is an in-memory ports.Request.
type Request struct {
	MethodValue string
	URLValue    *url.URL
	Headers     http.Header
	QueryValues map[string]any
	FormValues  map[string]any
	BodyBytes   []byte
	BodyErr     error
	FileValues  map[string]any
	TLS         bool
}

// NewRequest builds a request; query parameters in rawURL populate Query.
// Repeated parameters become []any.
func NewRequest(method, rawURL string) *Request {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	r := &Request{
		MethodValue: method,
		URLValue:    u,
		Headers:     http.Header{},
		QueryValues: map[string]any{},
		FormValues:  map[string]any{},
		FileValues:  map[string]any{},
		TLS:         u.Scheme == "https",
	}
	for k, vs := range u.Query() {
		if len(vs) == 1 {
			r.QueryValues[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		r.QueryValues[k] = list
	}
	return r
}

// WithHeader sets a header and returns r.
func (r *Request) WithHeader(name, value string) *Request {
	r.Headers.Set(name, value)
	return r
}

// WithForm merges POST values and returns r.
func (r *Request) WithForm(values map[string]any) *Request {
	for k, v := range values {
		r.FormValues[k] = v
	}
	return r
}

// WithJSON sets a JSON body and content type and returns r.
func (r *Request) WithJSON(v any) *Request {
	switch t := v.(type) {
	case string:
		r.BodyBytes = []byte(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		r.BodyBytes = b
	}
	r.Headers.Set("Content-Type", "application/json")
	return r
}

// WithFile adds an uploaded file and returns r.
func (r *Request) WithFile(f ports.UploadedFile) *Request {
	r.FileValues[f.Field] = f
	return r
}

func (r *Request) Method() string { return r.MethodValue }
func (r *Request) URL() *url.URL { return r.URLValue }
func (r *Request) Header(name string) string { return r.Headers.Get(name) }
func (r *Request) Query() map[string]any { return r.QueryValues }
func (r *Request) Form() map[string]any { return r.FormValues }
func (r *Request) Body() ([]byte, error) { return r.BodyBytes, r.BodyErr }
func (r *Request) Files() map[string]any { return r.FileValues }
func (r *Request) Secure() bool { return r.TLS }

// Config is a ports.ConfigAccessor over a flat "namespace.key" map.
type Config map[string]any

func (c Config) Xtra(namespace, key string, def any) any {
	if v, ok := c[namespace+"."+key]; ok {
		return v
	}
	return def
}

// Session is a goroutine-safe in-memory ports.SessionStore.
type Session struct {
	mu   sync.Mutex
	Data map[string]any
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{Data: map[string]any{}}
}

func (s *Session) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Data[key]
	return v, ok, nil
}

func (s *Session) Set(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data[key] = value
	return nil
}

func (s *Session) Unset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Data, key)
	return nil
}

// Value returns a stored value, ignoring presence.
func (s *Session) Value(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Data[key]
}

// Redirector records redirect targets.
type Redirector struct {
	mu   sync.Mutex
	URLs []string
	Err  error
}

func (r *Redirector) Redirect(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.URLs = append(r.URLs, url)
	return nil
}

// Last returns the most recent redirect target, or "".
func (r *Redirector) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.URLs) == 0 {
		return ""
	}
	return r.URLs[len(r.URLs)-1]
}

// Renderer records rendered views.
type Renderer struct {
	mu    sync.Mutex
	Views []ports.RenderView
	Err   error
}

func (r *Renderer) Render(_ context.Context, view ports.RenderView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Views = append(r.Views, view)
	return nil
}

// Count returns the number of renders.
func (r *Renderer) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Views)
}

// Identity is a static ports.Identity.
type Identity struct {
	ID          string
	RoleList    []string
	ServiceList []string
}

func (i Identity) IdentityID() string { return i.ID }
func (i Identity) Roles() []string { return i.RoleList }
func (i Identity) Services() []string { return i.ServiceList }
