// Package ports defines the interfaces the dispatch core consumes from its
// environment: configuration, sessions, redirects, rendering and the
// inbound request view.
package ports

import (
	"context"
	"net/url"
)

// ConfigAccessor is a read-only view of application configuration.
type ConfigAccessor interface {
	// Xtra returns the value stored under namespace.key, or def when unset.
	Xtra(namespace, key string, def any) any
}

// SessionStore is one client's session. Implementations are responsible for
// their own synchronization; every call may block on I/O. No atomicity is
// guaranteed across calls.
type SessionStore interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	Unset(ctx context.Context, key string) error
}

// SessionBackend opens session stores by session ID.
type SessionBackend interface {
	Open(ctx context.Context, sessionID string) (SessionStore, error)
	Close() error
}

// Redirector issues a transport-level redirect.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// RenderView is the state handed to a Renderer.
type RenderView struct {
	Controller string
	Action     string
	Status     int
	Data       map[string]any
	Headers    map[string]string
}

// Renderer produces final output for a dispatch.
type Renderer interface {
	Render(ctx context.Context, view RenderView) error
}

// UploadedFile describes one uploaded file.
type UploadedFile struct {
	Field string `json:"field"`
	Name  string `json:"name"`
	MIME  string `json:"mime"`
	Size  int64  `json:"size"`
}

// Request is the read-only inbound request view supplied by the transport.
type Request interface {
	Method() string
	URL() *url.URL
	Header(name string) string
	Query() map[string]any
	Form() map[string]any
	Body() ([]byte, error)
	Files() map[string]any
	// Secure reports whether the request arrived over TLS.
	Secure() bool
}

// Identity is the authenticated principal checked by the Auth policy.
type Identity interface {
	IdentityID() string
	Roles() []string
	Services() []string
}
