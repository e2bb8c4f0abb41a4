// Package frontdoor binds the dispatcher to HTTP. Requests to
// /{controller}/{action} become dispatches; the outcome decides the
// response: rendered JSON, a redirect, or 204 when nothing was rendered.
package frontdoor

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/actiongate/internal/adapters/identity/bearer"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/dispatch"
	"github.com/tjfontaine/actiongate/internal/plugin"
	"github.com/tjfontaine/actiongate/internal/server"
)

const (
	DefaultCookieName    = "gate_sid"
	DefaultAction        = "index"
	DefaultMaxBodyBytes  = 10 << 20
	DefaultMaxFormMemory = 32 << 20
)

// Variables seeded into every ActionContext.
const (
	VarRequestID = "request_id"
	VarUser      = "user"
)

// Options configures a Handler. Only Dispatcher is required.
type Options struct {
	Dispatcher *dispatch.Dispatcher
	// Sessions backs the cookie session. Nil gives every dispatch a
	// throwaway session.
	Sessions ports.SessionBackend
	// Verifier resolves bearer tokens into the "user" variable.
	Verifier      *bearer.Verifier
	CookieName    string
	DefaultAction string
	MaxBodyBytes  int64
	MaxFormMemory int64
	Logger        *slog.Logger
}

// Handler serves dispatches over HTTP.
type Handler struct {
	dispatcher    *dispatch.Dispatcher
	sessions      ports.SessionBackend
	verifier      *bearer.Verifier
	cookieName    string
	defaultAction string
	maxBody       int64
	maxMemory     int64
	logger        *slog.Logger
}

// New creates a Handler.
func New(opts Options) *Handler {
	h := &Handler{
		dispatcher:    opts.Dispatcher,
		sessions:      opts.Sessions,
		verifier:      opts.Verifier,
		cookieName:    opts.CookieName,
		defaultAction: opts.DefaultAction,
		maxBody:       opts.MaxBodyBytes,
		maxMemory:     opts.MaxFormMemory,
		logger:        opts.Logger,
	}
	if h.cookieName == "" {
		h.cookieName = DefaultCookieName
	}
	if h.defaultAction == "" {
		h.defaultAction = DefaultAction
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.maxMemory <= 0 {
		h.maxMemory = DefaultMaxFormMemory
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Mount registers the dispatch routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.HandleFunc("/{controller}", h.ServeHTTP)
	r.HandleFunc("/{controller}/{action}", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	route := domain.Route{
		Controller: chi.URLParam(r, "controller"),
		Action:     chi.URLParam(r, "action"),
	}
	if route.Action == "" {
		route.Action = h.defaultAction
	}
	server.AddLogField(ctx, "route", route.String())

	req, err := newRequest(w, r, h.maxBody, h.maxMemory)
	if err != nil {
		server.AddError(ctx, err)
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, ErrorDetail{Type: "bad_request", Message: err.Error()})
		return
	}
	defer req.cleanup()

	vars := map[string]any{
		VarRequestID:         server.GetRequestID(ctx),
		plugin.VarRemoteAddr: remoteHost(r.RemoteAddr),
	}

	var session ports.SessionStore
	if h.sessions != nil {
		sid := h.sessionID(w, r)
		session, err = h.sessions.Open(ctx, sid)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		vars[plugin.VarSessionID] = sid
	}

	if h.verifier != nil {
		id, err := h.verifier.FromHeader(r.Header.Get("Authorization"))
		switch {
		case err == nil:
			vars[VarUser] = id
		case !errors.Is(err, bearer.ErrNoToken):
			server.AddLogField(ctx, "auth_error", err.Error())
		}
	}

	out := &sink{w: w}
	res, err := h.dispatcher.Dispatch(ctx, &dispatch.Request{
		Route:      route,
		HTTP:       req,
		Session:    session,
		Redirector: out,
		Renderer:   out,
		Vars:       vars,
	})
	if err != nil {
		if out.written {
			server.AddError(ctx, err)
			return
		}
		h.fail(w, r, err)
		return
	}

	server.AddLogField(ctx, "outcome", res.Outcome.String())
	if res.Route != route {
		server.AddLogField(ctx, "final_route", res.Route.String())
	}
	if out.written {
		return
	}

	resp := res.Response
	out.writeHeaders(resp.Headers)
	if resp.Location != "" {
		status := resp.Status
		if status < 300 || status > 399 {
			status = http.StatusFound
		}
		http.Redirect(w, r, resp.Location, status)
		return
	}

	status := http.StatusNoContent
	if resp.Status != 0 && resp.Status != http.StatusOK {
		status = resp.Status
	}
	w.WriteHeader(status)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "dispatch failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, errorDetail(err))
}

// sessionID returns the session cookie value, issuing a new cookie when it
// is missing or malformed.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.cookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
