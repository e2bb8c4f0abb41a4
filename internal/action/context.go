// Package action holds the per-dispatch ActionContext shared by policies,
// hooks and controller actions.
//
// A Context is created for one dispatch attempt and is never shared across
// requests or goroutines. A REBOOT discards it and builds a fresh one.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tjfontaine/actiongate/internal/contract"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// Options configures a new Context. Only Route and Request are required.
type Options struct {
	Route      domain.Route
	Request    ports.Request
	Session    ports.SessionStore
	Config     ports.ConfigAccessor
	Redirector ports.Redirector
	Collector  *Collector
	Logger     *slog.Logger
	// Vars seeds the variable bag (e.g. the resolved identity under "user").
	Vars map[string]any
}

// Context is the state of one dispatch attempt.
type Context struct {
	route      domain.Route
	method     string
	request    ports.Request
	session    ports.SessionStore
	config     ports.ConfigAccessor
	redirector ports.Redirector
	collector  *Collector
	logger     *slog.Logger

	query map[string]any
	form  map[string]any
	files map[string]any

	payloadOnce sync.Once
	payload     any
	payloadErr  error

	vars     map[string]any
	response *Response
	outputs  []outputContract
}

type outputContract struct {
	contract *contract.Contract
	strict   bool
}

// New creates a Context. Request data maps are copied so that committed
// validation results never leak into the transport's view.
func New(opts Options) *Context {
	c := &Context{
		route:      opts.Route,
		request:    opts.Request,
		session:    opts.Session,
		config:     opts.Config,
		redirector: opts.Redirector,
		collector:  opts.Collector,
		logger:     opts.Logger,
		vars:       make(map[string]any, len(opts.Vars)),
		response:   NewResponse(),
	}
	if c.session == nil {
		c.session = newScratchSession()
	}
	if c.config == nil {
		c.config = noConfig{}
	}
	if c.collector == nil {
		c.collector = NewCollector()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	for k, v := range opts.Vars {
		c.vars[k] = v
	}

	if opts.Request != nil {
		c.method = strings.ToUpper(opts.Request.Method())
		c.query = copyMap(opts.Request.Query())
		c.form = copyMap(opts.Request.Form())
		c.files = copyMap(opts.Request.Files())
	} else {
		c.method = http.MethodGet
		c.query = map[string]any{}
		c.form = map[string]any{}
		c.files = map[string]any{}
	}
	return c
}

// Route returns the controller action being dispatched.
func (c *Context) Route() domain.Route { return c.route }

// Method returns the actual HTTP method of the inbound request.
func (c *Context) Method() string { return c.method }

// Request returns the read-only inbound request view. It may be nil for
// dispatches that did not originate from a transport.
func (c *Context) Request() ports.Request { return c.request }

// Header returns a request header, or "" without a request.
func (c *Context) Header(name string) string {
	if c.request == nil {
		return ""
	}
	return c.request.Header(name)
}

// RequestURL returns the inbound URL as a string, or "".
func (c *Context) RequestURL() string {
	if c.request == nil || c.request.URL() == nil {
		return ""
	}
	return c.request.URL().String()
}

// Query returns the mutable GET data.
func (c *Context) Query() map[string]any { return c.query }

// Form returns the mutable POST data.
func (c *Context) Form() map[string]any { return c.form }

// Files returns uploaded files keyed by form field.
func (c *Context) Files() map[string]any { return c.files }

// SetQuery replaces the GET data wholesale.
func (c *Context) SetQuery(m map[string]any) { c.query = m }

// SetForm replaces the POST data wholesale.
func (c *Context) SetForm(m map[string]any) { c.form = m }

// SetFiles replaces the uploaded files wholesale.
func (c *Context) SetFiles(m map[string]any) { c.files = m }

// Body returns the raw request body.
func (c *Context) Body() ([]byte, error) {
	if c.request == nil {
		return nil, nil
	}
	return c.request.Body()
}

// Payload returns the JSON-decoded request body. The body is decoded once;
// an empty body yields a nil payload.
func (c *Context) Payload() (any, error) {
	c.payloadOnce.Do(func() {
		body, err := c.Body()
		if err != nil {
			c.payloadErr = fmt.Errorf("read body: %w", err)
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return
		}
		if err := json.Unmarshal(body, &c.payload); err != nil {
			c.payloadErr = &domain.ValidationError{Reason: domain.ReasonFormat, Detail: "invalid JSON body: " + err.Error()}
		}
	})
	return c.payload, c.payloadErr
}

// SetPayload replaces the decoded payload.
func (c *Context) SetPayload(v any) {
	c.payloadOnce.Do(func() {})
	c.payload = v
	c.payloadErr = nil
}

// Session returns the client's session store.
func (c *Context) Session() ports.SessionStore { return c.session }

// Config returns the configuration accessor.
func (c *Context) Config() ports.ConfigAccessor { return c.config }

// Xtra is shorthand for Config().Xtra.
func (c *Context) Xtra(namespace, key string, def any) any {
	return c.config.Xtra(namespace, key, def)
}

// Get returns a variable from the per-dispatch bag.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// GetString returns a variable as a string, or "" when unset or not a string.
func (c *Context) GetString(name string) string {
	v, _ := c.vars[name].(string)
	return v
}

// Set stores a variable in the per-dispatch bag.
func (c *Context) Set(name string, value any) { c.vars[name] = value }

// Vars returns a copy of the variable bag.
func (c *Context) Vars() map[string]any { return copyMap(c.vars) }

// Response returns the response under construction.
func (c *Context) Response() *Response { return c.response }

// Collector returns the per-dispatch debug collector.
func (c *Context) Collector() *Collector { return c.collector }

// Logger returns the dispatch logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Debug records an entry in the collector and logs it at debug level.
func (c *Context) Debug(ctx context.Context, source, msg string, args ...any) {
	c.collector.Add(source, msg, args...)
	c.logger.DebugContext(ctx, msg, append([]any{slog.String("source", source)}, args...)...)
}

// Redirect sends the client to url through the redirect sink and records
// the location on the response.
func (c *Context) Redirect(ctx context.Context, url string) error {
	if c.redirector != nil {
		if err := c.redirector.Redirect(ctx, url); err != nil {
			return fmt.Errorf("redirect to %s: %w", url, err)
		}
	}
	c.response.Location = url
	if c.response.Status < 300 || c.response.Status > 399 {
		c.response.Status = http.StatusFound
	}
	return nil
}

// Redirected reports whether a redirect was issued during this dispatch.
func (c *Context) Redirected() bool { return c.response.Location != "" }

// AddOutputContract registers a contract checked against the response data
// just before rendering. Registering an identical contract again replaces
// the earlier registration.
func (c *Context) AddOutputContract(ct *contract.Contract, strict bool) {
	for i, existing := range c.outputs {
		if contract.Equal(existing.contract, ct) {
			c.outputs[i].strict = strict
			return
		}
	}
	c.outputs = append(c.outputs, outputContract{contract: ct, strict: strict})
}

// OutputContracts returns the number of registered output contracts.
func (c *Context) OutputContracts() int { return len(c.outputs) }

// CheckOutput validates the response data against every registered output
// contract and commits the coerced data. Failures are *domain.OutputError.
func (c *Context) CheckOutput() error {
	data := c.response.Data
	for _, oc := range c.outputs {
		coerced, err := contract.ValidateMap(data, oc.contract, oc.strict)
		if err != nil {
			if ve, ok := err.(*domain.ValidationError); ok {
				return &domain.OutputError{Err: ve}
			}
			return err
		}
		data = coerced
	}
	c.response.Data = data
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type noConfig struct{}

func (noConfig) Xtra(_, _ string, def any) any { return def }
