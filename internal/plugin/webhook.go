package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/pkg/config"
	"github.com/tjfontaine/actiongate/internal/pkg/safehttp"
)

// WebhookType is the configuration type of webhook hooks.
const WebhookType = "webhook"

const defaultWebhookTimeout = 5 * time.Second

// WebhookHook asks an external HTTP service for a verdict.
type WebhookHook struct {
	name    string
	url     string
	onError ports.HookAction // allow or deny
	retries int
	headers map[string]string
	client  *http.Client
}

// WebhookConfig configures a webhook hook.
type WebhookConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
	OnError ports.HookAction // "allow" or "deny" (default: deny)
	Retries int
	Headers map[string]string
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// NewWebhookHook creates a webhook hook.
func NewWebhookHook(cfg WebhookConfig) *WebhookHook {
	onError := cfg.OnError
	if onError == "" {
		onError = ports.ActionDeny // fail closed
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &WebhookHook{
		name:    cfg.Name,
		url:     cfg.URL,
		onError: onError,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client:  client,
	}
}

func (h *WebhookHook) Name() string { return h.name }

// Run POSTs the dispatch metadata and turns the reply into a signal.
func (h *WebhookHook) Run(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	in := h.input(ctx, ac)

	var (
		out     *ports.HookOutput
		lastErr error
	)
	attempts := h.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out, lastErr = h.doRequest(ctx, in)
		if lastErr == nil {
			break
		}
		// Don't retry on context cancellation
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		return h.handleError(ac, lastErr)
	}
	return h.apply(ctx, ac, out)
}

func (h *WebhookHook) input(ctx context.Context, ac *action.Context) *ports.HookInput {
	phase := PhaseFromContext(ctx)
	in := &ports.HookInput{
		Phase:  phase,
		Route:  ac.Route(),
		Method: ac.Method(),
		URL:    ac.RequestURL(),
		Query:  ac.Query(),
		Form:   ac.Form(),
		Metadata: map[string]any{
			"hook":       h.name,
			"request_id": ac.GetString("request_id"),
		},
	}
	if v, ok := ac.Get(attribute.DefaultUserVar); ok {
		if id := attribute.AsIdentity(v); id != nil {
			in.Identity = id.IdentityID()
		}
	}
	if phase == ports.HookPost {
		in.Status = ac.Response().Status
	}
	return in
}

func (h *WebhookHook) doRequest(ctx context.Context, in *ports.HookInput) (*ports.HookOutput, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal hook input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ports.HookOutput
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal hook output: %w", err)
	}

	switch out.Action {
	case "":
		out.Action = ports.ActionAllow
	case ports.ActionAllow, ports.ActionDeny, ports.ActionHalt, ports.ActionStop,
		ports.ActionQuit, ports.ActionRestart:
	case ports.ActionRedirect:
		if out.Redirect == "" {
			return nil, fmt.Errorf("webhook redirect without target")
		}
	case ports.ActionReboot:
		if out.Route == nil || out.Route.Controller == "" || out.Route.Action == "" {
			return nil, fmt.Errorf("webhook reboot without route")
		}
	default:
		return nil, fmt.Errorf("invalid action from webhook: %s", out.Action)
	}
	return &out, nil
}

func (h *WebhookHook) apply(ctx context.Context, ac *action.Context, out *ports.HookOutput) (domain.Signal, error) {
	switch out.Action {
	case ports.ActionDeny:
		reason := out.Reason
		if reason == "" {
			reason = "denied by hook " + h.name
		}
		return domain.Continue(), &domain.HookDeniedError{Hook: h.name, Reason: reason}
	case ports.ActionRedirect:
		if err := ac.Redirect(ctx, out.Redirect); err != nil {
			return domain.Continue(), fmt.Errorf("hook %s: %w", h.name, err)
		}
		return domain.Halt(h.name + ": redirect"), nil
	case ports.ActionHalt:
		return domain.Halt(out.Reason), nil
	case ports.ActionStop:
		return domain.Stop(), nil
	case ports.ActionQuit:
		return domain.Quit(), nil
	case ports.ActionReboot:
		return domain.Reboot(*out.Route), nil
	case ports.ActionRestart:
		return domain.Restart(), nil
	}

	for k, v := range out.Vars {
		ac.Set(k, v)
	}
	return domain.Continue(), nil
}

func (h *WebhookHook) handleError(ac *action.Context, err error) (domain.Signal, error) {
	if h.onError == ports.ActionAllow {
		ac.Logger().Warn("webhook hook failed, allowing",
			slog.String("hook", h.name),
			slog.String("error", err.Error()),
		)
		return domain.Continue(), nil
	}
	return domain.Continue(), &domain.HookDeniedError{
		Hook:   h.name,
		Reason: fmt.Sprintf("webhook error: %v", err),
	}
}

func validateWebhookConfig(cfg config.PluginConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("webhook requires url")
	}
	switch cfg.OnError {
	case "", "allow", "deny":
	default:
		return fmt.Errorf("invalid on_error %q (must be 'allow' or 'deny')", cfg.OnError)
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	return nil
}

func newWebhookFromConfig(cfg config.PluginConfig) (Hook, error) {
	timeout, err := parseTimeout(cfg.Timeout, defaultWebhookTimeout)
	if err != nil {
		return nil, err
	}

	var client *http.Client
	if !cfg.AllowPrivate {
		client = safehttp.NewClient(timeout)
	}

	return NewWebhookHook(WebhookConfig{
		Name:    cfg.Name,
		URL:     cfg.URL,
		Timeout: timeout,
		OnError: ports.HookAction(cfg.OnError),
		Retries: cfg.Retries,
		Headers: cfg.Headers,
		Client:  client,
	}), nil
}

var _ Hook = (*WebhookHook)(nil)
