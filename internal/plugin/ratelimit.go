package plugin

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/pkg/config"
)

// RateLimitType is the configuration type of rate limit hooks.
const RateLimitType = "ratelimit"

// KeyBy selects the client identity a bucket belongs to.
type KeyBy string

const (
	KeyByRemoteAddr KeyBy = "remote_addr"
	KeyBySession    KeyBy = "session"
	KeyByUser       KeyBy = "user"
)

// Variables the transport seeds for key resolution.
const (
	VarRemoteAddr = "remote_addr"
	VarSessionID  = "session_id"
)

const maxBuckets = 10000

// RateLimitHook throttles dispatches with one token bucket per client key.
type RateLimitHook struct {
	name     string
	limit    rate.Limit
	burst    int
	keyBy    KeyBy
	redirect string

	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
}

// RateLimitConfig configures a rate limit hook.
type RateLimitConfig struct {
	Name string
	// Rate is tokens per second.
	Rate  float64
	Burst int
	KeyBy KeyBy
	// Redirect, when set, turns exhaustion into redirect + HALT instead of
	// a 429 denial.
	Redirect string
	// MaxKeys bounds the number of tracked clients (default 10000).
	MaxKeys int
}

// NewRateLimitHook creates a rate limit hook.
func NewRateLimitHook(cfg RateLimitConfig) (*RateLimitHook, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("rate must be positive")
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	keyBy := cfg.KeyBy
	if keyBy == "" {
		keyBy = KeyByRemoteAddr
	}
	size := cfg.MaxKeys
	if size <= 0 {
		size = maxBuckets
	}
	buckets, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &RateLimitHook{
		name:     cfg.Name,
		limit:    rate.Limit(cfg.Rate),
		burst:    burst,
		keyBy:    keyBy,
		redirect: cfg.Redirect,
		buckets:  buckets,
	}, nil
}

func (h *RateLimitHook) Name() string { return h.name }

func (h *RateLimitHook) Run(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	key := h.key(ac)
	if h.limiter(key).Allow() {
		return domain.Continue(), nil
	}

	ac.Debug(ctx, h.name, "rate limited", "key", key)
	if h.redirect != "" {
		if err := ac.Redirect(ctx, h.redirect); err != nil {
			return domain.Continue(), fmt.Errorf("hook %s: %w", h.name, err)
		}
		return domain.Halt(h.name + ": rate limited"), nil
	}
	return domain.Continue(), &domain.HookDeniedError{
		Hook:   h.name,
		Reason: "rate limit exceeded",
		Status: http.StatusTooManyRequests,
	}
}

func (h *RateLimitHook) key(ac *action.Context) string {
	var key string
	switch h.keyBy {
	case KeyBySession:
		key = ac.GetString(VarSessionID)
	case KeyByUser:
		if v, ok := ac.Get(attribute.DefaultUserVar); ok {
			if id := attribute.AsIdentity(v); id != nil {
				key = id.IdentityID()
			}
		}
	default:
		key = ac.GetString(VarRemoteAddr)
	}
	if key == "" {
		// Unidentified clients share one bucket.
		return "-"
	}
	return key
}

func (h *RateLimitHook) limiter(key string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.buckets.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(h.limit, h.burst)
	h.buckets.Add(key, l)
	return l
}

func validateRateLimitConfig(cfg config.PluginConfig) error {
	if cfg.Rate <= 0 {
		return fmt.Errorf("ratelimit requires a positive rate")
	}
	switch KeyBy(cfg.KeyBy) {
	case "", KeyByRemoteAddr, KeyBySession, KeyByUser:
		return nil
	default:
		return fmt.Errorf("invalid key_by %q", cfg.KeyBy)
	}
}

func newRateLimitFromConfig(cfg config.PluginConfig) (Hook, error) {
	return NewRateLimitHook(RateLimitConfig{
		Name:     cfg.Name,
		Rate:     cfg.Rate,
		Burst:    cfg.Burst,
		KeyBy:    KeyBy(cfg.KeyBy),
		Redirect: cfg.Redirect,
	})
}

var _ Hook = (*RateLimitHook)(nil)
