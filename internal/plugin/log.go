package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/pkg/config"
)

// LogType is the configuration type of log hooks.
const LogType = "log"

// LogHook writes one structured line per invocation and never alters flow.
type LogHook struct {
	name    string
	level   slog.Level
	message string
}

// NewLogHook creates a log hook. An empty message defaults to "hook".
func NewLogHook(name string, level slog.Level, message string) *LogHook {
	if message == "" {
		message = "hook"
	}
	return &LogHook{name: name, level: level, message: message}
}

func (h *LogHook) Name() string { return h.name }

func (h *LogHook) Run(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	ac.Logger().LogAttrs(ctx, h.level, h.message,
		slog.String("hook", h.name),
		slog.String("phase", string(PhaseFromContext(ctx))),
		slog.String("route", ac.Route().String()),
		slog.String("method", ac.Method()),
		slog.Int("status", ac.Response().Status),
	)
	ac.Collector().Add(h.name, h.message, "phase", string(PhaseFromContext(ctx)))
	return domain.Continue(), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid level %q", s)
	}
}

func newLogFromConfig(cfg config.PluginConfig) (Hook, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return NewLogHook(cfg.Name, level, cfg.Message), nil
}

var _ Hook = (*LogHook)(nil)
