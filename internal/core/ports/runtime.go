package ports

import (
	"context"

	"github.com/tjfontaine/actiongate/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default), static (tests).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}
