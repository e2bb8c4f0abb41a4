package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	Auth     AuthConfig     `koanf:"auth"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Plugins  PluginsConfig  `koanf:"plugins"`

	// k keeps the raw tree for Xtra lookups into free-form namespaces
	// such as "policy".
	k *koanf.Koanf
}

type ServerConfig struct {
	Port    int    `koanf:"port"`
	Timeout string `koanf:"timeout"` // Duration string like "30s"
}

type SessionConfig struct {
	Type     string         `koanf:"type"` // memory, redis, sqlite, postgres
	Cookie   string         `koanf:"cookie"`
	TTL      string         `koanf:"ttl"`
	Redis    RedisConfig    `koanf:"redis"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type PostgresConfig struct {
	DSN string `koanf:"dsn"` // Supports ${VAR} substitution
}

// AuthConfig configures bearer-token identity resolution.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type DispatchConfig struct {
	MaxReentries  int    `koanf:"max_reentries"`
	DefaultAction string `koanf:"default_action"`
}

// PluginsConfig declares hook instances and where they run.
type PluginsConfig struct {
	Definitions []PluginConfig   `koanf:"definitions"`
	Pre         HookScopesConfig `koanf:"pre"`
	Post        HookScopesConfig `koanf:"post"`
}

// PluginConfig defines a named hook instance built by a registered factory.
type PluginConfig struct {
	Name     string            `koanf:"name"`
	Type     string            `koanf:"type"` // webhook, ratelimit, log
	URL      string            `koanf:"url"`
	Timeout  string            `koanf:"timeout"`
	OnError  string            `koanf:"on_error"` // allow, deny
	Retries  int               `koanf:"retries"`
	Headers  map[string]string `koanf:"headers"`
	Rate     float64           `koanf:"rate"`   // tokens per second
	Burst    int               `koanf:"burst"`  // bucket size
	KeyBy    string            `koanf:"key_by"` // remote_addr, session, user
	Redirect string            `koanf:"redirect"`
	Level    string            `koanf:"level"`
	Message  string            `koanf:"message"`

	// AllowPrivate lets a webhook reach loopback and private addresses.
	AllowPrivate bool `koanf:"allow_private"`
}

// HookScopesConfig lists hook names per granularity. Controller keys are
// controller names; action keys are "controller.action".
type HookScopesConfig struct {
	Global      []string            `koanf:"global"`
	Controllers map[string][]string `koanf:"controllers"`
	Actions     map[string][]string `koanf:"actions"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path (missing is fine), overlays GATE_*
// environment variables and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Environment variables override the file
	if err := k.Load(env.Provider("GATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GATE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	return finish(k)
}

// FromMap builds a Config from an in-memory tree using "." as delimiter
// for nested keys. Used by tests and embedders that assemble config in code.
func FromMap(values map[string]any) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return nil, err
	}
	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("server.timeout") {
		k.Set("server.timeout", "30s")
	}
	if !k.Exists("session.type") {
		k.Set("session.type", "memory")
	}
	if !k.Exists("session.cookie") {
		k.Set("session.cookie", "gate_sid")
	}
	if !k.Exists("dispatch.max_reentries") {
		k.Set("dispatch.max_reentries", 8)
	}
	if !k.Exists("dispatch.default_action") {
		k.Set("dispatch.default_action", "index")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Auth.JWTSecret = substituteEnvVars(cfg.Auth.JWTSecret)
	cfg.Session.Redis.Password = substituteEnvVars(cfg.Session.Redis.Password)
	cfg.Session.Postgres.DSN = substituteEnvVars(cfg.Session.Postgres.DSN)
	for i := range cfg.Plugins.Definitions {
		for h, v := range cfg.Plugins.Definitions[i].Headers {
			cfg.Plugins.Definitions[i].Headers[h] = substituteEnvVars(v)
		}
	}

	cfg.k = k
	return &cfg, nil
}

// Xtra returns the raw value stored at namespace.key, or def when unset.
func (c *Config) Xtra(namespace, key string, def any) any {
	if c == nil || c.k == nil {
		return def
	}
	path := key
	if namespace != "" {
		path = namespace + "." + key
	}
	if !c.k.Exists(path) {
		return def
	}
	return c.k.Get(path)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
