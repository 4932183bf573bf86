// Package config loads the process configuration from config.yaml and
// ADVISOR_-prefixed environment variables, env taking precedence.
package config

import (
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/salescoach/advisor/internal/domain"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	LLM      LLMConfig      `koanf:"llm"`
	Cache    CacheConfig    `koanf:"cache"`
	Quota    QuotaConfig    `koanf:"quota"`
	Security SecurityConfig `koanf:"security"`
	Storage  StorageConfig  `koanf:"storage"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// TenantHeader names the request header carrying the tenant identifier.
	TenantHeader string `koanf:"tenant_header"`
}

type LLMConfig struct {
	// APIKey may reference an environment variable as ${VAR}.
	APIKey string `koanf:"api_key"`
	// SecretName is consulted through the secret source when neither
	// APIKey nor the environment provides a credential.
	SecretName string        `koanf:"secret_name"`
	Model      string        `koanf:"model"`
	BaseURL    string        `koanf:"base_url"`
	MaxRetries int           `koanf:"max_retries"`
	Timeout    time.Duration `koanf:"timeout"`
}

type CacheConfig struct {
	TTL  time.Duration `koanf:"ttl"`
	Size int           `koanf:"size"`
}

type QuotaConfig struct {
	// TokenLimit is the per-(tenant,user) token ceiling. Zero disables
	// quota checks entirely.
	TokenLimit int `koanf:"token_limit"`
	// Hard blocks calls at the quota instead of only warning.
	Hard bool `koanf:"hard"`
}

type SecurityConfig struct {
	MaxPromptLen int `koanf:"max_prompt_len"`
	// BlockSeverity is the lowest severity that rejects a prompt outright:
	// "high" (default) or "medium". "none" disables hard rejection.
	BlockSeverity string `koanf:"block_severity"`
}

type StorageConfig struct {
	// Provider selects the backend adapter: local, object, or document.
	Provider string         `koanf:"provider"`
	Local    LocalConfig    `koanf:"local"`
	Object   ObjectConfig   `koanf:"object"`
	Document DocumentConfig `koanf:"document"`
}

type LocalConfig struct {
	Dir string `koanf:"dir"`
}

type ObjectConfig struct {
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
}

type DocumentConfig struct {
	DSN string `koanf:"dsn"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (optional) and the environment, applies defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, domain.ErrConfiguration("read %s", path).WithCause(err)
			}
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider("ADVISOR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ADVISOR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, domain.ErrConfiguration("load environment").WithCause(err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, domain.ErrConfiguration("unmarshal config").WithCause(err)
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":             8080,
		"server.tenant_header":    "X-Tenant-ID",
		"llm.model":               "gpt-4.1-mini-2025-04-14",
		"llm.max_retries":         3,
		"llm.timeout":             "60s",
		"cache.ttl":               "15m",
		"cache.size":              1000,
		"quota.token_limit":       1000000,
		"security.max_prompt_len": 10000,
		"security.block_severity": "high",
		"storage.provider":        "local",
		"storage.local.dir":       "./data",
		"storage.object.prefix":   "sessions",
		"storage.document.dsn":    "./data/advisor.db",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

func (c *Config) validate() error {
	switch c.Storage.Provider {
	case "local", "object", "document":
	default:
		return domain.ErrConfiguration("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.Security.BlockSeverity {
	case "high", "medium", "none":
	default:
		return domain.ErrConfiguration("unknown block severity %q", c.Security.BlockSeverity)
	}
	if c.LLM.MaxRetries < 0 {
		return domain.ErrConfiguration("llm.max_retries must not be negative")
	}
	if c.Cache.Size <= 0 {
		return domain.ErrConfiguration("cache.size must be positive")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
