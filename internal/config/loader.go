package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if FIELDRANK_CONFIG is set
//  3. env (prefix FIELDRANK_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("FIELDRANK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: FIELDRANK_ADDR, FIELDRANK_MONGO_URI, ...
	// Map env keys like FIELDRANK_MONGO_URI -> mongo_uri (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("FIELDRANK_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "fieldrank_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case "mem", "mongo":
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	switch c.SinkBackend {
	case "fs", "s3", "none":
	default:
		return fmt.Errorf("%w: unknown sink backend %q", ErrInvalidConfig, c.SinkBackend)
	}
	switch c.InvokerBackend {
	case "local", "lambda":
	default:
		return fmt.Errorf("%w: unknown invoker backend %q", ErrInvalidConfig, c.InvokerBackend)
	}
	if c.StoreBackend == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("%w: mongo store requires mongo_uri", ErrInvalidConfig)
	}
	if c.SinkBackend == "s3" && c.S3Bucket == "" {
		return fmt.Errorf("%w: s3 sink requires s3_bucket", ErrInvalidConfig)
	}
	if c.FreshnessWindowMinutes <= 0 || c.RunTTLHours <= 0 || c.CacheTTLHours <= 0 {
		return fmt.Errorf("%w: ttl and freshness values must be positive", ErrInvalidConfig)
	}
	if c.MatchPageSize <= 0 {
		return fmt.Errorf("%w: match_page_size must be positive", ErrInvalidConfig)
	}
	return nil
}
