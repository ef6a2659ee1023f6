package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                  string `env:"PORT" envDefault:"8080"`
	AllowedOrigin         string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisAddr             string `env:"REDIS_ADDR"`
	RedisPassword         string `env:"REDIS_PASSWORD"`
	RedisDB               int    `env:"REDIS_DB" envDefault:"0"`
	UnitCacheTTLSeconds   int    `env:"UNIT_CACHE_TTL_SECONDS" envDefault:"300"`
	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	MaxConversionDepth    int    `env:"MAX_CONVERSION_DEPTH" envDefault:"32"`
	MultiTenant           bool   `env:"MULTI_TENANT" envDefault:"false"`
	DefaultGuard          string `env:"DEFAULT_GUARD" envDefault:"web"`
	SeedOnStart           bool   `env:"SEED_ON_START" envDefault:"true"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.DefaultGuard = strings.TrimSpace(cfg.DefaultGuard)
	if cfg.DefaultGuard == "" {
		cfg.DefaultGuard = "web"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.UnitCacheTTLSeconds < 1 {
		cfg.UnitCacheTTLSeconds = 300
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.MaxConversionDepth < 1 {
		cfg.MaxConversionDepth = 32
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) UnitCacheTTL() time.Duration {
	return time.Duration(c.UnitCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
