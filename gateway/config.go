// Copyright 2025 FluxERP
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fluxerp/platform/tenancy/cache"
	"fluxerp/platform/tenancy/router"
)

// Config holds the gateway's runtime configuration. Values come from an
// optional YAML file (GATEWAY_CONFIG_FILE), with environment variables
// taking precedence over the file (12-Factor App methodology).
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// Environment is "production" or "development". Development enables
	// the ?tenant= query parameter escape hatch.
	Environment string

	// DatabaseURL is the enterprise control-plane database holding the
	// tenant registry. It also serves as the administrative connection
	// for provisioning.
	DatabaseURL string

	// CacheCapacity bounds the number of live tenant clients.
	CacheCapacity int

	// CacheGrace is how long an evicted client with in-flight handles
	// may linger before it is force-closed.
	CacheGrace time.Duration

	// ConnectTimeout bounds tenant database connection attempts.
	ConnectTimeout time.Duration

	// ReadAfterWriteWindow is how long a session's reads stay on the
	// primary after it writes.
	ReadAfterWriteWindow time.Duration

	// RedisURL enables the Redis-backed stickiness store for
	// multi-replica deployments. Empty means in-memory.
	RedisURL string

	// JWTSecret verifies bearer-token signatures. Empty disables token
	// auth; requests then identify their tenant by header or subdomain.
	JWTSecret string

	// EncryptionKey is the hex-encoded AES-256 key for tenant URIs at
	// rest. Empty falls back to plaintext storage (development only).
	EncryptionKey string

	// SecretsRegion enables AWS Secrets Manager resolution of
	// secretsmanager:// URI references.
	SecretsRegion string

	// TenantHeader overrides the tenant identification header.
	TenantHeader string

	// CORSOrigins lists allowed origins. Empty means allow all.
	CORSOrigins []string
}

// fileConfig is the YAML shape. Durations are Go duration strings.
type fileConfig struct {
	Port                 string   `yaml:"port"`
	Environment          string   `yaml:"environment"`
	DatabaseURL          string   `yaml:"database_url"`
	CacheCapacity        int      `yaml:"cache_capacity"`
	CacheGrace           string   `yaml:"cache_grace"`
	ConnectTimeout       string   `yaml:"connect_timeout"`
	ReadAfterWriteWindow string   `yaml:"read_after_write_window"`
	RedisURL             string   `yaml:"redis_url"`
	JWTSecret            string   `yaml:"jwt_secret"`
	EncryptionKey        string   `yaml:"encryption_key"`
	SecretsRegion        string   `yaml:"secrets_region"`
	TenantHeader         string   `yaml:"tenant_header"`
	CORSOrigins          []string `yaml:"cors_origins"`
}

// LoadConfig builds the gateway configuration. Precedence: environment
// variables, then the GATEWAY_CONFIG_FILE YAML file, then defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                 "8080",
		Environment:          "production",
		CacheCapacity:        cache.DefaultCapacity,
		CacheGrace:           cache.DefaultGrace,
		ConnectTimeout:       10 * time.Second,
		ReadAfterWriteWindow: router.DefaultWindow,
	}

	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CacheCapacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.CacheCapacity)
	}

	return cfg, nil
}

func loadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&cfg.Port, fc.Port)
	setString(&cfg.Environment, fc.Environment)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.RedisURL, fc.RedisURL)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setString(&cfg.EncryptionKey, fc.EncryptionKey)
	setString(&cfg.SecretsRegion, fc.SecretsRegion)
	setString(&cfg.TenantHeader, fc.TenantHeader)
	if fc.CacheCapacity > 0 {
		cfg.CacheCapacity = fc.CacheCapacity
	}
	if len(fc.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.CORSOrigins
	}

	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.CacheGrace, "cache_grace", &cfg.CacheGrace},
		{fc.ConnectTimeout, "connect_timeout", &cfg.ConnectTimeout},
		{fc.ReadAfterWriteWindow, "read_after_write_window", &cfg.ReadAfterWriteWindow},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, os.Getenv("PORT"))
	setString(&cfg.Environment, os.Getenv("ENVIRONMENT"))
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.RedisURL, os.Getenv("REDIS_URL"))
	setString(&cfg.JWTSecret, os.Getenv("JWT_SECRET"))
	setString(&cfg.EncryptionKey, os.Getenv("TENANT_URI_ENCRYPTION_KEY"))
	setString(&cfg.SecretsRegion, os.Getenv("AWS_SECRETS_REGION"))
	setString(&cfg.TenantHeader, os.Getenv("TENANT_HEADER"))

	if raw := os.Getenv("CLIENT_CACHE_CAPACITY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.CacheCapacity = n
		}
	}
	setDuration(&cfg.CacheGrace, os.Getenv("CLIENT_CACHE_GRACE"))
	setDuration(&cfg.ConnectTimeout, os.Getenv("DB_CONNECT_TIMEOUT"))
	setDuration(&cfg.ReadAfterWriteWindow, os.Getenv("READ_AFTER_WRITE_WINDOW"))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// IsDevelopment reports whether the gateway runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Environment != "production"
}
