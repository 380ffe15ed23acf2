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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:pw@db:5432/fluxerp")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 50, cfg.CacheCapacity)
	assert.Equal(t, 5*time.Second, cfg.ReadAfterWriteWindow)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:pw@db:5432/fluxerp")
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CLIENT_CACHE_CAPACITY", "5")
	t.Setenv("READ_AFTER_WRITE_WINDOW", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.CacheCapacity)
	assert.Equal(t, 2*time.Second, cfg.ReadAfterWriteWindow)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
port: "7070"
environment: development
database_url: postgres://file:pw@db:5432/fluxerp
cache_capacity: 25
read_after_write_window: 10s
tenant_header: X-Org-Id
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "postgres://file:pw@db:5432/fluxerp", cfg.DatabaseURL)
	assert.Equal(t, 25, cfg.CacheCapacity)
	assert.Equal(t, 10*time.Second, cfg.ReadAfterWriteWindow)
	assert.Equal(t, "X-Org-Id", cfg.TenantHeader)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
port: "7070"
database_url: postgres://file:pw@db:5432/fluxerp
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_URL", "postgres://env:pw@db:5432/fluxerp")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "postgres://env:pw@db:5432/fluxerp", cfg.DatabaseURL)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
database_url: postgres://file:pw@db:5432/fluxerp
cache_grace: not-a-duration
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GATEWAY_CONFIG_FILE", path)

	_, err := LoadConfig()
	assert.Error(t, err)
}
