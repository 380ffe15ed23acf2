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

package secrets

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Manager resolves externally stored secret values. Tenant records may
// store a secretsmanager:// reference instead of an encrypted URI; the
// registry resolves those through a Manager.
type Manager interface {
	GetSecret(ctx context.Context, ref string) (string, error)
}

// AWSManager implements Manager using AWS Secrets Manager with a
// short-lived in-process cache.
type AWSManager struct {
	client *secretsmanager.Client
	cache  map[string]*cacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// AWSManagerOptions holds options for creating an AWSManager.
type AWSManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSManager creates a new AWS Secrets Manager backed Manager.
func NewAWSManager(ctx context.Context, opts AWSManagerOptions) (*AWSManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS] ", log.LstdFlags)
	}

	cfgOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*cacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret value from AWS Secrets Manager.
func (m *AWSManager) GetSecret(ctx context.Context, ref string) (string, error) {
	m.mu.RLock()
	entry, exists := m.cache[ref]
	m.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	m.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskRef(ref))

	result, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskRef(ref), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	m.mu.Lock()
	m.cache[ref] = &cacheEntry{
		value:     *result.SecretString,
		expiresAt: time.Now().Add(m.ttl),
	}
	m.mu.Unlock()

	return *result.SecretString, nil
}

// Invalidate removes a secret from the cache. Called after credential
// rotation so the next lookup fetches the rotated value.
func (m *AWSManager) Invalidate(ref string) {
	m.mu.Lock()
	delete(m.cache, ref)
	m.mu.Unlock()
	m.logger.Printf("Invalidated cached secret %s", maskRef(ref))
}

// maskRef masks a secret reference for logging (last 8 characters only).
func maskRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// StaticManager serves secrets from an in-memory map. Development and
// test use only.
type StaticManager struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewStaticManager creates a static Manager.
func NewStaticManager() *StaticManager {
	return &StaticManager{secrets: make(map[string]string)}
}

// GetSecret retrieves a secret from the static map.
func (m *StaticManager) GetSecret(ctx context.Context, ref string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.secrets[ref]; ok {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found", maskRef(ref))
}

// SetSecret stores a secret value.
func (m *StaticManager) SetSecret(ref, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[ref] = value
}
