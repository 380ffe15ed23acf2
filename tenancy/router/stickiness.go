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

package router

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// StickinessStore remembers which sessions recently wrote, so their
// reads stay on the primary until replication has had time to catch up.
type StickinessStore interface {
	MarkWrite(ctx context.Context, key string, window time.Duration) error
	IsSticky(ctx context.Context, key string) (bool, error)
}

// MemoryStickiness is a process-local StickinessStore. Correct for a
// single gateway instance; multi-instance deployments use
// RedisStickiness so stickiness follows the session across instances.
type MemoryStickiness struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryStickiness creates an empty in-process store.
func NewMemoryStickiness() *MemoryStickiness {
	return &MemoryStickiness{expires: make(map[string]time.Time)}
}

// MarkWrite records a write for the session.
func (s *MemoryStickiness) MarkWrite(ctx context.Context, key string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[key] = time.Now().Add(window)
	return nil
}

// IsSticky reports whether the session wrote within its window. Expired
// entries are removed on the way out.
func (s *MemoryStickiness) IsSticky(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.expires[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(s.expires, key)
		return false, nil
	}
	return true, nil
}

// RedisStickiness is a shared StickinessStore backed by Redis key TTLs.
type RedisStickiness struct {
	client *redis.Client
}

// NewRedisStickiness creates a store over an existing Redis client.
func NewRedisStickiness(client *redis.Client) *RedisStickiness {
	return &RedisStickiness{client: client}
}

func stickyKey(key string) string {
	return "fluxerp:sticky:" + key
}

// MarkWrite records a write for the session; Redis expires the key at
// the window boundary.
func (s *RedisStickiness) MarkWrite(ctx context.Context, key string, window time.Duration) error {
	return s.client.Set(ctx, stickyKey(key), "1", window).Err()
}

// IsSticky reports whether the session's sticky key still exists.
func (s *RedisStickiness) IsSticky(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, stickyKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type sessionKeyType struct{}

var sessionKey sessionKeyType

// WithSession tags the context with the caller's session identifier.
// The gateway derives it from the authenticated subject, falling back
// to the client address.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session identifier, if any.
func SessionFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(sessionKey).(string)
	return s, ok && s != ""
}
