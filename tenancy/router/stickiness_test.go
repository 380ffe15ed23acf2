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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStickinessWindow(t *testing.T) {
	s := NewMemoryStickiness()
	ctx := context.Background()

	sticky, err := s.IsSticky(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, sticky)

	require.NoError(t, s.MarkWrite(ctx, "session-1", 50*time.Millisecond))

	sticky, err = s.IsSticky(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, sticky)

	// Other sessions are unaffected.
	sticky, err = s.IsSticky(ctx, "session-2")
	require.NoError(t, err)
	assert.False(t, sticky)

	time.Sleep(80 * time.Millisecond)
	sticky, err = s.IsSticky(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, sticky)
}

func TestRedisStickinessWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	s := NewRedisStickiness(client)
	ctx := context.Background()

	require.NoError(t, s.MarkWrite(ctx, "session-1", time.Second))

	sticky, err := s.IsSticky(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, sticky)

	// miniredis expires keys on FastForward rather than wall clock.
	mr.FastForward(2 * time.Second)

	sticky, err = s.IsSticky(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, sticky)
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()

	_, ok := SessionFromContext(ctx)
	assert.False(t, ok)

	ctx = WithSession(ctx, "session-1")
	got, ok := SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "session-1", got)
}
