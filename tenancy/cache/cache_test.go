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

package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxerp/platform/connectors/base"
)

// fakeClient records close calls.
type fakeClient struct {
	tenantID string
	closed   atomic.Bool
}

func (f *fakeClient) Connect(ctx context.Context, cfg *base.ClientConfig) error { return nil }

func (f *fakeClient) Close(ctx context.Context) error {
	f.closed.Store(true)
	return nil
}

func (f *fakeClient) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}

func (f *fakeClient) Query(ctx context.Context, q *base.Query) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}

func (f *fakeClient) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	return &base.CommandResult{Success: true}, nil
}

func (f *fakeClient) Transact(ctx context.Context, cmds []*base.Command) error { return nil }

func (f *fakeClient) Name() string { return f.tenantID }

func (f *fakeClient) Driver() string { return "fake" }

type builderFunc struct {
	mu     sync.Mutex
	builds map[string]int
	fail   map[string]error
}

func newBuilder() *builderFunc {
	return &builderFunc{builds: make(map[string]int), fail: make(map[string]error)}
}

func (b *builderFunc) build(ctx context.Context, tenantID string) (base.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.fail[tenantID]; ok {
		return nil, err
	}
	b.builds[tenantID]++
	return &fakeClient{tenantID: tenantID}, nil
}

func (b *builderFunc) buildCount(tenantID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds[tenantID]
}

func TestGetReturnsSameClient(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 10})
	defer c.Shutdown(context.Background())

	h1, err := c.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	h2, err := c.Get(context.Background(), "tenant-a")
	require.NoError(t, err)

	assert.Same(t, h1.Client(), h2.Client())
	assert.Equal(t, 1, b.buildCount("tenant-a"))

	h1.Release()
	h2.Release()

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestLRUEviction(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 2})
	defer c.Shutdown(context.Background())

	ctx := context.Background()

	hA, err := c.Get(ctx, "tenant-a")
	require.NoError(t, err)
	clientA := hA.Client().(*fakeClient)
	hA.Release()

	hB, err := c.Get(ctx, "tenant-b")
	require.NoError(t, err)
	hB.Release()

	// C exceeds capacity; A is least recently used and gets evicted.
	hC, err := c.Get(ctx, "tenant-c")
	require.NoError(t, err)
	hC.Release()

	assert.True(t, clientA.closed.Load())

	// Touch B so C becomes least recently used.
	hB, err = c.Get(ctx, "tenant-b")
	require.NoError(t, err)
	clientB := hB.Client().(*fakeClient)
	hB.Release()
	clientC := hC.Client().(*fakeClient)

	hD, err := c.Get(ctx, "tenant-d")
	require.NoError(t, err)
	hD.Release()

	assert.True(t, clientC.closed.Load())
	assert.False(t, clientB.closed.Load())
	assert.Equal(t, uint64(2), c.Stats().Evictions)
}

func TestEvictionDefersCloseUntilRelease(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 1, Grace: time.Minute})
	defer c.Shutdown(context.Background())

	ctx := context.Background()

	hA, err := c.Get(ctx, "tenant-a")
	require.NoError(t, err)
	clientA := hA.Client().(*fakeClient)

	// Evicts A while the handle is still held.
	hB, err := c.Get(ctx, "tenant-b")
	require.NoError(t, err)
	hB.Release()

	assert.False(t, clientA.closed.Load())

	// A fresh lookup for A builds a new client rather than resurrecting
	// the doomed one.
	hA2, err := c.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.NotSame(t, clientA, hA2.Client())
	hA2.Release()

	hA.Release()
	assert.True(t, clientA.closed.Load())
}

func TestGraceForceClose(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 10, Grace: 20 * time.Millisecond})
	defer c.Shutdown(context.Background())

	h, err := c.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	client := h.Client().(*fakeClient)

	// Handle is never released; the grace timer closes the client.
	c.Invalidate("tenant-a")

	assert.Eventually(t, func() bool {
		return client.closed.Load()
	}, time.Second, 5*time.Millisecond)

	// Late release after force-close must not panic or double-close.
	h.Release()
}

func TestConstructionFailureNotCached(t *testing.T) {
	b := newBuilder()
	b.fail["tenant-a"] = fmt.Errorf("connect refused")
	c := New(b.build, Options{Capacity: 10})
	defer c.Shutdown(context.Background())

	_, err := c.Get(context.Background(), "tenant-a")
	require.Error(t, err)

	// Next attempt retries the builder instead of serving a cached error.
	delete(b.fail, "tenant-a")
	h, err := c.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	h.Release()
	assert.Equal(t, 1, b.buildCount("tenant-a"))
}

func TestInvalidateDuringBuildDiscardsStaleClient(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})

	var mu sync.Mutex
	var built []*fakeClient
	builder := func(ctx context.Context, tenantID string) (base.Client, error) {
		mu.Lock()
		first := len(built) == 0
		mu.Unlock()
		if first {
			close(started)
			<-unblock
		}
		client := &fakeClient{tenantID: tenantID}
		mu.Lock()
		built = append(built, client)
		mu.Unlock()
		return client, nil
	}

	c := New(builder, Options{Capacity: 10})
	defer c.Shutdown(context.Background())

	type result struct {
		h   *Handle
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		h, err := c.Get(context.Background(), "tenant-a")
		resCh <- result{h, err}
	}()

	// Invalidate lands while the first build is still in the builder,
	// simulating a URI rotation racing a cold lookup.
	<-started
	c.Invalidate("tenant-a")
	close(unblock)

	res := <-resCh
	require.NoError(t, res.err)

	mu.Lock()
	require.Len(t, built, 2)
	stale, fresh := built[0], built[1]
	mu.Unlock()

	// The client built from the pre-rotation record is closed, and the
	// lookup returns the rebuilt one.
	assert.True(t, stale.closed.Load())
	assert.Same(t, fresh, res.h.Client())
	res.h.Release()

	h, err := c.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Same(t, fresh, h.Client())
	h.Release()
}

func TestConcurrentGetBuildsOnce(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 10})
	defer c.Shutdown(context.Background())

	const n = 32
	var wg sync.WaitGroup
	clients := make([]base.Client, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Get(context.Background(), "tenant-a")
			if err != nil {
				return
			}
			clients[i] = h.Client()
			h.Release()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, b.buildCount("tenant-a"))
	for i := 1; i < n; i++ {
		assert.Same(t, clients[0], clients[i])
	}
}

func TestInvalidateUnknownTenantIsNoop(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 10})
	defer c.Shutdown(context.Background())

	c.Invalidate("never-seen")
}

func TestPinnedClientExemptFromEviction(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 1})
	defer c.Shutdown(context.Background())

	pinned := &fakeClient{tenantID: "enterprise"}
	require.NoError(t, c.Pin("enterprise", pinned))

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		h, err := c.Get(ctx, id)
		require.NoError(t, err)
		h.Release()
	}

	assert.False(t, pinned.closed.Load())

	h, err := c.Get(ctx, "enterprise")
	require.NoError(t, err)
	assert.Same(t, pinned, h.Client())
	h.Release()
}

func TestInvalidatePinnedClientIsNoop(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 10})
	defer c.Shutdown(context.Background())

	pinned := &fakeClient{tenantID: "enterprise"}
	require.NoError(t, c.Pin("enterprise", pinned))

	c.Invalidate("enterprise")

	assert.False(t, pinned.closed.Load())

	h, err := c.Get(context.Background(), "enterprise")
	require.NoError(t, err)
	assert.Same(t, pinned, h.Client())
	h.Release()
}

func TestShutdownClosesEverything(t *testing.T) {
	b := newBuilder()
	c := New(b.build, Options{Capacity: 10})

	h, err := c.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	client := h.Client().(*fakeClient)
	h.Release()

	pinned := &fakeClient{tenantID: "enterprise"}
	require.NoError(t, c.Pin("enterprise", pinned))

	c.Shutdown(context.Background())

	assert.True(t, client.closed.Load())
	assert.True(t, pinned.closed.Load())

	_, err = c.Get(context.Background(), "tenant-b")
	assert.Error(t, err)
}
