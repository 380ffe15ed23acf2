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

package resolver

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/cache"
	"fluxerp/platform/tenancy/registry"
	"fluxerp/platform/tenancy/secrets"
)

type stubClient struct{ tenantID string }

func (s *stubClient) Connect(ctx context.Context, cfg *base.ClientConfig) error { return nil }
func (s *stubClient) Close(ctx context.Context) error                           { return nil }
func (s *stubClient) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}
func (s *stubClient) Query(ctx context.Context, q *base.Query) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}
func (s *stubClient) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	return &base.CommandResult{Success: true}, nil
}
func (s *stubClient) Transact(ctx context.Context, cmds []*base.Command) error { return nil }
func (s *stubClient) Name() string                                             { return s.tenantID }
func (s *stubClient) Driver() string                                           { return "postgres" }

type fixture struct {
	resolver *Resolver
	registry *registry.Registry
	builds   map[string]int
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	reg := registry.New(registry.NewMemoryStore(), secrets.PlaintextCipher{})
	builds := map[string]int{}
	clients := cache.New(func(ctx context.Context, tenantID string) (base.Client, error) {
		builds[tenantID]++
		return &stubClient{tenantID: tenantID}, nil
	}, cache.Options{Capacity: 10})
	t.Cleanup(func() { clients.Shutdown(context.Background()) })

	for _, seed := range []struct{ id, slug string }{
		{"tenant-acme", "acme"},
		{"tenant-globex", "globex"},
	} {
		_, err := reg.Register(context.Background(), registry.RegisterRequest{
			ID: seed.id, Slug: seed.slug, Name: seed.id,
			URI: "postgres://u:p@db.internal:5432/" + seed.id,
		})
		require.NoError(t, err)
	}

	return &fixture{
		resolver: New(reg, clients, opts),
		registry: reg,
		builds:   builds,
	}
}

func TestResolveFromClaim(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://api.fluxerp.io/api/v1/tasks", nil)
	ctx := WithClaims(context.Background(), Claims{TenantID: "tenant-acme", Subject: "user-1"})

	res, err := f.resolver.Resolve(ctx, req)
	require.NoError(t, err)
	defer res.Handle.Release()

	assert.Equal(t, "tenant-acme", res.Tenant.ID)
	assert.Equal(t, "claim", res.Source)
}

func TestResolveFromHeader(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://api.fluxerp.io/api/v1/tasks", nil)
	req.Header.Set("X-Tenant-Id", "tenant-globex")

	res, err := f.resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	defer res.Handle.Release()

	assert.Equal(t, "tenant-globex", res.Tenant.ID)
	assert.Equal(t, "header", res.Source)
}

func TestClaimTakesPriorityOverSubdomain(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://globex.fluxerp.io/api/v1/tasks", nil)
	ctx := WithClaims(context.Background(), Claims{TenantID: "tenant-acme"})

	res, err := f.resolver.Resolve(ctx, req)
	require.NoError(t, err)
	defer res.Handle.Release()

	assert.Equal(t, "tenant-acme", res.Tenant.ID)
	assert.Equal(t, "claim", res.Source)
}

func TestClaimHeaderMismatchRejected(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://api.fluxerp.io/api/v1/tasks", nil)
	req.Header.Set("X-Tenant-Id", "tenant-globex")
	ctx := WithClaims(context.Background(), Claims{TenantID: "tenant-acme"})

	_, err := f.resolver.Resolve(ctx, req)
	assert.ErrorIs(t, err, tenancy.ErrTenantMismatch)
}

func TestResolveFromSubdomain(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://acme.fluxerp.io/api/v1/tasks", nil)

	res, err := f.resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	defer res.Handle.Release()

	assert.Equal(t, "tenant-acme", res.Tenant.ID)
	assert.Equal(t, "subdomain", res.Source)
}

func TestInfrastructureSubdomainsIgnored(t *testing.T) {
	f := newFixture(t, Options{})

	for _, host := range []string{
		"www.fluxerp.io", "api.fluxerp.io", "app.fluxerp.io", "admin.fluxerp.io",
		"fluxerp.io", "localhost", "10.0.0.1", "10.0.0.1:8080",
	} {
		req := httptest.NewRequest("GET", "http://"+host+"/api/v1/tasks", nil)
		_, err := f.resolver.Resolve(context.Background(), req)
		assert.True(t, tenancy.IsAmbiguous(err), "host=%s err=%v", host, err)
	}
}

func TestQueryParamDisabledByDefault(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://fluxerp.io/api/v1/tasks?tenant=tenant-acme", nil)
	_, err := f.resolver.Resolve(context.Background(), req)
	assert.True(t, tenancy.IsAmbiguous(err))
}

func TestQueryParamWhenEnabled(t *testing.T) {
	f := newFixture(t, Options{AllowQueryParam: true})

	req := httptest.NewRequest("GET", "http://fluxerp.io/api/v1/tasks?tenant=tenant-acme", nil)
	res, err := f.resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	defer res.Handle.Release()

	assert.Equal(t, "query", res.Source)
}

func TestUnknownTenant(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://api.fluxerp.io/api/v1/tasks", nil)
	req.Header.Set("X-Tenant-Id", "tenant-nope")

	_, err := f.resolver.Resolve(context.Background(), req)
	assert.True(t, tenancy.IsNotFound(err))
}

func TestInactiveTenantNeverReachesCache(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.registry.Suspend(context.Background(), "tenant-acme"))

	req := httptest.NewRequest("GET", "http://api.fluxerp.io/api/v1/tasks", nil)
	req.Header.Set("X-Tenant-Id", "tenant-acme")

	_, err := f.resolver.Resolve(context.Background(), req)
	assert.True(t, tenancy.IsInactive(err))
	assert.Zero(t, f.builds["tenant-acme"])
}

func TestResolutionTouchesTenant(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest("GET", "http://api.fluxerp.io/api/v1/tasks", nil)
	req.Header.Set("X-Tenant-Id", "tenant-acme")

	res, err := f.resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	res.Handle.Release()

	got, err := f.registry.Lookup(context.Background(), "tenant-acme")
	require.NoError(t, err)
	assert.False(t, got.LastAccessedAt.IsZero())
}
