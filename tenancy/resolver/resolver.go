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
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/cache"
	"fluxerp/platform/tenancy/registry"
)

// DefaultHeader carries an explicit tenant identifier on API requests.
const DefaultHeader = "X-Tenant-Id"

// Options configures tenant identification.
type Options struct {
	// HeaderName overrides the tenant header (default X-Tenant-Id).
	HeaderName string

	// AllowQueryParam enables the ?tenant= escape hatch. Development
	// environments only; the gateway never sets it in production.
	AllowQueryParam bool

	// QueryParam is the query parameter name (default "tenant").
	QueryParam string

	// IgnoredSubdomains are host labels that are infrastructure, not
	// tenant slugs (default www, api, app, admin).
	IgnoredSubdomains []string

	Logger *log.Logger
}

// Resolver turns an incoming request into a tenant and a live database
// client handle.
type Resolver struct {
	registry *registry.Registry
	clients  *cache.Cache
	opts     Options
	ignored  map[string]bool
	logger   *log.Logger
}

// Resolution is the outcome of identifying a request's tenant. Handle
// must be released when the request completes.
type Resolution struct {
	Handle *cache.Handle
	Tenant *tenancy.Tenant
	Source string // "claim", "header", "subdomain", or "query"
}

// New creates a resolver over the registry and client cache.
func New(reg *registry.Registry, clients *cache.Cache, opts Options) *Resolver {
	if opts.HeaderName == "" {
		opts.HeaderName = DefaultHeader
	}
	if opts.QueryParam == "" {
		opts.QueryParam = "tenant"
	}
	if opts.IgnoredSubdomains == nil {
		opts.IgnoredSubdomains = []string{"www", "api", "app", "admin"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[TENANT_RESOLVER] ", log.LstdFlags)
	}

	ignored := make(map[string]bool, len(opts.IgnoredSubdomains))
	for _, s := range opts.IgnoredSubdomains {
		ignored[strings.ToLower(s)] = true
	}

	return &Resolver{
		registry: reg,
		clients:  clients,
		opts:     opts,
		ignored:  ignored,
		logger:   logger,
	}
}

// Resolve identifies the request's tenant and returns a handle on its
// database client. Identification sources in priority order: verified
// token claim, tenant header, host subdomain, query parameter (when
// enabled). A claim/header disagreement is rejected outright rather
// than silently trusting either side.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Resolution, error) {
	claimID := ""
	if claims, ok := ClaimsFromContext(ctx); ok {
		claimID = claims.TenantID
	}
	headerID := req.Header.Get(r.opts.HeaderName)

	if claimID != "" && headerID != "" && claimID != headerID {
		r.logger.Printf("Tenant mismatch: claim=%s header=%s", claimID, headerID)
		return nil, tenancy.ErrTenantMismatch
	}

	var (
		tenant *tenancy.Tenant
		source string
		err    error
	)

	switch {
	case claimID != "":
		source = "claim"
		tenant, err = r.registry.Lookup(ctx, claimID)
	case headerID != "":
		source = "header"
		tenant, err = r.registry.Lookup(ctx, headerID)
	default:
		if slug := r.subdomainSlug(req.Host); slug != "" {
			source = "subdomain"
			tenant, err = r.registry.LookupBySlug(ctx, slug)
			break
		}
		if r.opts.AllowQueryParam {
			if id := req.URL.Query().Get(r.opts.QueryParam); id != "" {
				source = "query"
				tenant, err = r.registry.Lookup(ctx, id)
				break
			}
		}
		return nil, &tenancy.AmbiguousTenantError{}
	}

	if err != nil {
		return nil, err
	}

	if !tenant.Status.IsActive() {
		return nil, &tenancy.InactiveTenantError{TenantID: tenant.ID, Status: tenant.Status}
	}

	handle, err := r.clients.Get(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	r.registry.Touch(ctx, tenant.ID)

	return &Resolution{Handle: handle, Tenant: tenant, Source: source}, nil
}

// subdomainSlug extracts a tenant slug from the request host. Hosts
// without a subdomain, bare IPs, and infrastructure labels yield "".
func (r *Resolver) subdomainSlug(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	// A slug needs a parent domain under it: sub.example.com, not
	// example.com or localhost.
	if len(labels) < 3 {
		return ""
	}

	slug := strings.ToLower(labels[0])
	if slug == "" || r.ignored[slug] {
		return ""
	}
	return slug
}
