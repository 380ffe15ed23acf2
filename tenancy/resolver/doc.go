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

/*
Package resolver identifies which tenant an incoming request belongs to
and hands back a live database client for it.

Identification sources, in priority order:

 1. Verified token claim (resolver.Claims, placed in the context by the
    auth middleware after signature verification)
 2. X-Tenant-Id header
 3. Host subdomain slug (acme.fluxerp.io -> "acme"); www, api, app and
    admin are infrastructure labels, never slugs
 4. ?tenant= query parameter, only when explicitly enabled for
    development

A request carrying both a claim and a header must agree on the tenant;
disagreement is rejected with ErrTenantMismatch rather than trusting
either side. A request with no signal at all fails with
AmbiguousTenantError before any registry or cache work happens.

Suspended and deactivated tenants are rejected with
InactiveTenantError without touching the client cache, so an inactive
tenant can never cause a connection to be built.
*/
package resolver
