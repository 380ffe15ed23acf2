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
Package gateway is the HTTP surface of the FluxERP tenancy platform.

Run() wires the full stack: configuration, the enterprise control-plane
database (pinned in the client cache), the tenant registry, the LRU
client cache, the read/write router with its stickiness store, the
tenant resolver, and the provisioning workflow.

# Request flow

Every request passes through the middleware chain:

 1. request ID assignment (X-Request-Id)
 2. metrics and structured access logging
 3. bearer-token verification, placing the tenant claim in the context
 4. CORS
 5. on data-plane routes: tenant resolution, which attaches a refcounted
    handle on the tenant's routed database client and releases it when
    the request completes

Successful mutating responses carry an X-Last-Write header; the
session's reads are served from the primary for the read-after-write
window from that point.

# Surface

Administrative routes manage tenant lifecycle: provisioning, connection
rotation, suspension, deactivation, per-tenant health, and cache
statistics. Data-plane routes (/api/v1/data/...) execute queries and
commands against the resolved tenant's database.

Error mapping: no tenant signal is a 400, an unknown tenant a 404, a
suspended or deactivated tenant (or a claim/header mismatch) a 403, an
unreachable tenant primary a 503, and a failed provisioning step a 500
naming the step.
*/
package gateway
