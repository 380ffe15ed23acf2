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
Package tenancy defines the shared data model and error taxonomy for the
FluxERP multi-tenant database routing layer.

# Overview

Every FluxERP customer organization is a Tenant with its own physical
PostgreSQL (or MySQL) database. The subpackages of tenancy implement the
machinery that turns an inbound request into a live, tenant-scoped database
client:

  - tenancy/registry  - durable tenant -> connection-URI mapping in the
    central enterprise database
  - tenancy/cache     - bounded LRU cache of live client handles
  - tenancy/resolver  - request -> tenant resolution (JWT claim, header,
    subdomain, dev query parameter)
  - tenancy/router    - primary/replica read-write routing with
    read-after-write stickiness
  - tenancy/provision - one-time tenant database onboarding
  - tenancy/secrets   - connection-URI encryption and credential lookup

# Error Taxonomy

Errors surfaced by the routing layer fall into five categories, each with a
distinct remediation and HTTP mapping:

  - AmbiguousTenantError - no tenant signal in the request (400)
  - NotFoundError        - tenant id or slug does not exist (404)
  - InactiveTenantError  - tenant exists but is deactivated (403)
  - ConnectionError      - primary database unreachable (503)
  - ProvisioningError    - onboarding step failed, names the step (500)

Transient replica failures are recovered internally by falling back to the
primary and are never surfaced to callers.
*/
package tenancy
