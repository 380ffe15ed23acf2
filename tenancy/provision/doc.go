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
Package provision onboards new tenants: physical database, schema,
scoped credential, registry record.

The workflow runs on an administrative connection with CREATEDB and
CREATEROLE privileges, in order:

 1. allocate-identifiers: derive database and role names from the slug,
    generate a random credential
 2. create-role, create-database: dedicated role owning a dedicated
    database, so one tenant's credential can never reach another's data
 3. apply-migrations: embedded SQL migrations bring the database to the
    current schema version, tracked in schema_migrations
 4. seed-defaults: optional baseline reference data
 5. register-tenant: encrypt and store the derived connection URI

Migrations and seeding use a single-use connection, never the shared
client cache, so a run that fails partway leaves no cache entry behind.

Any failure drops the partially created database and role (best
effort), and surfaces a ProvisioningError naming the failed step.
Provisioning is not idempotent: re-running for the same slug requires
Force, which drops leftovers first.
*/
package provision
