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
Package registry is the authoritative mapping from tenant identifiers to
connection metadata, persisted in the enterprise database.

Each tenant record carries an encrypted primary connection URI, an
optional encrypted replica URI, a subdomain slug, and a lifecycle
status (ACTIVE, SUSPENDED, DEACTIVATED). URIs are encrypted before they
reach the store and only decrypted at the moment a client is built:

	reg := registry.New(store, cipher)
	reg.SetInvalidator(cache.Invalidate)

	tenant, err := reg.Lookup(ctx, "tenant-acme")
	uri, err := reg.ConnectionURI(ctx, tenant)

Re-registering a tenant with identical connection details is a no-op.
Changed details are a credential rotation: the record is updated and the
invalidator fires so the cached client for that tenant is rebuilt
against the new URI. Suspend and Deactivate also fire the invalidator.

Stored URI values beginning with secretsmanager:// are references into
AWS Secrets Manager and are resolved through the configured
secrets.Manager instead of the local cipher.
*/
package registry
