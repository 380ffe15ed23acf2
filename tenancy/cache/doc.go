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
Package cache bounds the number of live tenant database clients with an
LRU of refcounted handles.

Every cached client owns a connection pool, so an unbounded cache would
exhaust database server connection limits as tenants accumulate. The
cache holds at most Capacity clients (default 50); constructing the
51st evicts the least recently used.

Lookups return a Handle, not the client directly:

	handle, err := clients.Get(ctx, tenantID)
	if err != nil {
	    return err
	}
	defer handle.Release()

	client := handle.Client()

Eviction and invalidation never close a client while handles are
outstanding. A doomed client is removed from the map immediately, so
new lookups build a fresh one, and is closed when its last handle is
released. The grace timer (default 30s) is the backstop for a handle
that is never released.

Construction is deduplicated: concurrent lookups for the same uncached
tenant share one Builder call and receive the same client. Failed
constructions are never cached.

Pinned clients (the enterprise store) sit outside the LRU and are only
closed at Shutdown.
*/
package cache
