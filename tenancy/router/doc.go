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
Package router splits tenant database traffic between a primary and an
optional read replica behind the ordinary base.Client interface.

Writes (Execute, Transact) always hit the primary. Reads hit the
replica when three conditions hold: the tenant has one, it is in
rotation, and the calling session has not written within the
read-after-write window (default 5s). A session that writes reads its
own writes; replication lag never shows a session stale data it just
produced.

Replica failures are contained. A connection-level replica error falls
back to the primary within the same Query call; enough consecutive
failures take the replica out of rotation for a cooldown, and a
background health loop returns it once it responds again. SQL errors
(bad statement, constraint violation) are never treated as routing
signals.

Primary connection failures have no fallback and surface as
tenancy.ConnectionError.

Stickiness is keyed by session via router.WithSession; the gateway tags
request contexts with the authenticated subject. MemoryStickiness
serves a single gateway instance, RedisStickiness shares the window
across instances.
*/
package router
