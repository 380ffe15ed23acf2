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

// Package main is the entry point for the FluxERP Gateway service.
//
// The Gateway fronts every tenant database in the platform:
// - Resolves each request to its tenant (token claim, header, subdomain)
// - Caches live per-tenant database clients with LRU eviction
// - Routes reads to replicas with read-after-write stickiness
// - Provisions new tenant databases end to end
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - enterprise control-plane PostgreSQL connection string
//	TENANT_URI_ENCRYPTION_KEY - hex AES-256 key for tenant URIs at rest
//	REDIS_URL - Redis stickiness store (optional)
//	JWT_SECRET - bearer-token signing secret (optional)
//	GATEWAY_CONFIG_FILE - YAML config file, overridden by env vars
package main

import (
	"fluxerp/platform/gateway"
)

func main() {
	gateway.Run()
}
