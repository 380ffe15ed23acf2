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

package tenancy

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusSuspended   Status = "SUSPENDED"
	StatusDeactivated Status = "DEACTIVATED"
)

// IsActive reports whether a tenant in this status may receive new
// database clients. Suspended and deactivated tenants never do.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// Tenant is one isolated customer organization. Each tenant owns exactly
// one connection URI at any time; the URI is stored encrypted and is only
// decrypted at the moment a live client is constructed.
type Tenant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Status       Status `json:"status"`
	EncryptedURI string `json:"-"`

	// EncryptedReplicaURI is optional; when present, reads for this tenant
	// may be offloaded to the replica it points at.
	EncryptedReplicaURI string `json:"-"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at,omitempty"`
}

// MaskURI redacts the credential portion of a connection URI so it can be
// logged safely. The decrypted URI itself must never appear in logs.
func MaskURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		if len(uri) <= 12 {
			return "***"
		}
		return uri[:8] + "..."
	}
	scheme := ""
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme = uri[:i+3]
	}
	return scheme + "***" + uri[at:]
}
