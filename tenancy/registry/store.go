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

package registry

import (
	"context"
	"errors"

	"fluxerp/platform/tenancy"
)

// ErrRecordNotFound is returned by stores when no tenant row matches.
// The Registry maps it to tenancy.NotFoundError at its boundary.
var ErrRecordNotFound = errors.New("tenant record not found")

// Store persists tenant records. PostgresStore backs production; the
// in-memory store backs tests and single-node development.
type Store interface {
	Save(ctx context.Context, t *tenancy.Tenant) error
	Get(ctx context.Context, id string) (*tenancy.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error)
	UpdateStatus(ctx context.Context, id string, status tenancy.Status) error
	Touch(ctx context.Context, id string) error
	List(ctx context.Context) ([]*tenancy.Tenant, error)
	Close() error
}
