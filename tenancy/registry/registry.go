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
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/secrets"
)

// secretRefPrefix marks stored URIs that are references into an
// external secret manager rather than locally encrypted values.
const secretRefPrefix = "secretsmanager://"

// Invalidator is called with a tenant ID whenever that tenant's
// connection details change. The gateway wires the client cache's
// Invalidate here; it is set after construction because the cache's
// builder needs the registry first.
type Invalidator func(tenantID string)

// Registry is the authoritative source for tenant connection metadata.
// All reads and writes go through the backing Store; the registry adds
// credential encryption, secret reference resolution, and change
// notification on top.
type Registry struct {
	store        Store
	cipher       secrets.Cipher
	manager      secrets.Manager
	onInvalidate Invalidator
	logger       *log.Logger
}

// New creates a registry over the given store and cipher.
func New(store Store, cipher secrets.Cipher) *Registry {
	return &Registry{
		store:  store,
		cipher: cipher,
		logger: log.New(os.Stdout, "[TENANT_REGISTRY] ", log.LstdFlags),
	}
}

// SetSecretManager enables resolution of secretsmanager:// references.
func (r *Registry) SetSecretManager(m secrets.Manager) {
	r.manager = m
}

// SetInvalidator registers the change-notification hook.
func (r *Registry) SetInvalidator(fn Invalidator) {
	r.onInvalidate = fn
}

// RegisterRequest describes a tenant to register or update. URIs are
// plaintext; the registry encrypts them before storage.
type RegisterRequest struct {
	ID         string
	Name       string
	Slug       string
	URI        string
	ReplicaURI string
}

// Register creates or updates a tenant record. Re-registering with
// identical connection details is a no-op; changed details are treated
// as a credential rotation and trigger invalidation so cached clients
// get rebuilt against the new URI.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*tenancy.Tenant, error) {
	if req.ID == "" || req.Slug == "" {
		return nil, fmt.Errorf("tenant ID and slug are required")
	}
	if err := base.ValidateConnectionURI(req.URI); err != nil {
		return nil, fmt.Errorf("primary URI: %w", err)
	}
	if req.ReplicaURI != "" {
		if err := base.ValidateConnectionURI(req.ReplicaURI); err != nil {
			return nil, fmt.Errorf("replica URI: %w", err)
		}
	}

	existing, err := r.store.Get(ctx, req.ID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	rotated := false
	if existing != nil {
		prevURI, uriErr := r.resolveURI(ctx, existing.EncryptedURI)
		prevReplica := ""
		if existing.EncryptedReplicaURI != "" {
			prevReplica, _ = r.resolveURI(ctx, existing.EncryptedReplicaURI)
		}
		if uriErr == nil && prevURI == req.URI && prevReplica == req.ReplicaURI {
			r.logger.Printf("Tenant %s re-registered with unchanged connection details", req.ID)
			return existing, nil
		}
		rotated = true
	}

	encURI, err := r.cipher.Encrypt(req.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt connection URI: %w", err)
	}
	encReplica := ""
	if req.ReplicaURI != "" {
		encReplica, err = r.cipher.Encrypt(req.ReplicaURI)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt replica URI: %w", err)
		}
	}

	t := &tenancy.Tenant{
		ID:                  req.ID,
		Name:                req.Name,
		Slug:                req.Slug,
		Status:              tenancy.StatusActive,
		EncryptedURI:        encURI,
		EncryptedReplicaURI: encReplica,
		CreatedAt:           time.Now(),
	}
	if existing != nil {
		t.Status = existing.Status
		t.CreatedAt = existing.CreatedAt
	}

	if err := r.store.Save(ctx, t); err != nil {
		return nil, err
	}

	if rotated {
		r.logger.Printf("Tenant %s connection details rotated", req.ID)
		r.invalidate(req.ID)
	} else {
		r.logger.Printf("Registered tenant %s (slug: %s)", req.ID, req.Slug)
	}

	return t, nil
}

// Lookup retrieves a tenant by ID.
func (r *Registry) Lookup(ctx context.Context, id string) (*tenancy.Tenant, error) {
	t, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, &tenancy.NotFoundError{TenantID: id}
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// LookupBySlug retrieves a tenant by its subdomain slug.
func (r *Registry) LookupBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error) {
	t, err := r.store.GetBySlug(ctx, slug)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, &tenancy.NotFoundError{TenantID: slug}
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ConnectionURI returns the tenant's decrypted primary connection URI.
func (r *Registry) ConnectionURI(ctx context.Context, t *tenancy.Tenant) (string, error) {
	return r.resolveURI(ctx, t.EncryptedURI)
}

// ReplicaURI returns the tenant's decrypted replica URI, or "" when the
// tenant has no replica.
func (r *Registry) ReplicaURI(ctx context.Context, t *tenancy.Tenant) (string, error) {
	if t.EncryptedReplicaURI == "" {
		return "", nil
	}
	return r.resolveURI(ctx, t.EncryptedReplicaURI)
}

func (r *Registry) resolveURI(ctx context.Context, stored string) (string, error) {
	if ref, ok := strings.CutPrefix(stored, secretRefPrefix); ok {
		if r.manager == nil {
			return "", fmt.Errorf("tenant URI is a secret reference but no secret manager is configured")
		}
		return r.manager.GetSecret(ctx, ref)
	}
	return r.cipher.Decrypt(stored)
}

// Deactivate marks a tenant DEACTIVATED and invalidates its cached
// client. In-flight requests holding a handle complete; new resolutions
// are rejected with InactiveTenantError.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	if err := r.setStatus(ctx, id, tenancy.StatusDeactivated); err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

// Suspend marks a tenant SUSPENDED. Suspension is reversible and keeps
// the record intact; the cached client is dropped so no new queries run.
func (r *Registry) Suspend(ctx context.Context, id string) error {
	if err := r.setStatus(ctx, id, tenancy.StatusSuspended); err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

// Activate marks a tenant ACTIVE again.
func (r *Registry) Activate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, tenancy.StatusActive)
}

func (r *Registry) setStatus(ctx context.Context, id string, status tenancy.Status) error {
	err := r.store.UpdateStatus(ctx, id, status)
	if errors.Is(err, ErrRecordNotFound) {
		return &tenancy.NotFoundError{TenantID: id}
	}
	if err != nil {
		return err
	}
	r.logger.Printf("Tenant %s status set to %s", id, status)
	return nil
}

// Touch records tenant activity. Best effort; resolution never fails
// because a timestamp write did.
func (r *Registry) Touch(ctx context.Context, id string) {
	if err := r.store.Touch(ctx, id); err != nil {
		r.logger.Printf("Warning: failed to touch tenant %s: %v", id, err)
	}
}

// List returns all tenant records.
func (r *Registry) List(ctx context.Context) ([]*tenancy.Tenant, error) {
	return r.store.List(ctx)
}

// Close releases the backing store.
func (r *Registry) Close() error {
	return r.store.Close()
}

func (r *Registry) invalidate(id string) {
	if r.onInvalidate != nil {
		r.onInvalidate(id)
	}
}
