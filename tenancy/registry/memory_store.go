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
	"sort"
	"sync"
	"time"

	"fluxerp/platform/tenancy"
)

// MemoryStore is an in-memory Store for tests and single-node
// development.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*tenancy.Tenant
	bySlug map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*tenancy.Tenant),
		bySlug: make(map[string]string),
	}
}

// Save inserts or updates a tenant record.
func (s *MemoryStore) Save(ctx context.Context, t *tenancy.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if prev, ok := s.byID[cp.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
		delete(s.bySlug, prev.Slug)
	}
	s.byID[cp.ID] = &cp
	s.bySlug[cp.Slug] = cp.ID
	return nil
}

// Get retrieves a tenant by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*tenancy.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

// GetBySlug retrieves a tenant by slug.
func (s *MemoryStore) GetBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

// UpdateStatus changes a tenant's lifecycle status.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status tenancy.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrRecordNotFound
	}
	t.Status = status
	return nil
}

// Touch records the last access timestamp.
func (s *MemoryStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrRecordNotFound
	}
	t.LastAccessedAt = time.Now()
	return nil
}

// List returns all tenant records, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*tenancy.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*tenancy.Tenant, 0, len(s.byID))
	for _, t := range s.byID {
		cp := *t
		tenants = append(tenants, &cp)
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].CreatedAt.After(tenants[j].CreatedAt)
	})
	return tenants, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
