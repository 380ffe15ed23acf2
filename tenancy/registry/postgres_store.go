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
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"fluxerp/platform/tenancy"
)

// PostgresStore persists tenant records in the enterprise database.
type PostgresStore struct {
	db     *sql.DB
	ownsDB bool
	logger *log.Logger
}

// NewPostgresStore opens its own connection to the enterprise database.
// Connection attempts are retried with backoff to ride out container
// DNS and database startup delays.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	maxRetries := 5
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dbURL)
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Printf("[TENANT_STORE] Connected to enterprise database (attempt %d/%d)", attempt, maxRetries)
				break
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt*2) * time.Second
			log.Printf("[TENANT_STORE] Connection failed (attempt %d/%d): %v; retrying in %v", attempt, maxRetries, err, backoff)
			time.Sleep(backoff)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to enterprise database after %d attempts: %w", maxRetries, err)
	}

	store := &PostgresStore{
		db:     db,
		ownsDB: true,
		logger: log.New(log.Writer(), "[TENANT_STORE] ", log.LstdFlags),
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.logger.Println("Tenant store initialized")
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing pool. The gateway uses this
// to share the pinned enterprise client's pool; the store does not
// close a pool it does not own.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{
		db:     db,
		ownsDB: false,
		logger: log.New(log.Writer(), "[TENANT_STORE] ", log.LstdFlags),
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the tenants table if it doesn't exist.
func (s *PostgresStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS tenants (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		slug VARCHAR(63) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
		db_uri TEXT NOT NULL,
		db_replica_uri TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_accessed_at TIMESTAMPTZ,
		UNIQUE(slug)
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Save inserts or updates a tenant record. Connection URIs in the
// record are already encrypted by the caller.
func (s *PostgresStore) Save(ctx context.Context, t *tenancy.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, slug, status, db_uri, db_replica_uri, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			status = EXCLUDED.status,
			db_uri = EXCLUDED.db_uri,
			db_replica_uri = EXCLUDED.db_replica_uri
	`

	replicaURI := sql.NullString{String: t.EncryptedReplicaURI, Valid: t.EncryptedReplicaURI != ""}

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Slug,
		string(t.Status),
		t.EncryptedURI,
		replicaURI,
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}

	s.logger.Printf("Saved tenant record: %s (slug: %s)", t.ID, t.Slug)
	return nil
}

// Get retrieves a tenant by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*tenancy.Tenant, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

// GetBySlug retrieves a tenant by its subdomain slug.
func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error) {
	return s.get(ctx, `WHERE slug = $1`, slug)
}

func (s *PostgresStore) get(ctx context.Context, where string, arg interface{}) (*tenancy.Tenant, error) {
	query := `
		SELECT id, name, slug, status, db_uri, db_replica_uri, created_at, last_accessed_at
		FROM tenants ` + where

	var t tenancy.Tenant
	var status string
	var replicaURI sql.NullString
	var lastAccessed sql.NullTime

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&status,
		&t.EncryptedURI,
		&replicaURI,
		&t.CreatedAt,
		&lastAccessed,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	t.Status = tenancy.Status(status)
	if replicaURI.Valid {
		t.EncryptedReplicaURI = replicaURI.String
	}
	if lastAccessed.Valid {
		t.LastAccessedAt = lastAccessed.Time
	}

	return &t, nil
}

// UpdateStatus changes a tenant's lifecycle status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status tenancy.Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRecordNotFound
	}

	s.logger.Printf("Updated tenant %s status to %s", id, status)
	return nil
}

// Touch records the last access timestamp.
func (s *PostgresStore) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET last_accessed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch tenant: %w", err)
	}
	return nil
}

// List returns all tenant records, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*tenancy.Tenant, error) {
	query := `
		SELECT id, name, slug, status, db_uri, db_replica_uri, created_at, last_accessed_at
		FROM tenants ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []*tenancy.Tenant
	for rows.Next() {
		var t tenancy.Tenant
		var status string
		var replicaURI sql.NullString
		var lastAccessed sql.NullTime

		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &status, &t.EncryptedURI,
			&replicaURI, &t.CreatedAt, &lastAccessed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.Status = tenancy.Status(status)
		if replicaURI.Valid {
			t.EncryptedReplicaURI = replicaURI.String
		}
		if lastAccessed.Valid {
			t.LastAccessedAt = lastAccessed.Time
		}
		tenants = append(tenants, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tenants, nil
}

// Close closes the connection if this store opened it.
func (s *PostgresStore) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}
