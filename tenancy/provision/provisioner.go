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

package provision

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/registry"
)

// Step names reported inside ProvisioningError.
const (
	StepAllocate   = "allocate-identifiers"
	StepCleanup    = "force-cleanup"
	StepCreateRole = "create-role"
	StepCreateDB   = "create-database"
	StepMigrate    = "apply-migrations"
	StepRegister   = "register-tenant"
	StepSeed       = "seed-defaults"
)

// Request describes a tenant to onboard.
type Request struct {
	// TenantID is the opaque identifier; generated when empty.
	TenantID string
	Name     string
	Slug     string

	// ReplicaURI registers a known replica alongside the new primary.
	ReplicaURI string

	// SeedDefaults inserts baseline roles after migration.
	SeedDefaults bool

	// Force drops leftovers from a previous failed attempt before
	// provisioning. Without it, a name collision fails the run.
	Force bool
}

// Result reports what was created.
type Result struct {
	Tenant   *tenancy.Tenant
	Database string
	Username string
}

// Provisioner onboards tenants: physical database, schema, scoped
// credential, registry record. It runs on an administrative connection
// with CREATEDB and CREATEROLE privileges.
type Provisioner struct {
	admin    *sql.DB
	adminURL string
	registry *registry.Registry
	logger   *log.Logger

	// openTenantDB is swapped in tests.
	openTenantDB func(ctx context.Context, url string) (*sql.DB, error)
}

// New creates a provisioner. adminURL is the administrative connection
// URL; tenant database URLs are derived from its host.
func New(admin *sql.DB, adminURL string, reg *registry.Registry) *Provisioner {
	return &Provisioner{
		admin:        admin,
		adminURL:     adminURL,
		registry:     reg,
		logger:       log.New(os.Stdout, "[PROVISIONER] ", log.LstdFlags),
		openTenantDB: openAndPing,
	}
}

func openAndPing(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Provision runs the onboarding workflow. Any step failure triggers a
// best-effort rollback of the partially created database and role, and
// surfaces a ProvisioningError naming the step.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = "tenant-" + uuid.NewString()
	}

	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		return nil, &tenancy.ProvisioningError{Step: StepAllocate, Cause: fmt.Errorf("slug is required")}
	}

	dbName := "tenant_" + strings.ReplaceAll(slug, "-", "_")
	username := dbName + "_app"
	for _, ident := range []string{dbName, username} {
		if err := base.ValidateSQLIdentifier(ident); err != nil {
			return nil, &tenancy.ProvisioningError{Step: StepAllocate, Cause: err}
		}
	}

	password, err := randomPassword()
	if err != nil {
		return nil, &tenancy.ProvisioningError{Step: StepAllocate, Cause: err}
	}

	p.logger.Printf("Provisioning tenant %s (database: %s)", tenantID, dbName)

	if req.Force {
		if err := p.dropArtifacts(ctx, dbName, username); err != nil {
			return nil, &tenancy.ProvisioningError{Step: StepCleanup, Cause: err}
		}
	}

	// CREATE ROLE / CREATE DATABASE cannot take bind parameters, so
	// identifiers and the password literal are quoted explicitly.
	createRole := fmt.Sprintf("CREATE USER %s WITH PASSWORD %s",
		pq.QuoteIdentifier(username), pq.QuoteLiteral(password))
	if _, err := p.admin.ExecContext(ctx, createRole); err != nil {
		return nil, &tenancy.ProvisioningError{Step: StepCreateRole, Cause: err}
	}

	createDB := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pq.QuoteIdentifier(dbName), pq.QuoteIdentifier(username))
	if _, err := p.admin.ExecContext(ctx, createDB); err != nil {
		p.rollback(ctx, dbName, username)
		return nil, &tenancy.ProvisioningError{Step: StepCreateDB, Cause: err}
	}

	tenantURL, err := deriveURL(p.adminURL, dbName, username, password)
	if err != nil {
		p.rollback(ctx, dbName, username)
		return nil, &tenancy.ProvisioningError{Step: StepCreateDB, Cause: err}
	}

	// Migrations and seeding run over a single-use connection, never
	// through the shared client cache: a tenant that fails partway must
	// leave no trace there.
	tenantDB, err := p.openTenantDB(ctx, tenantURL)
	if err != nil {
		p.rollback(ctx, dbName, username)
		return nil, &tenancy.ProvisioningError{Step: StepMigrate, Cause: err}
	}
	defer func() { _ = tenantDB.Close() }()

	if err := applyMigrations(ctx, tenantDB); err != nil {
		p.rollback(ctx, dbName, username)
		return nil, &tenancy.ProvisioningError{Step: StepMigrate, Cause: err}
	}

	if req.SeedDefaults {
		if err := seedDefaults(ctx, tenantDB); err != nil {
			p.rollback(ctx, dbName, username)
			return nil, &tenancy.ProvisioningError{Step: StepSeed, Cause: err}
		}
	}

	t, err := p.registry.Register(ctx, registry.RegisterRequest{
		ID:         tenantID,
		Name:       req.Name,
		Slug:       slug,
		URI:        tenantURL,
		ReplicaURI: req.ReplicaURI,
	})
	if err != nil {
		p.rollback(ctx, dbName, username)
		return nil, &tenancy.ProvisioningError{Step: StepRegister, Cause: err}
	}

	p.logger.Printf("Provisioned tenant %s (database: %s, user: %s)", tenantID, dbName, username)

	return &Result{Tenant: t, Database: dbName, Username: username}, nil
}

// rollback drops whatever the failed run created. Best effort: errors
// are logged, not returned, because the provisioning error that caused
// the rollback is the one the caller needs.
func (p *Provisioner) rollback(ctx context.Context, dbName, username string) {
	p.logger.Printf("Rolling back provisioning artifacts (database: %s)", dbName)
	if err := p.dropArtifacts(ctx, dbName, username); err != nil {
		p.logger.Printf("Rollback incomplete for %s: %v", dbName, err)
	}
}

func (p *Provisioner) dropArtifacts(ctx context.Context, dbName, username string) error {
	// Open sessions block DROP DATABASE; terminate them first.
	terminate := `
		SELECT pg_terminate_backend(pid) FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`
	if _, err := p.admin.ExecContext(ctx, terminate, dbName); err != nil {
		p.logger.Printf("Failed to terminate sessions on %s: %v", dbName, err)
	}

	dropDB := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(dbName))
	if _, err := p.admin.ExecContext(ctx, dropDB); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", dbName, err)
	}

	dropUser := fmt.Sprintf("DROP USER IF EXISTS %s", pq.QuoteIdentifier(username))
	if _, err := p.admin.ExecContext(ctx, dropUser); err != nil {
		return fmt.Errorf("failed to drop user %s: %w", username, err)
	}

	return nil
}

// seedDefaults inserts the baseline reference data a fresh tenant
// expects.
func seedDefaults(ctx context.Context, db *sql.DB) error {
	seed := `
		INSERT INTO roles (name, description) VALUES
			('admin', 'Full administrative access'),
			('manager', 'Team and task management'),
			('member', 'Standard user')
		ON CONFLICT (name) DO NOTHING`
	if _, err := db.ExecContext(ctx, seed); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	return nil
}

// deriveURL builds the tenant's connection URL from the administrative
// one, swapping in the new database and credential.
func deriveURL(adminURL, dbName, username, password string) (string, error) {
	u, err := url.Parse(adminURL)
	if err != nil {
		return "", fmt.Errorf("invalid administrative URL: %w", err)
	}
	u.User = url.UserPassword(username, password)
	u.Path = "/" + dbName
	return u.String(), nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate credential: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
