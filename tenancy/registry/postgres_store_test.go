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
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxerp/platform/tenancy"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenants").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgresStoreWithDB(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStoreSave(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("tenant-acme", "Acme Corp", "acme", "ACTIVE", "enc-primary",
			sql.NullString{String: "enc-replica", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &tenancy.Tenant{
		ID:                  "tenant-acme",
		Name:                "Acme Corp",
		Slug:                "acme",
		Status:              tenancy.StatusActive,
		EncryptedURI:        "enc-primary",
		EncryptedReplicaURI: "enc-replica",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "name", "slug", "status", "db_uri", "db_replica_uri",
		"created_at", "last_accessed_at",
	}).AddRow("tenant-acme", "Acme Corp", "acme", "SUSPENDED", "enc-primary",
		nil, created, nil)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id =").
		WithArgs("tenant-acme").
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "tenant-acme")
	require.NoError(t, err)
	assert.Equal(t, tenancy.StatusSuspended, got.Status)
	assert.Empty(t, got.EncryptedReplicaURI)
	assert.True(t, got.LastAccessedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id =").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPostgresStoreUpdateStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE tenants SET status =").
		WithArgs("tenant-acme", "DEACTIVATED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateStatus(context.Background(), "tenant-acme", tenancy.StatusDeactivated)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE tenants SET status =").
		WithArgs("missing", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.UpdateStatus(context.Background(), "missing", tenancy.StatusActive)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreList(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "slug", "status", "db_uri", "db_replica_uri",
		"created_at", "last_accessed_at",
	}).
		AddRow("t2", "Beta", "beta", "ACTIVE", "enc-b", nil, now, now).
		AddRow("t1", "Alpha", "alpha", "ACTIVE", "enc-a", "enc-a-replica", now.Add(-time.Hour), nil)

	mock.ExpectQuery("SELECT (.+) FROM tenants ORDER BY created_at DESC").
		WillReturnRows(rows)

	tenants, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "t2", tenants[0].ID)
	assert.Equal(t, "enc-a-replica", tenants[1].EncryptedReplicaURI)
	assert.NoError(t, mock.ExpectationsWereMet())
}
