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

package base

import (
	"context"
	"time"
)

// Client is the data-access surface handed to route handlers. The same
// interface is implemented by the concrete database clients (postgres,
// mysql) and by the read/write router that wraps them, so callers never
// see whether an operation landed on a primary or a replica.
type Client interface {
	// Lifecycle
	Connect(ctx context.Context, cfg *ClientConfig) error
	Close(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Read operations
	Query(ctx context.Context, q *Query) (*QueryResult, error)

	// Write operations
	Execute(ctx context.Context, cmd *Command) (*CommandResult, error)

	// Transact runs the commands atomically. Transactions are always a
	// write from the router's point of view.
	Transact(ctx context.Context, cmds []*Command) error

	// Metadata
	Name() string   // Logical name, usually the tenant identifier
	Driver() string // postgres, mysql
}

// ClientConfig holds everything needed to construct a live client.
type ClientConfig struct {
	Name            string        `json:"name"`
	Driver          string        `json:"driver"`
	URL             string        `json:"url"`         // primary DSN, already decrypted
	ReplicaURL      string        `json:"replica_url"` // optional read replica DSN
	TenantID        string        `json:"tenant_id"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	QueryTimeout    time.Duration `json:"query_timeout"`
}

// Query represents a read operation.
type Query struct {
	Statement string        `json:"statement"`
	Args      []interface{} `json:"args"`
	Timeout   time.Duration `json:"timeout"`
	Limit     int           `json:"limit"`
}

// QueryResult contains the rows returned by a Query.
type QueryResult struct {
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
	Duration time.Duration            `json:"duration"`
	Source   string                   `json:"source,omitempty"` // primary or replica
}

// Command represents a mutating operation.
type Command struct {
	Action    string        `json:"action"` // INSERT, UPDATE, DELETE, ...
	Statement string        `json:"statement"`
	Args      []interface{} `json:"args"`
	Timeout   time.Duration `json:"timeout"`
}

// CommandResult contains the outcome of a Command.
type CommandResult struct {
	Success      bool          `json:"success"`
	RowsAffected int           `json:"rows_affected"`
	Duration     time.Duration `json:"duration"`
}

// HealthStatus reports the health of a client's underlying connection.
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error,omitempty"`
}

// ClientError wraps errors from client operations with the client name and
// the operation that failed.
type ClientError struct {
	ClientName string
	Operation  string
	Message    string
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.ClientName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ClientName + "." + e.Operation + ": " + e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NewClientError creates a new ClientError.
func NewClientError(clientName, operation, message string, cause error) *ClientError {
	return &ClientError{
		ClientName: clientName,
		Operation:  operation,
		Message:    message,
		Cause:      cause,
	}
}
