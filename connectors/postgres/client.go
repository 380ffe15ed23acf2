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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"fluxerp/platform/connectors/base"
)

// Client implements base.Client for PostgreSQL, the default backend for
// tenant databases and the enterprise store.
type Client struct {
	cfg    *base.ClientConfig
	db     *sql.DB
	logger *log.Logger
}

// New creates a new PostgreSQL client instance. The client holds no
// connection until Connect is called.
func New() *Client {
	return &Client{
		logger: log.New(os.Stdout, "[DB_POSTGRES] ", log.LstdFlags),
	}
}

// Connect opens the connection pool and verifies it with a bounded ping.
func (c *Client) Connect(ctx context.Context, cfg *base.ClientConfig) error {
	c.cfg = cfg

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return base.NewClientError(cfg.Name, "Connect", "failed to open connection", err)
	}

	maxOpenConns := 25
	maxIdleConns := 5
	connMaxLifetime := 5 * time.Minute
	if cfg.MaxOpenConns > 0 {
		maxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		maxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		connMaxLifetime = cfg.ConnMaxLifetime
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	// Connection establishment is bounded so a dead database fails the
	// request instead of hanging it.
	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return base.NewClientError(cfg.Name, "Connect", "failed to ping database", err)
	}

	c.db = db
	c.logger.Printf("Connected to PostgreSQL: %s (max_conns=%d)", cfg.Name, maxOpenConns)

	return nil
}

// Close drains and closes the connection pool.
func (c *Client) Close(ctx context.Context) error {
	if c.db == nil {
		return nil
	}

	if err := c.db.Close(); err != nil {
		return base.NewClientError(c.name(), "Close", "failed to close connection", err)
	}

	c.logger.Printf("Disconnected from PostgreSQL: %s", c.name())
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (c *Client) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.db == nil {
		return &base.HealthStatus{
			Healthy: false,
			Error:   "database not connected",
		}, nil
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	stats := c.db.Stats()
	details := map[string]string{
		"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
		"in_use":           fmt.Sprintf("%d", stats.InUse),
		"idle":             fmt.Sprintf("%d", stats.Idle),
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// Query executes a SELECT statement and returns the rows as maps.
func (c *Client) Query(ctx context.Context, q *base.Query) (*base.QueryResult, error) {
	if c.db == nil {
		return nil, base.NewClientError(c.name(), "Query", "database not connected", nil)
	}

	queryCtx, cancel := c.opContext(ctx, q.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := c.db.QueryContext(queryCtx, q.Statement, q.Args...)
	if err != nil {
		return nil, base.NewClientError(c.name(), "Query", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows, q.Limit)
	if err != nil {
		return nil, base.NewClientError(c.name(), "Query", "failed to scan rows", err)
	}

	return &base.QueryResult{
		Rows:     results,
		RowCount: len(results),
		Duration: time.Since(start),
	}, nil
}

// Execute runs INSERT, UPDATE, DELETE, or other write operations.
func (c *Client) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.db == nil {
		return nil, base.NewClientError(c.name(), "Execute", "database not connected", nil)
	}

	execCtx, cancel := c.opContext(ctx, cmd.Timeout)
	defer cancel()

	start := time.Now()
	result, err := c.db.ExecContext(execCtx, cmd.Statement, cmd.Args...)
	if err != nil {
		return nil, base.NewClientError(c.name(), "Execute", "command execution failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Printf("Warning: could not get rows affected: %v", err)
		rowsAffected = 0
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: int(rowsAffected),
		Duration:     time.Since(start),
	}, nil
}

// Transact runs the commands inside a single transaction, rolling back on
// the first failure.
func (c *Client) Transact(ctx context.Context, cmds []*base.Command) error {
	if c.db == nil {
		return base.NewClientError(c.name(), "Transact", "database not connected", nil)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return base.NewClientError(c.name(), "Transact", "failed to begin transaction", err)
	}

	for _, cmd := range cmds {
		if _, err := tx.ExecContext(ctx, cmd.Statement, cmd.Args...); err != nil {
			_ = tx.Rollback()
			return base.NewClientError(c.name(), "Transact", "command failed, transaction rolled back", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return base.NewClientError(c.name(), "Transact", "failed to commit transaction", err)
	}

	return nil
}

// Name returns the logical client name.
func (c *Client) Name() string {
	return c.name()
}

// Driver returns the driver identifier.
func (c *Client) Driver() string {
	return "postgres"
}

// DB exposes the underlying pool. The registry's enterprise store reuses
// the pinned enterprise client's pool through this accessor.
func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) name() string {
	if c.cfg == nil {
		return "postgres"
	}
	return c.cfg.Name
}

func (c *Client) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 && c.cfg != nil {
		timeout = c.cfg.QueryTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// scanRows converts sql.Rows into a slice of column-name keyed maps.
func scanRows(rows *sql.Rows, limit int) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		if limit > 0 && len(results) >= limit {
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for text/varchar fields
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
