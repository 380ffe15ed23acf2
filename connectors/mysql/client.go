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

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"fluxerp/platform/connectors/base"
)

// Client implements base.Client for MySQL. A handful of tenants migrated
// from legacy deployments run on MySQL; the driver-keyed factory in the
// connectors package selects this client for them.
type Client struct {
	cfg    *base.ClientConfig
	db     *sql.DB
	logger *log.Logger
}

// New creates a new MySQL client instance.
func New() *Client {
	return &Client{
		logger: log.New(os.Stdout, "[DB_MYSQL] ", log.LstdFlags),
	}
}

// Connect opens the connection pool and verifies it with a bounded ping.
func (c *Client) Connect(ctx context.Context, cfg *base.ClientConfig) error {
	c.cfg = cfg

	dsn, err := toDSN(cfg.URL)
	if err != nil {
		return base.NewClientError(cfg.Name, "Connect", "invalid connection URL", err)
	}

	db, err := sql.Open("mysql", dsn)
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
	c.logger.Printf("Connected to MySQL: %s (max_conns=%d)", cfg.Name, maxOpenConns)

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

	c.logger.Printf("Disconnected from MySQL: %s", c.name())
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
	return &base.HealthStatus{
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
			"in_use":           fmt.Sprintf("%d", stats.InUse),
			"idle":             fmt.Sprintf("%d", stats.Idle),
		},
		Timestamp: time.Now(),
	}, nil
}

// Query executes a SELECT statement. MySQL uses ? placeholders; statements
// written for this backend must use them instead of $n.
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

// Execute runs a mutating statement.
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
		rowsAffected = 0
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: int(rowsAffected),
		Duration:     time.Since(start),
	}, nil
}

// Transact runs the commands inside a single transaction.
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
	return "mysql"
}

func (c *Client) name() string {
	if c.cfg == nil {
		return "mysql"
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

// toDSN converts a mysql:// URL into the DSN format the driver expects
// (user:pass@tcp(host:port)/dbname?params).
func toDSN(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "mysql://") {
		// Assume it is already a driver DSN.
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if u.User != nil {
		sb.WriteString(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			sb.WriteString(":")
			sb.WriteString(pw)
		}
		sb.WriteString("@")
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":3306"
	}
	fmt.Fprintf(&sb, "tcp(%s)", host)
	sb.WriteString("/")
	sb.WriteString(strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		sb.WriteString("?")
		sb.WriteString(u.RawQuery)
	}
	return sb.String(), nil
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
