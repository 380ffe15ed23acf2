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

package router

import (
	"context"
	"log"
	"os"
	"time"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/tenancy"
)

// DefaultWindow is the read-after-write window: how long a session's
// reads stay on the primary after it writes. Sized to comfortably cover
// typical streaming replication lag.
const DefaultWindow = 5 * time.Second

// Options configures a RoutedClient.
type Options struct {
	Stickiness StickinessStore
	Window     time.Duration
	Logger     *log.Logger
}

// RoutedClient implements base.Client over a primary and an optional
// read replica. Reads go to the replica when it is healthy and the
// session has not written recently; writes always go to the primary.
// Callers see one client; routing is invisible except through
// QueryResult.Source.
type RoutedClient struct {
	cfg     *base.ClientConfig
	primary base.Client
	replica base.Client
	health  *replicaHealth
	sticky  StickinessStore
	window  time.Duration
	logger  *log.Logger

	stopHealth context.CancelFunc
}

// New wraps a primary and an optional replica client. Both are
// unconnected; Connect wires them to the URLs in the config. Pass nil
// replica for tenants without one.
func New(primary, replica base.Client, opts Options) *RoutedClient {
	sticky := opts.Stickiness
	if sticky == nil {
		sticky = NewMemoryStickiness()
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[DB_ROUTER] ", log.LstdFlags)
	}

	return &RoutedClient{
		primary: primary,
		replica: replica,
		health:  &replicaHealth{},
		sticky:  sticky,
		window:  window,
		logger:  logger,
	}
}

// Connect connects the primary, and the replica when cfg.ReplicaURL is
// set. A replica that fails to connect is dropped: the tenant serves
// all reads from the primary rather than failing outright.
func (c *RoutedClient) Connect(ctx context.Context, cfg *base.ClientConfig) error {
	c.cfg = cfg

	if err := c.primary.Connect(ctx, cfg); err != nil {
		return &tenancy.ConnectionError{Target: "primary", Cause: err}
	}

	if c.replica != nil && cfg.ReplicaURL != "" {
		replicaCfg := *cfg
		replicaCfg.Name = cfg.Name + "-replica"
		replicaCfg.URL = cfg.ReplicaURL
		replicaCfg.ReplicaURL = ""

		if err := c.replica.Connect(ctx, &replicaCfg); err != nil {
			c.logger.Printf("Replica for %s unavailable at connect, reads stay on primary: %v", cfg.Name, err)
			c.replica = nil
		} else {
			healthCtx, cancel := context.WithCancel(context.Background())
			c.stopHealth = cancel
			go c.healthLoop(healthCtx)
		}
	} else {
		c.replica = nil
	}

	return nil
}

// healthLoop pings the replica in the background so a recovered replica
// returns to rotation without waiting for query traffic to probe it.
func (c *RoutedClient) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := c.replica.HealthCheck(ctx)
			if err != nil || !status.Healthy {
				c.health.markFailed()
			} else {
				c.health.markHealthy()
			}
		}
	}
}

// Close stops the health loop and closes both clients.
func (c *RoutedClient) Close(ctx context.Context) error {
	if c.stopHealth != nil {
		c.stopHealth()
	}
	if c.replica != nil {
		if err := c.replica.Close(ctx); err != nil {
			c.logger.Printf("Error closing replica for %s: %v", c.Name(), err)
		}
	}
	return c.primary.Close(ctx)
}

// HealthCheck reports the primary's health with a detail line for the
// replica's rotation status.
func (c *RoutedClient) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	status, err := c.primary.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}

	if status.Details == nil {
		status.Details = make(map[string]string)
	}
	switch {
	case c.replica == nil:
		status.Details["replica"] = "none"
	case c.health.available():
		status.Details["replica"] = "in_rotation"
	default:
		status.Details["replica"] = "cooling_down"
	}
	return status, nil
}

// Query routes a read. Replica when healthy and the session is not
// sticky; a replica connection failure falls back to the primary within
// the same call and trips the cooldown, so later reads do not retry a
// replica a live query just proved unreachable. Primary connection
// failures surface as tenancy.ConnectionError.
func (c *RoutedClient) Query(ctx context.Context, q *base.Query) (*base.QueryResult, error) {
	if c.replica != nil && c.health.available() && !c.isSticky(ctx) {
		result, err := c.replica.Query(ctx, q)
		if err == nil {
			result.Source = "replica"
			return result, nil
		}
		if !isConnectionError(err) {
			// SQL errors are the caller's problem, not a routing signal.
			return nil, err
		}
		c.health.trip()
		c.logger.Printf("Replica query failed for %s, falling back to primary: %v", c.Name(), err)
	}

	result, err := c.primary.Query(ctx, q)
	if err != nil {
		if isConnectionError(err) {
			return nil, &tenancy.ConnectionError{Target: "primary", Cause: err}
		}
		return nil, err
	}
	result.Source = "primary"
	return result, nil
}

// Execute runs a write on the primary and opens the session's
// read-after-write window.
func (c *RoutedClient) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	result, err := c.primary.Execute(ctx, cmd)
	if err != nil {
		if isConnectionError(err) {
			return nil, &tenancy.ConnectionError{Target: "primary", Cause: err}
		}
		return nil, err
	}

	c.markWrite(ctx)
	return result, nil
}

// Transact runs the commands on the primary and opens the session's
// read-after-write window.
func (c *RoutedClient) Transact(ctx context.Context, cmds []*base.Command) error {
	if err := c.primary.Transact(ctx, cmds); err != nil {
		if isConnectionError(err) {
			return &tenancy.ConnectionError{Target: "primary", Cause: err}
		}
		return err
	}

	c.markWrite(ctx)
	return nil
}

// Name returns the primary client's name.
func (c *RoutedClient) Name() string {
	return c.primary.Name()
}

// Driver returns the primary client's driver.
func (c *RoutedClient) Driver() string {
	return c.primary.Driver()
}

// sessionOf scopes stickiness to the caller's session. Requests without
// a session identifier share a tenant-wide key, which errs on the side
// of primary reads.
func (c *RoutedClient) sessionOf(ctx context.Context) string {
	if session, ok := SessionFromContext(ctx); ok {
		return session
	}
	if c.cfg != nil && c.cfg.TenantID != "" {
		return "tenant:" + c.cfg.TenantID
	}
	return "tenant:" + c.Name()
}

// isSticky errs toward the primary when the store itself fails.
func (c *RoutedClient) isSticky(ctx context.Context) bool {
	sticky, err := c.sticky.IsSticky(ctx, c.sessionOf(ctx))
	if err != nil {
		c.logger.Printf("Stickiness lookup failed for %s, reading primary: %v", c.Name(), err)
		return true
	}
	return sticky
}

func (c *RoutedClient) markWrite(ctx context.Context) {
	if c.replica == nil {
		return
	}
	if err := c.sticky.MarkWrite(ctx, c.sessionOf(ctx), c.window); err != nil {
		c.logger.Printf("Failed to record write for %s: %v", c.Name(), err)
	}
}
