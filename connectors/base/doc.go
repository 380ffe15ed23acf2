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

/*
Package base defines the Client interface and supporting types for
tenant database access in FluxERP.

# Client Interface

All database clients implement the Client interface:

	type Client interface {
	    // Lifecycle
	    Connect(ctx context.Context, cfg *ClientConfig) error
	    Close(ctx context.Context) error
	    HealthCheck(ctx context.Context) (*HealthStatus, error)

	    // Read operations
	    Query(ctx context.Context, q *Query) (*QueryResult, error)

	    // Write operations
	    Execute(ctx context.Context, cmd *Command) (*CommandResult, error)
	    Transact(ctx context.Context, cmds []*Command) error

	    // Metadata
	    Name() string
	    Driver() string
	}

The read/write router (tenancy/router) implements the same interface over
a primary and an optional replica client, so route handlers receive one
shape regardless of routing.

# Query Operations

	q := &Query{
	    Statement: "SELECT id, email FROM users WHERE department = $1",
	    Args:      []interface{}{"engineering"},
	    Timeout:   5 * time.Second,
	    Limit:     100,
	}

	result, err := client.Query(ctx, q)
	if err != nil {
	    return err
	}
	for _, row := range result.Rows {
	    fmt.Println(row["email"])
	}

# Error Handling

All client errors are wrapped in ClientError for consistent handling:

	if clientErr, ok := err.(*ClientError); ok {
	    log.Printf("client: %s, op: %s: %s",
	        clientErr.ClientName, clientErr.Operation, clientErr.Message)
	}

# Thread Safety

All Client implementations must be safe for concurrent use. The interface
methods can be called from multiple goroutines simultaneously.
*/
package base
