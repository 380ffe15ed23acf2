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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/tenancy"
)

// scriptedClient is a base.Client whose query and execute behavior is
// controlled per test.
type scriptedClient struct {
	name       string
	connectErr error
	queryErr   error
	executeErr error
	queryCalls atomic.Int64
	execCalls  atomic.Int64
	healthy    atomic.Bool
	closed     atomic.Bool
}

func newScripted(name string) *scriptedClient {
	c := &scriptedClient{name: name}
	c.healthy.Store(true)
	return c
}

func (s *scriptedClient) Connect(ctx context.Context, cfg *base.ClientConfig) error {
	return s.connectErr
}

func (s *scriptedClient) Close(ctx context.Context) error {
	s.closed.Store(true)
	return nil
}

func (s *scriptedClient) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: s.healthy.Load()}, nil
}

func (s *scriptedClient) Query(ctx context.Context, q *base.Query) (*base.QueryResult, error) {
	s.queryCalls.Add(1)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &base.QueryResult{Rows: []map[string]interface{}{{"served_by": s.name}}, RowCount: 1}, nil
}

func (s *scriptedClient) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	s.execCalls.Add(1)
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	return &base.CommandResult{Success: true, RowsAffected: 1}, nil
}

func (s *scriptedClient) Transact(ctx context.Context, cmds []*base.Command) error {
	s.execCalls.Add(1)
	return s.executeErr
}

func (s *scriptedClient) Name() string   { return s.name }
func (s *scriptedClient) Driver() string { return "postgres" }

func connect(t *testing.T, rc *RoutedClient, withReplica bool) {
	t.Helper()
	cfg := &base.ClientConfig{Name: "tenant-acme", TenantID: "tenant-acme",
		URL: "postgres://u:p@primary/db"}
	if withReplica {
		cfg.ReplicaURL = "postgres://u:p@replica/db"
	}
	require.NoError(t, rc.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = rc.Close(context.Background()) })
}

func TestReadsGoToReplica(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	rc := New(primary, replica, Options{})
	connect(t, rc, true)

	result, err := rc.Query(context.Background(), &base.Query{Statement: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, "replica", result.Source)
	assert.Equal(t, int64(1), replica.queryCalls.Load())
	assert.Equal(t, int64(0), primary.queryCalls.Load())
}

func TestWritesGoToPrimary(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	rc := New(primary, replica, Options{})
	connect(t, rc, true)

	_, err := rc.Execute(context.Background(), &base.Command{Statement: "INSERT"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), primary.execCalls.Load())
	assert.Equal(t, int64(0), replica.execCalls.Load())
}

func TestReadAfterWriteStickiness(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	rc := New(primary, replica, Options{Window: 50 * time.Millisecond})
	connect(t, rc, true)

	ctx := WithSession(context.Background(), "session-1")

	_, err := rc.Execute(ctx, &base.Command{Statement: "INSERT"})
	require.NoError(t, err)

	// Within the window: primary.
	result, err := rc.Query(ctx, &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)

	// After the window expires: back to the replica.
	time.Sleep(80 * time.Millisecond)
	result, err = rc.Query(ctx, &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "replica", result.Source)
}

func TestStickinessIsPerSession(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	rc := New(primary, replica, Options{Window: time.Minute})
	connect(t, rc, true)

	writer := WithSession(context.Background(), "writer")
	reader := WithSession(context.Background(), "reader")

	_, err := rc.Execute(writer, &base.Command{Statement: "INSERT"})
	require.NoError(t, err)

	result, err := rc.Query(writer, &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)

	result, err = rc.Query(reader, &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "replica", result.Source)
}

func TestReplicaConnectionFailureFallsBackToPrimary(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	replica.queryErr = errors.New("dial tcp 10.0.0.2:5432: connection refused")
	rc := New(primary, replica, Options{})
	connect(t, rc, true)

	result, err := rc.Query(context.Background(), &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, int64(1), replica.queryCalls.Load())
	assert.Equal(t, int64(1), primary.queryCalls.Load())
}

func TestReplicaSQLErrorSurfaces(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	replica.queryErr = errors.New(`pq: syntax error at or near "SELEC"`)
	rc := New(primary, replica, Options{})
	connect(t, rc, true)

	_, err := rc.Query(context.Background(), &base.Query{Statement: "SELEC"})
	require.Error(t, err)
	assert.Equal(t, int64(0), primary.queryCalls.Load())
}

func TestReplicaQueryFailureTripsCooldown(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	replica.queryErr = errors.New("connection refused")
	rc := New(primary, replica, Options{})
	connect(t, rc, true)

	ctx := context.Background()
	result, err := rc.Query(ctx, &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, int64(1), replica.queryCalls.Load())

	// Cooldown active: the replica is not retried on later reads.
	result, err = rc.Query(ctx, &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, int64(1), replica.queryCalls.Load())
	assert.Equal(t, int64(2), primary.queryCalls.Load())
}

func TestBackgroundFailuresTripAtThreshold(t *testing.T) {
	h := &replicaHealth{}

	for i := 0; i < failureThreshold-1; i++ {
		h.markFailed()
		assert.True(t, h.available())
	}
	h.markFailed()
	assert.False(t, h.available())

	h.markHealthy()
	assert.True(t, h.available())
}

func TestPrimaryConnectionErrorSurfaces(t *testing.T) {
	primary := newScripted("primary")
	primary.queryErr = errors.New("dial tcp 10.0.0.1:5432: connection refused")
	rc := New(primary, nil, Options{})
	connect(t, rc, false)

	_, err := rc.Query(context.Background(), &base.Query{Statement: "SELECT"})
	require.Error(t, err)
	assert.True(t, tenancy.IsConnection(err))

	primary.executeErr = primary.queryErr
	_, err = rc.Execute(context.Background(), &base.Command{Statement: "INSERT"})
	require.Error(t, err)
	assert.True(t, tenancy.IsConnection(err))
}

func TestNoReplicaReadsPrimary(t *testing.T) {
	primary := newScripted("primary")
	rc := New(primary, nil, Options{})
	connect(t, rc, false)

	result, err := rc.Query(context.Background(), &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
}

func TestReplicaConnectFailureTolerated(t *testing.T) {
	primary := newScripted("primary")
	replica := newScripted("replica")
	replica.connectErr = errors.New("connection refused")
	rc := New(primary, replica, Options{})
	connect(t, rc, true)

	result, err := rc.Query(context.Background(), &base.Query{Statement: "SELECT"})
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, int64(0), replica.queryCalls.Load())
}

func TestPrimaryConnectFailureSurfaces(t *testing.T) {
	primary := newScripted("primary")
	primary.connectErr = errors.New("connection refused")
	rc := New(primary, nil, Options{})

	err := rc.Connect(context.Background(), &base.ClientConfig{
		Name: "tenant-acme", URL: "postgres://u:p@primary/db"})
	require.Error(t, err)
	assert.True(t, tenancy.IsConnection(err))
}

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("driver: bad connection"), true},
		{context.DeadlineExceeded, true},
		{errors.New(`pq: relation "users" does not exist`), false},
		{errors.New("pq: duplicate key value violates unique constraint"), false},
		{nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isConnectionError(tc.err), "err=%v", tc.err)
	}
}
