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

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/provision"
	"fluxerp/platform/tenancy/registry"
	"fluxerp/platform/tenancy/resolver"
)

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.log.Error("", "", "Error encoding response", map[string]interface{}{"error": err.Error()})
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	g.writeJSON(w, status, map[string]interface{}{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

// healthHandler reports gateway liveness and component health.
func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := g.clients.Stats()
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "fluxerp-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
		"components": map[string]interface{}{
			"client_cache": map[string]interface{}{
				"size":     stats.Size,
				"capacity": stats.Capacity,
			},
		},
	})
}

// metricsHandler returns simplified metrics for easy consumption. The
// Prometheus native format lives at /prometheus.
func (g *Gateway) metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := g.clients.Stats()

	hitRate := float64(100.0)
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) * 100.0 / float64(total)
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"gateway_metrics": map[string]interface{}{
			"uptime_seconds": time.Since(g.startTime).Seconds(),
			"environment":    g.cfg.Environment,
		},
		"client_cache": map[string]interface{}{
			"size":         stats.Size,
			"capacity":     stats.Capacity,
			"hits":         stats.Hits,
			"misses":       stats.Misses,
			"evictions":    stats.Evictions,
			"hit_rate_pct": hitRate,
		},
		"timestamp": time.Now().UTC(),
	})
}

// cacheStatsHandler exposes client cache counters as JSON.
func (g *Gateway) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := g.clients.Stats()
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":      stats.Size,
		"capacity":  stats.Capacity,
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"evictions": stats.Evictions,
		"timestamp": time.Now().UTC(),
	})
}

type provisionRequest struct {
	TenantID     string `json:"tenant_id,omitempty"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ReplicaURI   string `json:"replica_uri,omitempty"`
	SeedDefaults bool   `json:"seed_defaults"`
	Force        bool   `json:"force"`
}

// provisionTenantHandler onboards a new tenant: database, schema,
// credential, registry record.
func (g *Gateway) provisionTenantHandler(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := g.provisioner.Provision(r.Context(), provision.Request{
		TenantID:     req.TenantID,
		Name:         req.Name,
		Slug:         req.Slug,
		ReplicaURI:   req.ReplicaURI,
		SeedDefaults: req.SeedDefaults,
		Force:        req.Force,
	})
	if err != nil {
		promProvisionsTotal.WithLabelValues("error").Inc()
		var perr *tenancy.ProvisioningError
		if errors.As(err, &perr) {
			g.log.ErrorWithCode("", requestIDFromContext(r.Context()),
				"Provisioning failed", http.StatusInternalServerError, err,
				map[string]interface{}{"step": perr.Step})
			g.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":      "provisioning failed",
				"step":       perr.Step,
				"request_id": requestIDFromContext(r.Context()),
			})
			return
		}
		g.writeError(w, r, http.StatusInternalServerError, "provisioning failed")
		return
	}

	promProvisionsTotal.WithLabelValues("success").Inc()
	g.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"tenant":   result.Tenant,
		"database": result.Database,
		"username": result.Username,
	})
}

// listTenantsHandler returns all registered tenants.
func (g *Gateway) listTenantsHandler(w http.ResponseWriter, r *http.Request) {
	tenants, err := g.registry.List(r.Context())
	if err != nil {
		g.writeError(w, r, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}

// getTenantHandler returns one tenant record.
func (g *Gateway) getTenantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := g.registry.Lookup(r.Context(), id)
	if err != nil {
		g.writeRegistryError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, t)
}

type rotateRequest struct {
	URI        string `json:"uri"`
	ReplicaURI string `json:"replica_uri,omitempty"`
}

// rotateConnectionHandler re-registers a tenant with a new connection
// URI. An unchanged URI is a no-op; a changed one drops the tenant's
// cached client so the next request connects against the new database.
func (g *Gateway) rotateConnectionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URI == "" {
		g.writeError(w, r, http.StatusBadRequest, "connection uri is required")
		return
	}

	t, err := g.registry.Lookup(r.Context(), id)
	if err != nil {
		g.writeRegistryError(w, r, err)
		return
	}

	updated, err := g.registry.Register(r.Context(), registry.RegisterRequest{
		ID:         t.ID,
		Name:       t.Name,
		Slug:       t.Slug,
		URI:        req.URI,
		ReplicaURI: req.ReplicaURI,
	})
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, updated)
}

// deactivateTenantHandler soft-deletes a tenant. The registry row stays
// for auditability; new resolutions are rejected from here on.
func (g *Gateway) deactivateTenantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := g.registry.Deactivate(r.Context(), id); err != nil {
		g.writeRegistryError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "tenant_id": id})
}

// suspendTenantHandler reversibly suspends a tenant.
func (g *Gateway) suspendTenantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := g.registry.Suspend(r.Context(), id); err != nil {
		g.writeRegistryError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "suspended", "tenant_id": id})
}

// activateTenantHandler lifts a suspension.
func (g *Gateway) activateTenantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := g.registry.Activate(r.Context(), id); err != nil {
		g.writeRegistryError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "active", "tenant_id": id})
}

// tenantHealthHandler checks the tenant's database connectivity through
// its cached (or freshly constructed) client.
func (g *Gateway) tenantHealthHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	handle, err := g.clients.Get(r.Context(), id)
	if err != nil {
		g.writeResolutionError(w, r, err)
		return
	}
	defer handle.Release()

	status, err := handle.Client().HealthCheck(r.Context())
	if err != nil {
		g.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"tenant_id": id,
			"healthy":   false,
			"error":     err.Error(),
		})
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": id,
		"healthy":   status.Healthy,
		"latency":   status.Latency.String(),
		"details":   status.Details,
	})
}

func (g *Gateway) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	if tenancy.IsNotFound(err) {
		g.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	g.writeError(w, r, http.StatusInternalServerError, "registry operation failed")
}

type queryRequest struct {
	Statement string        `json:"statement"`
	Args      []interface{} `json:"args,omitempty"`
	Limit     int           `json:"limit,omitempty"`
}

// queryHandler runs a read against the resolved tenant's database. The
// routed client decides primary versus replica; the response reports
// which one served it.
func (g *Gateway) queryHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := resolver.FromContext(r.Context())
	if !ok {
		g.writeError(w, r, http.StatusInternalServerError, "no tenant resolution in context")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Statement == "" {
		g.writeError(w, r, http.StatusBadRequest, "statement is required")
		return
	}

	result, err := res.Handle.Client().Query(r.Context(), &base.Query{
		Statement: req.Statement,
		Args:      req.Args,
		Limit:     req.Limit,
	})
	if err != nil {
		g.writeQueryError(w, r, res.Tenant.ID, err)
		return
	}

	g.writeJSON(w, http.StatusOK, result)
}

type executeRequest struct {
	Action    string        `json:"action"`
	Statement string        `json:"statement"`
	Args      []interface{} `json:"args,omitempty"`
}

// executeHandler runs a mutation against the resolved tenant's primary.
func (g *Gateway) executeHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := resolver.FromContext(r.Context())
	if !ok {
		g.writeError(w, r, http.StatusInternalServerError, "no tenant resolution in context")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Statement == "" {
		g.writeError(w, r, http.StatusBadRequest, "statement is required")
		return
	}

	result, err := res.Handle.Client().Execute(r.Context(), &base.Command{
		Action:    req.Action,
		Statement: req.Statement,
		Args:      req.Args,
	})
	if err != nil {
		g.writeQueryError(w, r, res.Tenant.ID, err)
		return
	}

	g.writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) writeQueryError(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	if tenancy.IsConnection(err) {
		g.log.ErrorWithCode(tenantID, requestIDFromContext(r.Context()),
			"Tenant database unavailable", http.StatusServiceUnavailable, err, nil)
		g.writeError(w, r, http.StatusServiceUnavailable, "tenant database unavailable")
		return
	}
	g.writeError(w, r, http.StatusBadRequest, err.Error())
}
