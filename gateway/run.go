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
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"fluxerp/platform/connectors"
	"fluxerp/platform/connectors/base"
	"fluxerp/platform/connectors/postgres"
	"fluxerp/platform/shared/logger"
	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/cache"
	"fluxerp/platform/tenancy/provision"
	"fluxerp/platform/tenancy/registry"
	"fluxerp/platform/tenancy/resolver"
	"fluxerp/platform/tenancy/router"
	"fluxerp/platform/tenancy/secrets"
)

// enterpriseClientID is the pinned cache entry for the control-plane
// database. It sits outside the LRU and never counts against capacity.
const enterpriseClientID = "enterprise"

// Gateway holds the wired service components.
type Gateway struct {
	cfg         *Config
	log         *logger.Logger
	enterprise  *postgres.Client
	registry    *registry.Registry
	clients     *cache.Cache
	sticky      router.StickinessStore
	resolver    *resolver.Resolver
	provisioner *provision.Provisioner
	startTime   time.Time
}

// Run is the exported entry point for the gateway service.
//
// It loads configuration, connects the enterprise control-plane
// database, wires the registry, client cache, resolver, and
// provisioner, and serves HTTP until SIGINT or SIGTERM.
func Run() {
	log.Println("Starting FluxERP Gateway...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	g, err := NewGateway(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize gateway: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: g.Handler(),
	}

	go func() {
		log.Printf("FluxERP Gateway listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down FluxERP Gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	g.Close(shutdownCtx)
	log.Println("FluxERP Gateway stopped")
}

// NewGateway wires every component from configuration. The enterprise
// database must be reachable; tenant databases connect lazily on first
// request.
func NewGateway(ctx context.Context, cfg *Config) (*Gateway, error) {
	g := &Gateway{
		cfg:       cfg,
		log:       logger.New("gateway"),
		startTime: time.Now(),
	}

	cipher, err := buildCipher(cfg)
	if err != nil {
		return nil, err
	}

	// The enterprise client doubles as the registry's backing pool and
	// the provisioner's administrative connection.
	g.enterprise = postgres.New()
	if err := g.enterprise.Connect(ctx, &base.ClientConfig{
		Name:           enterpriseClientID,
		Driver:         "postgres",
		URL:            cfg.DatabaseURL,
		TenantID:       enterpriseClientID,
		ConnectTimeout: cfg.ConnectTimeout,
	}); err != nil {
		return nil, err
	}

	store, err := registry.NewPostgresStoreWithDB(g.enterprise.DB())
	if err != nil {
		return nil, err
	}
	g.registry = registry.New(store, cipher)

	if cfg.SecretsRegion != "" {
		mgr, err := secrets.NewAWSManager(ctx, secrets.AWSManagerOptions{Region: cfg.SecretsRegion})
		if err != nil {
			return nil, err
		}
		g.registry.SetSecretManager(mgr)
		log.Println("AWS Secrets Manager resolution enabled")
	}

	g.sticky, err = buildStickiness(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g.clients = cache.New(g.buildTenantClient, cache.Options{
		Capacity: cfg.CacheCapacity,
		Grace:    cfg.CacheGrace,
	})
	g.registry.SetInvalidator(g.clients.Invalidate)

	if err := g.clients.Pin(enterpriseClientID, g.enterprise); err != nil {
		return nil, err
	}

	g.resolver = resolver.New(g.registry, g.clients, resolver.Options{
		HeaderName:      cfg.TenantHeader,
		AllowQueryParam: cfg.IsDevelopment(),
	})

	g.provisioner = provision.New(g.enterprise.DB(), cfg.DatabaseURL, g.registry)

	log.Printf("Gateway initialized (environment: %s, cache capacity: %d)",
		cfg.Environment, cfg.CacheCapacity)

	return g, nil
}

func buildCipher(cfg *Config) (secrets.Cipher, error) {
	if cfg.EncryptionKey != "" {
		return secrets.NewAESCipher(cfg.EncryptionKey)
	}
	if !cfg.IsDevelopment() {
		return nil, errors.New("TENANT_URI_ENCRYPTION_KEY is required in production")
	}
	log.Println("WARNING: no encryption key set, tenant URIs stored in plaintext")
	return secrets.PlaintextCipher{}, nil
}

func buildStickiness(ctx context.Context, cfg *Config) (router.StickinessStore, error) {
	if cfg.RedisURL == "" {
		log.Println("Using in-memory stickiness store (single instance)")
		return router.NewMemoryStickiness(), nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Println("Using Redis stickiness store")
	return router.NewRedisStickiness(rdb), nil
}

// buildTenantClient is the cache builder: registry lookup, URI
// decryption, and a router-wrapped client connected to the tenant's
// primary and optional replica.
func (g *Gateway) buildTenantClient(ctx context.Context, tenantID string) (base.Client, error) {
	t, err := g.registry.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.Status.IsActive() {
		return nil, &tenancy.InactiveTenantError{TenantID: t.ID, Status: t.Status}
	}

	uri, err := g.registry.ConnectionURI(ctx, t)
	if err != nil {
		return nil, err
	}
	replicaURI, err := g.registry.ReplicaURI(ctx, t)
	if err != nil {
		return nil, err
	}

	driver, err := connectors.DriverForURI(uri)
	if err != nil {
		return nil, err
	}

	primary, err := connectors.New(driver)
	if err != nil {
		return nil, err
	}
	var replica base.Client
	if replicaURI != "" {
		if replica, err = connectors.New(driver); err != nil {
			return nil, err
		}
	}

	rc := router.New(primary, replica, router.Options{
		Stickiness: g.sticky,
		Window:     g.cfg.ReadAfterWriteWindow,
	})

	if err := rc.Connect(ctx, &base.ClientConfig{
		Name:           tenantID,
		Driver:         driver,
		URL:            uri,
		ReplicaURL:     replicaURI,
		TenantID:       tenantID,
		ConnectTimeout: g.cfg.ConnectTimeout,
	}); err != nil {
		return nil, err
	}

	return rc, nil
}

// Handler assembles the route table and middleware chain.
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", g.healthHandler).Methods("GET")
	r.HandleFunc("/metrics", g.metricsHandler).Methods("GET")  // JSON metrics
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET") // Prometheus native format

	// Administrative API: tenant lifecycle and introspection. These
	// routes identify tenants by path, not by request resolution.
	admin := r.PathPrefix("/api/v1").Subrouter()
	admin.HandleFunc("/tenants", g.provisionTenantHandler).Methods("POST")
	admin.HandleFunc("/tenants", g.listTenantsHandler).Methods("GET")
	admin.HandleFunc("/tenants/{id}", g.getTenantHandler).Methods("GET")
	admin.HandleFunc("/tenants/{id}", g.deactivateTenantHandler).Methods("DELETE")
	admin.HandleFunc("/tenants/{id}/connection", g.rotateConnectionHandler).Methods("PUT")
	admin.HandleFunc("/tenants/{id}/suspend", g.suspendTenantHandler).Methods("POST")
	admin.HandleFunc("/tenants/{id}/activate", g.activateTenantHandler).Methods("POST")
	admin.HandleFunc("/tenants/{id}/health", g.tenantHealthHandler).Methods("GET")
	admin.HandleFunc("/cache/stats", g.cacheStatsHandler).Methods("GET")

	// Data plane: requests here carry a tenant signal and run against
	// that tenant's database through the routed client.
	data := r.PathPrefix("/api/v1/data").Subrouter()
	data.Use(g.tenantMiddleware)
	data.HandleFunc("/query", g.queryHandler).Methods("POST")
	data.HandleFunc("/execute", g.executeHandler).Methods("POST")

	allowedOrigins := g.cfg.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return g.requestIDMiddleware(g.metricsMiddleware(g.authMiddleware(c.Handler(r))))
}

// Close drains the client cache, closing every tenant client and the
// pinned enterprise client with it.
func (g *Gateway) Close(ctx context.Context) {
	g.clients.Shutdown(ctx)
	if err := g.registry.Close(); err != nil {
		log.Printf("Registry close error: %v", err)
	}
}
