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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fluxerp/platform/tenancy"
	"fluxerp/platform/tenancy/resolver"
	"fluxerp/platform/tenancy/router"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const ctxKeyRequestID contextKey = "request_id"

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// statusRecorder captures the response status so middleware can observe
// it after the handler runs. For mutating requests it stamps the
// X-Last-Write header on success, the signal clients use to know their
// reads are pinned to the primary for the stickiness window.
type statusRecorder struct {
	http.ResponseWriter
	status    int
	mutating  bool
	headerSet bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.headerSet {
		r.headerSet = true
		r.status = code
		if r.mutating && code < 400 {
			r.Header().Set("X-Last-Write", time.Now().UTC().Format(time.RFC3339Nano))
		}
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.headerSet {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// requestIDMiddleware assigns every request an identifier for log
// correlation and echoes it back to the caller.
func (g *Gateway) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// metricsMiddleware records request counts, durations, and a structured
// access log line.
func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, mutating: isMutating(r.Method)}

		next.ServeHTTP(rec, r)

		durationMS := float64(time.Since(start).Milliseconds())
		promRequestsTotal.WithLabelValues(fmt.Sprintf("%dxx", rec.status/100)).Inc()
		promRequestDuration.WithLabelValues(r.Method).Observe(durationMS)

		tenantHeader := g.cfg.TenantHeader
		if tenantHeader == "" {
			tenantHeader = resolver.DefaultHeader
		}
		g.log.InfoWithDuration(r.Header.Get(tenantHeader), requestIDFromContext(r.Context()),
			"Request completed", durationMS, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": rec.status,
			})
	})
}

// authMiddleware verifies a bearer token when one is present and places
// its tenant claim in the context. Requests without a token pass
// through; tenant identification then falls to the header or subdomain.
// A token that is present but invalid is rejected outright.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || g.cfg.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			g.writeError(w, r, http.StatusUnauthorized, "malformed Authorization header")
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(g.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			g.log.Warn("", requestIDFromContext(r.Context()), "Rejected invalid bearer token",
				map[string]interface{}{"error": fmt.Sprint(err)})
			g.writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		claims := resolver.Claims{}
		if mc, ok := token.Claims.(jwt.MapClaims); ok {
			if v, ok := mc["tenant_id"].(string); ok {
				claims.TenantID = v
			}
			if v, ok := mc["sub"].(string); ok {
				claims.Subject = v
			}
		}

		ctx := resolver.WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantMiddleware resolves the request's tenant, attaches the routed
// client handle to the context, and releases it when the request
// completes. The session key for read-after-write stickiness is the
// token subject when present, otherwise the caller's address.
func (g *Gateway) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := g.resolver.Resolve(r.Context(), r)
		if err != nil {
			promResolutionFailures.WithLabelValues(resolutionFailureReason(err)).Inc()
			g.writeResolutionError(w, r, err)
			return
		}
		defer res.Handle.Release()

		promResolutionsTotal.WithLabelValues(res.Source).Inc()

		session := ""
		if claims, ok := resolver.ClaimsFromContext(r.Context()); ok {
			session = claims.Subject
		}
		if session == "" {
			session = r.RemoteAddr
		}

		ctx := resolver.WithResolution(r.Context(), res)
		ctx = router.WithSession(ctx, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func resolutionFailureReason(err error) string {
	switch {
	case tenancy.IsAmbiguous(err):
		return "ambiguous"
	case tenancy.IsNotFound(err):
		return "not_found"
	case tenancy.IsInactive(err):
		return "inactive"
	case errors.Is(err, tenancy.ErrTenantMismatch):
		return "mismatch"
	case tenancy.IsConnection(err):
		return "connection"
	default:
		return "internal"
	}
}

func (g *Gateway) writeResolutionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case tenancy.IsAmbiguous(err):
		g.writeError(w, r, http.StatusBadRequest, err.Error())
	case tenancy.IsNotFound(err):
		g.writeError(w, r, http.StatusNotFound, err.Error())
	case tenancy.IsInactive(err), errors.Is(err, tenancy.ErrTenantMismatch):
		g.writeError(w, r, http.StatusForbidden, err.Error())
	case tenancy.IsConnection(err):
		g.writeError(w, r, http.StatusServiceUnavailable, "tenant database unavailable")
	default:
		g.log.ErrorWithCode("", requestIDFromContext(r.Context()),
			"Tenant resolution failed", http.StatusInternalServerError, err, nil)
		g.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
