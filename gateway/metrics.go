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
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxerp_gateway_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxerp_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"method"},
	)
	promResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxerp_gateway_tenant_resolutions_total",
			Help: "Tenant resolutions by identification source",
		},
		[]string{"source"},
	)
	promResolutionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxerp_gateway_tenant_resolution_failures_total",
			Help: "Tenant resolution failures by reason",
		},
		[]string{"reason"},
	)
	promProvisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxerp_gateway_tenant_provisions_total",
			Help: "Tenant provisioning attempts by outcome",
		},
		[]string{"status"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promResolutionsTotal)
	prometheus.MustRegister(promResolutionFailures)
	prometheus.MustRegister(promProvisionsTotal)
}
