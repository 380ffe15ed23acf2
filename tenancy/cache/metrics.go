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

package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fluxerp_client_cache_hits_total",
		Help: "Number of tenant client lookups served from the cache",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fluxerp_client_cache_misses_total",
		Help: "Number of tenant client lookups that required construction",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fluxerp_client_cache_evictions_total",
		Help: "Number of tenant clients evicted by the LRU policy",
	})

	cacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fluxerp_client_cache_size",
		Help: "Current number of cached tenant clients",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions, cacheSize)
}
