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
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// failureThreshold consecutive replica failures take the replica out
	// of rotation.
	failureThreshold = 3

	// cooldown is how long a tripped replica stays out of rotation
	// before reads are allowed to probe it again.
	cooldown = 30 * time.Second

	// healthCheckInterval paces the background replica ping loop.
	healthCheckInterval = 10 * time.Second
)

// replicaHealth tracks consecutive failures for one tenant's replica.
type replicaHealth struct {
	mu               sync.Mutex
	consecutiveFails int
	unavailableUntil time.Time
}

// available reports whether reads may target the replica.
func (h *replicaHealth) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Now().After(h.unavailableUntil)
}

// markFailed records a replica failure; crossing the threshold trips
// the cooldown.
func (h *replicaHealth) markFailed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFails++
	if h.consecutiveFails >= failureThreshold {
		h.unavailableUntil = time.Now().Add(cooldown)
		h.consecutiveFails = 0
	}
}

// markHealthy resets the failure streak.
func (h *replicaHealth) markHealthy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFails = 0
	h.unavailableUntil = time.Time{}
}

// trip forces the cooldown immediately, bypassing the threshold. Used
// when a query-path failure proves the replica is down.
func (h *replicaHealth) trip() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unavailableUntil = time.Now().Add(cooldown)
	h.consecutiveFails = 0
}

// connectionErrorFragments are substrings that identify transport-level
// failures as opposed to SQL errors. A syntax error must surface to the
// caller; a refused connection must trigger fallback.
var connectionErrorFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"dial tcp",
	"bad connection",
	"server closed the connection",
	"terminating connection",
	"failed to ping",
	"database not connected",
}

// isConnectionError reports whether err indicates the database was
// unreachable rather than rejecting the statement.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range connectionErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
