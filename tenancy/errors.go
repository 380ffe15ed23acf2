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

package tenancy

import (
	"errors"
	"fmt"
)

// AmbiguousTenantError is returned when a request carries no tenant signal
// at all (no token claim, no header, no recognizable subdomain). It maps to
// a bad-request response and is never retried.
type AmbiguousTenantError struct {
	Detail string
}

func (e *AmbiguousTenantError) Error() string {
	if e.Detail == "" {
		return "tenant identifier required: no tenant signal present in request"
	}
	return "tenant identifier required: " + e.Detail
}

// NotFoundError is returned when a tenant identifier or slug does not
// exist in the connection registry.
type NotFoundError struct {
	TenantID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tenant not found: %s", e.TenantID)
}

// InactiveTenantError is returned when a tenant exists but is suspended or
// deactivated. Reactivation is an administrative action; callers must not
// retry automatically.
type InactiveTenantError struct {
	TenantID string
	Status   Status
}

func (e *InactiveTenantError) Error() string {
	return fmt.Sprintf("tenant %s is not active (status: %s)", e.TenantID, e.Status)
}

// ConnectionError indicates the underlying database was unreachable. For
// replica reads the router recovers by falling back to primary; when the
// primary itself is unreachable this error surfaces to the caller as a
// service-unavailable condition.
type ConnectionError struct {
	Target string // "primary", "replica", or a tenant identifier
	Cause  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed (%s): %v", e.Target, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// ProvisioningError reports a failed tenant onboarding step. The Step field
// names the step that failed so the administrative caller can see exactly
// how far provisioning got before rollback.
type ProvisioningError struct {
	Step  string
	Cause error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at step %q: %v", e.Step, e.Cause)
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }

// ErrTenantMismatch is returned when a verified token's tenant claim and an
// explicit tenant header disagree. It is surfaced as forbidden.
var ErrTenantMismatch = errors.New("token tenant claim does not match request tenant")

// IsAmbiguous reports whether err is an AmbiguousTenantError.
func IsAmbiguous(err error) bool {
	var e *AmbiguousTenantError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInactive reports whether err is an InactiveTenantError.
func IsInactive(err error) bool {
	var e *InactiveTenantError
	return errors.As(err, &e)
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}
