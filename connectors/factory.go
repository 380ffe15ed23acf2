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

// Package connectors provides the driver-keyed factory for tenant
// database clients. Tenant databases are configured, not code-loaded:
// the driver name stored alongside a tenant's connection URI selects
// which client implementation is constructed.
package connectors

import (
	"fmt"
	"net/url"
	"strings"

	"fluxerp/platform/connectors/base"
	"fluxerp/platform/connectors/mysql"
	"fluxerp/platform/connectors/postgres"
)

// New creates an unconnected client for the given driver.
func New(driver string) (base.Client, error) {
	switch driver {
	case "postgres", "postgresql":
		return postgres.New(), nil
	case "mysql":
		return mysql.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// DriverForURI infers the driver from a connection URI scheme.
func DriverForURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid connection URI: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported connection URI scheme: %q", u.Scheme)
	}
}
