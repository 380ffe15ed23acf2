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

package base

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSQLIdentifier checks if a string is safe to use as a SQL
// identifier (database name, user name) to prevent SQL injection. The
// provisioner interpolates identifiers into CREATE DATABASE / CREATE USER
// statements, which cannot be parameterized.
func ValidateSQLIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !validIdentifier.MatchString(identifier) {
		return fmt.Errorf("invalid SQL identifier: %q", identifier)
	}

	// Common SQL reserved words; identifiers generated from UUIDs never
	// collide with these, but operator-supplied names might.
	reserved := []string{
		"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
		"TABLE", "DATABASE", "INDEX", "FROM", "WHERE", "AND", "OR", "NOT",
		"NULL", "TRUE", "FALSE", "GRANT", "REVOKE", "USER", "ROLE",
	}

	upper := strings.ToUpper(identifier)
	for _, word := range reserved {
		if upper == word {
			return fmt.Errorf("identifier %q is a SQL reserved word", identifier)
		}
	}

	return nil
}

// ValidateConnectionURI checks that a decrypted connection URI has a
// recognized database scheme before a client is constructed from it.
func ValidateConnectionURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("connection URI cannot be empty")
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid connection URI format: %w", err)
	}

	switch parsed.Scheme {
	case "postgres", "postgresql", "mysql":
		return nil
	default:
		return fmt.Errorf("unsupported connection URI scheme: %q", parsed.Scheme)
	}
}

// SanitizeLogString removes or escapes characters that could be used for
// log injection.
func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	const maxLogLength = 500
	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}
	return s
}
