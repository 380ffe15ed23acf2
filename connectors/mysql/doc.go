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

/*
Package mysql implements base.Client for MySQL using go-sql-driver/mysql.

Tenants migrated from legacy on-premise deployments keep their MySQL
databases; the factory in the connectors package selects this client
when a tenant's stored driver is "mysql". Connection URIs in mysql://
URL form are converted to the driver's DSN format on Connect.

Statements use ? placeholders rather than PostgreSQL's $n.
*/
package mysql
