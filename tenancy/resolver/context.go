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

package resolver

import "context"

// Claims are the token fields the resolver trusts. The auth middleware
// verifies the token signature before placing these in the context, so
// a populated Claims value is a verified one.
type Claims struct {
	TenantID string
	Subject  string
}

type claimsKeyType struct{}

var claimsKey claimsKeyType

// WithClaims attaches verified token claims to the context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified claims, if present.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

type resolutionKeyType struct{}

var resolutionKey resolutionKeyType

// WithResolution attaches a completed resolution to the context so
// route handlers can reach the tenant's client.
func WithResolution(ctx context.Context, res *Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey, res)
}

// FromContext returns the request's resolution, if any.
func FromContext(ctx context.Context) (*Resolution, bool) {
	res, ok := ctx.Value(resolutionKey).(*Resolution)
	return res, ok
}
