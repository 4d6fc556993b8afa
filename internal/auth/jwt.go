// Copyright 2025 The Conductor Authors
//
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

// Package auth provides optional bearer-token authentication for the REST
// façade (§6.2's external GUI consumer). A deployment with no JWT secret
// configured runs with auth disabled -- the GUI is, by default, a trusted
// local collaborator (§1 Non-goals); this package exists for deployments
// that expose the façade beyond localhost.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config configures JWT verification. A zero-value Config has Disabled
// false, so verification is on unless Disabled is set explicitly.
type Config struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
	Disabled  bool
}

// Claims is the REST façade's JWT claim set.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// ValidateToken parses and verifies tokenString against cfg, returning the
// claims on success. Grounded on the teacher's internal/controller/auth.ValidateJWT,
// narrowed to HS256 only since this façade has no multi-tenant key
// rotation requirement.
func ValidateToken(tokenString string, cfg Config) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token is empty")
	}
	parser := jwt.NewParser(jwt.WithLeeway(cfg.ClockSkew))

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", cfg.Issuer, claims.Issuer)
	}
	return claims, nil
}
