// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionAuth mints and validates the signed session tokens the client
// presents to the storefront API. The device id travels in a private
// claim so the server can attribute pushed changes to a device.
type SessionAuth struct {
	secret []byte
}

// NewSessionAuth creates a session token helper from a shared secret.
func NewSessionAuth(secret string) *SessionAuth {
	return &SessionAuth{secret: []byte(secret)}
}

// SessionClaims are the claims carried by a storefront session token.
type SessionClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// GenerateToken signs a session token for a user/device pair.
func (a *SessionAuth) GenerateToken(userID, deviceID string, expiration time.Duration) (string, error) {
	claims := &SessionClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "lats-go",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and verifies a session token.
func (a *SessionAuth) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub (user id) in token")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("missing did (device id) in token")
	}
	return claims, nil
}
