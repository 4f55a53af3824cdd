// Package session stores refresh sessions and the access-token denylist.
// Redis is the preferred backend; Postgres serves when no Redis is configured.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the refresh token is unknown, expired, or revoked.
var ErrNotFound = errors.New("session not found")

type Store interface {
	// SaveRefresh records a refresh session keyed by the token's hash. The
	// raw token never reaches storage.
	SaveRefresh(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	// LookupRefresh resolves a refresh token hash to its user id.
	LookupRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeRefresh(ctx context.Context, tokenHash string) error

	// RevokeAccess denylists an access token by its jti until it would have
	// expired anyway.
	RevokeAccess(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessRevoked(ctx context.Context, jti string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
