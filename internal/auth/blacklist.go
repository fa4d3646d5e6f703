package auth

import (
	"context"
	"time"
)

// TokenBlacklist records revoked token ids (jti). An entry only needs to live
// until the token itself expires; after that ValidateToken rejects it anyway.
// Implementations: the Redis one in internal/redis and MemoryBlacklist.
type TokenBlacklist interface {
	// Add revokes jti until expiresAt. Already-expired tokens may be skipped.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	// IsBlacklisted reports whether jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
