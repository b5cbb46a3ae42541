package authz

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const profileKeyPrefix = "authz:me:"

// ProfileCache holds recent current-user documents in Redis keyed by identity
// id, so rapid session refreshes (login success immediately followed by page
// bootstrap) do not hammer the backend. Stale data is bounded by the TTL;
// Invalidate drops an entry when membership is known to have changed.
type ProfileCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileCache creates a cache with the given entry TTL.
func NewProfileCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached document for the identity, or ok=false on miss.
// Redis failures degrade to a miss.
func (c *ProfileCache) Get(ctx context.Context, identityID string) (*MeResponse, bool) {
	data, err := c.client.Get(ctx, profileKeyPrefix+identityID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("profile cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		c.logger.Warn("profile cache entry corrupt, dropping",
			zap.String("identity_id", identityID), zap.Error(err))
		c.client.Del(ctx, profileKeyPrefix+identityID)
		return nil, false
	}
	return &me, true
}

// Set stores the document. Best effort; failures are logged and swallowed.
func (c *ProfileCache) Set(ctx context.Context, identityID string, me *MeResponse) {
	data, err := json.Marshal(me)
	if err != nil {
		c.logger.Warn("profile cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, profileKeyPrefix+identityID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("profile cache write failed", zap.Error(err))
	}
}

// Invalidate drops the identity's cached document.
func (c *ProfileCache) Invalidate(ctx context.Context, identityID string) {
	if err := c.client.Del(ctx, profileKeyPrefix+identityID).Err(); err != nil {
		c.logger.Warn("profile cache invalidation failed", zap.Error(err))
	}
}
