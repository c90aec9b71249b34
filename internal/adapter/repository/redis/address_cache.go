package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// AddressCache decorates an AddressDirectory with a TTL cache. The directory
// is read once per scan range, so a short TTL keeps scanner hot paths off the
// source while new addresses become visible within the TTL.
//
// Cache failures degrade to the inner directory; they never fail a scan.
type AddressCache struct {
	inner  usecase.AddressDirectory
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewAddressCache wraps inner with a redis-backed cache.
func NewAddressCache(inner usecase.AddressDirectory, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *AddressCache {
	return &AddressCache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "address_cache").Logger(),
	}
}

// DepositAddresses returns the lowercase address to user id map for a chain.
func (c *AddressCache) DepositAddresses(ctx context.Context, chain string, limit int) (map[string]string, error) {
	key := fmt.Sprintf("addrdir:%s:addresses:%d", chain, limit)

	var cached map[string]string
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	addresses, err := c.inner.DepositAddresses(ctx, chain, limit)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, addresses)
	return addresses, nil
}

// NativeAsset returns the chain's native asset definition.
func (c *AddressCache) NativeAsset(ctx context.Context, chain string) (*usecase.Asset, error) {
	key := fmt.Sprintf("addrdir:%s:native", chain)

	var cached usecase.Asset
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}

	asset, err := c.inner.NativeAsset(ctx, chain)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, asset)
	return asset, nil
}

// TokenAssets returns the chain's enabled token asset definitions.
func (c *AddressCache) TokenAssets(ctx context.Context, chain string) ([]usecase.Asset, error) {
	key := fmt.Sprintf("addrdir:%s:tokens", chain)

	var cached []usecase.Asset
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	assets, err := c.inner.TokenAssets(ctx, chain)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, assets)
	return assets, nil
}

// Invalidate drops all cached directory entries for a chain. Used by admin
// tooling after address provisioning changes.
func (c *AddressCache) Invalidate(ctx context.Context, chain string) error {
	pattern := fmt.Sprintf("addrdir:%s:*", chain)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// get loads and decodes a cached value. Returns false on miss or any cache
// error.
func (c *AddressCache) get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry corrupt")
		return false
	}
	return true
}

// set stores an encoded value with the configured TTL, best effort.
func (c *AddressCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
