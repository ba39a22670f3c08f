package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetProduct retrieves a cached product. Returns nil on a cache miss.
func (c *Client) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	key := fmt.Sprintf("product:%d", productID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to decode cached product %d: %w", productID, err)
	}
	return &product, nil
}

// SetProduct caches a product with a TTL
func (c *Client) SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product %d: %w", product.ID, err)
	}

	key := fmt.Sprintf("product:%d", product.ID)
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// InvalidateProduct drops a product from the cache
func (c *Client) InvalidateProduct(ctx context.Context, productID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("product:%d", productID)).Err()
}

// SetIdempotencyKey stores a checkout idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if a checkout idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireCartLock acquires a short advisory lock for a cart
func (c *Client) AcquireCartLock(ctx context.Context, cartID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:cart:%d", cartID), "1", ttl).Result()
}

// ReleaseCartLock releases a cart lock
func (c *Client) ReleaseCartLock(ctx context.Context, cartID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:cart:%d", cartID)).Err()
}
