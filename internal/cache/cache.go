package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// Page is a successful upstream page as stored in the cache
type Page struct {
	Items     []models.ResultItem `json:"items"`
	NextStart int                 `json:"next_start"`
}

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

const pagePrefix = "page:"

// PagePattern matches every cached upstream page
const PagePattern = pagePrefix + "*"

// PageKey derives the cache key for an upstream page. scope identifies the
// upstream settings that shape a page, such as engine and page size.
func PageKey(scope, query string, start int) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + query + "\x00" + strconv.Itoa(start)))
	return pagePrefix + hex.EncodeToString(sum[:])
}

// SetPage caches an upstream page
func (c *Cache) SetPage(ctx context.Context, scope, query string, start int, page *Page) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}

	return c.client.Set(ctx, PageKey(scope, query, start), data, c.ttl).Err()
}

// GetPage retrieves an upstream page from cache. A miss returns nil, nil.
func (c *Cache) GetPage(ctx context.Context, scope, query string, start int) (*Page, error) {
	data, err := c.client.Get(ctx, PageKey(scope, query, start)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get page from cache: %w", err)
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal page: %w", err)
	}

	return &page, nil
}

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
