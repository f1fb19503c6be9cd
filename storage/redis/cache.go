// Copyright 2025 Poiesic Systems
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

// Package redis provides an embedding.Cache backed by a Redis server.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/embedding"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached vector lives.
const DefaultTTL = 7 * 24 * time.Hour

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// client is the subset of goredis.Cmdable used by the cache.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// Cache stores vectors as little-endian float32 strings.
type Cache struct {
	client client
	closer func() error
	ttl    time.Duration
	logger *slog.Logger
}

var _ embedding.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Cache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	c := newCache(rdb, opts.TTL)
	c.closer = rdb.Close
	if err := c.Ping(ctx); err != nil {
		rdb.Close()
		return nil, err
	}
	c.logger.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return c, nil
}

func newCache(cl client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client: cl,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis-cache"),
	}
}

// Get returns the cached vector for key.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	if len(data)%4 != 0 {
		c.logger.Warn("discarding malformed cache entry", "key", key, "bytes", len(data))
		return nil, false, nil
	}
	return decode(data), true, nil
}

// Set stores vec under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, vec []float32) error {
	if err := c.client.Set(ctx, key, encode(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return nil
}

// Ping checks the server connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", core.ErrStorage, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) []float32 {
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
