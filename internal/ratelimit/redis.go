// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs CounterStore with a Redis server so budgets are shared
// across pipeline processes. Grant runs as a MULTI/EXEC transaction.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to addr (host:port). The connection is lazy; a
// dead server surfaces as errors on first use, which the controller treats
// as degraded mode rather than a failure.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return s.client.IncrBy(ctx, key, n).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) ListPush(ctx context.Context, key, member string) (int64, error) {
	return s.client.RPush(ctx, key, member).Result()
}

func (s *RedisStore) ListRemove(ctx context.Context, key, member string) error {
	return s.client.LRem(ctx, key, 1, member).Err()
}

func (s *RedisStore) Grant(ctx context.Context, op GrantOp) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, op.RequestKey)
		pipe.Expire(ctx, op.RequestKey, op.TTL)
		pipe.IncrBy(ctx, op.TokenKey, op.Tokens)
		pipe.Expire(ctx, op.TokenKey, op.TTL)
		pipe.LRem(ctx, op.WaitKey, 1, op.Entry)
		return nil
	})
	return err
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
