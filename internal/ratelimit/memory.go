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
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore for single-instance runs and
// tests. Every method takes one lock, so Grant is trivially atomic.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	deadline map[string]time.Time
	lists    map[string][]string

	// Now is overridable so tests can drive epoch rollover.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]int64),
		deadline: make(map[string]time.Time),
		lists:    make(map[string][]string),
		Now:      time.Now,
	}
}

// expireLocked drops a counter whose TTL has passed. Caller holds mu.
func (s *MemoryStore) expireLocked(key string) {
	if dl, ok := s.deadline[key]; ok && s.Now().After(dl) {
		delete(s.counters, key)
		delete(s.deadline, key)
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key)
	return s.counters[key], nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}

func (s *MemoryStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key)
	s.counters[key] += n
	return s.counters[key], nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline[key] = s.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) ListPush(ctx context.Context, key, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], member)
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) ListRemove(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	for i, m := range list {
		if m == member {
			s.lists[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Grant(ctx context.Context, op GrantOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(op.RequestKey)
	s.expireLocked(op.TokenKey)
	now := s.Now()
	s.counters[op.RequestKey]++
	s.deadline[op.RequestKey] = now.Add(op.TTL)
	s.counters[op.TokenKey] += op.Tokens
	s.deadline[op.TokenKey] = now.Add(op.TTL)
	list := s.lists[op.WaitKey]
	for i, m := range list {
		if m == op.Entry {
			s.lists[op.WaitKey] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}
