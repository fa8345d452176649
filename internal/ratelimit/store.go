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

// Package ratelimit gates outbound model calls against per-provider request
// and token budgets shared across concurrent callers. Budgets live in a
// remote counter store; when the store is unreachable the controller
// degrades to granting immediately instead of blocking the pipeline.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the narrow key-value surface the controller needs:
// per-epoch counters plus a FIFO waitlist per provider. A store must apply
// Grant as one indivisible operation so no waiting caller can slip in
// between the counter increments and the dequeue.
type CounterStore interface {
	// Get returns the integer value at key, 0 if absent.
	Get(ctx context.Context, key string) (int64, error)
	// Incr adds 1 to key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// IncrBy adds n to key and returns the new value.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	// Expire sets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// ListPush appends member to the FIFO list at key and returns the
	// resulting list length, which is the member's 1-based position.
	ListPush(ctx context.Context, key, member string) (int64, error)
	// ListRemove deletes the first occurrence of member from the list.
	ListRemove(ctx context.Context, key, member string) error
	// Grant applies the whole grant batch atomically: increment the request
	// counter, add tokens to the token counter, set both TTLs, and remove
	// the caller's waitlist entry.
	Grant(ctx context.Context, op GrantOp) error
}

// GrantOp describes the atomic grant batch.
type GrantOp struct {
	RequestKey string
	TokenKey   string
	Tokens     int64
	TTL        time.Duration
	WaitKey    string
	Entry      string
}
