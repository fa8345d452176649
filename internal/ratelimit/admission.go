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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudwego/autopatch/internal/log"
	"github.com/cloudwego/autopatch/internal/transcript"
)

const (
	// epochLength is the budget window; counter keys embed the epoch number
	// so rollover resets budgets without explicit deletion.
	epochLength = 60 * time.Second
	// counterTTL outlives the epoch by a safety margin so a grant landing
	// right before rollover still counts against the old window.
	counterTTL = epochLength + 10*time.Second
	// retryBuffer pads the sleep past the epoch boundary so a woken caller
	// lands firmly in the new window.
	retryBuffer = 500 * time.Millisecond
	// maxSpins bounds the wait loop; past it the call is let through and
	// the provider's own 429 handling takes over.
	maxSpins = 10
)

// Admission is the outcome of an Acquire call.
type Admission int

const (
	// Refused means no admission happened; it is the zero value and always
	// accompanies a non-nil error such as a cancelled context.
	Refused Admission = iota
	// Granted means capacity was reserved in the shared window.
	Granted
	// Degraded means the counter store was unreachable and the call was
	// admitted without accounting. Never an error: pipeline availability
	// must not depend on the store.
	Degraded
	// Forced means the spin cap was exhausted and the call was admitted
	// anyway, leaving throttling to the provider side.
	Forced
)

func (a Admission) String() string {
	switch a {
	case Refused:
		return "refused"
	case Granted:
		return "granted"
	case Degraded:
		return "degraded"
	case Forced:
		return "forced"
	}
	return fmt.Sprintf("admission(%d)", int(a))
}

// Controller gates calls per provider against shared rpm/tpm windows with a
// FIFO waitlist so concurrent callers are granted in join order.
type Controller struct {
	store  CounterStore
	limits map[string]Limit
	sink   transcript.Sink

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController builds a controller over store with the given budget table.
// A nil limits map falls back to DefaultLimits; a nil sink discards status.
func NewController(store CounterStore, limits map[string]Limit, sink transcript.Sink) *Controller {
	if limits == nil {
		limits = DefaultLimits
	}
	if sink == nil {
		sink = transcript.Discard
	}
	return &Controller{
		store:  store,
		limits: limits,
		sink:   sink,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire blocks until the provider's window has capacity for one request
// and estimatedTokens tokens, the context is cancelled, or the spin cap is
// reached. FIFO fairness: only the waitlist head may claim capacity; a
// non-granted caller gives up its slot before sleeping so a slow consumer
// cannot occupy the head across a whole epoch.
func (c *Controller) Acquire(ctx context.Context, provider string, estimatedTokens int64) (Admission, error) {
	limit, ok := c.limits[provider]
	if !ok {
		return Granted, nil
	}

	entry := uuid.NewString()
	waitKey := "waitlist:" + provider

	for spin := 0; spin < maxSpins; spin++ {
		if err := ctx.Err(); err != nil {
			return Refused, err
		}

		now := c.now()
		epoch := now.Unix() / int64(epochLength/time.Second)
		reqKey := fmt.Sprintf("%s:rpm:%d", provider, epoch)
		tokKey := fmt.Sprintf("%s:tpm:%d", provider, epoch)

		pos, err := c.store.ListPush(ctx, waitKey, entry)
		if err != nil {
			log.Warn("ratelimit: store unavailable, admitting %s without accounting: %v", provider, err)
			return Degraded, nil
		}

		requests, err := c.store.Get(ctx, reqKey)
		if err == nil {
			var tokens int64
			tokens, err = c.store.Get(ctx, tokKey)
			if err == nil {
				if pos == 1 && requests < limit.RPM && tokens+estimatedTokens <= limit.TPM {
					if gerr := c.store.Grant(ctx, GrantOp{
						RequestKey: reqKey,
						TokenKey:   tokKey,
						Tokens:     estimatedTokens,
						TTL:        counterTTL,
						WaitKey:    waitKey,
						Entry:      entry,
					}); gerr != nil {
						log.Warn("ratelimit: grant batch failed for %s, degrading: %v", provider, gerr)
						return Degraded, nil
					}
					return Granted, nil
				}
			}
		}
		if err != nil {
			_ = c.store.ListRemove(ctx, waitKey, entry)
			log.Warn("ratelimit: store unavailable, admitting %s without accounting: %v", provider, err)
			return Degraded, nil
		}

		// Not our turn or no capacity: release the slot and come back at
		// the next window.
		_ = c.store.ListRemove(ctx, waitKey, entry)
		boundary := time.Unix((epoch+1)*int64(epochLength/time.Second), 0)
		delay := boundary.Sub(now) + retryBuffer
		c.sink.Status(fmt.Sprintf("provider %s at capacity (queue position %d), retrying in %dms",
			provider, pos, delay.Milliseconds()))
		if err := c.sleep(ctx, delay); err != nil {
			return Refused, err
		}
	}

	c.sink.Status(fmt.Sprintf("provider %s wait cap reached, sending anyway", provider))
	return Forced, nil
}
