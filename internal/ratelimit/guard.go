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
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/internal/transcript"
)

const (
	// DefaultAttempts is the retry cap for one guarded call.
	DefaultAttempts = 3
	// throttleBackoff is the fixed wait after a provider-side 429; the
	// provider told us to slow down, exponential growth adds nothing.
	throttleBackoff = 10 * time.Second
)

// Guard wraps an outbound call with admission control and bounded retry.
// Throttling errors wait a fixed longer interval, transient errors back off
// exponentially, and the last attempt's error is propagated to the caller.
type Guard struct {
	Controller *Controller
	Attempts   int
	// IsThrottle classifies an error as a provider-side rate-limit signal.
	// Nil falls back to a string heuristic.
	IsThrottle func(error) bool
	Sink       transcript.Sink

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGuard wires a guard over the controller with default retry policy.
func NewGuard(c *Controller, sink transcript.Sink) *Guard {
	if sink == nil {
		sink = transcript.Discard
	}
	return &Guard{
		Controller: c,
		Attempts:   DefaultAttempts,
		Sink:       sink,
		sleep:      sleepCtx,
	}
}

// Do blocks on admission for provider, then runs call, retrying on failure
// up to the attempt cap. Results travel through the call closure.
func (g *Guard) Do(ctx context.Context, provider string, estimatedTokens int64, call func(context.Context) error) error {
	attempts := g.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	sleep := g.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if g.Controller != nil {
			if _, err := g.Controller.Acquire(ctx, provider, estimatedTokens); err != nil {
				return err
			}
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		kind := "transient error"
		if g.throttled(err) {
			delay = throttleBackoff
			kind = "provider throttling"
		}
		g.Sink.Status(fmt.Sprintf("%s from %s (attempt %d/%d), retrying in %s",
			kind, provider, attempt, attempts, delay))
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return errors.Wrapf(lastErr, "call to %s failed after %d attempts", provider, attempts)
}

func (g *Guard) throttled(err error) bool {
	if g.IsThrottle != nil {
		return g.IsThrottle(err)
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
