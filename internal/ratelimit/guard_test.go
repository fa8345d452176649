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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/autopatch/internal/transcript"
)

func newTestGuard(limits map[string]Limit) (*Guard, *[]time.Duration) {
	ctrl, _, _ := newTestController(limits)
	g := NewGuard(ctrl, transcript.Discard)
	slept := &[]time.Duration{}
	g.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return g, slept
}

func TestGuardSuccessFirstAttempt(t *testing.T) {
	g, slept := newTestGuard(nil)
	calls := 0
	err := g.Do(context.Background(), "openai", 100, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, *slept)
}

func TestGuardTransientBackoffIsExponential(t *testing.T) {
	g, slept := newTestGuard(nil)
	calls := 0
	err := g.Do(context.Background(), "openai", 100, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *slept)
}

func TestGuardThrottleUsesFixedBackoff(t *testing.T) {
	g, slept := newTestGuard(nil)
	calls := 0
	err := g.Do(context.Background(), "openai", 100, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("429 Too Many Requests")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{throttleBackoff}, *slept)
}

func TestGuardExhaustionPropagatesLastError(t *testing.T) {
	g, slept := newTestGuard(nil)
	boom := errors.New("upstream exploded")
	err := g.Do(context.Background(), "openai", 100, func(context.Context) error {
		return boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	// No sleep after the final attempt.
	require.Len(t, *slept, DefaultAttempts-1)
}

func TestGuardCustomThrottleClassifier(t *testing.T) {
	g, slept := newTestGuard(nil)
	marker := errors.New("quota")
	g.IsThrottle = func(err error) bool { return errors.Is(err, marker) }
	calls := 0
	err := g.Do(context.Background(), "claude", 10, func(context.Context) error {
		calls++
		if calls == 1 {
			return marker
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{throttleBackoff}, *slept)
}

func TestGuardCancelledDuringBackoff(t *testing.T) {
	g, _ := newTestGuard(nil)
	ctx, cancel := context.WithCancel(context.Background())
	g.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	err := g.Do(ctx, "openai", 100, func(context.Context) error {
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
}
