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

// Package transcript carries human-readable progress strings out of the
// pipeline: step transitions, waitlist positions, retry countdowns. It is
// purely observational; nothing in the core reads it back.
package transcript

import (
	"sync"

	"github.com/cloudwego/autopatch/internal/log"
)

// Sink receives progress messages. Implementations must be safe for
// concurrent use; the admission controller reports from many goroutines.
type Sink interface {
	Status(msg string)
}

// Func adapts a plain function to a Sink.
type Func func(msg string)

func (f Func) Status(msg string) { f(msg) }

// Discard is a Sink that drops every message.
var Discard Sink = Func(func(string) {})

// Logger is a Sink that forwards messages to the process logger.
func Logger() Sink {
	return Func(func(msg string) {
		log.Info("%s", msg)
	})
}

// Recorder is a Sink that keeps every message in order, mainly for tests
// and for building the run transcript shown to the caller.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Status(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
