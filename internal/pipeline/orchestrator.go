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

// Package pipeline drives a goal through the step graph: ingestion,
// planning, retrieval, editing, reflection, deployment, responding. One
// handler per step; the orchestrator owns the state and applies handler
// mutations in its merge step, so a handler crash can never leave the
// state half-written.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/internal/log"
	"github.com/cloudwego/autopatch/internal/transcript"
)

// DefaultMaxIterations caps the drive loop. A well-formed run finishes in
// a handful of transitions; hitting the cap means a handler cycle.
const DefaultMaxIterations = 20

// maxIterationsMessage is distinct from ordinary step failures so callers
// can tell a runaway graph from a bad patch.
const maxIterationsMessage = "maximum iterations exceeded, aborting run"

// StepResult is what a handler hands back to the drive loop. Mutate is
// applied to the authoritative state during the merge; handlers never
// touch the state they were given directly.
type StepResult struct {
	Success     bool
	Next        StepID
	Mutate      func(*PipelineState)
	UserMessage string
	Err         error
}

// Handler executes one step. It receives the state by value: reads are
// free, writes only land through StepResult.Mutate.
type Handler func(ctx context.Context, st PipelineState) StepResult

// Translator localizes user-facing transcript messages. Optional.
type Translator func(ctx context.Context, msg string) (string, error)

// Orchestrator is the drive loop plus the handler registry.
type Orchestrator struct {
	handlers  map[StepID]Handler
	sink      transcript.Sink
	translate Translator
	maxIters  int
}

// New builds an empty orchestrator reporting to sink (nil means discard).
func New(sink transcript.Sink) *Orchestrator {
	if sink == nil {
		sink = transcript.Discard
	}
	return &Orchestrator{
		handlers: make(map[StepID]Handler),
		sink:     sink,
		maxIters: DefaultMaxIterations,
	}
}

// Register installs the handler for one step, replacing any previous one.
func (o *Orchestrator) Register(id StepID, h Handler) {
	o.handlers[id] = h
}

// SetTranslator installs the transcript message translator.
func (o *Orchestrator) SetTranslator(t Translator) {
	o.translate = t
}

// Run drives st from its current step until the graph reaches idle or
// error. The returned error is also preserved in st.Error, so the caller
// can persist the state and resume at the failed step.
func (o *Orchestrator) Run(ctx context.Context, st *PipelineState) error {
	if st.CurrentStep == "" || st.CurrentStep == StepIdle {
		st.CurrentStep = StepIngestion
	}

	for iter := 0; ; iter++ {
		if st.CurrentStep == StepIdle {
			return nil
		}
		if st.CurrentStep == StepError {
			return errors.New(st.Error)
		}
		if iter >= o.maxIters {
			st.Error = maxIterationsMessage
			st.CurrentStep = StepError
			return errors.New(maxIterationsMessage)
		}
		if err := ctx.Err(); err != nil {
			// Leave CurrentStep pointing at the unexecuted handler so the
			// state shows exactly where the run stopped.
			st.Error = err.Error()
			return err
		}

		h, ok := o.handlers[st.CurrentStep]
		if !ok {
			st.Error = "no handler registered for step " + string(st.CurrentStep)
			st.CurrentStep = StepError
			return errors.New(st.Error)
		}

		step := st.CurrentStep
		log.Debug("run %s: step %s (iteration %d)", st.RunID, step, iter)
		res := h(ctx, *st)
		o.merge(ctx, st, step, res)

		runtime.Gosched()
	}
}

// merge applies one handler result to the authoritative state.
func (o *Orchestrator) merge(ctx context.Context, st *PipelineState, step StepID, res StepResult) {
	if res.Mutate != nil {
		res.Mutate(st)
	}

	status := StepOK
	errMsg := ""
	if res.Err != nil {
		status = StepFailed
		errMsg = res.Err.Error()
		st.Error = errMsg
	}
	st.History = append(st.History, StepRecord{
		Step:    step,
		Attempt: o.attempt(st, step),
		Status:  status,
		Error:   errMsg,
		Time:    time.Now(),
	})

	if res.UserMessage != "" {
		o.sink.Status(o.localize(ctx, res.UserMessage))
	} else if res.Err != nil {
		// Fatal results often carry no user message; the transcript still
		// reports the failure.
		o.sink.Status(o.localize(ctx, errMsg))
	}

	st.CurrentStep = res.Next
	if res.Next == "" {
		st.CurrentStep = StepError
		if st.Error == "" {
			st.Error = "handler for step " + string(step) + " returned no next step"
		}
	}
}

func (o *Orchestrator) attempt(st *PipelineState, step StepID) int {
	n := 1
	for _, rec := range st.History {
		if rec.Step == step {
			n++
		}
	}
	return n
}

func (o *Orchestrator) localize(ctx context.Context, msg string) string {
	if o.translate == nil {
		return msg
	}
	out, err := o.translate(ctx, msg)
	if err != nil {
		log.Warn("transcript translation failed: %v", err)
		return msg
	}
	return out
}
