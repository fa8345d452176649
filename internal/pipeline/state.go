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

package pipeline

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/internal/patch"
)

// StepID names one state of the pipeline graph.
type StepID string

const (
	StepIdle       StepID = "idle"
	StepIngestion  StepID = "ingestion"
	StepPlanning   StepID = "planning"
	StepRetrieval  StepID = "retrieval"
	StepEditing    StepID = "editing"
	StepReflection StepID = "reflection"
	StepDeployment StepID = "deployment"
	StepResponding StepID = "responding"
	StepError      StepID = "error"
)

// Action is what one plan step asks for.
type Action string

const (
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionSearch  Action = "search"
	ActionExplain Action = "explain"
)

// PlanStep is one unit of the model-produced plan.
type PlanStep struct {
	Action       Action `json:"action"`
	TargetFile   string `json:"target_file,omitempty"`
	TargetSymbol string `json:"target_symbol,omitempty"`
	Description  string `json:"description"`
	Completed    bool   `json:"completed"`
	Diff         string `json:"diff,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PipelineState is the run's single source of truth. It is owned by
// exactly one run; handlers receive it by value and the orchestrator is
// the only writer, applying handler mutations in its merge step.
type PipelineState struct {
	RunID       string `json:"run_id"`
	CurrentStep StepID `json:"current_step"`

	GoalText           string `json:"goal_text"`
	TranslatedGoalText string `json:"translated_goal_text,omitempty"`

	Plan             []PlanStep `json:"plan,omitempty"`
	CurrentStepIndex int        `json:"current_step_index"`

	PendingDiffs   []patch.UnifiedDiff `json:"pending_diffs,omitempty"`
	AppliedPatches []patch.Result      `json:"applied_patches,omitempty"`

	// ReviewRejects counts reflection rejections per plan index, bounding
	// the reject→edit loop independently of the iteration cap.
	ReviewRejects map[int]int `json:"review_rejects,omitempty"`

	// Monotone counters.
	TokensUsed    int     `json:"tokens_used"`
	EstimatedCost float64 `json:"estimated_cost"`

	Error string `json:"error,omitempty"`

	History []StepRecord `json:"history,omitempty"`
}

// StepRecord is an immutable log entry for one handler execution.
type StepRecord struct {
	Step    StepID     `json:"step"`
	Attempt int        `json:"attempt"`
	Status  StepStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
	Time    time.Time  `json:"time"`
}

// StepStatus is the outcome of a handler run.
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
)

// NewState seeds a run for a goal.
func NewState(goal string) *PipelineState {
	return &PipelineState{
		RunID:       uuid.NewString(),
		CurrentStep: StepIdle,
		GoalText:    goal,
	}
}

// Goal returns the normalized goal when ingestion produced one.
func (st *PipelineState) Goal() string {
	if st.TranslatedGoalText != "" {
		return st.TranslatedGoalText
	}
	return st.GoalText
}

// CurrentPlanStep returns the plan step under the cursor, or nil when the
// plan is exhausted.
func (st *PipelineState) CurrentPlanStep() *PlanStep {
	if st.CurrentStepIndex < 0 || st.CurrentStepIndex >= len(st.Plan) {
		return nil
	}
	return &st.Plan[st.CurrentStepIndex]
}

// SaveToFile writes a JSON snapshot of the state for inspection or a
// later resume at the failed step.
func (st *PipelineState) SaveToFile(path string) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "save state to %s", path)
	}
	return nil
}
