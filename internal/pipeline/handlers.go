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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/internal/log"
	"github.com/cloudwego/autopatch/internal/patch"
	"github.com/cloudwego/autopatch/internal/ratelimit"
	"github.com/cloudwego/autopatch/internal/workspace"
	"github.com/cloudwego/autopatch/lang/pattern"
	"github.com/cloudwego/autopatch/lang/sitter"
	"github.com/cloudwego/autopatch/lang/symbol"
	"github.com/cloudwego/autopatch/llm"
)

// maxReviewRejects bounds how often reflection may bounce one plan step
// back to editing before giving up on it.
const maxReviewRejects = 3

// costPer1KTokens is a rough blended rate for the run summary; exact
// billing lives with the provider.
const costPer1KTokens = 0.002

// editContextLines is how much surrounding code a localized edit carries
// into the prompt.
const editContextLines = 8

const planningSystem = `You are a software planning assistant. Given a goal
and a project file listing, answer with a JSON array of plan steps. Each
step is an object with fields "action" (one of create, edit, delete,
search, explain), "target_file", "target_symbol" (optional) and
"description". Answer with JSON only. An empty array means the goal needs
no changes; explain why in plain text instead.`

const editingSystem = `You are a code editing assistant. Rewrite the given
file so it satisfies the instruction. Answer with the complete new file
content and nothing else.`

// Collaborators are the external services the handlers talk to.
type Collaborators struct {
	Caller   llm.Caller
	Provider string
	Guard    *ratelimit.Guard
	Files    workspace.FileStore
	Index    workspace.Index

	// Extract overrides the default grammar-then-pattern chain.
	Extract symbol.Extractor
	// Normalize optionally rewrites the goal during ingestion.
	Normalize Translator
}

type handlers struct {
	Collaborators
}

// RegisterDefaults installs the standard handler per step on o.
func RegisterDefaults(o *Orchestrator, c Collaborators) {
	if c.Extract == nil {
		c.Extract = symbol.Chain(sitter.New(), pattern.New())
	}
	h := &handlers{Collaborators: c}
	o.Register(StepIngestion, h.ingestion)
	o.Register(StepPlanning, h.planning)
	o.Register(StepRetrieval, h.retrieval)
	o.Register(StepEditing, h.editing)
	o.Register(StepReflection, h.reflection)
	o.Register(StepDeployment, h.deployment)
	o.Register(StepResponding, h.responding)
}

// branchFrom picks the step that works on plan index idx: exhausted plans
// go to review, search steps to retrieval, everything else to editing.
func branchFrom(plan []PlanStep, idx int) StepID {
	if idx >= len(plan) {
		return StepReflection
	}
	if plan[idx].Action == ActionSearch {
		return StepRetrieval
	}
	return StepEditing
}

// call runs one guarded model call: admission, retries and backoff are
// the guard's business.
func (h *handlers) call(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	err := h.Guard.Do(ctx, h.Provider, llm.EstimateTokens(req), func(ctx context.Context) error {
		r, err := h.Caller.Generate(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (h *handlers) ingestion(ctx context.Context, st PipelineState) StepResult {
	goal := st.GoalText
	normalized := goal
	if h.Normalize != nil {
		out, err := h.Normalize(ctx, goal)
		if err != nil {
			log.Warn("goal normalization failed, using raw goal: %v", err)
		} else if out != "" {
			normalized = out
		}
	}
	return StepResult{
		Success:     true,
		Next:        StepPlanning,
		UserMessage: "working on: " + normalized,
		Mutate: func(s *PipelineState) {
			s.TranslatedGoalText = normalized
			// The reviewed diffs and patch results of a finished run stay
			// on the state for inspection; a new run starts clean.
			s.Plan = nil
			s.CurrentStepIndex = 0
			s.PendingDiffs = nil
			s.AppliedPatches = nil
			s.ReviewRejects = nil
		},
	}
}

func (h *handlers) planning(ctx context.Context, st PipelineState) StepResult {
	listing := ""
	if paths, err := h.Files.List(); err == nil {
		if len(paths) > 50 {
			paths = paths[:50]
		}
		listing = strings.Join(paths, "\n")
	}

	req := llm.Request{
		System: planningSystem,
		Prompt: fmt.Sprintf("Goal:\n%s\n\nProject files:\n%s", st.Goal(), listing),
	}
	resp, err := h.call(ctx, req)
	if err != nil {
		return StepResult{Next: StepError, Err: errors.Wrap(err, "planning call")}
	}

	tokens := resp.TokensUsed
	plan, perr := parsePlan(resp.Content)
	if perr != nil {
		return StepResult{
			Next: StepError,
			Err:  errors.Wrap(perr, "parse plan"),
			Mutate: func(s *PipelineState) {
				s.TokensUsed += tokens
				s.EstimatedCost += cost(tokens)
			},
		}
	}
	if len(plan) == 0 {
		return StepResult{
			Success:     true,
			Next:        StepResponding,
			UserMessage: "no changes needed: " + strings.TrimSpace(resp.Content),
			Mutate: func(s *PipelineState) {
				s.TokensUsed += tokens
				s.EstimatedCost += cost(tokens)
			},
		}
	}

	return StepResult{
		Success:     true,
		Next:        branchFrom(plan, 0),
		UserMessage: fmt.Sprintf("planned %d steps", len(plan)),
		Mutate: func(s *PipelineState) {
			s.Plan = plan
			s.CurrentStepIndex = 0
			s.TokensUsed += tokens
			s.EstimatedCost += cost(tokens)
		},
	}
}

func (h *handlers) retrieval(ctx context.Context, st PipelineState) StepResult {
	step := st.CurrentPlanStep()
	if step == nil {
		return StepResult{Success: true, Next: StepReflection}
	}
	query := step.TargetSymbol
	if query == "" {
		query = step.Description
	}

	var hits []workspace.SearchHit
	if h.Index != nil {
		var err error
		hits, err = h.Index.Search(ctx, query, workspace.DefaultSearchLimit)
		if err != nil {
			// Retrieval is best-effort; the run proceeds without context.
			log.Warn("search %q failed: %v", query, err)
			hits = nil
		}
	}

	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("%s:%d: %s", hit.Path, hit.Line, hit.Snippet))
	}
	msg := fmt.Sprintf("search %q found %d matches", query, len(hits))
	if len(lines) > 0 {
		msg += "\n" + strings.Join(lines, "\n")
	}

	idx := st.CurrentStepIndex
	return StepResult{
		Success:     true,
		Next:        branchFrom(st.Plan, idx+1),
		UserMessage: msg,
		Mutate: func(s *PipelineState) {
			s.Plan[idx].Completed = true
			s.CurrentStepIndex = idx + 1
		},
	}
}

func (h *handlers) editing(ctx context.Context, st PipelineState) StepResult {
	step := st.CurrentPlanStep()
	if step == nil {
		return StepResult{Success: true, Next: StepReflection}
	}
	idx := st.CurrentStepIndex

	if step.Action == ActionExplain {
		return h.explain(ctx, st, idx)
	}

	original, err := h.Files.Read(step.TargetFile)
	if err != nil {
		if !workspace.IsNotFound(err) {
			return h.failStep(st, idx, errors.Wrapf(err, "read %s", step.TargetFile), 0)
		}
		original = ""
	}

	if step.Action == ActionDelete {
		return h.deleteFile(st, idx, original)
	}

	lang := symbol.LanguageForPath(step.TargetFile)
	instruction := step.Description
	if step.TargetSymbol != "" && original != "" && lang != symbol.Unknown {
		chunk, cerr := symbol.ExtractChunk(h.Extract, original, step.TargetSymbol, lang, editContextLines)
		if cerr != nil {
			return h.failStep(st, idx,
				errors.Wrapf(cerr, "no target symbol %q found in %s", step.TargetSymbol, step.TargetFile), 0)
		}
		instruction = fmt.Sprintf("%s\n\nFocus on `%s` (lines %d-%d):\n%s",
			step.Description, step.TargetSymbol, chunk.Symbol.StartLine, chunk.Symbol.EndLine, chunk.Code)
	}

	req := llm.Request{
		System: editingSystem,
		Prompt: fmt.Sprintf("Goal:\n%s\n\nInstruction:\n%s\n\nFile %s:\n%s",
			st.Goal(), instruction, step.TargetFile, original),
	}
	resp, err := h.call(ctx, req)
	if err != nil {
		return StepResult{Next: StepError, Err: errors.Wrapf(err, "editing call for %s", step.TargetFile)}
	}

	proposed := stripCodeFence(resp.Content)
	diffText := patch.Diff(step.TargetFile, original, proposed, patch.DefaultContextLines)
	ud := patch.UnifiedDiff{
		FilePath:     step.TargetFile,
		Original:     original,
		Patched:      proposed,
		DiffText:     diffText,
		TargetSymbol: step.TargetSymbol,
	}

	msg := fmt.Sprintf("edited %s", step.TargetFile)
	if diffText == "" {
		msg = fmt.Sprintf("%s already satisfies the instruction", step.TargetFile)
	}
	tokens := resp.TokensUsed
	return StepResult{
		Success:     true,
		Next:        branchFrom(st.Plan, idx+1),
		UserMessage: msg,
		Mutate: func(s *PipelineState) {
			if diffText != "" {
				s.PendingDiffs = append(s.PendingDiffs, ud)
				s.Plan[idx].Diff = diffText
			}
			s.Plan[idx].Completed = true
			s.CurrentStepIndex = idx + 1
			s.TokensUsed += tokens
			s.EstimatedCost += cost(tokens)
		},
	}
}

func (h *handlers) explain(ctx context.Context, st PipelineState, idx int) StepResult {
	step := st.Plan[idx]
	prompt := fmt.Sprintf("Goal:\n%s\n\nExplain: %s", st.Goal(), step.Description)
	if step.TargetFile != "" {
		if content, err := h.Files.Read(step.TargetFile); err == nil {
			prompt += fmt.Sprintf("\n\nFile %s:\n%s", step.TargetFile, content)
		}
	}
	resp, err := h.call(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return StepResult{Next: StepError, Err: errors.Wrap(err, "explain call")}
	}
	tokens := resp.TokensUsed
	return StepResult{
		Success:     true,
		Next:        branchFrom(st.Plan, idx+1),
		UserMessage: strings.TrimSpace(resp.Content),
		Mutate: func(s *PipelineState) {
			s.Plan[idx].Completed = true
			s.CurrentStepIndex = idx + 1
			s.TokensUsed += tokens
			s.EstimatedCost += cost(tokens)
		},
	}
}

func (h *handlers) deleteFile(st PipelineState, idx int, original string) StepResult {
	step := st.Plan[idx]
	if original == "" {
		return StepResult{
			Success:     true,
			Next:        branchFrom(st.Plan, idx+1),
			UserMessage: step.TargetFile + " is already empty",
			Mutate: func(s *PipelineState) {
				s.Plan[idx].Completed = true
				s.CurrentStepIndex = idx + 1
			},
		}
	}
	diffText := patch.Diff(step.TargetFile, original, "", patch.DefaultContextLines)
	ud := patch.UnifiedDiff{
		FilePath: step.TargetFile,
		Original: original,
		Patched:  "",
		DiffText: diffText,
	}
	return StepResult{
		Success:     true,
		Next:        branchFrom(st.Plan, idx+1),
		UserMessage: "emptied " + step.TargetFile,
		Mutate: func(s *PipelineState) {
			s.PendingDiffs = append(s.PendingDiffs, ud)
			s.Plan[idx].Diff = diffText
			s.Plan[idx].Completed = true
			s.CurrentStepIndex = idx + 1
		},
	}
}

// failStep records a non-fatal step failure and moves on; the error stays
// visible on the plan step and in the history.
func (h *handlers) failStep(st PipelineState, idx int, err error, tokens int) StepResult {
	return StepResult{
		Success:     false,
		Next:        branchFrom(st.Plan, idx+1),
		Err:         err,
		UserMessage: err.Error(),
		Mutate: func(s *PipelineState) {
			s.Plan[idx].Error = err.Error()
			s.Plan[idx].Completed = true
			s.CurrentStepIndex = idx + 1
			s.TokensUsed += tokens
			s.EstimatedCost += cost(tokens)
		},
	}
}

func (h *handlers) reflection(ctx context.Context, st PipelineState) StepResult {
	for i, d := range st.PendingDiffs {
		if patch.Validate(d.Original, d.DiffText) {
			continue
		}
		idx := planIndexFor(st.Plan, d)
		if idx >= 0 && st.ReviewRejects[idx] < maxReviewRejects {
			// Reject: back to editing at the same plan index.
			return StepResult{
				Success:     false,
				Next:        StepEditing,
				UserMessage: fmt.Sprintf("patch for %s failed review, re-editing", d.FilePath),
				Mutate: func(s *PipelineState) {
					s.PendingDiffs = append(s.PendingDiffs[:i:i], s.PendingDiffs[i+1:]...)
					if s.ReviewRejects == nil {
						s.ReviewRejects = make(map[int]int)
					}
					s.ReviewRejects[idx]++
					s.Plan[idx].Completed = false
					s.Plan[idx].Diff = ""
					s.CurrentStepIndex = idx
				},
			}
		}
		// Reject cap hit (or the diff is orphaned): give up on this patch
		// and review the rest.
		reason := fmt.Sprintf("patch for %s rejected %d times, giving up", d.FilePath, maxReviewRejects)
		return StepResult{
			Success:     false,
			Next:        StepReflection,
			Err:         errors.New(reason),
			UserMessage: reason,
			Mutate: func(s *PipelineState) {
				s.PendingDiffs = append(s.PendingDiffs[:i:i], s.PendingDiffs[i+1:]...)
				if idx >= 0 {
					s.Plan[idx].Error = reason
				}
			},
		}
	}

	// All pending diffs passed review: apply the batch. Per-file failures
	// land in the results, the batch keeps going.
	results := make([]patch.Result, 0, len(st.PendingDiffs))
	for _, d := range st.PendingDiffs {
		out, err := patch.Apply(d.Original, d.DiffText)
		r := patch.Result{FilePath: d.FilePath, Success: err == nil}
		if err != nil {
			r.Error = err.Error()
		} else if lang := symbol.LanguageForPath(d.FilePath); out != "" && lang != symbol.Unknown {
			_, serr := h.Extract.Extract(out, lang)
			ok := serr == nil
			r.SyntaxValid = &ok
		}
		results = append(results, r)
	}

	return StepResult{
		Success:     true,
		Next:        StepDeployment,
		UserMessage: fmt.Sprintf("%d patches passed review", len(results)),
		Mutate: func(s *PipelineState) {
			s.AppliedPatches = append(s.AppliedPatches, results...)
		},
	}
}

func (h *handlers) deployment(ctx context.Context, st PipelineState) StepResult {
	// The tail of AppliedPatches pairs with PendingDiffs, appended by the
	// reflection step just before this one.
	offset := len(st.AppliedPatches) - len(st.PendingDiffs)
	writeErrs := make(map[int]string)
	written := 0
	for i, d := range st.PendingDiffs {
		if offset+i < 0 || !st.AppliedPatches[offset+i].Success {
			continue
		}
		if err := h.Files.Write(d.FilePath, d.Patched); err != nil {
			writeErrs[offset+i] = err.Error()
			log.Error("write %s: %v", d.FilePath, err)
			continue
		}
		written++
	}

	return StepResult{
		Success:     len(writeErrs) == 0,
		Next:        StepResponding,
		UserMessage: fmt.Sprintf("wrote %d files", written),
		Mutate: func(s *PipelineState) {
			for i, msg := range writeErrs {
				if i >= 0 && i < len(s.AppliedPatches) {
					s.AppliedPatches[i].Success = false
					s.AppliedPatches[i].Error = msg
				}
			}
		},
	}
}

func (h *handlers) responding(ctx context.Context, st PipelineState) StepResult {
	applied, failed := 0, 0
	for _, r := range st.AppliedPatches {
		if r.Success {
			applied++
		} else {
			failed++
		}
	}
	msg := fmt.Sprintf("done: %d files patched, %d failed, %d tokens used (est. $%.4f)",
		applied, failed, st.TokensUsed, st.EstimatedCost)
	return StepResult{Success: true, Next: StepIdle, UserMessage: msg}
}

// planIndexFor locates the plan step a pending diff came from.
func planIndexFor(plan []PlanStep, d patch.UnifiedDiff) int {
	for i, step := range plan {
		if step.TargetFile == d.FilePath && step.Diff == d.DiffText {
			return i
		}
	}
	for i, step := range plan {
		if step.TargetFile == d.FilePath {
			return i
		}
	}
	return -1
}

// parsePlan reads the model's JSON plan, tolerating a code fence and the
// {"steps": [...]} wrapping some models prefer.
func parsePlan(content string) ([]PlanStep, error) {
	raw := stripCodeFence(content)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var plan []PlanStep
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		var wrapped struct {
			Steps []PlanStep `json:"steps"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 != nil {
			// Prose instead of JSON means the model declined to plan.
			if !strings.HasPrefix(raw, "[") && !strings.HasPrefix(raw, "{") {
				return nil, nil
			}
			return nil, err
		}
		plan = wrapped.Steps
	}

	for i, step := range plan {
		switch step.Action {
		case ActionCreate, ActionEdit, ActionDelete, ActionSearch, ActionExplain:
		default:
			return nil, errors.Errorf("step %d: unknown action %q", i, step.Action)
		}
		if step.Action != ActionSearch && step.Action != ActionExplain && step.TargetFile == "" {
			return nil, errors.Errorf("step %d: %s step missing target_file", i, step.Action)
		}
	}
	return plan, nil
}

// stripCodeFence removes a surrounding markdown fence, if any.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func cost(tokens int) float64 {
	return float64(tokens) / 1000 * costPer1KTokens
}
