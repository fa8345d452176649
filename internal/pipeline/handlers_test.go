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
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/internal/patch"
	"github.com/cloudwego/autopatch/internal/ratelimit"
	"github.com/cloudwego/autopatch/internal/transcript"
	"github.com/cloudwego/autopatch/internal/workspace"
	"github.com/cloudwego/autopatch/lang/pattern"
	"github.com/cloudwego/autopatch/lang/sitter"
	"github.com/cloudwego/autopatch/lang/symbol"
	"github.com/cloudwego/autopatch/llm"
)

// memFiles is an in-memory FileStore for handler tests.
type memFiles struct {
	m map[string]string
}

func newMemFiles() *memFiles { return &memFiles{m: make(map[string]string)} }

func (f *memFiles) Read(path string) (string, error) {
	if content, ok := f.m[path]; ok {
		return content, nil
	}
	return "", errors.Wrap(workspace.ErrNotFound, path)
}

func (f *memFiles) Write(path, content string) error {
	f.m[path] = content
	return nil
}

func (f *memFiles) List() ([]string, error) {
	out := make([]string, 0, len(f.m))
	for path := range f.m {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

// scriptedCaller replays canned responses in order.
type scriptedCaller struct {
	responses []llm.Response
	calls     int
}

func (c *scriptedCaller) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if c.calls >= len(c.responses) {
		return llm.Response{}, errors.Errorf("unexpected model call %d", c.calls+1)
	}
	r := c.responses[c.calls]
	c.calls++
	return r, nil
}

func newTestCollaborators(caller llm.Caller, files workspace.FileStore) Collaborators {
	return Collaborators{
		Caller:   caller,
		Provider: "testing",
		Guard:    ratelimit.NewGuard(nil, nil),
		Files:    files,
		Index:    workspace.NewScanIndex(files),
	}
}

func TestRunOneStepCreatePlanEndToEnd(t *testing.T) {
	caller := &scriptedCaller{responses: []llm.Response{
		{
			Content:    `[{"action": "create", "target_file": "hello.py", "description": "create hello script"}]`,
			TokensUsed: 30,
		},
		{
			Content:    "def main():\n    print('hi')\n",
			TokensUsed: 20,
		},
	}}
	files := newMemFiles()
	rec := &transcript.Recorder{}

	o := New(rec)
	RegisterDefaults(o, newTestCollaborators(caller, files))

	st := NewState("create a hello script")
	if err := o.Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.CurrentStep != StepIdle {
		t.Fatalf("final step: %s (error %q)", st.CurrentStep, st.Error)
	}
	if got := files.m["hello.py"]; got != "def main():\n    print('hi')\n" {
		t.Fatalf("written file: %q", got)
	}
	if len(st.Plan) != 1 || !st.Plan[0].Completed || st.Plan[0].Diff == "" {
		t.Fatalf("plan: %+v", st.Plan)
	}
	if len(st.AppliedPatches) != 1 || !st.AppliedPatches[0].Success {
		t.Fatalf("applied: %+v", st.AppliedPatches)
	}
	if st.AppliedPatches[0].SyntaxValid == nil || !*st.AppliedPatches[0].SyntaxValid {
		t.Fatalf("syntax check: %+v", st.AppliedPatches[0])
	}
	if st.TokensUsed != 50 {
		t.Fatalf("tokens: %d", st.TokensUsed)
	}
	// The reviewed diff stays on the terminal state for inspection.
	if len(st.PendingDiffs) != 1 || st.PendingDiffs[0].FilePath != "hello.py" {
		t.Fatalf("pending diffs: %+v", st.PendingDiffs)
	}

	msgs := rec.Messages()
	if len(msgs) == 0 || !strings.HasPrefix(msgs[len(msgs)-1], "done: 1 files patched") {
		t.Fatalf("transcript: %v", msgs)
	}
}

func TestIngestionResetsPreviousRunArtifacts(t *testing.T) {
	h := &handlers{Collaborators: newTestCollaborators(&scriptedCaller{}, newMemFiles())}

	st := NewState("second goal")
	st.Plan = []PlanStep{{Action: ActionCreate, TargetFile: "old.go", Completed: true}}
	st.CurrentStepIndex = 1
	st.PendingDiffs = []patch.UnifiedDiff{{FilePath: "old.go"}}
	st.AppliedPatches = []patch.Result{{FilePath: "old.go", Success: true}}
	st.ReviewRejects = map[int]int{0: 2}

	res := h.ingestion(context.Background(), *st)
	if !res.Success || res.Next != StepPlanning {
		t.Fatalf("result: %+v", res)
	}
	res.Mutate(st)
	if len(st.Plan) != 0 || st.CurrentStepIndex != 0 {
		t.Fatalf("plan carried over: %+v", st.Plan)
	}
	if len(st.PendingDiffs) != 0 || len(st.AppliedPatches) != 0 || st.ReviewRejects != nil {
		t.Fatalf("previous run artifacts carried over: %+v", st)
	}
}

func TestPlanningEmptyPlanGoesToResponding(t *testing.T) {
	caller := &scriptedCaller{responses: []llm.Response{
		{Content: "The project already has a healthcheck endpoint.", TokensUsed: 12},
	}}
	h := &handlers{Collaborators: newTestCollaborators(caller, newMemFiles())}

	st := NewState("add healthcheck")
	res := h.planning(context.Background(), *st)
	if !res.Success || res.Next != StepResponding {
		t.Fatalf("result: %+v", res)
	}
	res.Mutate(st)
	if st.TokensUsed != 12 || len(st.Plan) != 0 {
		t.Fatalf("state: %+v", st)
	}
	if !strings.Contains(res.UserMessage, "no changes needed") {
		t.Fatalf("message: %q", res.UserMessage)
	}
}

func TestPlanningFencedJSONAndBranch(t *testing.T) {
	caller := &scriptedCaller{responses: []llm.Response{
		{Content: "```json\n[{\"action\": \"search\", \"description\": \"find the router\"}]\n```"},
	}}
	h := &handlers{Collaborators: newTestCollaborators(caller, newMemFiles())}

	res := h.planning(context.Background(), *NewState("goal"))
	if !res.Success || res.Next != StepRetrieval {
		t.Fatalf("result: %+v", res)
	}
}

func TestRetrievalCompletesSearchStep(t *testing.T) {
	files := newMemFiles()
	files.Write("router.go", "package web\n\nfunc NewRouter() {}\n")
	h := &handlers{Collaborators: newTestCollaborators(nil, files)}

	st := NewState("goal")
	st.Plan = []PlanStep{
		{Action: ActionSearch, TargetSymbol: "NewRouter", Description: "find the router"},
		{Action: ActionEdit, TargetFile: "router.go", Description: "add a route"},
	}
	res := h.retrieval(context.Background(), *st)
	if !res.Success || res.Next != StepEditing {
		t.Fatalf("result: %+v", res)
	}
	if !strings.Contains(res.UserMessage, "router.go:3") {
		t.Fatalf("message: %q", res.UserMessage)
	}
	res.Mutate(st)
	if !st.Plan[0].Completed || st.CurrentStepIndex != 1 {
		t.Fatalf("state: %+v", st)
	}
}

func TestEditingMissingSymbolSurfacesError(t *testing.T) {
	files := newMemFiles()
	files.Write("main.go", "package main\n\nfunc main() {}\n")
	h := &handlers{Collaborators: newTestCollaborators(
		&scriptedCaller{}, // any model call would fail the test
		files,
	)}
	h.Extract = symbol.Chain(sitter.New(), pattern.New())

	st := NewState("goal")
	st.Plan = []PlanStep{
		{Action: ActionEdit, TargetFile: "main.go", TargetSymbol: "NoSuchFunc", Description: "edit it"},
	}
	res := h.editing(context.Background(), *st)
	if res.Success || res.Err == nil {
		t.Fatalf("result: %+v", res)
	}
	if !strings.Contains(res.Err.Error(), `no target symbol "NoSuchFunc"`) {
		t.Fatalf("error: %v", res.Err)
	}
	if res.Next != StepReflection {
		t.Fatalf("next: %s", res.Next)
	}
	res.Mutate(st)
	if st.Plan[0].Error == "" || !st.Plan[0].Completed || st.CurrentStepIndex != 1 {
		t.Fatalf("state: %+v", st)
	}
}

func invalidDiffFixture() (original, diffText string) {
	original = "a\nb\n"
	// Context lines reference content the original never had.
	diffText = "--- a/f.go\n+++ b/f.go\n@@ -1,1 +1,1 @@\n-x\n+y\n"
	return
}

func TestReflectionRejectReturnsToSameStep(t *testing.T) {
	original, diffText := invalidDiffFixture()
	h := &handlers{Collaborators: newTestCollaborators(nil, newMemFiles())}
	h.Extract = pattern.New()

	st := NewState("goal")
	st.Plan = []PlanStep{
		{Action: ActionEdit, TargetFile: "f.go", Description: "edit", Completed: true, Diff: diffText},
	}
	st.CurrentStepIndex = 1
	st.PendingDiffs = []patch.UnifiedDiff{
		{FilePath: "f.go", Original: original, DiffText: diffText},
	}

	res := h.reflection(context.Background(), *st)
	if res.Success || res.Next != StepEditing {
		t.Fatalf("result: %+v", res)
	}
	res.Mutate(st)
	if st.CurrentStepIndex != 0 || st.Plan[0].Completed || st.Plan[0].Diff != "" {
		t.Fatalf("cursor not rolled back: %+v", st)
	}
	if len(st.PendingDiffs) != 0 || st.ReviewRejects[0] != 1 {
		t.Fatalf("state: pending=%d rejects=%v", len(st.PendingDiffs), st.ReviewRejects)
	}
}

func TestReflectionRejectCapGivesUp(t *testing.T) {
	original, diffText := invalidDiffFixture()
	h := &handlers{Collaborators: newTestCollaborators(nil, newMemFiles())}
	h.Extract = pattern.New()

	st := NewState("goal")
	st.Plan = []PlanStep{
		{Action: ActionEdit, TargetFile: "f.go", Description: "edit", Completed: true, Diff: diffText},
	}
	st.CurrentStepIndex = 1
	st.ReviewRejects = map[int]int{0: maxReviewRejects}
	st.PendingDiffs = []patch.UnifiedDiff{
		{FilePath: "f.go", Original: original, DiffText: diffText},
	}

	res := h.reflection(context.Background(), *st)
	if res.Success || res.Next != StepReflection || res.Err == nil {
		t.Fatalf("result: %+v", res)
	}
	res.Mutate(st)
	if len(st.PendingDiffs) != 0 {
		t.Fatalf("diff not dropped: %+v", st.PendingDiffs)
	}
	if !strings.Contains(st.Plan[0].Error, "giving up") {
		t.Fatalf("plan error: %q", st.Plan[0].Error)
	}
	// The cursor stays where it is; the step is not retried again.
	if st.CurrentStepIndex != 1 || !st.Plan[0].Completed {
		t.Fatalf("state: %+v", st)
	}
}

func TestDeleteStepProducesEmptyingDiff(t *testing.T) {
	files := newMemFiles()
	files.Write("old.txt", "obsolete\n")
	h := &handlers{Collaborators: newTestCollaborators(nil, files)}

	st := NewState("goal")
	st.Plan = []PlanStep{{Action: ActionDelete, TargetFile: "old.txt", Description: "remove"}}
	res := h.editing(context.Background(), *st)
	if !res.Success || res.Next != StepReflection {
		t.Fatalf("result: %+v", res)
	}
	res.Mutate(st)
	if len(st.PendingDiffs) != 1 || st.PendingDiffs[0].Patched != "" {
		t.Fatalf("pending: %+v", st.PendingDiffs)
	}
	if !patch.Validate(st.PendingDiffs[0].Original, st.PendingDiffs[0].DiffText) {
		t.Fatal("emptying diff should validate")
	}
}

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan(`[{"action": "edit", "target_file": "a.go", "description": "x"}]`)
	if err != nil || len(plan) != 1 || plan[0].Action != ActionEdit {
		t.Fatalf("plain array: %+v %v", plan, err)
	}

	plan, err = parsePlan("```json\n{\"steps\": [{\"action\": \"explain\", \"description\": \"why\"}]}\n```")
	if err != nil || len(plan) != 1 || plan[0].Action != ActionExplain {
		t.Fatalf("wrapped: %+v %v", plan, err)
	}

	plan, err = parsePlan("Nothing to do here, the code is fine.")
	if err != nil || plan != nil {
		t.Fatalf("prose: %+v %v", plan, err)
	}

	if _, err = parsePlan(`[{"action": "reformat", "target_file": "a.go", "description": "x"}]`); err == nil {
		t.Fatal("unknown action should fail")
	}
	if _, err = parsePlan(`[{"action": "edit", "description": "missing file"}]`); err == nil {
		t.Fatal("edit without target_file should fail")
	}
}

func TestStripCodeFence(t *testing.T) {
	if got := stripCodeFence("```go\npackage a\n```"); got != "package a" {
		t.Fatalf("got %q", got)
	}
	if got := stripCodeFence("no fence"); got != "no fence" {
		t.Fatalf("got %q", got)
	}
}
