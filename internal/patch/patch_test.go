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

package patch

import (
	"strings"
	"testing"
)

// roundTrip asserts the core law: Apply(old, Diff(old, new)) == new.
func roundTrip(t *testing.T, name, oldText, newText string) {
	t.Helper()
	d := Diff("f.go", oldText, newText, 3)
	got, err := Apply(oldText, d)
	if err != nil {
		t.Fatalf("%s: Apply: %v\ndiff:\n%s", name, err, d)
	}
	if got != newText {
		t.Fatalf("%s: round trip mismatch\ndiff:\n%s\nwant %q\ngot  %q", name, d, newText, got)
	}
}

func TestDiffApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"replace middle", "a\nb\nc\n", "a\nB\nc\n"},
		{"append", "a\nb\n", "a\nb\nc\nd\n"},
		{"prepend", "b\nc\n", "a\nb\nc\n"},
		{"delete middle", "a\nb\nc\nd\n", "a\nd\n"},
		{"delete all", "a\nb\n", ""},
		{"create file", "", "package main\n\nfunc main() {}\n"},
		{"far apart edits", "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n13\n14\n15\n",
			"one\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n13\n14\nfifteen\n"},
		{"no trailing newline old", "a\nb", "a\nb\nc\n"},
		{"no trailing newline new", "a\nb\n", "a\nb\nc"},
		{"no trailing newline both", "a\nb", "a\nc"},
		{"blank lines", "a\n\n\nb\n", "a\n\nb\n"},
		{"rewrite everything", "x\ny\nz\n", "p\nq\n"},
	}
	for _, tc := range cases {
		roundTrip(t, tc.name, tc.old, tc.new)
	}
}

func TestDiffIdenticalInputsIsEmpty(t *testing.T) {
	if d := Diff("f.go", "same\n", "same\n", 3); d != "" {
		t.Fatalf("expected empty diff, got:\n%s", d)
	}
}

func TestDiffHasUnifiedHeaders(t *testing.T) {
	d := Diff("pkg/foo.go", "a\n", "b\n", 3)
	if !strings.HasPrefix(d, "--- a/pkg/foo.go\n+++ b/pkg/foo.go\n") {
		t.Fatalf("missing a/ b/ headers:\n%s", d)
	}
	if !strings.Contains(d, "@@ -1,1 +1,1 @@") {
		t.Fatalf("missing hunk header:\n%s", d)
	}
}

func TestApplyContextMismatchFails(t *testing.T) {
	d := Diff("f.go", "a\nb\nc\n", "a\nB\nc\n", 3)
	drifted := "a\nX\nc\n"
	_, err := Apply(drifted, d)
	if err == nil {
		t.Fatal("expected apply failure against drifted content")
	}
	if _, ok := err.(*ApplyError); !ok {
		t.Fatalf("expected *ApplyError, got %T: %v", err, err)
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	oldText := "a\nb\nc\n"
	d := Diff("f.go", oldText, "a\nB\nc\n", 3)
	saved := strings.Clone(oldText)
	if _, err := Apply(oldText, d); err != nil {
		t.Fatal(err)
	}
	if oldText != saved {
		t.Fatal("Apply mutated its input")
	}
}

func TestApplyEmptyOriginalSkipsContextCheck(t *testing.T) {
	// Hand-written diff whose context would never match; with an empty
	// original the added lines are taken as-is.
	d := "--- a/new.go\n+++ b/new.go\n@@ -1,2 +1,2 @@\n ctx line\n+created\n"
	got, err := Apply("", d)
	if err != nil {
		t.Fatalf("Apply on empty original: %v", err)
	}
	if got != "created\n" {
		t.Fatalf("got %q", got)
	}
}

func TestValidateAgreesWithApply(t *testing.T) {
	good := Diff("f.go", "a\nb\n", "a\nc\n", 3)
	cases := []struct {
		old, diff string
	}{
		{"a\nb\n", good},
		{"a\nX\n", good},
		{"", good},
		{"a\nb\n", "garbage that is not a diff"},
		{"a\nb\n", ""},
	}
	for i, tc := range cases {
		_, err := Apply(tc.old, tc.diff)
		if got := Validate(tc.old, tc.diff); got != (err == nil) {
			t.Fatalf("case %d: Validate=%v but Apply err=%v", i, got, err)
		}
	}
}

func TestApplyEmptyDiffIsIdentity(t *testing.T) {
	got, err := Apply("keep\nme\n", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "keep\nme\n" {
		t.Fatalf("got %q", got)
	}
}

func TestDisplayLinesCursorBookkeeping(t *testing.T) {
	d := Diff("f.go", "a\nb\nc\nd\n", "a\nB\nc\nd\ne\n", 1)
	lines := DisplayLines(d)
	if len(lines) == 0 {
		t.Fatal("no display lines")
	}

	var adds, removes, contexts int
	for _, ln := range lines {
		switch ln.Kind {
		case LineAdd:
			adds++
			if ln.NewLine == 0 || ln.OldLine != 0 {
				t.Fatalf("add line numbering wrong: %+v", ln)
			}
		case LineRemove:
			removes++
			if ln.OldLine == 0 || ln.NewLine != 0 {
				t.Fatalf("remove line numbering wrong: %+v", ln)
			}
		case LineContext:
			contexts++
			if ln.OldLine == 0 || ln.NewLine == 0 {
				t.Fatalf("context line numbering wrong: %+v", ln)
			}
		}
	}
	if adds == 0 || removes == 0 || contexts == 0 {
		t.Fatalf("expected a mix of kinds, got add=%d remove=%d ctx=%d", adds, removes, contexts)
	}

	// The replaced line b is old line 2; its replacement B is new line 2.
	for _, ln := range lines {
		if ln.Kind == LineRemove && ln.Text == "b" && ln.OldLine != 2 {
			t.Fatalf("remove of b at old line %d, want 2", ln.OldLine)
		}
		if ln.Kind == LineAdd && ln.Text == "B" && ln.NewLine != 2 {
			t.Fatalf("add of B at new line %d, want 2", ln.NewLine)
		}
	}
}

func TestDisplayLinesEmptyDiff(t *testing.T) {
	if got := DisplayLines(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
