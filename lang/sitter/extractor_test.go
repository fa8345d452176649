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

package sitter

import (
	"testing"

	"github.com/cloudwego/autopatch/lang/symbol"
)

func TestExtractSingleJSFunction(t *testing.T) {
	src := "function foo() {\n  return 1;\n}\n"
	syms, err := New().Extract(src, symbol.JavaScript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(syms) != 1 {
		t.Fatalf("expected 1 symbol, got %+v", syms)
	}
	got := syms[0]
	if got.Name != "foo" || got.Kind != symbol.KindFunction ||
		got.StartLine != 1 || got.EndLine != 3 {
		t.Fatalf("got %+v", got)
	}
	if got.Signature != "function foo() {" {
		t.Fatalf("signature: %q", got.Signature)
	}
}

func TestExtractGoSource(t *testing.T) {
	src := `package demo

type Counter struct {
	n int
}

func (c *Counter) Add(d int) {
	c.n += d
}

func Total(c *Counter) int {
	return c.n
}
`
	syms, err := New().Extract(src, symbol.Go)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	byName := map[string]symbol.Symbol{}
	for _, s := range syms {
		byName[s.Name] = s
	}
	if s := byName["Counter"]; s.Kind != symbol.KindClass || s.StartLine != 3 || s.EndLine != 5 {
		t.Fatalf("Counter: %+v", s)
	}
	if s := byName["Add"]; s.Kind != symbol.KindMethod {
		t.Fatalf("Add: %+v", s)
	}
	if s := byName["Total"]; s.Kind != symbol.KindFunction || s.StartLine != 11 || s.EndLine != 13 {
		t.Fatalf("Total: %+v", s)
	}
}

func TestExtractJSClassWithMethods(t *testing.T) {
	src := `export class Queue {
  push(item) {
    this.items.push(item);
  }

  pop() {
    return this.items.shift();
  }
}
`
	syms, err := New().Extract(src, symbol.JavaScript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(syms) != 1 || syms[0].Name != "Queue" || syms[0].Kind != symbol.KindClass {
		t.Fatalf("got %+v", syms)
	}
	kids := syms[0].Children
	if len(kids) != 2 || kids[0].Name != "push" || kids[1].Name != "pop" {
		t.Fatalf("children: %+v", kids)
	}
	for _, k := range kids {
		if k.Kind != symbol.KindMethod {
			t.Fatalf("child kind: %+v", k)
		}
	}
}

func TestExtractArrowFunctionReclassified(t *testing.T) {
	src := "const add = (a, b) => a + b;\nconst limit = 10;\n"
	syms, err := New().Extract(src, symbol.JavaScript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	byName := map[string]symbol.Symbol{}
	for _, s := range syms {
		byName[s.Name] = s
	}
	if s := byName["add"]; s.Kind != symbol.KindFunction {
		t.Fatalf("add should be reclassified as function: %+v", s)
	}
	if s := byName["limit"]; s.Kind != symbol.KindVariable {
		t.Fatalf("limit: %+v", s)
	}
}

func TestExtractPythonDecoratedClass(t *testing.T) {
	src := `@register
class Worker:
    def run(self):
        return 1

value = 3
`
	syms, err := New().Extract(src, symbol.Python)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	byName := map[string]symbol.Symbol{}
	for _, s := range syms {
		byName[s.Name] = s
	}
	w, ok := byName["Worker"]
	if !ok || w.Kind != symbol.KindClass {
		t.Fatalf("Worker: %+v", syms)
	}
	if len(w.Children) != 1 || w.Children[0].Name != "run" || w.Children[0].Kind != symbol.KindMethod {
		t.Fatalf("children: %+v", w.Children)
	}
	if v := byName["value"]; v.Kind != symbol.KindVariable {
		t.Fatalf("value: %+v", v)
	}
}

func TestExtractUnsupportedLanguage(t *testing.T) {
	_, err := New().Extract("resource \"a\" \"b\" {}\n", symbol.HCL)
	if err == nil {
		t.Fatal("expected error: hcl has no grammar wired")
	}
}

func TestGrammarAndPatternProduceSameShape(t *testing.T) {
	// Both strategies must agree on the canonical single-function case so
	// callers can stay strategy-agnostic.
	src := "function foo() {\n  return 1;\n}\n"
	syms, err := New().Extract(src, symbol.JavaScript)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := syms[0]
	if got.Name != "foo" || got.Kind != symbol.KindFunction ||
		got.StartLine != 1 || got.EndLine != 3 ||
		got.Signature != "function foo() {" || len(got.Children) != 0 {
		t.Fatalf("got %+v", got)
	}
}
