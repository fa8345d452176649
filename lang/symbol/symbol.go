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

// Package symbol defines the language-neutral symbol model shared by the
// grammar-based and pattern-based extraction strategies, and the chunking
// used to scope an edit to one construct instead of a whole file.
package symbol

import (
	"strings"

	"github.com/pkg/errors"
)

// Language identifies a supported source language.
type Language string

const (
	Go         Language = "go"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Python     Language = "python"
	Java       Language = "java"
	HCL        Language = "hcl"
	Unknown    Language = ""
)

// LanguageForPath guesses the language from a file extension.
func LanguageForPath(path string) Language {
	switch {
	case strings.HasSuffix(path, ".go"):
		return Go
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return TypeScript
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".jsx"), strings.HasSuffix(path, ".mjs"):
		return JavaScript
	case strings.HasSuffix(path, ".py"):
		return Python
	case strings.HasSuffix(path, ".java"):
		return Java
	case strings.HasSuffix(path, ".tf"), strings.HasSuffix(path, ".hcl"):
		return HCL
	}
	return Unknown
}

// Kind classifies a symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindVariable  Kind = "variable"
	KindResource  Kind = "resource"
	KindBlock     Kind = "block"
	KindMethod    Kind = "method"
)

// Symbol is a named, line-ranged code construct. Lines are 1-indexed and
// inclusive. Symbols are produced fresh on every extraction and never
// persisted.
type Symbol struct {
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Signature string   `json:"signature"`
	Children  []Symbol `json:"children,omitempty"`
}

// Extractor turns source text into an ordered symbol table. A strategy
// that finds nothing must report ErrNoSymbols so callers can fall back.
type Extractor interface {
	Extract(src string, lang Language) ([]Symbol, error)
}

// ErrNoSymbols marks an extraction that produced an empty table. The chain
// treats it like any other failure and moves to the next strategy.
var ErrNoSymbols = errors.New("no symbols found")

// chain tries each strategy in order and returns the first non-empty
// result. Only when every strategy fails does the caller see an error.
type chain struct {
	strategies []Extractor
}

// Chain combines extractors into a single fallback-chained Extractor.
func Chain(strategies ...Extractor) Extractor {
	return &chain{strategies: strategies}
}

func (c *chain) Extract(src string, lang Language) ([]Symbol, error) {
	var lastErr error
	for _, s := range c.strategies {
		syms, err := s.Extract(src, lang)
		if err == nil && len(syms) > 0 {
			return syms, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = ErrNoSymbols
		}
	}
	if lastErr == nil {
		lastErr = ErrNoSymbols
	}
	return nil, lastErr
}

// Find walks the table (children included) for the first symbol whose name
// equals target, then falls back to substring match, mirroring how a model
// refers to symbols loosely ("the handleRequest function").
func Find(syms []Symbol, target string) *Symbol {
	if target == "" {
		return nil
	}
	if s := findBy(syms, func(s *Symbol) bool { return s.Name == target }); s != nil {
		return s
	}
	return findBy(syms, func(s *Symbol) bool { return strings.Contains(s.Name, target) })
}

func findBy(syms []Symbol, match func(*Symbol) bool) *Symbol {
	for i := range syms {
		if match(&syms[i]) {
			return &syms[i]
		}
		if s := findBy(syms[i].Children, match); s != nil {
			return s
		}
	}
	return nil
}
