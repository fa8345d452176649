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

package symbol

import (
	"strings"

	"github.com/pkg/errors"
)

// Chunk is a symbol's exact code block plus bounded surrounding context.
// Sending this instead of the whole file keeps prompt size proportional to
// the edit's locality.
type Chunk struct {
	Symbol    Symbol
	Code      string // exact lines of the symbol
	Before    string // up to contextLines above, clamped to file start
	After     string // up to contextLines below, clamped to file end
	StartLine int    // first line of Before, 1-indexed
	EndLine   int    // last line of After
}

// ErrSymbolNotFound is returned when neither exact nor substring matching
// locates the requested symbol.
var ErrSymbolNotFound = errors.New("no target symbol found")

// ExtractChunk locates the first symbol matching name and returns its code
// with up to contextLines of context on each side.
func ExtractChunk(ex Extractor, src, name string, lang Language, contextLines int) (*Chunk, error) {
	syms, err := ex.Extract(src, lang)
	if err != nil {
		return nil, err
	}
	sym := Find(syms, name)
	if sym == nil {
		return nil, errors.Wrapf(ErrSymbolNotFound, "symbol %q", name)
	}

	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	start := sym.StartLine - 1
	end := sym.EndLine // exclusive index into lines
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}

	beforeStart := start - contextLines
	if beforeStart < 0 {
		beforeStart = 0
	}
	afterEnd := end + contextLines
	if afterEnd > len(lines) {
		afterEnd = len(lines)
	}

	return &Chunk{
		Symbol:    *sym,
		Code:      strings.Join(lines[start:end], "\n"),
		Before:    strings.Join(lines[beforeStart:start], "\n"),
		After:     strings.Join(lines[end:afterEnd], "\n"),
		StartLine: beforeStart + 1,
		EndLine:   afterEnd,
	}, nil
}
