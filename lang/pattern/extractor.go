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

// Package pattern is the line-pattern symbol extraction fallback used when
// no grammar is available or the grammar strategy fails. It matches
// declaration regexes per language and finds each construct's end with a
// brace-depth scanner (indentation scanner for Python).
package pattern

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/lang/symbol"
)

// Extractor implements symbol.Extractor with regex matching.
type Extractor struct{}

// New returns the pattern-based strategy.
func New() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(src string, lang symbol.Language) ([]symbol.Symbol, error) {
	rules, ok := rulesByLang[lang]
	if !ok {
		return nil, errors.Errorf("pattern extraction: unsupported language %q", lang)
	}

	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	var out []symbol.Symbol

	for i, line := range lines {
		cand, ok := matchLine(line, rules, lang)
		if !ok {
			continue
		}
		cand.StartLine = i + 1
		cand.Signature = strings.TrimSpace(line)
		cand.EndLine = scanEnd(lines, i, lang)

		// A candidate starting inside an accepted symbol's range is a
		// duplicate of that symbol's body, except methods, which are kept
		// as children to preserve class-body detail.
		if len(out) > 0 {
			parent := &out[len(out)-1]
			if cand.StartLine <= parent.EndLine {
				if cand.Kind == symbol.KindMethod {
					parent.Children = append(parent.Children, cand)
				}
				continue
			}
		}
		if cand.Kind == symbol.KindMethod && lang != symbol.Go {
			// An indented method with no enclosing symbol is noise.
			continue
		}
		out = append(out, cand)
	}

	if len(out) == 0 {
		return nil, symbol.ErrNoSymbols
	}
	return out, nil
}

func matchLine(line string, rules []rule, lang symbol.Language) (symbol.Symbol, bool) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		if len(m) > 2 && m[2] != "" {
			name = m[1] + "." + m[2]
		}
		if (lang == symbol.JavaScript || lang == symbol.TypeScript) &&
			r.kind == symbol.KindMethod && jsKeywords[name] {
			continue
		}
		return symbol.Symbol{Name: name, Kind: r.kind}, true
	}
	return symbol.Symbol{}, false
}

// scanEnd finds the last line of the construct starting at startIdx.
func scanEnd(lines []string, startIdx int, lang symbol.Language) int {
	if lang == symbol.Python {
		return scanIndentEnd(lines, startIdx)
	}
	return scanBraceEnd(lines, startIdx)
}

// scanBraceEnd tracks {} depth from the declaration line. A declaration
// that never opens a brace (type alias, plain variable) ends on its own
// line.
func scanBraceEnd(lines []string, startIdx int) int {
	depth := 0
	opened := false
	countLine := func(s string) {
		for _, ch := range s {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
	}

	i := startIdx
	countLine(lines[i])
	if !opened {
		// The brace may open on the following line (Allman style);
		// otherwise the construct is a one-liner.
		if i+1 >= len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[i+1]), "{") {
			return startIdx + 1
		}
		i++
		countLine(lines[i])
	}
	if depth <= 0 {
		return i + 1
	}
	for i++; i < len(lines); i++ {
		countLine(lines[i])
		if depth <= 0 {
			return i + 1
		}
	}
	return len(lines)
}

// scanIndentEnd walks forward while lines are blank or indented deeper
// than the declaration, then trims trailing blanks.
func scanIndentEnd(lines []string, startIdx int) int {
	base := indentOf(lines[startIdx])
	end := startIdx
	for i := startIdx + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if indentOf(lines[i]) <= base {
			break
		}
		end = i
	}
	return end + 1
}

func indentOf(line string) int {
	n := 0
	for _, ch := range line {
		switch ch {
		case ' ':
			n++
		case '\t':
			n += 8
		default:
			return n
		}
	}
	return n
}
