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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ApplyError reports where and why a diff failed to apply. It is a typed
// failure, not a crash: mismatched context is an expected outcome when the
// target file drifted since the diff was generated.
type ApplyError struct {
	Line   int
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch does not apply at line %d: %s", e.Line, e.Reason)
}

type hunkLine struct {
	op    byte
	text  string
	noEOL bool
}

type parsedHunk struct {
	oldStart, oldCount int
	newStart, newCount int
	lines              []hunkLine
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

func parseDiff(diffText string) ([]parsedHunk, error) {
	if strings.TrimSpace(diffText) == "" {
		return nil, nil
	}
	var hunks []parsedHunk
	for _, ln := range strings.Split(strings.TrimSuffix(diffText, "\n"), "\n") {
		switch {
		case strings.HasPrefix(ln, "--- ") || strings.HasPrefix(ln, "+++ "):
			// File headers carry no line content.
		case strings.HasPrefix(ln, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(ln)
			if m == nil {
				return nil, fmt.Errorf("malformed hunk header %q", ln)
			}
			hunks = append(hunks, parsedHunk{
				oldStart: atoiDefault(m[1], 0),
				oldCount: atoiDefault(m[2], 1),
				newStart: atoiDefault(m[3], 0),
				newCount: atoiDefault(m[4], 1),
			})
		case strings.HasPrefix(ln, `\`):
			if len(hunks) == 0 || len(hunks[len(hunks)-1].lines) == 0 {
				return nil, fmt.Errorf("stray %q outside a hunk", ln)
			}
			h := &hunks[len(hunks)-1]
			h.lines[len(h.lines)-1].noEOL = true
		case strings.HasPrefix(ln, "+") || strings.HasPrefix(ln, "-") || strings.HasPrefix(ln, " "):
			if len(hunks) == 0 {
				return nil, fmt.Errorf("diff line %q before any hunk header", ln)
			}
			h := &hunks[len(hunks)-1]
			h.lines = append(h.lines, hunkLine{op: ln[0], text: ln[1:]})
		case ln == "":
			// Some tools strip the space from empty context lines.
			if len(hunks) > 0 {
				h := &hunks[len(hunks)-1]
				h.lines = append(h.lines, hunkLine{op: ' '})
			}
		default:
			return nil, fmt.Errorf("unrecognized diff line %q", ln)
		}
	}
	return hunks, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Apply patches oldText with diffText and returns the new content. Inputs
// are never mutated. Every context and removed line must match the target
// at the claimed offset or a *ApplyError is returned. A patch against
// empty original content (file being created) takes the added lines as-is
// without the context check.
func Apply(oldText, diffText string) (string, error) {
	hunks, err := parseDiff(diffText)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return oldText, nil
	}

	if oldText == "" {
		var out []string
		eol := true
		for _, h := range hunks {
			for _, l := range h.lines {
				if l.op == '+' {
					out = append(out, l.text)
					eol = !l.noEOL
				}
			}
		}
		return joinLines(out, eol), nil
	}

	oldLines, oldEOL := splitLines(oldText)
	var out []string
	cursor := 0 // next unconsumed old line, 0-based
	eol := true

	for _, h := range hunks {
		start := h.oldStart - 1
		if h.oldCount == 0 {
			// Pure insertion: header names the line the hunk inserts after.
			start = h.oldStart
		}
		if start < cursor || start > len(oldLines) {
			return "", &ApplyError{Line: h.oldStart, Reason: "hunk offset out of range"}
		}
		for i := cursor; i < start; i++ {
			out = append(out, oldLines[i])
			if i == len(oldLines)-1 {
				eol = oldEOL
			} else {
				eol = true
			}
		}
		cursor = start

		for _, l := range h.lines {
			switch l.op {
			case ' ':
				if cursor >= len(oldLines) || oldLines[cursor] != l.text {
					return "", &ApplyError{Line: cursor + 1, Reason: "context mismatch"}
				}
				out = append(out, l.text)
				cursor++
				eol = !l.noEOL
			case '-':
				if cursor >= len(oldLines) || oldLines[cursor] != l.text {
					return "", &ApplyError{Line: cursor + 1, Reason: "removed line does not match"}
				}
				cursor++
			case '+':
				out = append(out, l.text)
				eol = !l.noEOL
			}
		}
	}

	if cursor < len(oldLines) {
		out = append(out, oldLines[cursor:]...)
		eol = oldEOL
	}
	return joinLines(out, eol), nil
}

// Validate reports whether diffText applies cleanly to oldText. It is a
// dry run of Apply and never diverges from it.
func Validate(oldText, diffText string) bool {
	_, err := Apply(oldText, diffText)
	return err == nil
}
