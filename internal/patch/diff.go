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

// Package patch produces and applies textual unified diffs. Generation is
// built on go-diff's line-mode diffing; application is a pure function that
// verifies every context and removed line against the target before
// producing output.
package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContextLines is the unchanged context per hunk.
const DefaultContextLines = 3

const noNewlineMarker = `\ No newline at end of file`

// lineOp is one line of the line-level diff. For '+' ops oldIdx is the
// number of old lines preceding the insertion point; for '-' ops newIdx is
// the analogous position in the new text.
type lineOp struct {
	op     byte // '+', '-', ' '
	text   string
	oldIdx int
	newIdx int
}

// Diff renders a unified diff between oldText and newText with paths
// prefixed a/ and b/. Identical inputs yield an empty string.
func Diff(path, oldText, newText string, contextLines int) string {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	if oldText == newText {
		return ""
	}

	ops := diffOps(oldText, newText)
	oldLines, oldEOL := splitLines(oldText)
	newLines, newEOL := splitLines(newText)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	for _, h := range buildHunks(ops, contextLines) {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, o := range h.lines {
			b.WriteByte(o.op)
			b.WriteString(o.text)
			b.WriteByte('\n')
			if o.op != '+' && !oldEOL && o.oldIdx == len(oldLines)-1 {
				b.WriteString(noNewlineMarker)
				b.WriteByte('\n')
			} else if o.op != '-' && !newEOL && o.newIdx == len(newLines)-1 {
				b.WriteString(noNewlineMarker)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// diffOps runs a line-level diff and flattens it into per-line operations
// with both cursors tracked.
func diffOps(oldText, newText string) []lineOp {
	dmp := diffmatchpatch.New()
	a, b, arr := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), arr)

	var ops []lineOp
	oldIdx, newIdx := 0, 0
	for _, d := range diffs {
		for _, ln := range splitDiffText(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{' ', ln, oldIdx, newIdx})
				oldIdx++
				newIdx++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{'-', ln, oldIdx, newIdx})
				oldIdx++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{'+', ln, oldIdx, newIdx})
				newIdx++
			}
		}
	}
	return ops
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	lines              []lineOp
}

// buildHunks groups change runs into hunks, merging runs separated by at
// most 2*contextLines unchanged lines.
func buildHunks(ops []lineOp, contextLines int) []hunk {
	var hunks []hunk
	n := len(ops)
	i := 0
	for i < n {
		if ops[i].op == ' ' {
			i++
			continue
		}
		last := i
		j := i + 1
		for j < n {
			if ops[j].op != ' ' {
				last = j
				j++
				continue
			}
			k := j
			for k < n && ops[k].op == ' ' {
				k++
			}
			if k < n && k-j <= 2*contextLines {
				j = k
				continue
			}
			break
		}
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		stop := last + 1 + contextLines
		if stop > n {
			stop = n
		}
		hunks = append(hunks, makeHunk(ops[start:stop]))
		i = stop
	}
	return hunks
}

func makeHunk(ops []lineOp) hunk {
	h := hunk{lines: ops}
	for _, o := range ops {
		if o.op != '+' {
			h.oldCount++
		}
		if o.op != '-' {
			h.newCount++
		}
	}
	// A zero-count side uses the insertion-point convention: the line
	// number is the count of lines preceding the hunk on that side.
	h.oldStart = ops[0].oldIdx
	h.newStart = ops[0].newIdx
	if h.oldCount > 0 {
		h.oldStart++
	}
	if h.newCount > 0 {
		h.newStart++
	}
	return h
}

// splitLines cuts text into lines without terminators, reporting whether
// the text ended with a newline. Empty text has no lines.
func splitLines(s string) (lines []string, eol bool) {
	if s == "" {
		return nil, true
	}
	eol = strings.HasSuffix(s, "\n")
	if eol {
		s = s[:len(s)-1]
	}
	return strings.Split(s, "\n"), eol
}

func splitDiffText(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func joinLines(lines []string, eol bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if eol {
		s += "\n"
	}
	return s
}
