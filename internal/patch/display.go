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

import "strings"

// LineKind classifies a rendered diff line.
type LineKind string

const (
	LineAdd     LineKind = "add"
	LineRemove  LineKind = "remove"
	LineContext LineKind = "context"
	LineHeader  LineKind = "header"
)

// DisplayLine is one diff line with its position in the old and/or new
// file. A zero line number means the line does not exist on that side,
// which is what side-by-side renderers key off.
type DisplayLine struct {
	Kind    LineKind
	Text    string
	OldLine int
	NewLine int
}

// DisplayLines parses diffText into structured line records. The old and
// new cursors advance independently: removals consume only the old cursor,
// additions only the new one, context lines both.
func DisplayLines(diffText string) []DisplayLine {
	if strings.TrimSpace(diffText) == "" {
		return nil
	}
	var out []DisplayLine
	oldNo, newNo := 0, 0
	for _, ln := range strings.Split(strings.TrimSuffix(diffText, "\n"), "\n") {
		switch {
		case strings.HasPrefix(ln, "--- ") || strings.HasPrefix(ln, "+++ ") || strings.HasPrefix(ln, `\`):
			out = append(out, DisplayLine{Kind: LineHeader, Text: ln})
		case strings.HasPrefix(ln, "@@"):
			if m := hunkHeaderRe.FindStringSubmatch(ln); m != nil {
				oldNo = atoiDefault(m[1], 1)
				newNo = atoiDefault(m[3], 1)
			}
			out = append(out, DisplayLine{Kind: LineHeader, Text: ln})
		case strings.HasPrefix(ln, "+"):
			out = append(out, DisplayLine{Kind: LineAdd, Text: ln[1:], NewLine: newNo})
			newNo++
		case strings.HasPrefix(ln, "-"):
			out = append(out, DisplayLine{Kind: LineRemove, Text: ln[1:], OldLine: oldNo})
			oldNo++
		default:
			out = append(out, DisplayLine{
				Kind:    LineContext,
				Text:    strings.TrimPrefix(ln, " "),
				OldLine: oldNo,
				NewLine: newNo,
			})
			oldNo++
			newNo++
		}
	}
	return out
}
