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

package workspace

import (
	"context"
	"strings"
)

// DefaultSearchLimit bounds the hits a retrieval step pulls into context.
const DefaultSearchLimit = 20

// maxSnippetLen keeps a single matched line from flooding the prompt.
const maxSnippetLen = 200

// ScanIndex is the fallback Index: a case-insensitive substring scan over
// every file in the store. No build step, always consistent with the tree,
// slow on large projects. Good enough when no external index is wired.
type ScanIndex struct {
	store FileStore
}

// NewScanIndex builds an index over store.
func NewScanIndex(store FileStore) *ScanIndex {
	return &ScanIndex{store: store}
}

func (s *ScanIndex) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	needle := strings.ToLower(query)

	paths, err := s.store.List()
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := s.store.Read(path)
		if err != nil {
			// A file can disappear between List and Read; skip it.
			continue
		}
		if isBinary(content) {
			continue
		}
		for i, line := range strings.Split(content, "\n") {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			hits = append(hits, SearchHit{
				Path:    path,
				Line:    i + 1,
				Snippet: snippet(line),
			})
			if len(hits) >= limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func snippet(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > maxSnippetLen {
		line = line[:maxSnippetLen]
	}
	return line
}

// isBinary uses the NUL-byte heuristic; source trees contain the odd
// image or compiled artifact that substring search should not touch.
func isBinary(content string) bool {
	return strings.IndexByte(content, 0) >= 0
}
