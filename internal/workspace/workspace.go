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

// Package workspace abstracts the project tree the pipeline edits. The
// orchestrator only sees the two collaborator interfaces; the concrete
// implementations here keep a run self-contained on a local directory.
package workspace

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// ErrNotFound reports a path absent from the store. Callers that treat a
// missing file as empty content (the editing step creating a new file)
// test for it with errors.Is.
var ErrNotFound = errors.New("workspace: file not found")

// FileStore is the read/write surface over the project tree. Paths are
// slash-separated and relative to the store root.
type FileStore interface {
	Read(path string) (string, error)
	Write(path string, content string) error
	List() ([]string, error)
}

// SearchHit is one match returned by an Index.
type SearchHit struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

// Index answers retrieval queries. Results are best-effort: an empty slice
// is a valid answer and the pipeline proceeds without context.
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// IsNotFound reports whether err means the file does not exist, covering
// both store-level and os-level sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
