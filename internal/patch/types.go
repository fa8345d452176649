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

// UnifiedDiff is one pending edit awaiting review: the full before/after
// contents plus the rendered diff, scoped to an optional target symbol.
type UnifiedDiff struct {
	FilePath     string `json:"file_path"`
	Original     string `json:"original"`
	Patched      string `json:"patched"`
	DiffText     string `json:"diff_text"`
	TargetSymbol string `json:"target_symbol,omitempty"`
	StartLine    int    `json:"start_line,omitempty"`
	EndLine      int    `json:"end_line,omitempty"`
}

// Result records the outcome of applying one reviewed diff. A failed file
// does not abort its batch; the error stays with the file.
type Result struct {
	FilePath    string `json:"file_path"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	SyntaxValid *bool  `json:"syntax_valid,omitempty"`
}
