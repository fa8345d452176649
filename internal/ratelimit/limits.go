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

package ratelimit

// Limit is the per-provider budget for one 60-second epoch.
type Limit struct {
	RPM int64 `json:"rpm"` // granted requests per epoch
	TPM int64 `json:"tpm"` // granted tokens per epoch
}

// DefaultLimits is the static budget table, one row per provider id.
// Config may override or extend it. A provider with no row is not gated.
var DefaultLimits = map[string]Limit{
	"openai":   {RPM: 60, TPM: 90000},
	"claude":   {RPM: 50, TPM: 80000},
	"ark":      {RPM: 120, TPM: 120000},
	"qwen":     {RPM: 60, TPM: 100000},
	"deepseek": {RPM: 60, TPM: 100000},
	"ollama":   {RPM: 600, TPM: 1000000},
}
