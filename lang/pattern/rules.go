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

package pattern

import (
	"regexp"

	"github.com/cloudwego/autopatch/lang/symbol"
)

// rule matches one declaration form. Group 1 is the symbol name; when a
// second group is present the name is "group1.group2" (terraform resource
// addressing).
type rule struct {
	re   *regexp.Regexp
	kind symbol.Kind
}

// Rule order matters: the first match wins, so the specific forms (method,
// interface, struct) come before the generic ones (function, type).
var rulesByLang = map[symbol.Language][]rule{
	symbol.Go: {
		{regexp.MustCompile(`^func\s+\([^)]*\)\s+([A-Za-z_]\w*)\s*\(`), symbol.KindMethod},
		{regexp.MustCompile(`^func\s+([A-Za-z_]\w*)\s*[(\[]`), symbol.KindFunction},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+interface\b`), symbol.KindInterface},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+struct\b`), symbol.KindClass},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\b`), symbol.KindType},
		{regexp.MustCompile(`^(?:var|const)\s+([A-Za-z_]\w*)\b`), symbol.KindVariable},
	},
	symbol.JavaScript: javascriptRules,
	symbol.TypeScript: append([]rule{
		{regexp.MustCompile(`^(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`), symbol.KindInterface},
		{regexp.MustCompile(`^(?:export\s+)?type\s+([A-Za-z_$][\w$]*)\s*=`), symbol.KindType},
	}, javascriptRules...),
	symbol.Python: {
		{regexp.MustCompile(`^class\s+([A-Za-z_]\w*)`), symbol.KindClass},
		{regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)`), symbol.KindFunction},
		{regexp.MustCompile(`^\s+(?:async\s+)?def\s+([A-Za-z_]\w*)`), symbol.KindMethod},
		{regexp.MustCompile(`^([A-Za-z_]\w*)\s*=`), symbol.KindVariable},
	},
	symbol.Java: {
		{regexp.MustCompile(`^(?:public\s+|final\s+|abstract\s+)*class\s+([A-Za-z_]\w*)`), symbol.KindClass},
		{regexp.MustCompile(`^(?:public\s+)?interface\s+([A-Za-z_]\w*)`), symbol.KindInterface},
		{regexp.MustCompile(`^\s+(?:(?:public|private|protected|static|final|synchronized|abstract)\s+)*[\w<>\[\],.\s]+?\s+([A-Za-z_]\w*)\s*\([^)]*\)\s*(?:throws\s+[\w,.\s]+)?\{`), symbol.KindMethod},
	},
	symbol.HCL: {
		{regexp.MustCompile(`^resource\s+"([^"]+)"\s+"([^"]+)"`), symbol.KindResource},
		{regexp.MustCompile(`^data\s+"([^"]+)"\s+"([^"]+)"`), symbol.KindResource},
		{regexp.MustCompile(`^(?:variable|output|module|provider)\s+"([^"]+)"`), symbol.KindBlock},
		{regexp.MustCompile(`^(locals|terraform)\b`), symbol.KindBlock},
	},
}

var javascriptRules = []rule{
	{regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`), symbol.KindFunction},
	{regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`), symbol.KindClass},
	// A variable holding a function value is reported as a function.
	{regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)[^={]*=>|[A-Za-z_$][\w$]*\s*=>)`), symbol.KindFunction},
	{regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)`), symbol.KindVariable},
	{regexp.MustCompile(`^\s+(?:(?:public|private|protected|static|async|get|set)\s+)*([A-Za-z_$][\w$]*)\s*\([^)]*\)\s*\{`), symbol.KindMethod},
}

// jsKeywords are control constructs the method rule would otherwise match.
var jsKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "return": true, "function": true, "else": true,
}
