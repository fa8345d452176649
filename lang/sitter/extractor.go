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

// Package sitter is the grammar-based symbol extraction strategy. It
// parses source into a tree-sitter concrete syntax tree and maps a fixed
// set of node kinds per language onto the shared Symbol model.
package sitter

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	ts "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/cloudwego/autopatch/lang/symbol"
)

// Extractor implements symbol.Extractor over tree-sitter grammars.
type Extractor struct{}

// New returns the grammar-based strategy.
func New() *Extractor { return &Extractor{} }

func grammarFor(lang symbol.Language) *ts.Language {
	switch lang {
	case symbol.Go:
		return golang.GetLanguage()
	case symbol.JavaScript:
		return javascript.GetLanguage()
	case symbol.TypeScript:
		return typescript.GetLanguage()
	case symbol.Python:
		return python.GetLanguage()
	case symbol.Java:
		return java.GetLanguage()
	}
	return nil
}

func (e *Extractor) Extract(src string, lang symbol.Language) ([]symbol.Symbol, error) {
	grammar := grammarFor(lang)
	if grammar == nil {
		return nil, errors.Errorf("no grammar for language %q", lang)
	}

	parser := ts.NewParser()
	parser.SetLanguage(grammar)
	source := []byte(src)
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, errors.Wrap(err, "tree-sitter parse")
	}
	defer tree.Close()

	root := tree.RootNode()
	var out []symbol.Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if sym, ok := mapNode(root.NamedChild(i), source); ok {
			out = append(out, sym)
		}
	}
	if len(out) == 0 {
		return nil, symbol.ErrNoSymbols
	}
	return out, nil
}

// mapNode converts one top-level CST node into a Symbol. Wrapper nodes
// (export statements, decorators) are unwrapped to the symbol they
// decorate before mapping.
func mapNode(node *ts.Node, source []byte) (symbol.Symbol, bool) {
	node = unwrap(node)
	if node == nil {
		return symbol.Symbol{}, false
	}

	switch node.Type() {
	case "function_declaration", "generator_function_declaration", "function_definition":
		return makeSymbol(node, source, symbol.KindFunction, nameOf(node, source)), true

	case "method_declaration":
		// Go's top-level method form.
		return makeSymbol(node, source, symbol.KindMethod, nameOf(node, source)), true

	case "class_declaration", "class_definition", "abstract_class_declaration":
		sym := makeSymbol(node, source, symbol.KindClass, nameOf(node, source))
		sym.Children = collectMethods(node.ChildByFieldName("body"), source)
		return sym, true

	case "interface_declaration":
		return makeSymbol(node, source, symbol.KindInterface, nameOf(node, source)), true

	case "type_alias_declaration", "enum_declaration":
		return makeSymbol(node, source, symbol.KindType, nameOf(node, source)), true

	case "type_declaration":
		// Go: the declaration wraps one or more type_specs; the spec's
		// underlying type picks the kind.
		for i := 0; i < int(node.NamedChildCount()); i++ {
			spec := node.NamedChild(i)
			if spec.Type() != "type_spec" {
				continue
			}
			kind := symbol.KindType
			if t := spec.ChildByFieldName("type"); t != nil {
				switch t.Type() {
				case "struct_type":
					kind = symbol.KindClass
				case "interface_type":
					kind = symbol.KindInterface
				}
			}
			return makeSymbol(node, source, kind, nameOf(spec, source)), true
		}
		return symbol.Symbol{}, false

	case "var_declaration", "const_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			spec := node.NamedChild(i)
			if spec.Type() == "var_spec" || spec.Type() == "const_spec" {
				return makeSymbol(node, source, symbol.KindVariable, nameOf(spec, source)), true
			}
		}
		return symbol.Symbol{}, false

	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			decl := node.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			kind := symbol.KindVariable
			if v := decl.ChildByFieldName("value"); v != nil && isFunctionValue(v.Type()) {
				// A variable holding a function value is a function.
				kind = symbol.KindFunction
			}
			return makeSymbol(node, source, kind, nameOf(decl, source)), true
		}
		return symbol.Symbol{}, false

	case "expression_statement":
		// Python module-level assignment.
		if node.NamedChildCount() == 1 && node.NamedChild(0).Type() == "assignment" {
			assign := node.NamedChild(0)
			if left := assign.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				return makeSymbol(node, source, symbol.KindVariable, string(left.Content(source))), true
			}
		}
		return symbol.Symbol{}, false
	}
	return symbol.Symbol{}, false
}

func unwrap(node *ts.Node) *ts.Node {
	for node != nil {
		switch node.Type() {
		case "export_statement":
			if decl := node.ChildByFieldName("declaration"); decl != nil {
				node = decl
				continue
			}
			return nil
		case "decorated_definition":
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
				continue
			}
			return nil
		}
		return node
	}
	return nil
}

// collectMethods walks a class body for method-level children.
func collectMethods(body *ts.Node, source []byte) []symbol.Symbol {
	if body == nil {
		return nil
	}
	var out []symbol.Symbol
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := unwrap(body.NamedChild(i))
		if child == nil {
			continue
		}
		switch child.Type() {
		case "method_definition", "method_declaration", "constructor_declaration", "function_definition":
			out = append(out, makeSymbol(child, source, symbol.KindMethod, nameOf(child, source)))
		}
	}
	return out
}

func isFunctionValue(nodeType string) bool {
	switch nodeType {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func nameOf(node *ts.Node, source []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return string(n.Content(source))
	}
	return ""
}

func makeSymbol(node *ts.Node, source []byte, kind symbol.Kind, name string) symbol.Symbol {
	content := string(node.Content(source))
	signature := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		signature = content[:idx]
	}
	return symbol.Symbol{
		Name:      name,
		Kind:      kind,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: strings.TrimSpace(signature),
	}
}
