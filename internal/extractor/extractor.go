// Package extractor parses Python source with Tree-sitter and emits the
// endpoint and function records the scan pipeline reviews.
package extractor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/sentinelai/sentinel/internal/domain"
)

// httpMethods are the router decorator attributes recognized as endpoints.
var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "options": true, "head": true,
}

// minFunctionLines is the minimum non-blank source span for a function to be
// worth emitting.
const minFunctionLines = 3

// Parser extracts endpoints and functions from one source file at a time.
// Not safe for concurrent use; each scan worker owns its own Parser.
type Parser struct {
	parser *sitter.Parser
	marker string // dependency-injection marker, e.g. "Depends"
}

// New creates a Parser. An empty marker defaults to "Depends".
func New(marker string) *Parser {
	if marker == "" {
		marker = "Depends"
	}
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p, marker: marker}
}

// Endpoints returns every function whose decorators include a
// <router>.<method>(<literal path>, ...) call.
func (p *Parser) Endpoints(ctx context.Context, content []byte) ([]domain.CodeItem, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	var items []domain.CodeItem
	walk(tree.RootNode(), func(node *sitter.Node) {
		if node.Type() != "decorated_definition" {
			return
		}
		def := node.ChildByFieldName("definition")
		if def == nil || def.Type() != "function_definition" {
			return
		}
		method, path := routeDecorator(node, content)
		if method == "" || path == "" {
			return
		}
		name := nodeText(def.ChildByFieldName("name"), content)
		guards, args := p.parameters(def, content)
		items = append(items, domain.CodeItem{
			FunctionName: name,
			Method:       method,
			Path:         path,
			Guards:       guards,
			Arguments:    args,
			Code:         nodeText(node, content), // decorators included
			IsEndpoint:   true,
		})
	})
	return items, nil
}

// Functions returns every named function definition spanning at least three
// non-blank lines, de-duplicated by (name, first 40 chars of source).
func (p *Parser) Functions(ctx context.Context, content []byte, filePath string) ([]domain.CodeItem, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	seen := make(map[string]bool)
	var items []domain.CodeItem
	walk(tree.RootNode(), func(node *sitter.Node) {
		if node.Type() != "function_definition" {
			return
		}
		name := nodeText(node.ChildByFieldName("name"), content)
		if name == "" {
			return
		}

		// Include decorators in the emitted source segment.
		src := node
		if parent := node.Parent(); parent != nil && parent.Type() == "decorated_definition" {
			src = parent
		}
		code := nodeText(src, content)
		if nonBlankLines(code) < minFunctionLines {
			return
		}

		key := name + ":" + head(code, 40)
		if seen[key] {
			return
		}
		seen[key] = true

		_, args := p.parameters(node, content)
		items = append(items, domain.CodeItem{
			FunctionName: name,
			Method:       domain.MethodFunction,
			Arguments:    args,
			Code:         code,
			FilePath:     filePath,
		})
	})
	return items, nil
}

// routeDecorator scans a decorated definition's decorators for an HTTP route
// registration and returns (METHOD, path); empty strings when none matches.
func routeDecorator(decorated *sitter.Node, content []byte) (string, string) {
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		dec := decorated.NamedChild(i)
		if dec.Type() != "decorator" {
			continue
		}
		call := namedChildOfType(dec, "call")
		if call == nil {
			continue
		}
		fn := call.ChildByFieldName("function")
		if fn == nil || fn.Type() != "attribute" {
			continue
		}
		attr := strings.ToLower(nodeText(fn.ChildByFieldName("attribute"), content))
		if !httpMethods[attr] {
			continue
		}
		args := call.ChildByFieldName("arguments")
		if args == nil {
			continue
		}
		for j := 0; j < int(args.NamedChildCount()); j++ {
			arg := args.NamedChild(j)
			if arg.Type() == "keyword_argument" {
				break // positional args precede keywords
			}
			if arg.Type() == "string" {
				if path := stringLiteral(arg, content); path != "" {
					return strings.ToUpper(attr), path
				}
			}
			break // first positional is not a literal path
		}
	}
	return "", ""
}

// parameters returns the guard names (identifiers passed to the dependency
// marker in default positions) and all parameter names.
func (p *Parser) parameters(def *sitter.Node, content []byte) (guards, args []string) {
	params := def.ChildByFieldName("parameters")
	if params == nil {
		return nil, nil
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "identifier":
			args = append(args, nodeText(param, content))
		case "typed_parameter":
			if id := namedChildOfType(param, "identifier"); id != nil {
				args = append(args, nodeText(id, content))
			}
		case "default_parameter", "typed_default_parameter":
			if name := param.ChildByFieldName("name"); name != nil {
				args = append(args, nodeText(name, content))
			}
			if g := p.guardFromDefault(param.ChildByFieldName("value"), content); g != "" {
				guards = append(guards, g)
			}
		}
	}
	return guards, args
}

// guardFromDefault recognizes marker(<identifier>) default values.
func (p *Parser) guardFromDefault(value *sitter.Node, content []byte) string {
	if value == nil || value.Type() != "call" {
		return ""
	}
	fn := value.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || nodeText(fn, content) != p.marker {
		return ""
	}
	callArgs := value.ChildByFieldName("arguments")
	if callArgs == nil {
		return ""
	}
	for i := 0; i < int(callArgs.NamedChildCount()); i++ {
		if arg := callArgs.NamedChild(i); arg.Type() == "identifier" {
			return nodeText(arg, content)
		}
	}
	return ""
}

func walk(node *sitter.Node, fn func(*sitter.Node)) {
	fn(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), fn)
	}
}

func namedChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if c := node.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// stringLiteral strips prefixes and quotes from a Python string node.
func stringLiteral(node *sitter.Node, content []byte) string {
	s := nodeText(node, content)
	s = strings.TrimLeft(s, "rbfuRBFU")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

func nonBlankLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
