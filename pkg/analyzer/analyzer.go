package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/cuemby/warren/pkg/hosterrors"
)

// defaultBlockedModules is the fixed set of sensitive runtime built-ins
// blocked regardless of policy (spec §4.2).
var defaultBlockedModules = map[string]bool{
	"fs":             true,
	"child_process":  true,
	"net":            true,
	"http":           true,
	"worker_threads": true,
	"cluster":        true,
	"inspector":      true,
	"vm":             true,
}

// ImportForm names how a module was referenced.
type ImportForm string

const (
	FormStaticImport  ImportForm = "import"
	FormRequire       ImportForm = "require"
	FormDynamicImport ImportForm = "dynamic_import"
)

// Violation is one forbidden-module reference found during analysis.
type Violation struct {
	Module string
	Form   ImportForm
	Line   int
	Column int
}

// Warning is a non-fatal finding — a dynamic import whose argument could
// not be resolved to a literal module name.
type Warning struct {
	Form   ImportForm
	Line   int
	Column int
}

// Policy is the per-plugin blocked/allowed module override (spec §3
// PluginManifest.sandbox.blockedModules/allowedModules).
type Policy struct {
	BlockedModules []string
	AllowedModules []string
}

// Result is the outcome of one analysis run.
type Result struct {
	Violations []Violation
	Warnings   []Warning
}

// Passed reports whether the plugin may be admitted.
func (r Result) Passed() bool {
	return len(r.Violations) == 0
}

var (
	jsPool sync.Pool
	tsPool sync.Pool
	once   sync.Once
)

func initPools() {
	once.Do(func() {
		jsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(javascript.GetLanguage())
			return p
		}
		tsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(typescript.GetLanguage())
			return p
		}
	})
}

// effectiveBlocklist computes defaultBlockedModules ∪ policy.BlockedModules
// minus policy.AllowedModules.
func effectiveBlocklist(policy Policy) map[string]bool {
	blocked := make(map[string]bool, len(defaultBlockedModules)+len(policy.BlockedModules))
	for m := range defaultBlockedModules {
		blocked[m] = true
	}
	for _, m := range policy.BlockedModules {
		blocked[normalizeModule(m)] = true
	}
	for _, m := range policy.AllowedModules {
		delete(blocked, normalizeModule(m))
	}
	return blocked
}

// EffectiveBlocklist exposes the same defaultBlockedModules ∪
// policy.BlockedModules − policy.AllowedModules computation the static
// analyzer itself uses, as a sorted slice, so the sandbox manager can hand
// the worker's runtime module interceptor the identical effective set
// rather than the manifest's raw, unmerged blockedModules list (spec
// §4.8/§4.9: the interceptor is defense-in-depth and must cover exactly
// what the analyzer covers).
func EffectiveBlocklist(policy Policy) []string {
	blocked := effectiveBlocklist(policy)
	out := make([]string, 0, len(blocked))
	for m := range blocked {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func normalizeModule(name string) string {
	return strings.TrimPrefix(name, "node:")
}

// Analyze parses source as JavaScript or TypeScript (selected by
// isTypeScript) and walks the AST for forbidden imports. A parse failure
// (including any syntax-error node in the tree) makes Analyze return a
// static-analysis error rather than a Result — per spec §4.2 a plugin whose
// entry cannot be parsed cannot be admitted.
func Analyze(pluginName string, source []byte, isTypeScript bool, policy Policy) (Result, error) {
	initPools()

	var parser *sitter.Parser
	if isTypeScript {
		parser = tsPool.Get().(*sitter.Parser)
		defer tsPool.Put(parser)
	} else {
		parser = jsPool.Get().(*sitter.Parser)
		defer jsPool.Put(parser)
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return Result{}, hosterrors.New(hosterrors.KindStaticAnalysis, pluginName, "Analyze",
			fmt.Errorf("parse entry source: %w", err))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() && countErrorNodes(root) > 0 {
		return Result{}, hosterrors.New(hosterrors.KindStaticAnalysis, pluginName, "Analyze",
			fmt.Errorf("entry source contains syntax errors and cannot be reliably analyzed"))
	}

	blocklist := effectiveBlocklist(policy)
	var result Result
	walk(root, source, blocklist, &result)
	return result, nil
}

func countErrorNodes(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.IsError() || node.IsMissing() {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrorNodes(node.Child(i))
	}
	return count
}

func walk(node *sitter.Node, src []byte, blocklist map[string]bool, result *Result) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement":
		if sourceNode := node.ChildByFieldName("source"); sourceNode != nil {
			recordIfBlocked(sourceNode, src, FormStaticImport, blocklist, result)
		}
	case "call_expression":
		handleCallExpression(node, src, blocklist, result)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), src, blocklist, result)
	}
}

func handleCallExpression(node *sitter.Node, src []byte, blocklist map[string]bool, result *Result) {
	funcNode := node.ChildByFieldName("function")
	argsNode := node.ChildByFieldName("arguments")
	if funcNode == nil || argsNode == nil || argsNode.ChildCount() == 0 {
		return
	}
	firstArg := firstMeaningfulChild(argsNode)
	if firstArg == nil {
		return
	}

	funcText := string(src[funcNode.StartByte():funcNode.EndByte()])
	switch {
	case funcNode.Type() == "identifier" && funcText == "require":
		recordIfBlocked(firstArg, src, FormRequire, blocklist, result)
	case funcText == "import":
		if firstArg.Type() == "string" {
			recordIfBlocked(firstArg, src, FormDynamicImport, blocklist, result)
		} else {
			result.Warnings = append(result.Warnings, Warning{
				Form:   FormDynamicImport,
				Line:   int(node.StartPoint().Row) + 1,
				Column: int(node.StartPoint().Column) + 1,
			})
		}
	}
}

// firstMeaningfulChild returns the first non-punctuation child of an
// arguments node (skipping "(" "," ")").
func firstMeaningfulChild(argsNode *sitter.Node) *sitter.Node {
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		switch child.Type() {
		case "(", ")", ",":
			continue
		default:
			return child
		}
	}
	return nil
}

func recordIfBlocked(stringNode *sitter.Node, src []byte, form ImportForm, blocklist map[string]bool, result *Result) {
	if stringNode.Type() != "string" {
		return
	}
	raw := string(src[stringNode.StartByte():stringNode.EndByte()])
	module := normalizeModule(stripQuotes(raw))
	if blocklist[module] {
		result.Violations = append(result.Violations, Violation{
			Module: module,
			Form:   form,
			Line:   int(stringNode.StartPoint().Row) + 1,
			Column: int(stringNode.StartPoint().Column) + 1,
		})
	}
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// AggregateError builds the single aggregated error spec §4.2 requires when
// Violations is non-empty, naming module, form, and position for each.
func AggregateError(pluginName string, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d forbidden module import(s) found:", len(violations))
	for _, v := range violations {
		fmt.Fprintf(&b, "\n  - %q via %s at %d:%d", v.Module, v.Form, v.Line, v.Column)
	}
	return hosterrors.New(hosterrors.KindStaticAnalysis, pluginName, "Analyze", fmt.Errorf("%s", b.String()))
}
