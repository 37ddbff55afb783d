package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/phpflow/pkg/dfg"
	"github.com/l3aro/phpflow/pkg/syntax"
)

// Diagnostic is one finding.
type Diagnostic struct {
	File     string `json:"file" msgpack:"file"`
	Function string `json:"function" msgpack:"function"`
	Line     int    `json:"line" msgpack:"line"`
	Column   int    `json:"column" msgpack:"column"`
	Rule     Rule   `json:"rule" msgpack:"rule"`
	Variable string `json:"variable" msgpack:"variable"`
	Message  string `json:"message" msgpack:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s [%s] in %s", d.File, d.Line, d.Column, d.Message, d.Rule, d.Function)
}

// Options control which findings are reported.
type Options struct {
	Rules RuleSet
	// IgnorePrefixes lists variable-name prefixes that are never reported.
	IgnorePrefixes []string
}

// DefaultOptions enables DefaultRules and ignores names starting with "_".
func DefaultOptions() Options {
	return Options{Rules: DefaultRules, IgnorePrefixes: []string{"_"}}
}

func (o Options) ignored(name string) bool {
	for _, p := range o.IgnorePrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Definitions of these kinds are never reported as unused.
var silentBindings = map[dfg.BindingKind]bool{
	dfg.BindPromoted: true,
	dfg.BindCapture:  true,
	dfg.BindOutArg:   true,
	dfg.BindGlobal:   true,
	dfg.BindStatic:   true,
}

// Check reports the findings of one callable. Callables that can create or
// read variables by name at runtime produce no findings.
func Check(a *dfg.Analysis, file string, opts Options) []Diagnostic {
	if a == nil || a.Dynamic {
		return nil
	}
	fn := a.Callable.String()
	var out []Diagnostic

	add := func(rule Rule, name string, id syntax.NodeID, format string) {
		if !opts.Rules.Enabled(rule) || opts.ignored(name) {
			return
		}
		n := a.Tree.Node(id)
		out = append(out, Diagnostic{
			File:     file,
			Function: fn,
			Line:     n.Line,
			Column:   n.Column,
			Rule:     rule,
			Variable: name,
			Message:  fmt.Sprintf(format, name),
		})
	}

	g := a.Graph
	for _, d := range g.UnusedDefinitions() {
		if g.IsLoopValueDefinitionID(d.ID) || g.Flags(d.Name)&dfg.AliasFlags != 0 {
			continue
		}
		kind := a.Bindings[d.ID]
		if silentBindings[kind] {
			continue
		}
		if kind == dfg.BindParameter {
			add(RuleUnusedParameter, d.Name, d.ID, "parameter $%s is never used")
			continue
		}
		add(RuleUnusedVariable, d.Name, d.ID, "variable $%s is assigned but never used")
	}

	for _, u := range a.Undefined {
		add(RuleUndefinedVariable, u.Name, u.Node, "undefined variable $%s")
	}
	for _, u := range a.PossiblyUndefined {
		add(RulePossiblyUndefined, u.Name, u.Node, "variable $%s might not be defined")
	}

	Sort(out)
	return out
}

// CheckTree analyzes every callable in tree. It returns the findings and the
// number of callables analyzed.
func CheckTree(tree *syntax.Tree, file string, opts Options) ([]Diagnostic, int) {
	analyses := dfg.AnalyzeAll(tree)
	var out []Diagnostic
	for _, a := range analyses {
		out = append(out, Check(a, file, opts)...)
	}
	Sort(out)
	return out, len(analyses)
}

// Sort orders diagnostics by file, line, column, rule, then variable.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		switch {
		case a.File != b.File:
			return a.File < b.File
		case a.Line != b.Line:
			return a.Line < b.Line
		case a.Column != b.Column:
			return a.Column < b.Column
		case a.Rule != b.Rule:
			return a.Rule < b.Rule
		default:
			return a.Variable < b.Variable
		}
	})
}
