// Package dfg builds per-callable definition-use graphs for PHP code.
// It provides the graph, the reaching-definition scope, the tree-walking
// driver and the exported data flow views.
package dfg

import "github.com/l3aro/phpflow/pkg/syntax"

// RefType represents the type of variable reference in data flow analysis.
type RefType string

const (
	RefTypeDefinition RefType = "definition" // Variable definition (assignment, parameter, ...)
	RefTypeUse        RefType = "use"        // Variable use (read)
)

// VarRef represents a variable reference in the source code.
type VarRef struct {
	Name    string  `json:"name"`
	RefType RefType `json:"ref_type"`
	Line    int     `json:"line"`
	Column  int     `json:"column"`
	Kind    string  `json:"kind,omitempty"` // BindingKind for definitions
}

// DataflowEdge connects a definition to a use that may observe it.
type DataflowEdge struct {
	DefRef  VarRef `json:"def_ref"`
	UseRef  VarRef `json:"use_ref"`
	VarName string `json:"var_name"`
}

// DFGInfo represents the complete Data Flow Graph for a callable.
type DFGInfo struct {
	FunctionName  string              `json:"function_name"`
	VarRefs       []VarRef            `json:"var_refs"`
	DataflowEdges []DataflowEdge      `json:"dataflow_edges"`
	Variables     map[string][]VarRef `json:"variables"`
	Flags         map[string]string   `json:"flags,omitempty"`
	Dynamic       bool                `json:"dynamic,omitempty"`
}

// CallableKind distinguishes the PHP constructs that own a variable scope.
type CallableKind string

const (
	KindFunction CallableKind = "function"
	KindMethod   CallableKind = "method"
	KindClosure  CallableKind = "closure"
	KindArrow    CallableKind = "arrow"
)

// Callable is one independently analyzed body.
type Callable struct {
	Name string        `json:"name"`
	Kind CallableKind  `json:"kind"`
	Node syntax.NodeID `json:"node"`
	Line int           `json:"line"`
}

// BindingKind says which construct produced a definition.
type BindingKind string

const (
	BindAssign     BindingKind = "assignment"
	BindParameter  BindingKind = "parameter"
	BindPromoted   BindingKind = "promoted_parameter"
	BindCatch      BindingKind = "catch"
	BindForeachKey BindingKind = "foreach_key"
	BindForeachVal BindingKind = "foreach_value"
	BindGlobal     BindingKind = "global"
	BindStatic     BindingKind = "static"
	BindCapture    BindingKind = "capture"
	BindList       BindingKind = "destructuring"
	BindUpdate     BindingKind = "update"
	// BindOutArg is a variable passed where a callee may assign it by
	// reference, e.g. the $matches of preg_match.
	BindOutArg BindingKind = "out_argument"
)

// Usage is a read recorded without a definition on every path.
type Usage struct {
	Name   string        `json:"name"`
	Node   syntax.NodeID `json:"node"`
	Line   int           `json:"line"`
	Column int           `json:"column"`
}

// Analysis is the driver's result for one callable.
type Analysis struct {
	Callable Callable
	Graph    *Graph
	Tree     *syntax.Tree

	// Bindings maps each definition ID to the construct that produced it.
	Bindings map[syntax.NodeID]BindingKind

	// Undefined lists reads with no reaching definition at all.
	Undefined []Usage
	// PossiblyUndefined lists reads defined on some paths only.
	PossiblyUndefined []Usage

	// Dynamic is set when the body can create or read variables by name
	// at runtime (extract, $$x, eval, include, ...).
	Dynamic bool
}
