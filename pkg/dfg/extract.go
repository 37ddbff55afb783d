package dfg

import (
	"fmt"
	"sort"

	"github.com/l3aro/phpflow/pkg/syntax"
)

// ExtractDFG extracts the Data Flow Graph for a callable in a PHP file.
// The file is parsed as PHP whatever its extension.
func ExtractDFG(filePath string, functionName string) (*DFGInfo, error) {
	tree, err := syntax.ParseFile(filePath)
	if err != nil {
		return nil, err
	}

	c, err := Find(tree, functionName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return Analyze(tree, c).DFG(), nil
}

// AnalyzeAll analyzes every callable of tree.
func AnalyzeAll(tree *syntax.Tree) []*Analysis {
	callables := Callables(tree)
	out := make([]*Analysis, 0, len(callables))
	for _, c := range callables {
		out = append(out, Analyze(tree, c))
	}
	return out
}

func (a *Analysis) ref(name string, id syntax.NodeID, rt RefType) VarRef {
	n := a.Tree.Node(id)
	ref := VarRef{Name: name, RefType: rt, Line: n.Line, Column: n.Column}
	if rt == RefTypeDefinition {
		ref.Kind = string(a.Bindings[id])
	}
	return ref
}

// DFG renders the analysis as a flat list of references and edges.
func (a *Analysis) DFG() *DFGInfo {
	info := &DFGInfo{
		FunctionName:  a.Callable.String(),
		VarRefs:       make([]VarRef, 0),
		DataflowEdges: make([]DataflowEdge, 0),
		Variables:     make(map[string][]VarRef),
		Dynamic:       a.Dynamic,
	}

	type key struct {
		name string
		id   syntax.NodeID
		rt   RefType
	}
	seen := make(map[key]bool)
	add := func(name string, id syntax.NodeID, rt RefType) VarRef {
		ref := a.ref(name, id, rt)
		k := key{name, id, rt}
		if !seen[k] {
			seen[k] = true
			info.VarRefs = append(info.VarRefs, ref)
			info.Variables[name] = append(info.Variables[name], ref)
		}
		return ref
	}

	g := a.Graph
	for _, name := range g.Names() {
		for _, def := range g.Definitions(name) {
			add(name, def, RefTypeDefinition)
		}
	}
	for _, e := range g.Edges() {
		info.DataflowEdges = append(info.DataflowEdges, DataflowEdge{
			DefRef:  add(e.Name, e.Def, RefTypeDefinition),
			UseRef:  add(e.Name, e.Use, RefTypeUse),
			VarName: e.Name,
		})
	}
	for _, u := range a.Undefined {
		add(u.Name, u.Node, RefTypeUse)
	}

	sort.SliceStable(info.VarRefs, func(i, j int) bool {
		if info.VarRefs[i].Line != info.VarRefs[j].Line {
			return info.VarRefs[i].Line < info.VarRefs[j].Line
		}
		return info.VarRefs[i].Column < info.VarRefs[j].Column
	})

	for _, name := range g.Names() {
		if f := g.Flags(name); f != 0 {
			if info.Flags == nil {
				info.Flags = make(map[string]string)
			}
			info.Flags[name] = f.String()
		}
	}
	return info
}
