package dfg

import (
	"sort"

	"github.com/l3aro/phpflow/pkg/syntax"
)

type useSet map[syntax.NodeID]struct{}

// Graph accumulates the definitions and def-use edges of one callable.
//
// A Graph is built by a single traversal and read once afterwards; it is not
// safe for concurrent use and must not be shared between callables.
type Graph struct {
	defUses    map[string]map[syntax.NodeID]useSet
	defLines   map[string]map[syntax.NodeID]int
	loopValues map[syntax.NodeID]struct{}
	varFlags   map[string]VarFlags
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		defUses:    make(map[string]map[syntax.NodeID]useSet),
		defLines:   make(map[string]map[syntax.NodeID]int),
		loopValues: make(map[syntax.NodeID]struct{}),
		varFlags:   make(map[string]VarFlags),
	}
}

// RecordDefinition registers node as a definition of name and makes it the
// reaching definition on the active path of scope. Recording the same node
// again keeps the edges already attached to it.
func (g *Graph) RecordDefinition(name string, node syntax.Node, scope ReachingScope) {
	id := node.ID
	defs, ok := g.defUses[name]
	if !ok {
		defs = make(map[syntax.NodeID]useSet)
		g.defUses[name] = defs
	}
	if _, ok := defs[id]; !ok {
		defs[id] = make(useSet)
	}

	lines, ok := g.defLines[name]
	if !ok {
		lines = make(map[syntax.NodeID]int)
		g.defLines[name] = lines
	}
	lines[id] = node.Line

	scope.RecordDefinitionByID(name, id)
}

// RecordUsage links node to every definition of name that reaches it.
// It reports whether any definition was live. A read with no reaching
// definition records nothing.
func (g *Graph) RecordUsage(name string, node syntax.Node, scope ReachingScope) bool {
	live := scope.Definition(name)
	if live.Empty() {
		return false
	}
	for _, def := range live.ids {
		g.addEdge(name, def, node.ID)
	}
	scope.RecordUsageByID(name, node.ID)
	return true
}

// RecordLoopSelfUsage links defID to uses that observe it on a later
// iteration of the enclosing loop. The loop body is only traversed once, so
// the driver replays these uses after the body is done.
func (g *Graph) RecordLoopSelfUsage(name string, defID syntax.NodeID, uses []syntax.NodeID) {
	for _, use := range uses {
		g.addEdge(name, defID, use)
	}
}

// addEdge ignores self edges and definitions this graph never recorded, so
// every definition with edges also has a line.
func (g *Graph) addEdge(name string, def, use syntax.NodeID) {
	if def == use {
		return
	}
	uses, ok := g.defUses[name][def]
	if !ok {
		return
	}
	uses[use] = struct{}{}
}

// MarkAsReference flags name as bound by reference.
func (g *Graph) MarkAsReference(name string) {
	g.varFlags[name] = g.varFlags[name].with(FlagReference)
}

// MarkAsGlobal flags name as imported from the global scope.
func (g *Graph) MarkAsGlobal(name string) {
	g.varFlags[name] = g.varFlags[name].with(FlagGlobal)
}

// MarkAsStaticVariable flags name as a function-static variable.
func (g *Graph) MarkAsStaticVariable(name string) {
	g.varFlags[name] = g.varFlags[name].with(FlagStatic)
}

// MarkAsLoopValueNode records node as the value slot of a keyed foreach.
// A nil or invalid node is ignored.
func (g *Graph) MarkAsLoopValueNode(node *syntax.Node) {
	if node == nil || !node.ID.Valid() {
		return
	}
	g.loopValues[node.ID] = struct{}{}
}

// IsLoopValueDefinitionID reports whether id was marked with MarkAsLoopValueNode.
func (g *Graph) IsLoopValueDefinitionID(id syntax.NodeID) bool {
	_, ok := g.loopValues[id]
	return ok
}

// Flags returns the flags recorded for name.
func (g *Graph) Flags(name string) VarFlags {
	return g.varFlags[name]
}

// Names returns every name with at least one definition or edge, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.defUses))
	for name := range g.defUses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definition IDs recorded for name, ascending.
func (g *Graph) Definitions(name string) []syntax.NodeID {
	return sortedIDs(g.defUses[name])
}

// HasDefinition reports whether def has a use-set for name, possibly empty.
func (g *Graph) HasDefinition(name string, def syntax.NodeID) bool {
	_, ok := g.defUses[name][def]
	return ok
}

// Uses returns the uses attached to def, ascending. Nil means either no
// uses or no such definition; use HasDefinition to tell them apart.
func (g *Graph) Uses(name string, def syntax.NodeID) []syntax.NodeID {
	return sortedIDs(g.defUses[name][def])
}

// DefinitionLine returns the source line recorded for def.
func (g *Graph) DefinitionLine(name string, def syntax.NodeID) (int, bool) {
	line, ok := g.defLines[name][def]
	return line, ok
}

// Edge is one def-use relationship.
type Edge struct {
	Name string
	Def  syntax.NodeID
	Use  syntax.NodeID
}

// Edges returns all edges ordered by name, definition, then use.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, name := range g.Names() {
		for _, def := range g.Definitions(name) {
			for _, use := range g.Uses(name, def) {
				edges = append(edges, Edge{Name: name, Def: def, Use: use})
			}
		}
	}
	return edges
}

// Definition identifies one recorded definition.
type Definition struct {
	Name string
	ID   syntax.NodeID
	Line int
}

// UnusedDefinitions returns definitions whose use-set is empty, ordered by
// line and then ID. Suppression policy is left to the caller.
func (g *Graph) UnusedDefinitions() []Definition {
	var out []Definition
	for name, defs := range g.defUses {
		for id, uses := range defs {
			if len(uses) > 0 {
				continue
			}
			line, _ := g.DefinitionLine(name, id)
			out = append(out, Definition{Name: name, ID: id, Line: line})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedIDs[V any](m map[syntax.NodeID]V) []syntax.NodeID {
	if len(m) == 0 {
		return nil
	}
	ids := make([]syntax.NodeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
