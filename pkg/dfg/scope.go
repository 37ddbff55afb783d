package dfg

import (
	"maps"
	"sort"

	"github.com/l3aro/phpflow/pkg/syntax"
)

// ReachingScope is the contract the Graph needs from a reaching-definition
// scope. *Scope implements it.
type ReachingScope interface {
	// RecordDefinitionByID makes id the only live definition of name on the
	// active path.
	RecordDefinitionByID(name string, id syntax.NodeID)
	// Definition returns the definitions of name live on the active path.
	Definition(name string) DefSet
	// RecordUsageByID notes that name was read by node id on this path.
	RecordUsageByID(name string, id syntax.NodeID)
}

type binding struct {
	defs DefSet
	// partial is set when at least one merged path reached this point
	// without any definition of the name.
	partial bool
}

// Scope records, along one control-flow path, which definitions are live
// for every variable name. Clone is O(1): maps are shared until the first
// write on either side.
type Scope struct {
	vars       map[string]binding
	used       map[string]struct{}
	shared     bool
	terminated bool
}

var _ ReachingScope = (*Scope)(nil)

// NewScope returns an empty scope for the entry of a callable.
func NewScope() *Scope {
	return &Scope{
		vars: make(map[string]binding),
		used: make(map[string]struct{}),
	}
}

// Clone returns a scope for a branch entered from s.
func (s *Scope) Clone() *Scope {
	s.shared = true
	return &Scope{
		vars:       s.vars,
		used:       s.used,
		shared:     true,
		terminated: s.terminated,
	}
}

// own detaches s from any scope it shares storage with.
func (s *Scope) own() {
	if !s.shared {
		return
	}
	s.vars = maps.Clone(s.vars)
	s.used = maps.Clone(s.used)
	s.shared = false
}

// RecordDefinitionByID replaces the live definitions of name with id.
func (s *Scope) RecordDefinitionByID(name string, id syntax.NodeID) {
	s.own()
	s.vars[name] = binding{defs: NewDefSet(id)}
}

// include adds id to the live definitions of name without killing the
// others. A name that had no definition becomes partial.
func (s *Scope) include(name string, id syntax.NodeID) {
	s.own()
	b := s.vars[name]
	if b.defs.Empty() {
		b.partial = true
	}
	b.defs = b.defs.Union(NewDefSet(id))
	s.vars[name] = b
}

// settle clears the partial mark of name once every path reaching here is
// known to define it.
func (s *Scope) settle(name string) {
	b, ok := s.vars[name]
	if !ok || !b.partial {
		return
	}
	s.own()
	b.partial = false
	s.vars[name] = b
}

// Definition returns the live definitions of name, empty when there are none.
func (s *Scope) Definition(name string) DefSet {
	return s.vars[name].defs
}

// IsPartial reports whether some path reaching here left name undefined
// while another path defined it.
func (s *Scope) IsPartial(name string) bool {
	b, ok := s.vars[name]
	return ok && b.partial
}

// RecordUsageByID notes that name was read on this path.
func (s *Scope) RecordUsageByID(name string, _ syntax.NodeID) {
	if _, ok := s.used[name]; ok {
		return
	}
	s.own()
	s.used[name] = struct{}{}
}

// Used reports whether name was read on this path.
func (s *Scope) Used(name string) bool {
	_, ok := s.used[name]
	return ok
}

// Unset drops every live definition of name.
func (s *Scope) Unset(name string) {
	if _, ok := s.vars[name]; !ok {
		return
	}
	s.own()
	delete(s.vars, name)
}

// Names returns the names with live definitions, sorted.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.vars))
	for name, b := range s.vars {
		if !b.defs.Empty() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Terminate marks the path as unable to fall through to the next statement.
func (s *Scope) Terminate() {
	s.terminated = true
}

// Terminated reports whether the path ended in return, throw, break or continue.
func (s *Scope) Terminated() bool {
	return s.terminated
}

// Merge joins the exits of several branches. Live sets are unioned per name,
// never intersected; a name defined on only some of the live branches is
// marked partial. Terminated branches do not flow into the join; if every
// branch is terminated the result is terminated too.
func Merge(branches ...*Scope) *Scope {
	live := make([]*Scope, 0, len(branches))
	for _, b := range branches {
		if b != nil && !b.terminated {
			live = append(live, b)
		}
	}

	switch len(live) {
	case 0:
		out := NewScope()
		out.terminated = true
		return out
	case 1:
		return live[0].Clone()
	}

	out := NewScope()
	for _, b := range live {
		for name, bind := range b.vars {
			cur := out.vars[name]
			cur.defs = cur.defs.Union(bind.defs)
			cur.partial = cur.partial || bind.partial
			out.vars[name] = cur
		}
		for name := range b.used {
			out.used[name] = struct{}{}
		}
	}
	for name, bind := range out.vars {
		for _, b := range live {
			if b.vars[name].defs.Empty() {
				bind.partial = true
				break
			}
		}
		out.vars[name] = bind
	}
	return out
}
