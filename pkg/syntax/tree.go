// Package syntax provides an immutable, arena-backed view of a PHP syntax tree.
//
// Every node is assigned a sequential NodeID when the tree is built, so node
// identity is a plain integer that can be used as a map key for the lifetime
// of the process-local analysis. ID 0 (NoNode) is never assigned.
package syntax

import (
	"context"
	"errors"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"
)

// ErrEmptySource is returned when there is nothing to parse.
var ErrEmptySource = errors.New("empty source")

// NodeID is the arena index of a node.
type NodeID int32

// NoNode is the zero NodeID. It never identifies a real node.
const NoNode NodeID = 0

// Valid reports whether id can identify a node.
func (id NodeID) Valid() bool {
	return id > NoNode
}

// Node is a read-only snapshot of one syntax node.
type Node struct {
	ID        NodeID `json:"id"`
	Kind      string `json:"kind"`
	Named     bool   `json:"named"`
	Line      int    `json:"line"`   // 1-based
	Column    int    `json:"column"` // 1-based
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
}

// Tree is the arena. Slices are indexed by NodeID.
type Tree struct {
	source   []byte
	nodes    []Node
	parent   []NodeID
	children [][]NodeID
	fields   [][]string
	hasError bool
}

// Parse parses PHP source into an arena tree.
func Parse(content []byte) (*Tree, error) {
	return ParseContext(context.Background(), content)
}

// ParseContext is Parse with cancellation support.
func ParseContext(ctx context.Context, content []byte) (*Tree, error) {
	if len(content) == 0 {
		return nil, ErrEmptySource
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(php.GetLanguage())

	st, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing php: %w", err)
	}
	defer st.Close()

	return fromSitter(st.RootNode(), content), nil
}

// ParseFile reads and parses a PHP file.
func ParseFile(path string) (*Tree, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	tree, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return tree, nil
}

// fromSitter copies a tree-sitter tree into the arena, assigning IDs in pre-order.
func fromSitter(root *sitter.Node, content []byte) *Tree {
	t := &Tree{
		source:   content,
		nodes:    []Node{{}},
		parent:   []NodeID{NoNode},
		children: [][]NodeID{nil},
		fields:   [][]string{nil},
	}
	t.add(root, NoNode)
	return t
}

func (t *Tree) add(n *sitter.Node, parent NodeID) NodeID {
	id := NodeID(len(t.nodes))
	start := n.StartPoint()
	t.nodes = append(t.nodes, Node{
		ID:        id,
		Kind:      n.Type(),
		Named:     n.IsNamed(),
		Line:      int(start.Row) + 1,
		Column:    int(start.Column) + 1,
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
	})
	t.parent = append(t.parent, parent)
	t.children = append(t.children, nil)
	t.fields = append(t.fields, nil)
	if n.IsError() || n.IsMissing() {
		t.hasError = true
	}

	count := int(n.ChildCount())
	if count == 0 {
		return id
	}
	kids := make([]NodeID, 0, count)
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		field := n.FieldNameForChild(i)
		kids = append(kids, t.add(child, id))
		names = append(names, field)
	}
	t.children[id] = kids
	t.fields[id] = names
	return id
}

// Len returns the number of real nodes in the arena.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// HasError reports whether tree-sitter produced ERROR or MISSING nodes.
func (t *Tree) HasError() bool {
	return t.hasError
}

// Source returns the parsed bytes.
func (t *Tree) Source() []byte {
	return t.source
}

// Root returns the ID of the program node.
func (t *Tree) Root() NodeID {
	if len(t.nodes) < 2 {
		return NoNode
	}
	return 1
}

func (t *Tree) contains(id NodeID) bool {
	return id.Valid() && int(id) < len(t.nodes)
}

// Node returns the node for id. Unknown IDs yield the zero Node.
func (t *Tree) Node(id NodeID) Node {
	if !t.contains(id) {
		return Node{}
	}
	return t.nodes[id]
}

// Kind is shorthand for Node(id).Kind.
func (t *Tree) Kind(id NodeID) string {
	return t.Node(id).Kind
}

// Parent returns the parent of id, or NoNode for the root.
func (t *Tree) Parent(id NodeID) NodeID {
	if !t.contains(id) {
		return NoNode
	}
	return t.parent[id]
}

// Children returns all children, named and anonymous, in source order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.contains(id) {
		return nil
	}
	return t.children[id]
}

// NamedChildren returns the named children of id.
func (t *Tree) NamedChildren(id NodeID) []NodeID {
	var out []NodeID
	for _, c := range t.Children(id) {
		if t.nodes[c].Named {
			out = append(out, c)
		}
	}
	return out
}

// ChildByField returns the first child stored under field.
func (t *Tree) ChildByField(id NodeID, field string) NodeID {
	if !t.contains(id) {
		return NoNode
	}
	for i, name := range t.fields[id] {
		if name == field {
			return t.children[id][i]
		}
	}
	return NoNode
}

// ChildrenByField returns every child stored under field.
func (t *Tree) ChildrenByField(id NodeID, field string) []NodeID {
	if !t.contains(id) {
		return nil
	}
	var out []NodeID
	for i, name := range t.fields[id] {
		if name == field {
			out = append(out, t.children[id][i])
		}
	}
	return out
}

// ChildOfKind returns the first direct child with the given kind.
func (t *Tree) ChildOfKind(id NodeID, kind string) NodeID {
	for _, c := range t.Children(id) {
		if t.nodes[c].Kind == kind {
			return c
		}
	}
	return NoNode
}

// Text returns the source text covered by id.
func (t *Tree) Text(id NodeID) string {
	if !t.contains(id) {
		return ""
	}
	n := t.nodes[id]
	if n.StartByte > n.EndByte || int(n.EndByte) > len(t.source) {
		return ""
	}
	return string(t.source[n.StartByte:n.EndByte])
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the subtree of the node just visited.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !t.contains(id) {
		return
	}
	if !fn(id) {
		return
	}
	for _, c := range t.children[id] {
		t.Walk(c, fn)
	}
}

// Ancestor returns the nearest ancestor of id whose kind is one of kinds.
func (t *Tree) Ancestor(id NodeID, kinds ...string) NodeID {
	for p := t.Parent(id); p.Valid(); p = t.Parent(p) {
		k := t.nodes[p].Kind
		for _, want := range kinds {
			if k == want {
				return p
			}
		}
	}
	return NoNode
}
