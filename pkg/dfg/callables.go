package dfg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/l3aro/phpflow/pkg/syntax"
)

// ErrCallableNotFound is returned when no callable matches a requested name.
var ErrCallableNotFound = errors.New("callable not found")

var classKinds = []string{
	"class_declaration",
	"trait_declaration",
	"interface_declaration",
	"enum_declaration",
	"anonymous_class",
}

func isClosureKind(kind string) bool {
	return kind == "anonymous_function" || kind == "anonymous_function_creation_expression"
}

// Callables lists every function, method with a body, closure and arrow
// function in source order. Nested callables are listed separately.
func Callables(tree *syntax.Tree) []Callable {
	var out []Callable
	tree.Walk(tree.Root(), func(id syntax.NodeID) bool {
		n := tree.Node(id)
		switch {
		case n.Kind == "function_definition":
			out = append(out, Callable{
				Name: tree.Text(tree.ChildByField(id, "name")),
				Kind: KindFunction,
				Node: id,
				Line: n.Line,
			})
		case n.Kind == "method_declaration":
			if !tree.ChildByField(id, "body").Valid() {
				return true
			}
			out = append(out, Callable{
				Name: methodName(tree, id),
				Kind: KindMethod,
				Node: id,
				Line: n.Line,
			})
		case isClosureKind(n.Kind):
			out = append(out, Callable{Name: "{closure}", Kind: KindClosure, Node: id, Line: n.Line})
		case n.Kind == "arrow_function":
			out = append(out, Callable{Name: "{arrow}", Kind: KindArrow, Node: id, Line: n.Line})
		}
		return true
	})
	return out
}

func methodName(tree *syntax.Tree, method syntax.NodeID) string {
	name := tree.Text(tree.ChildByField(method, "name"))
	class := tree.Ancestor(method, classKinds...)
	if !class.Valid() {
		return name
	}
	className := tree.Text(tree.ChildByField(class, "name"))
	if className == "" {
		className = "class@anonymous"
	}
	return className + "::" + name
}

// Find resolves name to a callable. Accepted forms are "func", "Class::method",
// a bare method name, and "{closure}@12" / "{arrow}@12" or "func@12" to pick
// the callable starting on a given line.
func Find(tree *syntax.Tree, name string) (Callable, error) {
	want, line := name, 0
	if at := strings.LastIndex(name, "@"); at > 0 {
		if n, err := strconv.Atoi(name[at+1:]); err == nil {
			want, line = name[:at], n
		}
	}

	all := Callables(tree)
	for _, c := range all {
		if line != 0 && c.Line != line {
			continue
		}
		if c.Name == want {
			return c, nil
		}
	}
	for _, c := range all {
		if line != 0 && c.Line != line {
			continue
		}
		if c.Kind == KindMethod && strings.HasSuffix(c.Name, "::"+want) {
			return c, nil
		}
	}
	return Callable{}, fmt.Errorf("%w: %q", ErrCallableNotFound, name)
}

// String renders the callable the way diagnostics refer to it.
func (c Callable) String() string {
	switch c.Kind {
	case KindClosure, KindArrow:
		return fmt.Sprintf("%s@%d", c.Name, c.Line)
	default:
		return c.Name
	}
}
