package dfg

import (
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/phpflow/pkg/syntax"
)

// superglobals and other names that are always defined inside a callable.
var implicitVariables = map[string]bool{
	"this":                 true,
	"GLOBALS":              true,
	"_SERVER":              true,
	"_GET":                 true,
	"_POST":                true,
	"_FILES":               true,
	"_COOKIE":              true,
	"_SESSION":             true,
	"_REQUEST":             true,
	"_ENV":                 true,
	"http_response_header": true,
}

// outArguments lists builtins that assign to by-reference arguments,
// keyed by lower-case name, with 0-based argument positions.
var outArguments = map[string][]int{
	"preg_match":              {2},
	"preg_match_all":          {2},
	"preg_replace":            {4},
	"preg_replace_callback":   {4},
	"str_replace":             {3},
	"str_ireplace":            {3},
	"exec":                    {1, 2},
	"parse_str":               {1},
	"mb_parse_str":            {1},
	"similar_text":            {2},
	"getimagesize":            {1},
	"fsockopen":               {2, 3},
	"headers_sent":            {0, 1},
	"is_callable":             {2},
	"flock":                   {2},
	"proc_open":               {2},
	"getmxrr":                 {1, 2},
	"openssl_sign":            {1},
	"openssl_seal":            {1, 2},
	"openssl_public_encrypt":  {1},
	"openssl_private_decrypt": {1},
	"openssl_private_encrypt": {1},
	"openssl_public_decrypt":  {1},
	"curl_multi_exec":         {1},
	"pcntl_wait":              {0},
	"pcntl_waitpid":           {1},
}

// valueArguments lists builtins that take every argument by value, so an
// undefined variable passed to them is an undefined read.
var valueArguments = map[string]bool{
	"count":            true,
	"sizeof":           true,
	"strlen":           true,
	"mb_strlen":        true,
	"is_array":         true,
	"is_string":        true,
	"is_int":           true,
	"is_numeric":       true,
	"is_null":          true,
	"is_bool":          true,
	"is_object":        true,
	"in_array":         true,
	"array_key_exists": true,
	"array_keys":       true,
	"array_values":     true,
	"array_merge":      true,
	"array_map":        true,
	"array_filter":     true,
	"implode":          true,
	"explode":          true,
	"join":             true,
	"sprintf":          true,
	"printf":           true,
	"json_encode":      true,
	"json_decode":      true,
	"trim":             true,
	"rtrim":            true,
	"ltrim":            true,
	"strtolower":       true,
	"strtoupper":       true,
	"ucfirst":          true,
	"intval":           true,
	"floatval":         true,
	"strval":           true,
	"boolval":          true,
	"var_dump":         true,
	"print_r":          true,
	"var_export":       true,
	"htmlspecialchars": true,
	"substr":           true,
	"strpos":           true,
	"str_contains":     true,
	"str_starts_with":  true,
	"str_ends_with":    true,
	"max":              true,
	"min":              true,
	"abs":              true,
	"round":            true,
	"floor":            true,
	"ceil":             true,
	"md5":              true,
	"sha1":             true,
	"base64_encode":    true,
	"urlencode":        true,
}

// dynamicFunctions can read or create variables by name at runtime.
var dynamicFunctions = map[string]bool{
	"extract":          true,
	"get_defined_vars": true,
	"eval":             true,
}

type defRecord struct {
	name string
	id   syntax.NodeID
}

type loopPhase int

const (
	phaseBody loopPhase = iota
	phaseCond
)

// loopFrame tracks one loop (or switch, which PHP counts for break/continue).
type loopFrame struct {
	isSwitch  bool
	phase     loopPhase
	defs      map[syntax.NodeID]struct{}
	condUses  map[string][]syntax.NodeID
	bodyUses  map[string][]syntax.NodeID
	breaks    []*Scope
	continues []*Scope
}

func newLoopFrame(isSwitch bool) *loopFrame {
	return &loopFrame{
		isSwitch: isSwitch,
		defs:     make(map[syntax.NodeID]struct{}),
		condUses: make(map[string][]syntax.NodeID),
		bodyUses: make(map[string][]syntax.NodeID),
	}
}

// exposed reports whether a read with the given reaching state may also
// observe a definition from a previous iteration of f.
func (f *loopFrame) exposed(live DefSet, partial bool) bool {
	if live.Empty() || partial {
		return true
	}
	for _, id := range live.ids {
		if _, inside := f.defs[id]; !inside {
			return true
		}
	}
	return false
}

// phpWalker is the tree-walking driver for one callable. It classifies each
// node as a definition, a use or structure and feeds Graph and Scope in
// program order.
type phpWalker struct {
	tree     *syntax.Tree
	graph    *Graph
	scope    *Scope
	bindings map[syntax.NodeID]BindingKind
	loops    []*loopFrame
	defLog   []defRecord
	quiet    int
	dynamic  bool

	undefined map[syntax.NodeID]Usage
	possibly  map[syntax.NodeID]Usage
}

func newPhpWalker(tree *syntax.Tree) *phpWalker {
	return &phpWalker{
		tree:      tree,
		graph:     NewGraph(),
		scope:     NewScope(),
		bindings:  make(map[syntax.NodeID]BindingKind),
		undefined: make(map[syntax.NodeID]Usage),
		possibly:  make(map[syntax.NodeID]Usage),
	}
}

// Analyze builds the def-use graph of one callable. Each call uses a fresh
// Graph and Scope, so analyses of different callables may run in parallel
// over the same tree.
func Analyze(tree *syntax.Tree, c Callable) *Analysis {
	w := newPhpWalker(tree)
	fn := c.Node

	w.parameters(tree.ChildByField(fn, "parameters"))

	switch c.Kind {
	case KindClosure:
		w.closureCaptures(fn)
		w.statement(tree.ChildByField(fn, "body"))
	case KindArrow:
		w.arrowCaptures(fn)
		w.expr(tree.ChildByField(fn, "body"))
	default:
		w.statement(tree.ChildByField(fn, "body"))
	}

	return &Analysis{
		Callable:          c,
		Graph:             w.graph,
		Tree:              tree,
		Bindings:          w.bindings,
		Undefined:         sortedUsages(w.undefined),
		PossiblyUndefined: sortedUsages(w.possibly),
		Dynamic:           w.dynamic,
	}
}

func sortedUsages(m map[syntax.NodeID]Usage) []Usage {
	out := make([]Usage, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// varName returns the bare name of a variable_name node.
func (w *phpWalker) varName(id syntax.NodeID) string {
	if name := w.tree.ChildOfKind(id, "name"); name.Valid() {
		return w.tree.Text(name)
	}
	return strings.TrimPrefix(w.tree.Text(id), "$")
}

func (w *phpWalker) define(name string, id syntax.NodeID, kind BindingKind) {
	if name == "" || implicitVariables[name] {
		return
	}
	w.graph.RecordDefinition(name, w.tree.Node(id), w.scope)
	if _, ok := w.bindings[id]; !ok {
		w.bindings[id] = kind
	}
	w.defLog = append(w.defLog, defRecord{name: name, id: id})
	for _, f := range w.loops {
		f.defs[id] = struct{}{}
	}
}

func (w *phpWalker) use(name string, id syntax.NodeID) {
	if name == "" || implicitVariables[name] {
		return
	}
	live := w.scope.Definition(name)
	partial := w.scope.IsPartial(name)
	for _, f := range w.loops {
		if !f.exposed(live, partial) {
			continue
		}
		if f.phase == phaseCond {
			f.condUses[name] = append(f.condUses[name], id)
		} else {
			f.bodyUses[name] = append(f.bodyUses[name], id)
		}
	}

	found := w.graph.RecordUsage(name, w.tree.Node(id), w.scope)
	if w.quiet > 0 || w.scope.Terminated() {
		return
	}
	n := w.tree.Node(id)
	u := Usage{Name: name, Node: id, Line: n.Line, Column: n.Column}
	switch {
	case !found:
		w.undefined[id] = u
	case partial:
		w.possibly[id] = u
	}
}

func (w *phpWalker) quietly(fn func()) {
	w.quiet++
	defer func() { w.quiet-- }()
	fn()
}

// branch runs fn on a clone of the current scope and returns the clone's exit.
func (w *phpWalker) branch(from *Scope, fn func()) *Scope {
	saved := w.scope
	w.scope = from.Clone()
	fn()
	out := w.scope
	w.scope = saved
	return out
}

func (w *phpWalker) parameters(params syntax.NodeID) {
	for _, p := range w.tree.NamedChildren(params) {
		kind := BindParameter
		switch w.tree.Kind(p) {
		case "simple_parameter", "variadic_parameter":
		case "property_promotion_parameter":
			kind = BindPromoted
		default:
			continue
		}
		if def := w.tree.ChildByField(p, "default_value"); def.Valid() {
			w.expr(def)
		}
		nameNode := w.tree.ChildByField(p, "name")
		if !nameNode.Valid() {
			nameNode = w.tree.ChildOfKind(p, "variable_name")
		}
		if !nameNode.Valid() {
			continue
		}
		name := w.varName(nameNode)
		if w.isByRef(p) {
			w.graph.MarkAsReference(name)
		}
		w.define(name, nameNode, kind)
	}
}

func (w *phpWalker) isByRef(p syntax.NodeID) bool {
	if w.tree.ChildByField(p, "reference_modifier").Valid() {
		return true
	}
	if w.tree.ChildOfKind(p, "reference_modifier").Valid() {
		return true
	}
	return w.tree.ChildOfKind(p, "&").Valid()
}

// useClauseVars returns the variable nodes of a closure's use clause and
// whether each one is captured by reference.
func (w *phpWalker) useClauseVars(closure syntax.NodeID) (vars []syntax.NodeID, byRef []bool) {
	clause := w.tree.ChildOfKind(closure, "anonymous_function_use_clause")
	for _, c := range w.tree.NamedChildren(clause) {
		switch w.tree.Kind(c) {
		case "variable_name":
			vars = append(vars, c)
			byRef = append(byRef, false)
		case "by_ref":
			if v := w.tree.ChildOfKind(c, "variable_name"); v.Valid() {
				vars = append(vars, v)
				byRef = append(byRef, true)
			}
		}
	}
	return vars, byRef
}

func (w *phpWalker) closureCaptures(closure syntax.NodeID) {
	vars, byRef := w.useClauseVars(closure)
	for i, v := range vars {
		name := w.varName(v)
		if byRef[i] {
			w.graph.MarkAsReference(name)
		}
		w.define(name, v, BindCapture)
	}
}

// arrowCaptures defines, at the arrow function node, every outer variable
// the body reads. Arrow functions capture by value implicitly.
func (w *phpWalker) arrowCaptures(arrow syntax.NodeID) {
	for _, name := range w.arrowFreeVariables(arrow) {
		w.define(name, arrow, BindCapture)
	}
}

func (w *phpWalker) paramNames(fn syntax.NodeID) map[string]bool {
	names := make(map[string]bool)
	for _, p := range w.tree.NamedChildren(w.tree.ChildByField(fn, "parameters")) {
		if v := w.tree.ChildByField(p, "name"); v.Valid() {
			names[w.varName(v)] = true
		} else if v := w.tree.ChildOfKind(p, "variable_name"); v.Valid() {
			names[w.varName(v)] = true
		}
	}
	return names
}

// arrowFreeVariables returns the names read in an arrow function body that
// are not its parameters, in first-seen order.
func (w *phpWalker) arrowFreeVariables(arrow syntax.NodeID) []string {
	params := w.paramNames(arrow)
	seen := make(map[string]bool)
	var out []string
	w.tree.Walk(w.tree.ChildByField(arrow, "body"), func(id syntax.NodeID) bool {
		kind := w.tree.Kind(id)
		switch {
		case isClosureKind(kind):
			vars, _ := w.useClauseVars(id)
			for _, v := range vars {
				name := w.varName(v)
				if !params[name] && !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
			return false
		case kind == "arrow_function":
			for name := range w.paramNames(id) {
				params[name] = true
			}
		case kind == "scoped_property_access_expression":
			return false
		case kind == "variable_name":
			name := w.varName(id)
			if !params[name] && !seen[name] && !implicitVariables[name] {
				seen[name] = true
				out = append(out, name)
			}
			return false
		}
		return true
	})
	return out
}

func (w *phpWalker) statements(ids []syntax.NodeID) {
	for _, id := range ids {
		w.statement(id)
	}
}

func (w *phpWalker) statement(id syntax.NodeID) {
	if !id.Valid() {
		return
	}
	t := w.tree
	switch t.Kind(id) {
	case "compound_statement", "colon_block", "program", "declare_statement":
		w.statements(t.NamedChildren(id))
	case "expression_statement", "echo_statement", "print_intrinsic":
		for _, c := range t.NamedChildren(id) {
			w.expr(c)
		}
	case "return_statement":
		for _, c := range t.NamedChildren(id) {
			w.expr(c)
		}
		w.scope.Terminate()
	case "exit_statement":
		for _, c := range t.NamedChildren(id) {
			w.expr(c)
		}
		w.scope.Terminate()
	case "if_statement":
		w.ifStatement(id)
	case "while_statement":
		w.whileStatement(id)
	case "do_statement":
		w.doStatement(id)
	case "for_statement":
		w.forStatement(id)
	case "foreach_statement":
		w.foreachStatement(id)
	case "switch_statement":
		w.switchStatement(id)
	case "try_statement":
		w.tryStatement(id)
	case "break_statement":
		w.jump(id, false)
	case "continue_statement":
		w.jump(id, true)
	case "global_declaration":
		for _, v := range t.NamedChildren(id) {
			if t.Kind(v) != "variable_name" {
				continue
			}
			name := w.varName(v)
			w.graph.MarkAsGlobal(name)
			w.define(name, v, BindGlobal)
		}
	case "function_static_declaration":
		for _, decl := range t.NamedChildren(id) {
			if t.Kind(decl) != "static_variable_declaration" {
				continue
			}
			if value := t.ChildByField(decl, "value"); value.Valid() {
				w.expr(value)
			}
			v := t.ChildByField(decl, "name")
			if !v.Valid() {
				v = t.ChildOfKind(decl, "variable_name")
			}
			name := w.varName(v)
			w.graph.MarkAsStaticVariable(name)
			w.define(name, v, BindStatic)
		}
	case "unset_statement":
		for _, c := range t.NamedChildren(id) {
			if t.Kind(c) == "variable_name" {
				w.scope.Unset(w.varName(c))
				continue
			}
			w.expr(c)
		}
	case "function_definition", "class_declaration", "interface_declaration",
		"trait_declaration", "enum_declaration", "namespace_definition",
		"namespace_use_declaration", "const_declaration", "comment", "text",
		"text_interpolation", "php_tag", "inline_html", "named_label_statement",
		"goto_statement", "empty_statement":
	default:
		w.expr(id)
	}
}

func (w *phpWalker) ifStatement(id syntax.NodeID) {
	t := w.tree
	cond := t.ChildByField(id, "condition")
	w.expr(cond)

	cur := w.scope
	exits := []*Scope{w.branch(cur, func() { w.statement(t.ChildByField(id, "body")) })}
	hasElse := false

	for _, alt := range t.Children(id) {
		switch t.Kind(alt) {
		case "else_if_clause":
			next := w.branch(cur, func() { w.expr(t.ChildByField(alt, "condition")) })
			exits = append(exits, w.branch(next, func() { w.statement(t.ChildByField(alt, "body")) }))
			cur = next
		case "else_clause":
			exits = append(exits, w.branch(cur, func() { w.statement(t.ChildByField(alt, "body")) }))
			hasElse = true
		}
	}
	if !hasElse {
		exits = append(exits, cur)
	}
	w.scope = Merge(exits...)

	// if (!isset($x)) { $x = ...; } leaves $x set on both paths.
	if len(exits) == 2 && !hasElse {
		then := exits[0]
		for _, name := range w.unsetGuard(cond) {
			if then.Terminated() || (!then.Definition(name).Empty() && !then.IsPartial(name)) {
				w.scope.settle(name)
			}
		}
	}
}

// unsetGuard returns the variables a condition proves set when it is false:
// the arguments of !isset(...) and empty(...).
func (w *phpWalker) unsetGuard(cond syntax.NodeID) []string {
	t := w.tree
	cond = w.unparen(cond)
	negated := false
	if t.Kind(cond) == "unary_op_expression" && w.operator(cond) == "!" {
		parts := t.NamedChildren(cond)
		if len(parts) != 1 {
			return nil
		}
		cond, negated = w.unparen(parts[0]), true
	}
	if t.Kind(cond) != "function_call_expression" {
		return nil
	}
	switch fn := w.functionName(cond); {
	case fn == "isset" && negated, fn == "empty" && !negated:
	default:
		return nil
	}
	var names []string
	for _, v := range w.argumentValues(t.ChildByField(cond, "arguments")) {
		if t.Kind(v) == "variable_name" {
			names = append(names, w.varName(v))
		}
	}
	return names
}

func (w *phpWalker) unparen(id syntax.NodeID) syntax.NodeID {
	for w.tree.Kind(id) == "parenthesized_expression" {
		inner := w.tree.NamedChildren(id)
		if len(inner) != 1 {
			break
		}
		id = inner[0]
	}
	return id
}

func (w *phpWalker) pushLoop(isSwitch bool) *loopFrame {
	f := newLoopFrame(isSwitch)
	w.loops = append(w.loops, f)
	return f
}

func (w *phpWalker) popLoop() {
	w.loops = w.loops[:len(w.loops)-1]
}

// jump handles break/continue with an optional level.
func (w *phpWalker) jump(id syntax.NodeID, isContinue bool) {
	level := 1
	for _, c := range w.tree.NamedChildren(id) {
		if n, err := strconv.Atoi(strings.TrimSpace(w.tree.Text(c))); err == nil && n > 0 {
			level = n
		}
	}
	if level > len(w.loops) {
		w.scope.Terminate()
		return
	}
	target := w.loops[len(w.loops)-level]
	exit := w.scope.Clone()
	if isContinue && !target.isSwitch {
		target.continues = append(target.continues, exit)
	} else {
		target.breaks = append(target.breaks, exit)
	}
	w.scope.Terminate()
}

// replay connects the loop-carried definitions of f to the reads that may
// observe them on the next iteration. condNext is the state the condition
// sees on re-evaluation and bodyNext the state at the start of the next body.
func (w *phpWalker) replay(f *loopFrame, condNext, bodyNext *Scope) {
	w.replayUses(f, f.condUses, condNext)
	w.replayUses(f, f.bodyUses, bodyNext)
}

func (w *phpWalker) replayUses(f *loopFrame, uses map[string][]syntax.NodeID, next *Scope) {
	if next == nil || next.Terminated() {
		return
	}
	for name, ids := range uses {
		for _, def := range next.Definition(name).ids {
			if _, carried := f.defs[def]; !carried {
				continue
			}
			w.graph.RecordLoopSelfUsage(name, def, ids)
			for _, u := range ids {
				if usage, ok := w.undefined[u]; ok {
					delete(w.undefined, u)
					w.possibly[u] = usage
				}
			}
		}
	}
}

// rebind returns a copy of s with the given definitions reapplied, as they
// would be when a loop header runs again.
func rebind(s *Scope, defs []defRecord) *Scope {
	if len(defs) == 0 || s.Terminated() {
		return s
	}
	out := s.Clone()
	for _, d := range defs {
		out.RecordDefinitionByID(d.name, d.id)
	}
	return out
}

func (w *phpWalker) isInfinite(cond syntax.NodeID) bool {
	if !cond.Valid() {
		return true
	}
	text := strings.TrimSpace(w.tree.Text(cond))
	text = strings.TrimSuffix(strings.TrimPrefix(text, "("), ")")
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "1":
		return true
	}
	return false
}

func (w *phpWalker) whileStatement(id syntax.NodeID) {
	t := w.tree
	cond := t.ChildByField(id, "condition")

	f := w.pushLoop(false)
	f.phase = phaseCond
	mark := len(w.defLog)
	w.expr(cond)
	condDefs := append([]defRecord(nil), w.defLog[mark:]...)
	afterCond := w.scope

	f.phase = phaseBody
	w.scope = afterCond.Clone()
	w.statement(t.ChildByField(id, "body"))
	end := Merge(append([]*Scope{w.scope}, f.continues...)...)
	w.popLoop()

	next := rebind(end, condDefs)
	w.replay(f, end, next)

	exits := append([]*Scope{next}, f.breaks...)
	if !w.isInfinite(cond) {
		exits = append(exits, afterCond)
	}
	w.scope = Merge(exits...)
}

func (w *phpWalker) doStatement(id syntax.NodeID) {
	t := w.tree
	f := w.pushLoop(false)
	w.scope = w.scope.Clone()
	w.statement(t.ChildByField(id, "body"))
	w.scope = Merge(append([]*Scope{w.scope}, f.continues...)...)

	f.phase = phaseCond
	cond := t.ChildByField(id, "condition")
	w.expr(cond)
	afterCond := w.scope
	w.popLoop()

	w.replay(f, afterCond, afterCond)

	exits := f.breaks
	if !w.isInfinite(cond) {
		exits = append([]*Scope{afterCond}, exits...)
	}
	w.scope = Merge(exits...)
}

// forStatement splits the header on ';' so it works whether or not the
// grammar exposes initialize/condition/update fields.
func (w *phpWalker) forStatement(id syntax.NodeID) {
	t := w.tree
	var sections [3][]syntax.NodeID
	var body syntax.NodeID
	section, closed := 0, false
	for _, c := range t.Children(id) {
		switch kind := t.Kind(c); {
		case kind == ";" && !closed:
			section++
		case kind == ")" && !closed:
			closed = true
		case !t.Node(c).Named || kind == "comment":
		case closed:
			if !body.Valid() {
				body = c
			}
		case section < 3:
			sections[section] = append(sections[section], c)
		}
	}
	if field := t.ChildByField(id, "body"); field.Valid() {
		body = field
	}

	for _, c := range sections[0] {
		w.expr(c)
	}

	f := w.pushLoop(false)
	f.phase = phaseCond
	mark := len(w.defLog)
	for _, c := range sections[1] {
		w.expr(c)
	}
	condDefs := append([]defRecord(nil), w.defLog[mark:]...)
	afterCond := w.scope

	f.phase = phaseBody
	w.scope = afterCond.Clone()
	w.statement(body)
	w.scope = Merge(append([]*Scope{w.scope}, f.continues...)...)

	f.phase = phaseCond
	for _, c := range sections[2] {
		w.expr(c)
	}
	end := w.scope
	w.popLoop()

	next := rebind(end, condDefs)
	w.replay(f, end, next)

	exits := append([]*Scope{next}, f.breaks...)
	if len(sections[1]) > 0 {
		exits = append(exits, afterCond)
	}
	w.scope = Merge(exits...)
}

func (w *phpWalker) foreachStatement(id syntax.NodeID) {
	t := w.tree
	var iterable, binding, body syntax.NodeID
	seenAs, closed := false, false
	for _, c := range t.Children(id) {
		kind := t.Kind(c)
		switch {
		case strings.EqualFold(kind, "as"):
			seenAs = true
		case kind == ")" && !closed:
			closed = true
		case !t.Node(c).Named || kind == "comment":
		case closed:
			if !body.Valid() {
				body = c
			}
		case !seenAs:
			iterable = c
		default:
			binding = c
		}
	}
	if field := t.ChildByField(id, "body"); field.Valid() {
		body = field
	}

	w.expr(iterable)
	entry := w.scope

	f := w.pushLoop(false)
	w.scope = entry.Clone()
	mark := len(w.defLog)
	w.foreachBinding(binding)
	bindDefs := append([]defRecord(nil), w.defLog[mark:]...)

	w.statement(body)
	end := Merge(append([]*Scope{w.scope}, f.continues...)...)
	w.popLoop()

	next := rebind(end, bindDefs)
	w.replay(f, next, next)

	w.scope = Merge(append([]*Scope{entry, end}, f.breaks...)...)
}

func (w *phpWalker) foreachBinding(binding syntax.NodeID) {
	t := w.tree
	if t.Kind(binding) != "pair" {
		w.target(binding, BindForeachVal)
		return
	}
	parts := t.NamedChildren(binding)
	if len(parts) < 2 {
		w.target(binding, BindForeachVal)
		return
	}
	key, value := parts[0], parts[len(parts)-1]
	w.target(key, BindForeachKey)
	w.target(value, BindForeachVal)

	v := value
	if t.Kind(v) == "by_ref" {
		v = t.ChildOfKind(v, "variable_name")
	}
	if t.Kind(v) == "variable_name" {
		node := t.Node(v)
		w.graph.MarkAsLoopValueNode(&node)
	}
}

func (w *phpWalker) switchStatement(id syntax.NodeID) {
	t := w.tree
	w.expr(t.ChildByField(id, "condition"))
	entry := w.scope

	block := t.ChildByField(id, "body")
	if !block.Valid() {
		block = t.ChildOfKind(id, "switch_block")
	}

	f := w.pushLoop(true)
	var fall *Scope
	hasDefault := false
	for _, c := range t.NamedChildren(block) {
		kind := t.Kind(c)
		if kind != "case_statement" && kind != "default_statement" {
			continue
		}
		start := entry.Clone()
		if fall != nil {
			start = Merge(start, fall)
		}
		w.scope = start

		value := t.ChildByField(c, "value")
		if kind == "default_statement" {
			hasDefault = true
		} else if value.Valid() {
			w.expr(value)
		}
		for _, s := range t.NamedChildren(c) {
			if s == value {
				continue
			}
			w.statement(s)
		}
		fall = w.scope
	}
	w.popLoop()

	exits := append([]*Scope{}, f.breaks...)
	exits = append(exits, f.continues...)
	if fall != nil {
		exits = append(exits, fall)
	}
	if !hasDefault {
		exits = append(exits, entry)
	}
	w.scope = Merge(exits...)
}

func (w *phpWalker) tryStatement(id syntax.NodeID) {
	t := w.tree
	entry := w.scope
	mark := len(w.defLog)
	tryEnd := w.branch(entry, func() { w.statement(t.ChildByField(id, "body")) })
	tryDefs := append([]defRecord(nil), w.defLog[mark:]...)

	// A throw can happen after any definition in the try block.
	throwState := func() *Scope {
		s := Merge(entry.Clone(), tryEnd)
		if s.Terminated() {
			s = entry.Clone()
		}
		for _, d := range tryDefs {
			s.include(d.name, d.id)
		}
		return s
	}

	exits := []*Scope{tryEnd}
	var finally syntax.NodeID
	for _, c := range t.NamedChildren(id) {
		switch t.Kind(c) {
		case "catch_clause":
			exits = append(exits, w.branch(throwState(), func() {
				if v := t.ChildByField(c, "name"); v.Valid() {
					w.define(w.varName(v), v, BindCatch)
				}
				w.statement(t.ChildByField(c, "body"))
			}))
		case "finally_clause":
			finally = c
		}
	}

	w.scope = Merge(exits...)
	if !finally.Valid() {
		return
	}
	terminated := w.scope.Terminated()
	if terminated {
		w.scope = throwState()
	}
	w.statement(t.ChildByField(finally, "body"))
	if terminated {
		w.scope.Terminate()
	}
}

func (w *phpWalker) children(id syntax.NodeID) {
	for _, c := range w.tree.NamedChildren(id) {
		w.expr(c)
	}
}

func (w *phpWalker) expr(id syntax.NodeID) {
	if !id.Valid() {
		return
	}
	t := w.tree
	switch kind := t.Kind(id); {
	case kind == "variable_name":
		w.use(w.varName(id), id)
	case kind == "dynamic_variable_name":
		w.dynamic = true
		w.children(id)
	case kind == "assignment_expression":
		w.expr(t.ChildByField(id, "right"))
		w.target(t.ChildByField(id, "left"), BindAssign)
	case kind == "reference_assignment_expression":
		w.referenceAssignment(id)
	case kind == "augmented_assignment_expression":
		w.augmentedAssignment(id)
	case kind == "update_expression":
		w.updateExpression(id)
	case kind == "binary_expression":
		w.binaryExpression(id)
	case kind == "conditional_expression":
		w.conditionalExpression(id)
	case kind == "match_expression":
		w.matchExpression(id)
	case kind == "unary_op_expression":
		if op := t.ChildOfKind(id, "@"); op.Valid() {
			w.quietly(func() { w.children(id) })
			return
		}
		w.children(id)
	case kind == "function_call_expression":
		w.functionCall(id)
	case kind == "member_call_expression", kind == "nullsafe_member_call_expression",
		kind == "scoped_call_expression", kind == "object_creation_expression":
		w.methodCall(id)
	case kind == "scoped_property_access_expression":
		w.expr(t.ChildByField(id, "scope"))
	case isClosureKind(kind):
		w.closureInParent(id)
	case kind == "arrow_function":
		w.arrowInParent(id)
	case kind == "include_expression", kind == "include_once_expression",
		kind == "require_expression", kind == "require_once_expression":
		w.dynamic = true
		w.children(id)
	case kind == "throw_expression":
		w.children(id)
		w.scope.Terminate()
	case kind == "exit_statement":
		w.children(id)
		w.scope.Terminate()
	case kind == "anonymous_class":
		if args := t.ChildOfKind(id, "arguments"); args.Valid() {
			w.arguments(args, "")
		}
	case kind == "function_definition", kind == "class_declaration", kind == "name",
		kind == "comment", kind == "string_content", kind == "string_value":
	default:
		w.children(id)
	}
}

// target records the left-hand side of an assignment.
func (w *phpWalker) target(id syntax.NodeID, kind BindingKind) {
	if !id.Valid() {
		return
	}
	t := w.tree
	switch t.Kind(id) {
	case "variable_name":
		w.define(w.varName(id), id, kind)
	case "by_ref":
		if v := t.ChildOfKind(id, "variable_name"); v.Valid() {
			w.graph.MarkAsReference(w.varName(v))
			w.target(v, kind)
			return
		}
		w.children(id)
	case "list_literal", "array_creation_expression":
		elemKind := kind
		if kind == BindAssign {
			elemKind = BindList
		}
		for _, el := range t.NamedChildren(id) {
			w.destructure(el, elemKind)
		}
	case "subscript_expression":
		w.writeThrough(id)
	case "parenthesized_expression":
		for _, c := range t.NamedChildren(id) {
			w.target(c, kind)
		}
	default:
		w.expr(id)
	}
}

func (w *phpWalker) destructure(el syntax.NodeID, kind BindingKind) {
	t := w.tree
	switch t.Kind(el) {
	case "array_element_initializer", "pair":
		parts := t.NamedChildren(el)
		if len(parts) == 0 {
			return
		}
		for _, key := range parts[:len(parts)-1] {
			w.expr(key)
		}
		w.target(parts[len(parts)-1], kind)
	default:
		w.target(el, kind)
	}
}

// writeThrough handles `$a[...] = v`: the base variable is read, or created
// if nothing defines it yet.
func (w *phpWalker) writeThrough(id syntax.NodeID) {
	t := w.tree
	parts := t.NamedChildren(id)
	if len(parts) == 0 {
		return
	}
	base := parts[0]
	for _, idx := range parts[1:] {
		w.expr(idx)
	}
	switch t.Kind(base) {
	case "variable_name":
		name := w.varName(base)
		if w.scope.Definition(name).Empty() && !implicitVariables[name] {
			w.define(name, base, BindAssign)
			return
		}
		w.use(name, base)
	case "subscript_expression":
		w.writeThrough(base)
	default:
		w.expr(base)
	}
}

func (w *phpWalker) referenceAssignment(id syntax.NodeID) {
	t := w.tree
	right := t.ChildByField(id, "right")
	if t.Kind(right) == "variable_name" {
		name := w.varName(right)
		w.graph.MarkAsReference(name)
		if w.scope.Definition(name).Empty() {
			w.define(name, right, BindAssign)
		} else {
			w.use(name, right)
		}
	} else {
		w.expr(right)
	}

	left := t.ChildByField(id, "left")
	if t.Kind(left) == "variable_name" {
		w.graph.MarkAsReference(w.varName(left))
	}
	w.target(left, BindAssign)
}

func (w *phpWalker) augmentedAssignment(id syntax.NodeID) {
	t := w.tree
	left := t.ChildByField(id, "left")
	right := t.ChildByField(id, "right")
	op := t.Text(t.ChildByField(id, "operator"))
	if op == "" {
		for _, c := range t.Children(id) {
			if !t.Node(c).Named {
				op = t.Kind(c)
			}
		}
	}

	if t.Kind(left) != "variable_name" {
		w.expr(left)
		w.expr(right)
		return
	}
	name := w.varName(left)

	if op == "??=" {
		w.quietly(func() { w.use(name, left) })
		assigned := w.branch(w.scope, func() {
			w.expr(right)
			w.define(name, left, BindAssign)
		})
		w.scope = Merge(w.scope, assigned)
		w.scope.settle(name)
		return
	}

	w.use(name, left)
	w.expr(right)
	w.define(name, left, BindAssign)
}

func (w *phpWalker) updateExpression(id syntax.NodeID) {
	t := w.tree
	for _, c := range t.NamedChildren(id) {
		if t.Kind(c) != "variable_name" {
			w.expr(c)
			continue
		}
		name := w.varName(c)
		w.use(name, c)
		w.define(name, c, BindUpdate)
	}
}

func (w *phpWalker) operator(id syntax.NodeID) string {
	t := w.tree
	if op := t.ChildByField(id, "operator"); op.Valid() {
		return strings.ToLower(t.Text(op))
	}
	for _, c := range t.Children(id) {
		if !t.Node(c).Named {
			return strings.ToLower(t.Kind(c))
		}
	}
	return ""
}

func (w *phpWalker) binaryExpression(id syntax.NodeID) {
	t := w.tree
	left := t.ChildByField(id, "left")
	right := t.ChildByField(id, "right")
	if !left.Valid() || !right.Valid() {
		w.children(id)
		return
	}

	switch w.operator(id) {
	case "??":
		w.quietly(func() { w.expr(left) })
	case "&&", "||", "and", "or":
		w.expr(left)
	default:
		w.expr(left)
		w.expr(right)
		return
	}
	short := w.branch(w.scope, func() { w.expr(right) })
	w.scope = Merge(w.scope, short)
}

func (w *phpWalker) conditionalExpression(id syntax.NodeID) {
	t := w.tree
	w.expr(t.ChildByField(id, "condition"))
	cur := w.scope
	var exits []*Scope
	if body := t.ChildByField(id, "body"); body.Valid() {
		exits = append(exits, w.branch(cur, func() { w.expr(body) }))
	} else {
		exits = append(exits, cur)
	}
	exits = append(exits, w.branch(cur, func() { w.expr(t.ChildByField(id, "alternative")) }))
	w.scope = Merge(exits...)
}

func (w *phpWalker) matchExpression(id syntax.NodeID) {
	t := w.tree
	w.expr(t.ChildByField(id, "condition"))
	cur := w.scope

	block := t.ChildByField(id, "body")
	if !block.Valid() {
		block = t.ChildOfKind(id, "match_block")
	}
	var exits []*Scope
	for _, arm := range t.NamedChildren(block) {
		switch t.Kind(arm) {
		case "match_conditional_expression":
			next := w.branch(cur, func() { w.expr(t.ChildByField(arm, "conditional_expressions")) })
			exits = append(exits, w.branch(next, func() { w.expr(t.ChildByField(arm, "return_expression")) }))
			cur = next
		case "match_default_expression":
			exits = append(exits, w.branch(cur, func() { w.expr(t.ChildByField(arm, "return_expression")) }))
		}
	}
	if len(exits) == 0 {
		return
	}
	w.scope = Merge(exits...)
}

func (w *phpWalker) functionName(call syntax.NodeID) string {
	fn := w.tree.ChildByField(call, "function")
	switch w.tree.Kind(fn) {
	case "name", "qualified_name":
		name := w.tree.Text(fn)
		if i := strings.LastIndex(name, "\\"); i >= 0 {
			name = name[i+1:]
		}
		return strings.ToLower(name)
	}
	return ""
}

func (w *phpWalker) functionCall(id syntax.NodeID) {
	t := w.tree
	name := w.functionName(id)
	args := t.ChildByField(id, "arguments")

	switch {
	case name == "isset" || name == "empty":
		w.quietly(func() { w.children(args) })
		return
	case name == "compact":
		w.compactArguments(args)
		return
	case dynamicFunctions[name]:
		w.dynamic = true
	case name == "parse_str" && len(w.argumentValues(args)) == 1:
		w.dynamic = true
	}

	if name == "" {
		w.expr(t.ChildByField(id, "function"))
	}
	w.arguments(args, name)
}

func (w *phpWalker) methodCall(id syntax.NodeID) {
	t := w.tree
	for _, c := range t.NamedChildren(id) {
		if t.Kind(c) == "arguments" {
			w.arguments(c, "")
			continue
		}
		w.expr(c)
	}
}

func (w *phpWalker) argumentValues(args syntax.NodeID) []syntax.NodeID {
	var out []syntax.NodeID
	for _, a := range w.tree.NamedChildren(args) {
		if w.tree.Kind(a) != "argument" {
			out = append(out, a)
			continue
		}
		parts := w.tree.NamedChildren(a)
		if len(parts) > 0 {
			out = append(out, parts[len(parts)-1])
		}
	}
	return out
}

// arguments walks call arguments. For a known builtin out-parameter, or
// when an undefined variable is passed to a call not in valueArguments, the
// argument is treated as being assigned by reference.
func (w *phpWalker) arguments(args syntax.NodeID, function string) {
	if !args.Valid() {
		return
	}
	out := make(map[int]bool)
	for _, pos := range outArguments[function] {
		out[pos] = true
	}
	for i, v := range w.argumentValues(args) {
		if w.tree.Kind(v) != "variable_name" {
			w.expr(v)
			continue
		}
		name := w.varName(v)
		if implicitVariables[name] {
			continue
		}
		live := !w.scope.Definition(name).Empty()
		switch {
		case out[i]:
			if live {
				w.quietly(func() { w.use(name, v) })
			}
			w.define(name, v, BindOutArg)
		case !live && !valueArguments[function]:
			w.define(name, v, BindOutArg)
		default:
			w.use(name, v)
		}
	}
}

func (w *phpWalker) compactArguments(args syntax.NodeID) {
	t := w.tree
	var visit func(syntax.NodeID)
	visit = func(id syntax.NodeID) {
		switch t.Kind(id) {
		case "string", "encapsed_string":
			name := strings.Trim(t.Text(id), `'"`)
			if name != "" && !strings.ContainsAny(name, "$ {") {
				w.use(name, id)
				return
			}
			w.expr(id)
		case "array_creation_expression", "array_element_initializer", "argument":
			for _, c := range t.NamedChildren(id) {
				visit(c)
			}
		default:
			w.expr(id)
		}
	}
	for _, a := range t.NamedChildren(args) {
		visit(a)
	}
}

// closureInParent records what a closure expression does to the enclosing
// callable: its use clause reads (or, by reference, binds) outer variables.
// The body is analyzed as its own callable.
func (w *phpWalker) closureInParent(id syntax.NodeID) {
	vars, byRef := w.useClauseVars(id)
	for i, v := range vars {
		name := w.varName(v)
		if !byRef[i] {
			w.use(name, v)
			continue
		}
		w.graph.MarkAsReference(name)
		if w.scope.Definition(name).Empty() {
			w.define(name, v, BindCapture)
			continue
		}
		w.use(name, v)
	}
}

// arrowInParent records the implicit by-value captures of an arrow function
// as reads in the enclosing callable.
func (w *phpWalker) arrowInParent(id syntax.NodeID) {
	t := w.tree
	params := w.paramNames(id)
	for _, p := range t.NamedChildren(t.ChildByField(id, "parameters")) {
		if def := t.ChildByField(p, "default_value"); def.Valid() {
			w.expr(def)
		}
	}
	t.Walk(t.ChildByField(id, "body"), func(n syntax.NodeID) bool {
		kind := t.Kind(n)
		switch {
		case isClosureKind(kind):
			w.closureInParent(n)
			return false
		case kind == "arrow_function":
			for name := range w.paramNames(n) {
				params[name] = true
			}
		case kind == "scoped_property_access_expression":
			return false
		case kind == "variable_name":
			if name := w.varName(n); !params[name] {
				w.use(name, n)
			}
			return false
		case kind == "dynamic_variable_name":
			w.dynamic = true
		}
		return true
	})
}
