package dfg

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/phpflow/pkg/syntax"
)

func analyze(t *testing.T, src, name string) *Analysis {
	t.Helper()
	tree, err := syntax.Parse([]byte(src))
	require.NoError(t, err)
	c, err := Find(tree, name)
	require.NoError(t, err)
	return Analyze(tree, c)
}

// defLines returns the lines of every definition of name.
func defLines(a *Analysis, name string) []int {
	var lines []int
	for _, id := range a.Graph.Definitions(name) {
		line, _ := a.Graph.DefinitionLine(name, id)
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// useLines returns the lines of the uses attached to the definitions of
// name on defLine.
func useLines(a *Analysis, name string, defLine int) []int {
	var lines []int
	for _, def := range a.Graph.Definitions(name) {
		if l, _ := a.Graph.DefinitionLine(name, def); l != defLine {
			continue
		}
		for _, use := range a.Graph.Uses(name, def) {
			lines = append(lines, a.Tree.Node(use).Line)
		}
	}
	sort.Ints(lines)
	return lines
}

func usageNames(us []Usage) []string {
	var names []string
	for _, u := range us {
		names = append(names, u.Name)
	}
	return names
}

func unusedNames(a *Analysis) []string {
	var names []string
	for _, d := range a.Graph.UnusedDefinitions() {
		names = append(names, d.Name)
	}
	return names
}

func TestAnalyze_BranchMerge(t *testing.T) {
	a := analyze(t, `<?php
function f($c) {
    $x = 1;
    if ($c) {
        $x = 2;
    }
    echo $x;
}
`, "f")

	assert.Equal(t, []int{3, 5}, defLines(a, "x"))
	assert.Equal(t, []int{7}, useLines(a, "x", 3))
	assert.Equal(t, []int{7}, useLines(a, "x", 5))
	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)
}

func TestAnalyze_IfElseKillsEntryDefinition(t *testing.T) {
	a := analyze(t, `<?php
function f($c) {
    $x = 1;
    if ($c) {
        $x = 2;
    } elseif ($c > 1) {
        $x = 3;
    } else {
        $x = 4;
    }
    return $x;
}
`, "f")

	assert.Empty(t, useLines(a, "x", 3))
	assert.Equal(t, []int{11}, useLines(a, "x", 5))
	assert.Equal(t, []int{11}, useLines(a, "x", 7))
	assert.Equal(t, []int{11}, useLines(a, "x", 9))
	assert.Equal(t, []string{"x"}, unusedNames(a))
}

func TestAnalyze_WhileLoopCarried(t *testing.T) {
	a := analyze(t, `<?php
function g($x) {
    while ($x) {
        $x = next_value();
    }
}
`, "g")

	assert.Equal(t, []int{2, 4}, defLines(a, "x"))
	assert.Equal(t, []int{3}, useLines(a, "x", 2))
	assert.Equal(t, []int{3}, useLines(a, "x", 4), "body definition reaches the condition on the next iteration")
	assert.Empty(t, a.Graph.UnusedDefinitions())
}

func TestAnalyze_ForLoop(t *testing.T) {
	a := analyze(t, `<?php
function h() {
    $sum = 0;
    for ($i = 0; $i < 10; $i++) {
        $sum += $i;
    }
    return $sum;
}
`, "h")

	assert.Empty(t, a.Graph.UnusedDefinitions())
	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)

	for _, e := range a.Graph.Edges() {
		assert.NotEqual(t, e.Def, e.Use, "self edge on %s", e.Name)
	}
	// Both the initial value and the compound assignment reach the return;
	// the compound assignment's own read shares its node, so it gets no edge.
	assert.Equal(t, []int{5, 7}, useLines(a, "sum", 3))
	assert.Equal(t, []int{7}, useLines(a, "sum", 5))
}

func TestAnalyze_LoopUseBeforeDefinitionIsOnlyPossiblyUndefined(t *testing.T) {
	a := analyze(t, `<?php
function k($items) {
    foreach ($items as $item) {
        if ($item) {
            echo $prev;
        }
        $prev = $item;
    }
}
`, "k")

	assert.Empty(t, a.Undefined)
	assert.Equal(t, []string{"prev"}, usageNames(a.PossiblyUndefined))
	assert.Equal(t, []int{5}, useLines(a, "prev", 7))
}

func TestAnalyze_ForeachKeyedValueIsLoopPlaceholder(t *testing.T) {
	a := analyze(t, `<?php
function m($items) {
    foreach ($items as $k => $v) {
        echo $k;
    }
    foreach ($items as $w) {
        echo $w;
    }
}
`, "m")

	vDefs := a.Graph.Definitions("v")
	require.Len(t, vDefs, 1)
	assert.True(t, a.Graph.IsLoopValueDefinitionID(vDefs[0]))
	assert.Equal(t, BindForeachVal, a.Bindings[vDefs[0]])

	kDefs := a.Graph.Definitions("k")
	require.Len(t, kDefs, 1)
	assert.False(t, a.Graph.IsLoopValueDefinitionID(kDefs[0]))
	assert.Equal(t, BindForeachKey, a.Bindings[kDefs[0]])

	wDefs := a.Graph.Definitions("w")
	require.Len(t, wDefs, 1)
	assert.False(t, a.Graph.IsLoopValueDefinitionID(wDefs[0]))
}

func TestAnalyze_UndefinedAndPossiblyUndefined(t *testing.T) {
	a := analyze(t, `<?php
function u($c) {
    if ($c) {
        $y = 1;
    }
    echo $y;
    echo $z;
}
`, "u")

	assert.Equal(t, []string{"z"}, usageNames(a.Undefined))
	assert.Equal(t, []string{"y"}, usageNames(a.PossiblyUndefined))
	assert.Equal(t, 7, a.Undefined[0].Line)
}

func TestAnalyze_ReturnTerminatesBranch(t *testing.T) {
	a := analyze(t, `<?php
function r($c) {
    if ($c) {
        return 1;
    } else {
        $x = 2;
    }
    return $x;
}
`, "r")

	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)
	assert.Equal(t, []int{8}, useLines(a, "x", 6))
}

func TestAnalyze_UnreachableCodeIsNotReported(t *testing.T) {
	a := analyze(t, `<?php
function r() {
    return 1;
    echo $never;
}
`, "r")

	assert.Empty(t, a.Undefined)
}

func TestAnalyze_QuietReads(t *testing.T) {
	a := analyze(t, `<?php
function q() {
    if (isset($a) || empty($b)) {
        return $c ?? 1;
    }
    return @$d;
}
`, "q")

	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)
}

func TestAnalyze_Flags(t *testing.T) {
	a := analyze(t, `<?php
function fl(&$out) {
    global $config;
    static $count = 0;
    $count++;
    $alias = &$config;
    $out = $alias;
}
`, "fl")

	assert.True(t, a.Graph.Flags("out").Has(FlagReference))
	assert.True(t, a.Graph.Flags("config").Has(FlagGlobal))
	assert.True(t, a.Graph.Flags("config").Has(FlagReference))
	assert.True(t, a.Graph.Flags("count").Has(FlagStatic))
	assert.True(t, a.Graph.Flags("alias").Has(FlagReference))
	assert.Equal(t, VarFlags(0), a.Graph.Flags("nothing"))
}

func TestAnalyze_Compact(t *testing.T) {
	a := analyze(t, `<?php
function c() {
    $a = 1;
    $b = 2;
    return compact('a', "b");
}
`, "c")

	assert.Empty(t, a.Graph.UnusedDefinitions())
}

func TestAnalyze_ClosureCaptures(t *testing.T) {
	src := `<?php
function outer() {
    $a = 1;
    $total = 0;
    $f = function ($x) use ($a, &$total) {
        $total += $x;
        return $a;
    };
    return $f;
}
`
	a := analyze(t, src, "outer")
	assert.Equal(t, []int{5}, useLines(a, "a", 3))
	assert.True(t, a.Graph.Flags("total").Has(FlagReference))
	assert.False(t, a.Graph.HasDefinition("x", 0))
	assert.Empty(t, a.Graph.Definitions("x"), "closure parameters belong to the closure")

	tree := a.Tree
	var closure Callable
	for _, c := range Callables(tree) {
		if c.Kind == KindClosure {
			closure = c
		}
	}
	require.True(t, closure.Node.Valid())

	inner := Analyze(tree, closure)
	assert.Equal(t, []int{7}, useLines(inner, "a", 5))
	assert.True(t, inner.Graph.Flags("total").Has(FlagReference))
	assert.Empty(t, inner.Undefined)
}

func TestAnalyze_ArrowFunctionCaptures(t *testing.T) {
	src := `<?php
function outer($items) {
    $factor = 2;
    return array_map(fn($v) => $v * $factor, $items);
}
`
	a := analyze(t, src, "outer")
	assert.Equal(t, []int{4}, useLines(a, "factor", 3))
	assert.Empty(t, a.Graph.Definitions("v"))
	assert.Empty(t, a.Undefined)

	arrow, err := Find(a.Tree, "{arrow}@4")
	require.NoError(t, err)
	inner := Analyze(a.Tree, arrow)
	assert.Empty(t, inner.Undefined)
	assert.Empty(t, inner.Graph.UnusedDefinitions())
}

func TestAnalyze_Dynamic(t *testing.T) {
	a := analyze(t, `<?php
function d($data) {
    extract($data);
    return $title;
}
function plain($x) {
    return $x;
}
`, "d")
	assert.True(t, a.Dynamic)

	b := analyze(t, `<?php
function plain($x) {
    return $x;
}
`, "plain")
	assert.False(t, b.Dynamic)
}

func TestAnalyze_OutArguments(t *testing.T) {
	a := analyze(t, `<?php
function om($s) {
    if (preg_match('/(\d+)/', $s, $m)) {
        return $m[1];
    }
    return null;
}
`, "om")

	assert.Empty(t, a.Undefined)
	defs := a.Graph.Definitions("m")
	require.Len(t, defs, 1)
	assert.Equal(t, BindOutArg, a.Bindings[defs[0]])
}

func TestAnalyze_TryCatch(t *testing.T) {
	a := analyze(t, `<?php
function tc() {
    try {
        $r = risky();
    } catch (Exception $e) {
        $r = null;
    }
    return $r;
}
`, "tc")

	assert.Equal(t, []int{8}, useLines(a, "r", 4))
	assert.Equal(t, []int{8}, useLines(a, "r", 6))
	assert.Equal(t, []string{"e"}, unusedNames(a))
	assert.Empty(t, a.PossiblyUndefined)
}

func TestAnalyze_Switch(t *testing.T) {
	a := analyze(t, `<?php
function sw($v) {
    switch ($v) {
        case 1:
            $label = 'one';
            break;
        case 2:
            $label = 'two';
            break;
        default:
            $label = 'many';
    }
    return $label;
}
`, "sw")

	assert.Empty(t, a.PossiblyUndefined)
	assert.Equal(t, []int{13}, useLines(a, "label", 5))
	assert.Equal(t, []int{13}, useLines(a, "label", 8))
	assert.Equal(t, []int{13}, useLines(a, "label", 11))
}

func TestAnalyze_ListDestructuring(t *testing.T) {
	a := analyze(t, `<?php
function ld($pair) {
    [$a, $b] = $pair;
    list($c) = $pair;
    return $a . $c;
}
`, "ld")

	assert.Equal(t, []string{"b"}, unusedNames(a))
	defs := a.Graph.Definitions("a")
	require.Len(t, defs, 1)
	assert.Equal(t, BindList, a.Bindings[defs[0]])
}

func TestAnalyze_ArrayAppendCreatesVariable(t *testing.T) {
	a := analyze(t, `<?php
function ap() {
    $list[] = 1;
    $list[] = 2;
    return $list;
}
`, "ap")

	assert.Empty(t, a.Undefined)
	assert.Equal(t, []int{3}, defLines(a, "list"))
	assert.Equal(t, []int{4, 5}, useLines(a, "list", 3))
}

func TestAnalyze_ThisAndSuperglobalsIgnored(t *testing.T) {
	a := analyze(t, `<?php
class Box {
    public function get() {
        return $this->value . $_GET['q'];
    }
}
`, "Box::get")

	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.Graph.Names())
}

func TestAnalyze_Deterministic(t *testing.T) {
	src := `<?php
function det($items, $c) {
    $acc = [];
    foreach ($items as $k => $v) {
        if ($c) { $acc[$k] = $v; continue; }
        $acc[] = $k;
    }
    return $acc;
}
`
	first := analyze(t, src, "det")
	for i := 0; i < 5; i++ {
		again := analyze(t, src, "det")
		assert.Equal(t, first.Graph.Edges(), again.Graph.Edges())
		assert.Equal(t, first.Graph.UnusedDefinitions(), again.Graph.UnusedDefinitions())
	}
}

func TestAnalyze_CoalesceAssign(t *testing.T) {
	a := analyze(t, `<?php
function cached($k) {
    static $cache = [];
    $v ??= compute($k);
    return $v;
}
`, "cached")

	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)
	assert.Equal(t, []int{5}, useLines(a, "v", 4))

	b := analyze(t, `<?php
function fallback($v) {
    $v ??= 'x';
    return $v;
}
`, "fallback")

	assert.Empty(t, b.PossiblyUndefined)
	assert.Equal(t, []int{3, 4}, useLines(b, "v", 2))
	assert.Equal(t, []int{4}, useLines(b, "v", 3))
}

func TestAnalyze_IssetGuard(t *testing.T) {
	a := analyze(t, `<?php
function label() {
    if (!isset($label)) {
        $label = 'x';
    }
    return $label;
}
`, "label")

	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)
	assert.Equal(t, []int{6}, useLines(a, "label", 4))

	b := analyze(t, `<?php
function opts($c) {
    if ($c) {
        $opts = [];
    }
    if (empty($opts)) {
        return null;
    }
    return $opts;
}
`, "opts")

	assert.Empty(t, b.PossiblyUndefined, "the guard returns when $opts is unset")

	c := analyze(t, `<?php
function plain($c) {
    if ($c) {
        $x = 1;
    }
    if (isset($x)) {
        $x = 2;
    }
    return $x;
}
`, "plain")

	assert.Equal(t, []string{"x"}, usageNames(c.PossiblyUndefined))
}

func TestAnalyze_DoWhile(t *testing.T) {
	a := analyze(t, `<?php
function d() {
    $i = 0;
    do {
        $i = $i + 1;
    } while ($i < 10);
    return $i;
}
`, "d")

	assert.Equal(t, []int{5}, useLines(a, "i", 3))
	assert.Equal(t, []int{5, 6, 7}, useLines(a, "i", 5))
	assert.Empty(t, a.Undefined)
	assert.Empty(t, a.PossiblyUndefined)
}

func TestAnalyze_InfiniteLoopExitsThroughBreak(t *testing.T) {
	a := analyze(t, `<?php
function poll() {
    while (true) {
        $x = fetch();
        if ($x) {
            break;
        }
    }
    return $x;
}
`, "poll")

	assert.Equal(t, []int{5, 9}, useLines(a, "x", 4))
	assert.Empty(t, a.PossiblyUndefined)
}

func TestAnalyze_TryFinally(t *testing.T) {
	a := analyze(t, `<?php
function tf() {
    try {
        $x = load();
    } finally {
        echo $x;
    }
    return $x;
}
`, "tf")

	assert.Equal(t, []int{6, 8}, useLines(a, "x", 4))
	assert.Empty(t, a.PossiblyUndefined)

	b := analyze(t, `<?php
function allExit() {
    try {
        $x = load();
        return $x;
    } catch (Exception $e) {
        $y = 1;
        throw $e;
    } finally {
        echo $x;
    }
    echo $y;
}
`, "allExit")

	assert.Equal(t, []int{5, 10}, useLines(b, "x", 4))
	assert.Equal(t, []string{"x"}, usageNames(b.PossiblyUndefined), "finally also runs when the try throws before $x is set")
	assert.Empty(t, b.Undefined, "code after a finally whose every exit leaves is unreachable")
}

func TestAnalyze_LeveledBreakAndContinue(t *testing.T) {
	a := analyze(t, `<?php
function firstCell($rows) {
    foreach ($rows as $row) {
        foreach ($row as $cell) {
            if ($cell) {
                $found = $cell;
                break 2;
            }
        }
    }
    return $found;
}
`, "firstCell")

	assert.Equal(t, []int{11}, useLines(a, "found", 6))
	assert.Equal(t, []string{"found"}, usageNames(a.PossiblyUndefined))

	b := analyze(t, `<?php
function countCells($rows) {
    $n = 0;
    foreach ($rows as $row) {
        foreach ($row as $cell) {
            if ($cell === null) {
                continue 2;
            }
            $n = $n + 1;
        }
    }
    return $n;
}
`, "countCells")

	assert.Equal(t, []int{9, 12}, useLines(b, "n", 3))
	assert.Equal(t, []int{9, 12}, useLines(b, "n", 9))
	assert.Empty(t, b.PossiblyUndefined)
}

func TestAnalyze_ContinueInsideSwitch(t *testing.T) {
	a := analyze(t, `<?php
function last($items) {
    foreach ($items as $item) {
        switch ($item) {
            case 1:
                $last = $item;
                continue;
            default:
                $last = 0;
        }
        echo $last;
    }
}
`, "last")

	assert.Equal(t, []int{11}, useLines(a, "last", 6))
	assert.Equal(t, []int{11}, useLines(a, "last", 9))
	assert.Empty(t, a.PossiblyUndefined)
}

func TestAnalyze_Match(t *testing.T) {
	a := analyze(t, `<?php
function pick($kind, $a, $b) {
    return match ($kind) {
        1 => $a,
        2, 3 => $b,
        default => $missing,
    };
}
`, "pick")

	assert.Equal(t, []int{4}, useLines(a, "a", 2))
	assert.Equal(t, []int{5}, useLines(a, "b", 2))
	assert.Equal(t, []string{"missing"}, usageNames(a.Undefined))

	b := analyze(t, `<?php
function arms($kind) {
    match ($kind) {
        1 => $x = 'one',
        default => $x = 'other',
    };
    return $x;
}
`, "arms")

	assert.Equal(t, []int{7}, useLines(b, "x", 4))
	assert.Equal(t, []int{7}, useLines(b, "x", 5))
	assert.Empty(t, b.PossiblyUndefined)
}

func TestAnalyze_Unset(t *testing.T) {
	a := analyze(t, `<?php
function gone() {
    $x = 1;
    unset($x);
    return $x;
}
`, "gone")

	assert.Empty(t, useLines(a, "x", 3))
	assert.Equal(t, []string{"x"}, usageNames(a.Undefined))

	b := analyze(t, `<?php
function maybe($c) {
    $x = 1;
    if ($c) {
        unset($x);
    }
    return $x;
}
`, "maybe")

	assert.Equal(t, []int{7}, useLines(b, "x", 3))
	assert.Equal(t, []string{"x"}, usageNames(b.PossiblyUndefined))
}

func TestAnalyze_ValueArgumentsStayUndefined(t *testing.T) {
	a := analyze(t, `<?php
function va() {
    $n = count($items);
    fill($buffer);
    return $n . $buffer;
}
`, "va")

	assert.Equal(t, []string{"items"}, usageNames(a.Undefined))
	defs := a.Graph.Definitions("buffer")
	require.Len(t, defs, 1)
	assert.Equal(t, BindOutArg, a.Bindings[defs[0]])
}
