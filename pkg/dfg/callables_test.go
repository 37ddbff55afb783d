package dfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/phpflow/pkg/syntax"
)

const callablesSource = `<?php
function top($a) {
    return array_map(function ($x) use ($a) { return $x + $a; }, [1]);
}

abstract class Repo {
    abstract public function find($id);

    public function save($entity) {
        $fn = fn($e) => $e;
        return $fn($entity);
    }
}

interface Named {
    public function name();
}
`

func TestCallables(t *testing.T) {
	tree, err := syntax.Parse([]byte(callablesSource))
	require.NoError(t, err)

	var got []string
	for _, c := range Callables(tree) {
		got = append(got, string(c.Kind)+":"+c.String())
	}
	assert.Equal(t, []string{
		"function:top",
		"closure:{closure}@3",
		"method:Repo::save",
		"arrow:{arrow}@10",
	}, got)
}

func TestFind(t *testing.T) {
	tree, err := syntax.Parse([]byte(callablesSource))
	require.NoError(t, err)

	tests := []struct {
		query string
		want  string
	}{
		{"top", "top"},
		{"Repo::save", "Repo::save"},
		{"save", "Repo::save"},
		{"{closure}@3", "{closure}"},
		{"top@2", "top"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, err := Find(tree, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name)
		})
	}

	_, err = Find(tree, "find")
	assert.ErrorIs(t, err, ErrCallableNotFound)
	_, err = Find(tree, "top@99")
	assert.ErrorIs(t, err, ErrCallableNotFound)
}

func TestExtractDFG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calc.php")
	require.NoError(t, os.WriteFile(path, []byte(`<?php
function calc($n) {
    $total = 0;
    foreach ($n as $i) {
        $total += $i;
    }
    return $total;
}
`), 0o644))

	info, err := ExtractDFG(path, "calc")
	require.NoError(t, err)
	assert.Equal(t, "calc", info.FunctionName)
	assert.Contains(t, info.Variables, "total")
	assert.Contains(t, info.Variables, "i")
	assert.NotEmpty(t, info.DataflowEdges)

	for _, e := range info.DataflowEdges {
		assert.Equal(t, RefTypeDefinition, e.DefRef.RefType)
		assert.Equal(t, RefTypeUse, e.UseRef.RefType)
		assert.Equal(t, e.VarName, e.DefRef.Name)
	}

	for i := 1; i < len(info.VarRefs); i++ {
		prev, cur := info.VarRefs[i-1], info.VarRefs[i]
		assert.True(t, prev.Line < cur.Line || (prev.Line == cur.Line && prev.Column <= cur.Column))
	}
}

func TestExtractDFG_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ExtractDFG(filepath.Join(dir, "absent.php"), "main")
	assert.Error(t, err)

	path := filepath.Join(dir, "empty.php")
	require.NoError(t, os.WriteFile(path, []byte("<?php\nfunction a() {}\n"), 0o644))

	_, err = ExtractDFG(path, "missing")
	assert.ErrorIs(t, err, ErrCallableNotFound)
}
