package syntax

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?php
function add($a, $b) {
    $sum = $a + $b;
    return $sum;
}
`

func TestParse_AssignsSequentialIDs(t *testing.T) {
	tree, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Greater(t, tree.Len(), 10)
	assert.Equal(t, NodeID(1), tree.Root())
	assert.Equal(t, "program", tree.Kind(tree.Root()))

	prev := NoNode
	tree.Walk(tree.Root(), func(id NodeID) bool {
		assert.Equal(t, prev+1, id, "pre-order walk should visit ids in order")
		prev = id
		return true
	})
	assert.Equal(t, NodeID(tree.Len()), prev)
}

func TestParse_Fields(t *testing.T) {
	tree, err := Parse([]byte(sample))
	require.NoError(t, err)

	var fn NodeID
	tree.Walk(tree.Root(), func(id NodeID) bool {
		if tree.Kind(id) == "function_definition" {
			fn = id
			return false
		}
		return true
	})
	require.True(t, fn.Valid())

	name := tree.ChildByField(fn, "name")
	assert.Equal(t, "add", tree.Text(name))

	body := tree.ChildByField(fn, "body")
	assert.Equal(t, "compound_statement", tree.Kind(body))
	assert.Equal(t, fn, tree.Parent(body))

	params := tree.ChildByField(fn, "parameters")
	assert.Len(t, tree.NamedChildren(params), 2)
	assert.Equal(t, 2, tree.Node(fn).Line)
}

func TestTree_UnknownIDs(t *testing.T) {
	tree, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, Node{}, tree.Node(NoNode))
	assert.Equal(t, Node{}, tree.Node(NodeID(tree.Len()+1)))
	assert.Nil(t, tree.Children(-3))
	assert.Equal(t, "", tree.Text(NoNode))
	assert.Equal(t, NoNode, tree.ChildByField(NoNode, "body"))
	assert.False(t, NoNode.Valid())
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.php")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	tree, err := ParseFile(path)
	require.NoError(t, err)
	assert.False(t, tree.HasError())

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.php"))
	assert.Error(t, err)
}
