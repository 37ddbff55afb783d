package dfg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/l3aro/phpflow/pkg/syntax"
)

func TestScope_CloneIsolation(t *testing.T) {
	parent := NewScope()
	parent.RecordDefinitionByID("x", 1)

	child := parent.Clone()
	child.RecordDefinitionByID("x", 2)
	child.RecordDefinitionByID("y", 3)

	assert.Equal(t, []syntax.NodeID{1}, parent.Definition("x").IDs())
	assert.True(t, parent.Definition("y").Empty())
	assert.Equal(t, []syntax.NodeID{2}, child.Definition("x").IDs())

	parent.RecordDefinitionByID("z", 4)
	assert.True(t, child.Definition("z").Empty())
}

func TestScope_MergeUnion(t *testing.T) {
	entry := NewScope()
	entry.RecordDefinitionByID("x", 1)

	a := entry.Clone()
	a.RecordDefinitionByID("x", 2)
	b := entry.Clone()
	b.RecordDefinitionByID("x", 3)

	m := Merge(a, b)
	assert.Equal(t, []syntax.NodeID{2, 3}, m.Definition("x").IDs())
	assert.False(t, m.IsPartial("x"))
}

func TestScope_MergePartial(t *testing.T) {
	entry := NewScope()
	then := entry.Clone()
	then.RecordDefinitionByID("y", 5)

	m := Merge(then, entry)
	assert.Equal(t, []syntax.NodeID{5}, m.Definition("y").IDs())
	assert.True(t, m.IsPartial("y"))

	// Partial survives further merges until redefined.
	again := Merge(m, m.Clone())
	assert.True(t, again.IsPartial("y"))

	again.RecordDefinitionByID("y", 6)
	assert.False(t, again.IsPartial("y"))
}

func TestScope_MergeSkipsTerminated(t *testing.T) {
	entry := NewScope()
	returned := entry.Clone()
	returned.RecordDefinitionByID("x", 1)
	returned.Terminate()

	other := entry.Clone()
	other.RecordDefinitionByID("x", 2)

	m := Merge(returned, other)
	assert.Equal(t, []syntax.NodeID{2}, m.Definition("x").IDs())
	assert.False(t, m.IsPartial("x"))
	assert.False(t, m.Terminated())
}

func TestScope_MergeAllTerminated(t *testing.T) {
	a := NewScope()
	a.Terminate()
	b := NewScope()
	b.Terminate()

	assert.True(t, Merge(a, b).Terminated())
	assert.True(t, Merge().Terminated())
}

func TestScope_Unset(t *testing.T) {
	s := NewScope()
	s.RecordDefinitionByID("x", 1)
	c := s.Clone()
	c.Unset("x")

	assert.True(t, c.Definition("x").Empty())
	assert.False(t, s.Definition("x").Empty())
	assert.Equal(t, []string{"x"}, s.Names())
	assert.Empty(t, c.Names())
}

func TestScope_Include(t *testing.T) {
	s := NewScope()
	s.include("x", 4)
	assert.True(t, s.IsPartial("x"))

	s.RecordDefinitionByID("y", 1)
	s.include("y", 2)
	assert.Equal(t, []syntax.NodeID{1, 2}, s.Definition("y").IDs())
	assert.False(t, s.IsPartial("y"))
}
