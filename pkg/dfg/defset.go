package dfg

import (
	"slices"

	"github.com/l3aro/phpflow/pkg/syntax"
)

// DefSet is an immutable, sorted set of definition IDs. Values may be shared
// freely between scopes; every operation returns a new set.
type DefSet struct {
	ids []syntax.NodeID
}

// NewDefSet builds a set from ids, dropping invalid IDs and duplicates.
func NewDefSet(ids ...syntax.NodeID) DefSet {
	out := make([]syntax.NodeID, 0, len(ids))
	for _, id := range ids {
		if id.Valid() {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return DefSet{ids: slices.Compact(out)}
}

// Len returns the number of definitions in the set.
func (s DefSet) Len() int {
	return len(s.ids)
}

// Empty reports whether the set has no definitions.
func (s DefSet) Empty() bool {
	return len(s.ids) == 0
}

// Contains reports whether id is in the set.
func (s DefSet) Contains(id syntax.NodeID) bool {
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

// IDs returns a copy of the members in ascending order.
func (s DefSet) IDs() []syntax.NodeID {
	return slices.Clone(s.ids)
}

// Union merges two sets.
func (s DefSet) Union(other DefSet) DefSet {
	switch {
	case len(other.ids) == 0:
		return s
	case len(s.ids) == 0:
		return other
	}
	out := make([]syntax.NodeID, 0, len(s.ids)+len(other.ids))
	i, j := 0, 0
	for i < len(s.ids) && j < len(other.ids) {
		switch {
		case s.ids[i] < other.ids[j]:
			out = append(out, s.ids[i])
			i++
		case s.ids[i] > other.ids[j]:
			out = append(out, other.ids[j])
			j++
		default:
			out = append(out, s.ids[i])
			i++
			j++
		}
	}
	out = append(out, s.ids[i:]...)
	out = append(out, other.ids[j:]...)
	return DefSet{ids: out}
}

// Equal reports whether both sets hold the same IDs.
func (s DefSet) Equal(other DefSet) bool {
	return slices.Equal(s.ids, other.ids)
}
