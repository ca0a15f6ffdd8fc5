package rbyd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeEmptyAndSingle(t *testing.T) {
	var empty Rbyd
	edges, depth := empty.Tree()
	assert.Empty(t, edges)
	assert.Equal(t, 0, depth)

	// one entry has no alts and therefore no shape
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("a"))
	b.Commit()
	node := fetchBuilt(t, b)
	edges, depth = node.Tree()
	assert.Empty(t, edges)
	assert.Equal(t, 0, depth)
}

func TestTreeChainShape(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("a"))
	b.AddEntry(TagReg, 1, []byte("b"))
	b.AddEntry(TagReg, 1, []byte("c"))
	b.Commit()
	node := fetchBuilt(t, b)

	edges, depth := node.Tree()
	// two alts stacked in a chain: the outer one sits above the inner one
	assert.Equal(t, 3, depth)
	require.Len(t, edges, 4)

	k := func(id int) NodeKey { return NodeKey{ID: id, Tag: TagReg} }
	want := []NodeEdge{
		{A: k(2), B: k(1), Depth: 0, Color: ColorBlack},
		{A: k(2), B: k(2), Depth: 0, Color: ColorBlack},
		{A: k(1), B: k(0), Depth: 1, Color: ColorBlack},
		{A: k(1), B: k(1), Depth: 1, Color: ColorBlack},
	}
	assert.Equal(t, want, edges)
}

func TestTreeEdgesSortedAndDeduped(t *testing.T) {
	b := NewBlockBuilder(1)
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		b.AddEntry(TagReg, 1, []byte(p))
	}
	b.Commit()
	node := fetchBuilt(t, b)

	edges, depth := node.Tree()
	assert.Equal(t, 5, depth)
	require.Len(t, edges, 8)
	less := func(x, y NodeEdge) bool {
		if x.Depth != y.Depth {
			return x.Depth < y.Depth
		}
		if x.A != y.A {
			return x.A.Less(y.A)
		}
		return x.B.Less(y.B)
	}
	// strictly increasing: sorted with no duplicates
	for i := 1; i < len(edges); i++ {
		assert.True(t, less(edges[i-1], edges[i]), "edges[%d] out of order", i)
	}
	// every endpoint is a live entry
	for _, e := range edges {
		assert.GreaterOrEqual(t, e.A.ID, 0)
		assert.Less(t, e.A.ID, node.Weight)
		assert.GreaterOrEqual(t, e.B.ID, 0)
		assert.Less(t, e.B.ID, node.Weight)
	}
}
