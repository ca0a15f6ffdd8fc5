package rbyd

import "sort"

// NodeKey identifies an entry of one node for shape rendering.
type NodeKey struct {
	ID  int
	Tag Tag
}

func (k NodeKey) Less(other NodeKey) bool {
	return keyLess(k.ID, k.Tag, other.ID, other.Tag)
}

// NodeEdge is one directed edge of a node's implied binary-search-tree
// shape: from the left-most entry covered by an alt to the alt's own
// position (rendered as its left-most entry), at a depth normalized so the
// deepest alts sit just above the terminals.
type NodeEdge struct {
	A     NodeKey
	B     NodeKey
	Depth int
	Color Color
}

type altNode struct {
	f, nf      int
	hasF       bool
	hasNF      bool
	c          Color
	key        NodeKey // left-most covered entry, via not-followed edges
	keyDone    bool
	keyVisit   bool
	height     int
	heightDone bool
	heightSeen bool
}

// Tree rebuilds the node's implied binary-search-tree shape as a set of
// directed edges plus the shape's max depth. Alts that were never followed,
// or never fallen through, for any entry are unreachable on one side and are
// pruned, splicing their sole live neighbor to their parent.
func (r *Rbyd) Tree() ([]NodeEdge, int) {
	trunks := map[int]NodeKey{}
	alts := map[int]*altNode{}

	touch := func(off int) *altNode {
		a, ok := alts[off]
		if !ok {
			a = &altNode{}
			alts[off] = a
		}
		return a
	}

	id, tag := -1, Tag(0)
	for {
		e, path, done := r.Lookup(id, tag+1)
		if done {
			break
		}
		id, tag = e.ID, e.Tag

		trunks[e.Off] = NodeKey{ID: e.ID, Tag: e.Tag}
		for _, step := range path {
			a := touch(step.From)
			if step.Followed {
				a.f, a.hasF = step.To, true
			} else {
				a.nf, a.hasNF = step.To, true
			}
			a.c = step.Color
		}
	}

	// prune one-sided alts, collapsing splice chains transitively
	pruned := map[int]int{}
	for off, a := range alts {
		switch {
		case !a.hasF:
			pruned[off] = a.nf
		case !a.hasNF:
			pruned[off] = a.f
		}
	}
	for off := range pruned {
		delete(alts, off)
	}
	chase := func(off int) int {
		// bounded so a corrupt splice cycle cannot spin
		for i := 0; i < len(pruned)+1; i++ {
			next, ok := pruned[off]
			if !ok {
				return off
			}
			off = next
		}
		return off
	}
	for _, a := range alts {
		a.f = chase(a.f)
		a.nf = chase(a.nf)
	}

	// left-most covered entry of each alt, as if pruned alts never existed
	entryKey := func(off int) NodeKey {
		if k, ok := trunks[off]; ok {
			return k
		}
		return NodeKey{ID: -1, Tag: 0}
	}
	var leftmost func(off int) NodeKey
	leftmost = func(off int) NodeKey {
		a, ok := alts[off]
		if !ok {
			return entryKey(off)
		}
		if a.keyDone {
			return a.key
		}
		if a.keyVisit {
			// corrupt cycle
			return NodeKey{ID: -1, Tag: 0}
		}
		a.keyVisit = true
		a.key = leftmost(a.nf)
		a.keyDone = true
		return a.key
	}

	var height func(off int) int
	height = func(off int) int {
		a, ok := alts[off]
		if !ok {
			return 0
		}
		if a.heightDone {
			return a.height
		}
		if a.heightSeen {
			return 0
		}
		a.heightSeen = true
		hf, hnf := height(a.f), height(a.nf)
		a.height = max(hf, hnf) + 1
		a.heightDone = true
		return a.height
	}

	depth := 0
	for off := range alts {
		leftmost(off)
		if h := height(off); h+1 > depth {
			depth = h + 1
		}
	}

	edges := map[NodeEdge]struct{}{}
	for _, a := range alts {
		from := a.key
		to := leftmost(a.f)
		d := depth - 1 - a.height
		// the vertical edge carries the alt's color, the cross edge to the
		// followed side is always black
		edges[NodeEdge{A: from, B: from, Depth: d, Color: a.c}] = struct{}{}
		edges[NodeEdge{A: from, B: to, Depth: d, Color: ColorBlack}] = struct{}{}
	}

	out := make([]NodeEdge, 0, len(edges))
	for e := range edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		if out[i].A != out[j].A {
			return out[i].A.Less(out[j].A)
		}
		return out[i].B.Less(out[j].B)
	})
	return out, depth
}
