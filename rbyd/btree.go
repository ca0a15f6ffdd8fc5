package rbyd

import (
	"context"
	"sort"
)

// BTree is a read-only view of a multi-node revision B-tree rooted at one
// (possibly mirrored) block address. It holds no state beyond the fetched
// root; every descent re-fetches children from raw bytes.
type BTree struct {
	r *Reader
	// Root is the fetched root node. It may be the empty node; resolving
	// against an empty root reports the whole tree corrupt once.
	Root Rbyd
}

// Reader exposes the reader the tree was opened with, for direct sibling
// node queries.
func (t *BTree) Reader() *Reader { return t.r }

// OpenBTree fetches the root node for addr and wraps it for descent.
func (r *Reader) OpenBTree(ctx context.Context, addr Addr) (*BTree, error) {
	root, err := r.Fetch(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &BTree{r: r, Root: root}, nil
}

// PathLevel is one level of a root-to-leaf descent: the node visited, the
// local id resolved in it, and every entry sharing that id.
type PathLevel struct {
	Bid    int
	Weight int
	Node   Rbyd
	Rid    int
	Tags   []Entry
}

// Resolution is the result of translating a bid into a leaf position.
type Resolution struct {
	// Done reports that the bid is past the end of the tree.
	Done   bool
	Bid    int
	Weight int
	Node   Rbyd
	Rid    int
	Tags   []Entry
	// Path is the per-level trace, partial when Corrupt.
	Path []PathLevel
	// Corrupt reports a dangling branch: a child that could not be fetched
	// or whose weight or crc disagreed with the parent's branch pointer.
	// The affected bid is still reported so iteration can skip past it.
	Corrupt bool
}

// Resolve walks the tree from the root, translating bid into a path of
// (node, local id) pairs down to a leaf. At each level every entry sharing
// the resolved local id is collected; a branch-pointer entry descends unless
// maxDepth (0 = unlimited) is reached. Device I/O failures are returned as
// errors; format corruption is reported in the Resolution.
func (t *BTree) Resolve(ctx context.Context, bid int, maxDepth int) (Resolution, error) {
	node := t.Root
	rid := bid
	level := 1
	var path []PathLevel

	if !node.Ok() {
		return Resolution{Done: bid > 0, Bid: bid, Node: node, Rid: -1, Corrupt: true}, nil
	}

	for {
		// collect every tag at the resolved local id; ordinary lookups never
		// need this, but we are debugging here
		var tags []Entry
		var branch *Entry
		ridHere := rid
		w := 0
		tag := Tag(0)
		for i := 0; ; i++ {
			e, _, done := node.Lookup(ridHere, tag+1)
			if done || (i != 0 && e.ID != ridHere) {
				break
			}
			tag = e.Tag
			// the first tag fixes the id and carries the span weight
			if i == 0 {
				ridHere, w = e.ID, e.Weight
			}
			if e.Tag == TagBTree {
				b := e
				branch = &b
			}
			tags = append(tags, e)
		}

		path = append(path, PathLevel{
			Bid: bid + (ridHere - rid), Weight: w, Node: node, Rid: ridHere, Tags: tags,
		})

		if branch == nil || (maxDepth != 0 && level >= maxDepth) {
			return Resolution{
				Done: len(tags) == 0,
				Bid:  bid + (ridHere - rid), Weight: w,
				Node: node, Rid: ridHere, Tags: tags, Path: path,
			}, nil
		}

		ptr := DecodeBranch(branch.Data)
		child, err := t.r.Fetch(ctx, Addr{Blocks: []uint32{ptr.Block}, Trunk: ptr.Trunk})
		if err != nil {
			return Resolution{}, err
		}
		// dangling branch: bail here so the caller can keep traversing
		if !child.Ok() || child.Weight != ptr.Weight || child.CRC != ptr.CRC {
			return Resolution{
				Bid: bid + (ridHere - rid), Weight: w,
				Node: child, Rid: -1, Path: path, Corrupt: true,
			}, nil
		}

		rid -= ridHere - (w - 1)
		node = child
		level++
	}
}

// Traverse resolves every bid in order, invoking visit for each leaf (and
// once per corrupted branch). It reports whether any corruption was seen,
// the strict-mode signal the presentation layer may turn into an exit code.
func (t *BTree) Traverse(ctx context.Context, maxDepth int, visit func(Resolution) error) (bool, error) {
	corrupted := false
	bid := -1
	for {
		res, err := t.Resolve(ctx, bid+1, maxDepth)
		if err != nil {
			return corrupted, err
		}
		if res.Done {
			return corrupted, nil
		}
		if res.Corrupt {
			corrupted = true
		}
		if visit != nil {
			if err := visit(res); err != nil {
				return corrupted, err
			}
		}
		bid = res.Bid
	}
}

// PreferredName scans the resolution's path from the leaf upward for a
// name-class entry covering the leaf's left edge. Names recorded higher in
// the tree shadow vestigial copies below them.
func (res *Resolution) PreferredName() *Entry {
	var name *Entry
	for i := len(res.Path) - 1; i >= 0; i-- {
		lvl := res.Path[i]
		for _, e := range lvl.Tags {
			if e.Tag.IsNameClass() {
				n := e
				name = &n
			}
		}
		if lvl.Rid-(lvl.Weight-1) != 0 {
			break
		}
	}
	return name
}

// BKey identifies one rendered position of the composed B-tree shape: the
// global bid, the B-tree level, and the node-local id and tag.
type BKey struct {
	Bid   int
	Level int
	Rid   int
	Tag   Tag
}

func (k BKey) Less(other BKey) bool {
	if k.Bid != other.Bid {
		return k.Bid < other.Bid
	}
	if k.Level != other.Level {
		return k.Level < other.Level
	}
	if k.Rid != other.Rid {
		return k.Rid < other.Rid
	}
	return k.Tag < other.Tag
}

// BEdge is one directed edge of the composed shape.
type BEdge struct {
	A     BKey
	B     BKey
	Depth int
	Color Color
}

// Shape composes the per-node shapes of every level into one edge set for
// the whole B-tree. Node shapes at the same B-tree level are aligned by
// shifting each level's edges by the maximum node-shape depth observed at
// that level. When inner is false every endpoint at a non-leaf level is
// remapped to its nearest surviving leaf-level representative.
func (t *BTree) Shape(ctx context.Context, maxDepth int, inner bool) ([]BEdge, int, error) {
	// first pass: per-level max node-shape depth, for alignment
	levelDepths := map[int]int{}
	_, err := t.Traverse(ctx, maxDepth, func(res Resolution) error {
		for d, lvl := range res.Path {
			if _, rdepth := lvl.Node.Tree(); rdepth > levelDepths[d] {
				levelDepths[d] = rdepth
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	// second pass: collect edges, rebased to left-leaning ids so a global
	// order exists
	edges := map[BEdge]struct{}{}
	_, err = t.Traverse(ctx, maxDepth, func(res Resolution) error {
		shift := 0
		var leaf *BKey
		for d, lvl := range res.Path {
			if len(lvl.Tags) == 0 {
				continue
			}
			rtree, rdepth := lvl.Node.Tree()

			leftLean := func(k NodeKey) NodeKey {
				e, _, _ := lvl.Node.Lookup(k.ID, 0)
				return NodeKey{ID: k.ID - (e.Weight - 1), Tag: k.Tag}
			}
			adjusted := make([]NodeEdge, 0, len(rtree))
			for _, br := range rtree {
				adjusted = append(adjusted, NodeEdge{
					A: leftLean(br.A), B: leftLean(br.B), Depth: br.Depth, Color: br.Color,
				})
			}

			// stitch the parent's branch entry to this node's root
			if leaf != nil {
				rRid, rTag := lvl.Rid-(lvl.Weight-1), lvl.Tags[0].Tag
				if len(adjusted) > 0 {
					root := adjusted[0]
					for _, br := range adjusted[1:] {
						if br.Depth < root.Depth {
							root = br
						}
					}
					rRid, rTag = root.A.ID, root.A.Tag
				}
				edges[BEdge{
					A:     *leaf,
					B:     BKey{Bid: lvl.Bid - lvl.Rid + rRid, Level: d, Rid: rRid, Tag: rTag},
					Depth: shift - 1,
					Color: ColorBlack,
				}] = struct{}{}
			}

			for _, br := range adjusted {
				edges[BEdge{
					A:     BKey{Bid: lvl.Bid - lvl.Rid + br.A.ID, Level: d, Rid: br.A.ID, Tag: br.A.Tag},
					B:     BKey{Bid: lvl.Bid - lvl.Rid + br.B.ID, Level: d, Rid: br.B.ID, Tag: br.B.Tag},
					Depth: br.Depth + shift + levelDepths[d] - rdepth,
					Color: br.Color,
				}] = struct{}{}
			}

			shift += max(levelDepths[d], 1)
			leaf = &BKey{
				Bid: lvl.Bid - (lvl.Weight - 1), Level: d,
				Rid: lvl.Rid - (lvl.Weight - 1), Tag: TagBTree,
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	out := edgeSlice(edges)
	if !inner {
		out = remapToLeaves(out)
	}
	return out, shapeDepth(out), nil
}

// remapToLeaves replaces inner-level endpoints with the highest leaf-level
// representative sharing the same base bid, working up from the deepest
// level so pruned indirections collapse.
func remapToLeaves(edges []BEdge) []BEdge {
	levels := 0
	for _, e := range edges {
		if e.B.Level+1 > levels {
			levels = e.B.Level + 1
		}
	}

	type based struct {
		baseBid int
		e       BEdge
	}
	pairs := make([]based, 0, len(edges))
	for _, e := range edges {
		pairs = append(pairs, based{baseBid: e.B.Bid - e.B.Rid, e: e})
	}

	for lvl := levels - 2; lvl >= 0; lvl-- {
		// highest (shallowest) leaf-level edge per base bid
		roots := map[int]BEdge{}
		for _, p := range pairs {
			if p.e.B.Level == levels-1 {
				if r, ok := roots[p.baseBid]; !ok || p.e.Depth < r.Depth {
					roots[p.baseBid] = p.e
				}
			}
		}
		for i, p := range pairs {
			if p.e.A.Level == lvl {
				if r, ok := roots[p.e.A.Bid]; ok {
					p.e.A = r.B
				}
			}
			if p.e.B.Level == lvl {
				if r, ok := roots[p.e.B.Bid]; ok {
					p.e.B = r.B
				}
			}
			pairs[i] = p
		}
	}

	dedup := map[BEdge]struct{}{}
	for _, p := range pairs {
		dedup[p.e] = struct{}{}
	}
	return edgeSlice(dedup)
}

// NodeShape reduces the tree to one edge per parent/child node link, the
// coarse B-tree level view. When inner is false every endpoint is remapped
// to the leaf it reaches, and names recorded higher in the tree replace
// vestigial leaf names.
func (t *BTree) NodeShape(ctx context.Context, maxDepth int, inner bool) ([]BEdge, int, error) {
	edges := map[BEdge]struct{}{}
	var root *BKey
	branches := map[BKey]BKey{}

	_, err := t.Traverse(ctx, maxDepth, func(res Resolution) error {
		var name *Entry
		if !inner {
			name = res.PreferredName()
		}
		keyTag := func(tags []Entry) Tag {
			if name != nil {
				return name.Tag
			}
			return tags[0].Tag
		}

		a := root
		for d, lvl := range res.Path {
			if len(lvl.Tags) == 0 {
				continue
			}
			b := BKey{
				Bid: lvl.Bid - (lvl.Weight - 1), Level: d,
				Rid: lvl.Rid - (lvl.Weight - 1), Tag: keyTag(lvl.Tags),
			}

			if !inner {
				if _, ok := branches[b]; !ok {
					last := res.Path[len(res.Path)-1]
					if len(last.Tags) == 0 {
						continue
					}
					branches[b] = BKey{
						Bid: last.Bid - (last.Weight - 1), Level: len(res.Path) - 1,
						Rid: last.Rid - (last.Weight - 1), Tag: keyTag(last.Tags),
					}
				}
				b = branches[b]
			}

			if root == nil {
				r := b
				root = &r
				a = root
			}
			edges[BEdge{A: *a, B: b, Depth: d, Color: ColorBlack}] = struct{}{}
			ab := b
			a = &ab
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	out := edgeSlice(edges)
	return out, shapeDepth(out), nil
}

func shapeDepth(edges []BEdge) int {
	depth := 0
	for _, e := range edges {
		if e.Depth+1 > depth {
			depth = e.Depth + 1
		}
	}
	return depth
}

func edgeSlice(edges map[BEdge]struct{}) []BEdge {
	out := make([]BEdge, 0, len(edges))
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
	return out
}
