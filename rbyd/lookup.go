package rbyd

// Entry is one live record of a node: the terminal tag resolved for an
// (id, tag) query, its id-span weight, and its payload. Off and HeaderLen
// locate the raw encoding inside the node's buffer for diagnostics.
type Entry struct {
	ID        int
	Tag       Tag
	Weight    int
	Off       int
	HeaderLen int
	Data      []byte
}

// PathStep records one binary search decision: the byte offsets of the alt
// stepped from and to, whether the alt was followed (jumped) or fallen
// through, and the display color of the edge.
type PathStep struct {
	From     int
	To       int
	Followed bool
	Color    Color
}

// tagAt decodes just the tag at off, zero when out of bounds or truncated.
func (r *Rbyd) tagAt(off int) Tag {
	if off < 0 || off >= len(r.Data) {
		return 0
	}
	_, tag, _, _, d := DecodeTag(r.Data[off:])
	if d == 0 {
		return 0
	}
	return tag
}

// Lookup binary searches the node's embedded alt-pointer structure for the
// smallest entry at or after (id, tag). done reports that no such entry
// exists: the terminal found is lexicographically before the query, or
// carries the removed marker. The returned path is the full decision trace,
// consumed by the shape reconstructor.
//
// Empty nodes are always done. The search is bounded by the buffer length so
// corrupt alt cycles terminate rather than spin.
func (r *Rbyd) Lookup(id int, tag Tag) (Entry, []PathStep, bool) {
	if !r.Ok() {
		return Entry{}, nil, true
	}

	lower := -1
	upper := r.Weight
	var path []PathStep

	j := r.Trunk
	for i := 0; i < len(r.Data)+1; i++ {
		if j < 0 || j >= len(r.Data) {
			return Entry{}, path, true
		}
		_, alt, weight, jump, d := DecodeTag(r.Data[j:])
		if d == 0 {
			return Entry{}, path, true
		}

		if !alt.IsAlt() {
			// terminal: the candidate range has narrowed to one id
			foundID := upper - 1
			w := foundID - lower
			done := keyLess(foundID, alt, id, tag) || alt.IsRemoved()

			lo, hi := j+d, j+d+jump
			if lo > len(r.Data) {
				lo = len(r.Data)
			}
			if hi > len(r.Data) {
				hi = len(r.Data)
			}
			e := Entry{ID: foundID, Tag: alt, Weight: w, Off: j, HeaderLen: d, Data: r.Data[lo:hi]}
			return e, path, done
		}

		var follow bool
		if alt.IsGt() {
			follow = keyLess(upper-weight-1, alt.Key(), id, tag.Key())
		} else {
			follow = !keyLess(lower+weight, alt.Key(), id, tag.Key())
		}

		if follow {
			if alt.IsGt() {
				lower += upper - lower - 1 - weight
			} else {
				upper -= upper - lower - 1 - weight
			}
			j -= jump

			c := ColorBlack
			if alt.IsRed() {
				if r.tagAt(j + jump + d).IsRed() {
					c = ColorYellow
				} else {
					c = ColorRed
				}
			}
			path = append(path, PathStep{From: j + jump, To: j, Followed: true, Color: c})
		} else {
			if alt.IsGt() {
				upper -= weight
			} else {
				lower += weight
			}
			j += d

			c := ColorBlack
			if alt.IsRed() {
				if r.tagAt(j).IsRed() {
					c = ColorYellow
				} else {
					c = ColorRed
				}
			}
			path = append(path, PathStep{From: j - d, To: j, Followed: false, Color: c})
		}
	}
	// only reachable via a corrupt alt cycle
	return Entry{}, path, true
}

// Entries iterates the node exhaustively, yielding every live entry in
// ascending (id, tag) order. Each step is a fresh O(log n) lookup; this is a
// debugging surface, not a hot path.
func (r *Rbyd) Entries() []Entry {
	var entries []Entry
	id, tag := -1, Tag(0)
	for {
		e, _, done := r.Lookup(id, tag+1)
		if done {
			break
		}
		id, tag = e.ID, e.Tag
		entries = append(entries, e)
	}
	return entries
}
