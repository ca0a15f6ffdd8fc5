package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"

	"github.com/CasualCCodeReviewers/littlefs/rbyd"
)

// tagRepr renders a tag the way it reads in the format docs: class name,
// optional rm prefix, weight and size. Unknown classes fall back to hex.
func tagRepr(t rbyd.Tag, w, size int) string {
	rm := ""
	if t&rbyd.TagRm != 0 {
		rm = "rm"
	}
	wRepr := ""
	if w != 0 {
		wRepr = fmt.Sprintf(" w%d", w)
	}
	// rm tags usually carry no payload, elide the zero
	szRepr := ""
	if t&rbyd.TagRm == 0 || size != 0 {
		szRepr = fmt.Sprintf(" %d", size)
	}

	switch {
	case t&0x7fff == rbyd.TagUnr:
		if size == 0 {
			szRepr = ""
		}
		return fmt.Sprintf("unr%s%s", wRepr, szRepr)

	case t&0x6fff == rbyd.TagSuperMagic:
		return fmt.Sprintf("%ssupermagic%s%s", rm, wRepr, szRepr)

	case t&0x6fff == rbyd.TagSuperConfig:
		return fmt.Sprintf("%ssuperconfig%s%s", rm, wRepr, szRepr)

	case t&0x6f00 == rbyd.TagName:
		var name string
		switch t & 0x6fff {
		case rbyd.TagBranch:
			name = "branch"
		case rbyd.TagReg:
			name = "reg"
		case rbyd.TagDir:
			name = "dir"
		default:
			name = fmt.Sprintf("name 0x%02x", (t&0x0ff0)>>4)
		}
		return fmt.Sprintf("%s%s%s%s", rm, name, wRepr, szRepr)

	case t&0x6f00 == rbyd.TagStruct:
		var name string
		switch t & 0x6fff {
		case rbyd.TagInlined:
			name = "inlined"
		case rbyd.TagBlock:
			name = "block"
		case rbyd.TagBTree:
			name = "btree"
		case rbyd.TagMRoot, rbyd.TagMDir:
			name = "mdir"
		default:
			name = fmt.Sprintf("struct 0x%02x", (t&0x0ff0)>>4)
		}
		return fmt.Sprintf("%s%s%s%s", rm, name, wRepr, szRepr)

	case t&0x6f00 == rbyd.TagUAttr:
		return fmt.Sprintf("%suattr 0x%02x%s%s", rm, t&0xff, wRepr, szRepr)

	case t&0x7f00 == rbyd.TagCRC:
		wRepr = ""
		if w > 0 {
			wRepr = fmt.Sprintf(" 0x%x", w)
		}
		return fmt.Sprintf("crc%x%s %d", t&0x1, wRepr, size)

	case t&0x7fff == rbyd.TagFCRC:
		wRepr = ""
		if w > 0 {
			wRepr = fmt.Sprintf(" 0x%x", w)
		}
		return fmt.Sprintf("fcrc%s %d", wRepr, size)

	case t.IsAlt():
		r, gt := "b", "le"
		if t.IsRed() {
			r = "r"
		}
		if t.IsGt() {
			gt = "gt"
		}
		return fmt.Sprintf("alt%s%s 0x%x w%d -%d", r, gt, t&0x0fff, w, size)

	default:
		return fmt.Sprintf("0x%04x w%d %d", t, w, size)
	}
}

func printable(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		if b >= ' ' && b <= '~' {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// xxdLines renders data as hex-dump lines, width bytes per line.
func xxdLines(data []byte, width int) []string {
	var lines []string
	for i := 0; i < len(data); i += width {
		chunk := data[i:min(i+width, len(data))]
		hexes := make([]string, 0, len(chunk))
		for _, b := range chunk {
			hexes = append(hexes, fmt.Sprintf("%02x", b))
		}
		lines = append(lines, fmt.Sprintf("%-*s %-*s",
			3*width, strings.Join(hexes, " "),
			width, printable(chunk)))
	}
	return lines
}

type renderer struct {
	out io.Writer
	bt  *rbyd.BTree
	o   *options

	edges  []rbyd.BEdge
	tDepth int
	tWidth int
	wWidth int

	prev    *rbyd.Rbyd
	yellow  *color.Color
	red     *color.Color
	hiBlack *color.Color
}

func newRenderer(out io.Writer, bt *rbyd.BTree, o *options) *renderer {
	switch o.colorMode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	}
	return &renderer{
		out:     out,
		bt:      bt,
		o:       o,
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
		hiBlack: color.New(color.FgHiBlack),
	}
}

func (rn *renderer) paint(c rbyd.Color, s string) string {
	switch c {
	case rbyd.ColorYellow:
		return rn.yellow.Sprint(s)
	case rbyd.ColorRed:
		return rn.red.Sprint(s)
	case rbyd.ColorBlack:
		return rn.hiBlack.Sprint(s)
	default:
		return s
	}
}

// branchRepr picks the glyph for one key at one depth column, threading the
// pass-through color for horizontal runs.
func (rn *renderer) branchRepr(x rbyd.BKey, d int, was rbyd.Color) (string, rbyd.Color, rbyd.Color) {
	within := func(e rbyd.BEdge) bool {
		lo, hi := e.A, e.B
		if hi.Less(lo) {
			lo, hi = hi, lo
		}
		return lo.Less(x) && x.Less(hi)
	}

	for _, e := range rn.edges {
		if e.Depth != d || e.B != x {
			continue
		}
		joins := false
		spans := false
		for _, e2 := range rn.edges {
			if e2.Depth != d {
				continue
			}
			if e2.A == x {
				joins = true
			}
			if within(e2) {
				spans = true
			}
		}
		switch {
		case joins:
			return "+-", e.Color, e.Color
		case spans:
			return "|-", e.Color, e.Color
		case e.A.Less(e.B):
			return "'-", e.Color, e.Color
		default:
			return ".-", e.Color, e.Color
		}
	}
	for _, e := range rn.edges {
		if e.Depth == d && e.A == x {
			return "+ ", e.Color, 0
		}
	}
	for _, e := range rn.edges {
		if e.Depth == d && within(e) {
			return "| ", e.Color, was
		}
	}
	if was != 0 {
		return "--", was, was
	}
	return "  ", 0, 0
}

func (rn *renderer) treeRepr(lvl rbyd.PathLevel, bd int, tag rbyd.Tag) string {
	if rn.tDepth == 0 {
		return ""
	}
	x := rbyd.BKey{
		Bid:   lvl.Bid - (lvl.Weight - 1),
		Level: bd,
		Rid:   lvl.Rid - (lvl.Weight - 1),
		Tag:   tag,
	}

	var sb strings.Builder
	var was rbyd.Color
	for d := 0; d < rn.tDepth; d++ {
		glyph, c, w := rn.branchRepr(x, d, was)
		was = w
		if d == rn.tDepth-1 {
			if was != 0 {
				glyph += ">"
			} else {
				glyph += " "
			}
		}
		sb.WriteString(rn.paint(c, glyph))
	}
	sb.WriteString(" ")
	return sb.String()
}

// nodeLabel interleaves node addresses: only the first row after the
// rendered node changes carries one.
func (rn *renderer) nodeLabel(node *rbyd.Rbyd) string {
	if rn.prev != nil && rn.prev.Same(node) {
		return ""
	}
	n := *node
	rn.prev = &n
	return fmt.Sprintf("%04x.%04x:", node.Block, node.Trunk)
}

// branch prints one resolved position: every tag at the id, then the raw
// encodings the flags ask for.
func (rn *renderer) branch(lvl rbyd.PathLevel, bd int) {
	for i, e := range lvl.Tags {
		w := lvl.Weight
		if i != 0 {
			w = 0
		}

		ids := ""
		if i == 0 {
			switch {
			case lvl.Weight > 1:
				ids = fmt.Sprintf("%d-%d", lvl.Bid-(lvl.Weight-1), lvl.Bid)
			case lvl.Weight > 0:
				ids = fmt.Sprintf("%d", lvl.Bid)
			}
		}

		data := ""
		switch {
		case e.Tag.IsNameClass():
			data = printable(e.Data)
		case !rn.o.noTruncate:
			if lines := xxdLines(e.Data, 8); len(lines) > 0 {
				data = lines[0]
			}
		}

		tree := ""
		if rn.o.tree || rn.o.btree {
			tree = rn.treeRepr(lvl, bd, e.Tag)
		}

		fmt.Fprintf(rn.out, "%10s %s%*s %-22s  %s\n",
			rn.nodeLabel(&lvl.Node), tree, rn.wWidth, ids,
			tagRepr(e.Tag, w, len(e.Data)), data)
	}

	if rn.o.device {
		for i, e := range lvl.Tags {
			w := lvl.Weight
			if i != 0 {
				w = 0
			}
			words := make([]string, 0, 3)
			for k := 0; k < len(e.Data) && k < 12; k += 4 {
				words = append(words, fmt.Sprintf("%08x",
					rbyd.FromLE32(e.Data[k:min(k+4, len(e.Data))])))
			}
			repr := fmt.Sprintf("%04x %08x %07x", uint16(e.Tag), w, len(e.Data))
			raw := "  " + strings.Join(words, " ")
			if len(raw) > 23 {
				raw = raw[:23]
			}
			fmt.Fprintf(rn.out, "%9s  %*s%*s %-22s%s\n",
				"", rn.tWidth, "", rn.wWidth, "", repr, raw)
		}
	}

	for _, e := range lvl.Tags {
		if rn.o.raw {
			header := lvl.Node.Data[e.Off:min(e.Off+e.HeaderLen, len(lvl.Node.Data))]
			for o, line := range xxdLines(header, 16) {
				fmt.Fprintf(rn.out, "%9s: %*s%*s %s\n",
					fmt.Sprintf("%04x", e.Off+o*16),
					rn.tWidth, "", rn.wWidth, "", line)
			}
		}
		// name payloads already print in full in the data column
		if rn.o.raw || (rn.o.noTruncate && !e.Tag.IsNameClass()) {
			for o, line := range xxdLines(e.Data, 16) {
				fmt.Fprintf(rn.out, "%9s: %*s%*s %s\n",
					fmt.Sprintf("%04x", e.Off+e.HeaderLen+o*16),
					rn.tWidth, "", rn.wWidth, "", line)
			}
		}
	}
}

func samePathLevel(a, b rbyd.PathLevel) bool {
	return a.Node.Same(&b.Node) && a.Bid == b.Bid && a.Rid == b.Rid
}

// dump prints the whole tree: header, optional shape glyphs, every leaf (and
// inner entry when asked), and corruption markers. It reports whether any
// corruption was seen.
func (rn *renderer) dump(ctx context.Context) (bool, error) {
	o := rn.o
	root := &rn.bt.Root
	fmt.Fprintf(rn.out, "btree %s, rev %d, weight %d\n",
		root.Addr(), root.Rev, root.Weight)

	var err error
	var depth int
	switch {
	case o.tree:
		rn.edges, depth, err = rn.bt.Shape(ctx, o.depth, o.inner)
	case o.btree:
		rn.edges, depth, err = rn.bt.NodeShape(ctx, o.depth, o.inner)
	}
	if err != nil {
		return false, err
	}
	rn.tDepth = depth
	if depth > 0 {
		rn.tWidth = 2*depth + 2
	}
	rn.wWidth = 2*int(math.Ceil(math.Log10(float64(max(1, root.Weight)+1)))) + 1

	trailer := "data (truncated)"
	if o.noTruncate {
		trailer = ""
	}
	fmt.Fprintf(rn.out, "%-9s  %*s%-*s %-22s  %s\n",
		"rbyd", rn.tWidth, "", rn.wWidth, "ids", "tag", trailer)

	var ppath []rbyd.PathLevel
	return rn.bt.Traverse(ctx, o.depth, func(res rbyd.Resolution) error {
		if o.inner {
			changed := false
			for d := 0; d < len(res.Path)-1; d++ {
				if !changed && d < len(ppath)-1 && samePathLevel(res.Path[d], ppath[d]) {
					continue
				}
				changed = true
				rn.branch(res.Path[d], d)
			}
		}
		ppath = res.Path

		if res.Corrupt {
			n := res.Node
			fmt.Fprintf(rn.out, "%04x.%04x: %*s%s\n",
				n.Block, n.Trunk, rn.tWidth, "",
				rn.red.Sprintf("(corrupted rbyd %s)", n.Addr()))
			rn.prev = &n
			return nil
		}

		tags := res.Tags
		if !o.inner {
			if name := res.PreferredName(); name != nil {
				named := []rbyd.Entry{*name}
				for _, e := range tags {
					if !e.Tag.IsNameClass() {
						named = append(named, e)
					}
				}
				tags = named
			}
		}
		rn.branch(rbyd.PathLevel{
			Bid: res.Bid, Weight: res.Weight, Node: res.Node, Rid: res.Rid, Tags: tags,
		}, len(res.Path)-1)
		return nil
	})
}
