package rbyd

import (
	"fmt"
	"strings"
)

// Rbyd is one committed version of a block's contents: a read-only view of
// the node, fetched fresh from raw bytes on every query and never mutated.
//
// A node with Trunk == 0 is the empty state. It stands in uniformly for a
// genuinely empty node and for an unrecoverable fetch failure; callers must
// test Ok before trusting anything beyond the address.
type Rbyd struct {
	Block  uint32
	Data   []byte
	Rev    uint32
	Off    int
	Trunk  int
	Weight int
	// CRC is the running crc at the commit that established Off/Trunk/Weight.
	// The descender checks it against the expectation a parent recorded.
	CRC uint32
	// OtherBlocks are the sibling mirror addresses when the node was fetched
	// from a redundant set. Diagnostics only.
	OtherBlocks []uint32
}

// Ok reports whether the node holds a committed search structure.
func (r *Rbyd) Ok() bool { return r.Trunk != 0 }

// Addr renders the node's address in the block[.trunk] form accepted by
// ParseAddr, including sibling mirrors.
func (r *Rbyd) Addr() string {
	if len(r.OtherBlocks) == 0 {
		return fmt.Sprintf("0x%x.%x", r.Block, r.Trunk)
	}
	others := make([]string, 0, len(r.OtherBlocks))
	for _, block := range r.OtherBlocks {
		others = append(others, fmt.Sprintf("%x", block))
	}
	return fmt.Sprintf("0x{%x,%s}.%x", r.Block, strings.Join(others, ","), r.Trunk)
}

// Same reports whether two fetches landed on the same committed structure.
func (r *Rbyd) Same(other *Rbyd) bool {
	return r.Block == other.Block && r.Trunk == other.Trunk
}
