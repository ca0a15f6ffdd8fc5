package rbyd

import (
	"fmt"
	"strconv"
	"strings"
)

// Addr names one logical node on the block device: one or more candidate
// block addresses (a single block, or a redundant mirror set) and an
// optional trunk offset selecting a historical state of the block.
// A zero Trunk means "the last committed trunk".
//
// When a mirror set is assembled from addresses that each carried their own
// trunk suffix, Trunks holds them per block, parallel to Blocks; a Trunks
// entry overrides Trunk for that block.
type Addr struct {
	Blocks []uint32
	Trunk  int
	Trunks []int
}

// ParseAddr parses the block address forms accepted by the query layer:
//
//	0xa       one block
//	0xa.c     one block, trunk offset c
//	0x{a,b}   mirrored blocks
//	0x{a,b}.c mirrored blocks, trunk offset c
//
// The 0x, 0o and 0b prefixes select the base for every field; no prefix
// means decimal.
func ParseAddr(s string) (Addr, error) {
	s = strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "0o"), strings.HasPrefix(s, "0O"):
		s, base = s[2:], 8
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		s, base = s[2:], 2
	}

	var addr Addr
	if s2, rest, ok := strings.Cut(s, "."); ok {
		trunk, err := strconv.ParseUint(rest, base, 32)
		if err != nil {
			return Addr{}, fmt.Errorf("%w: bad trunk offset %q", ErrBadAddr, rest)
		}
		addr.Trunk = int(trunk)
		s = s2
	}

	parts := []string{s}
	if strings.HasPrefix(s, "{") && strings.Contains(s, "}") {
		parts = strings.Split(s[1:strings.IndexByte(s, '}')], ",")
	}
	for _, p := range parts {
		block, err := strconv.ParseUint(p, base, 32)
		if err != nil {
			return Addr{}, fmt.Errorf("%w: bad block %q", ErrBadAddr, p)
		}
		addr.Blocks = append(addr.Blocks, uint32(block))
	}
	return addr, nil
}
