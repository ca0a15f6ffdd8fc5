package rbyd

import (
	"encoding/binary"
	"hash/crc32"
	"math/bits"
)

// The rbyd record stream is self describing; there is no schema beyond the
// bytes. Each record is a 2 byte big-endian tag header followed by two
// leb128 fields (weight, size). Terminal tags are followed by size payload
// bytes, alt-pointers are header only and their size field is the backward
// jump distance. All decoding is best effort on truncated input: the caller
// independently validates what it trusts via the running crc.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C updates a running CRC-32C (reflected Castagnoli) state with data.
// A zero crc is the initial state; feeding spans incrementally is equivalent
// to feeding their concatenation.
func CRC32C(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoli, data)
}

// Popcount parity of the running crc gates whether a tag header can be
// trusted during fetch.
func crcParity(crc uint32) bool {
	return bits.OnesCount32(crc)&1 == 1
}

// FromLE32 decodes a little-endian 32 bit word, zero padding short input.
func FromLE32(data []byte) uint32 {
	var b [4]byte
	copy(b[:], data)
	return binary.LittleEndian.Uint32(b[:])
}

// FromLeb128 decodes a little-endian base-128 unsigned integer, accumulating
// into a 32 bit word. It returns the value and the number of bytes consumed.
// Truncated input yields the bytes seen so far rather than an error.
func FromLeb128(data []byte) (uint32, int) {
	var word uint32
	for i, b := range data {
		word |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return word, i + 1
		}
	}
	return word, len(data)
}

// DecodeTag decodes one tag header: the valid-parity bit, the tag, and the
// leb128 weight and size fields. n is the total header length in bytes; a
// truncated header decodes with n == 0 and must not be trusted.
func DecodeTag(data []byte) (valid bool, tag Tag, weight int, size int, n int) {
	if len(data) < 2 {
		return false, 0, 0, 0, 0
	}
	raw := uint16(data[0])<<8 | uint16(data[1])
	w, d := FromLeb128(data[2:])
	sz, d2 := FromLeb128(data[2+d:])
	return raw>>15 == 1, Tag(raw & 0x7fff), int(w), int(sz), 2 + d + d2
}

// BranchPtr is a decoded branch-pointer payload: the inter-node edge of the
// B-tree. Weight is the id-span the parent recorded for the child, Trunk and
// Block locate the child's committed search structure, and CRC is the
// child's expected commit crc.
type BranchPtr struct {
	Weight int
	Trunk  int
	Block  uint32
	CRC    uint32
}

// DecodeBranch decodes a branch-pointer payload: leb128 weight, trunk and
// block address followed by a le32 crc.
func DecodeBranch(data []byte) BranchPtr {
	w, d1 := FromLeb128(data)
	trunk, d2 := FromLeb128(data[d1:])
	block, d3 := FromLeb128(data[d1+d2:])
	crc := FromLE32(data[d1+d2+d3:])
	return BranchPtr{Weight: int(w), Trunk: int(trunk), Block: block, CRC: crc}
}

// ToLeb128 appends the little-endian base-128 encoding of v. The engine
// never writes; this exists for the test image builder and the encode side
// of branch pointers in synthesized fixtures.
func ToLeb128(b []byte, v uint32) []byte {
	for v > 0x7f {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// ToLE32 appends v little-endian.
func ToLE32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// EncodeTag appends a tag header with the given valid-parity bit.
func EncodeTag(b []byte, valid bool, tag Tag, weight, size int) []byte {
	raw := uint16(tag)
	if valid {
		raw |= 0x8000
	}
	b = append(b, byte(raw>>8), byte(raw))
	b = ToLeb128(b, uint32(weight))
	return ToLeb128(b, uint32(size))
}

// EncodeBranch appends a branch-pointer payload.
func EncodeBranch(b []byte, ptr BranchPtr) []byte {
	b = ToLeb128(b, uint32(ptr.Weight))
	b = ToLeb128(b, uint32(ptr.Trunk))
	b = ToLeb128(b, ptr.Block)
	return ToLE32(b, ptr.CRC)
}
