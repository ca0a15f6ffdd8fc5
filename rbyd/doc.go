package rbyd

/*

# Rbyd decoding and query primitives

This package decodes and queries rbyd nodes: log-structured, copy-on-write
red-black-yellow B-tree blocks, the building unit of littlefs-style B-trees.
It is strictly read-only; the only encoding code in the package backs the
synthetic image builder used by tests.

## The on-disk unit

An rbyd node is one erase block:

	+----------------------+  4B little-endian revision
	| revision             |
	+----------------------+  tag-prefixed records, appended in log order
	| alt / name / struct  |
	| ...                  |
	| crc (commit)         |
	+----------------------+  more appended commits, until erased space
	| ...                  |

Every record starts with a 2-byte big-endian tag carrying a parity bit, a
leb128 weight, and a leb128 size. Alt tags are header-only: their size field
is a backward jump, and together the alts form an inlined binary search tree
over the ids and tags committed so far. A crc record closes a commit; its
checksum covers everything appended since the previous commit, and its
parity bit doubles as the erased-space detector.

Because the structure is append-only, a block usually holds several
generations of the tree. Fetch finds the newest valid commit (or the
tightest commit for a requested trunk offset, which is how branch pointers
pin a child to the state they were recorded against), and Lookup walks the
alt tree from that trunk without materializing anything.

## Corruption is a value, not an error

Block images come from possibly-interrupted writes, so torn commits and
stale mirrors are expected inputs. Decode-level failures therefore never
surface as Go errors: Fetch returns a falsy Rbyd, Resolve flags the bid
range corrupt and truncates the descent. Errors are reserved for the Device
layer (I/O) and for caller mistakes (bad addresses, bad options).

## Layers

- codec.go / tag.go: leb128, tag headers, branch payloads, CRC-32C
- fetch.go / node.go: commit scan, mirror arbitration, Rbyd values
- lookup.go: alt-tree search and in-order iteration over one node
- btree.go / tree.go: cross-node descent and shape reconstruction
- device.go / blobdevice.go: block sources (file, memory, azure blob)

All id and weight arithmetic is plain int; -1 ids are part of the query
contract (the open lower bound of a search range). Slicing of untrusted
input is bounds-clamped throughout, and the alt walk is step-bounded so a
corrupt jump cycle terminates.

*/
