package rbyd

// Tag is the 16 bit record discriminator read from a block's record stream.
//
// .       | v | alt | gt | rm |      type / key      |
// bits    | 15| 14  | 13 | 12 | 11                 0 |
//
// Bit 15 is the valid-parity bit used for commit boundary detection and is
// stripped by DecodeTag; it never appears in a Tag held by the engine. Bit 14
// marks the tag as an alt-pointer, structural metadata of the node's embedded
// search tree. For alt-pointers bit 13 selects the comparison direction
// (greater-than vs less-or-equal) and bit 12 is the balance color. For
// terminal tags bit 12 is the removed marker and the remaining bits select
// the type class.
type Tag uint16

const (
	TagUnr         Tag = 0x1000
	TagSuperMagic  Tag = 0x0003
	TagSuperConfig Tag = 0x0004
	TagMRoot       Tag = 0x0304
	TagName        Tag = 0x0100
	TagBranch      Tag = 0x0100
	TagReg         Tag = 0x0101
	TagDir         Tag = 0x0102
	TagStruct      Tag = 0x0300
	TagInlined     Tag = 0x0300
	TagBlock       Tag = 0x0302
	TagBTree       Tag = 0x0303
	TagMDir        Tag = 0x0305
	TagUAttr       Tag = 0x0400
	TagAlt         Tag = 0x4000
	TagCRC         Tag = 0x2000
	TagFCRC        Tag = 0x2100
)

const (
	// TagAltGt selects the greater-than comparison for an alt-pointer. Clear
	// means less-or-equal.
	TagAltGt Tag = 0x2000
	// TagAltRed is the alt-pointer color bit, meaningful only for shape
	// rendering, never for search decisions.
	TagAltRed Tag = 0x1000
	// TagRm marks a terminal tag as removed. A removed terminal ends a
	// search with no further matching entries.
	TagRm Tag = 0x1000

	// tagKeyMask selects the key bits compared during lookup.
	tagKeyMask Tag = 0x0fff
)

// IsAlt reports whether the tag is an alt-pointer rather than a terminal.
func (t Tag) IsAlt() bool { return t&TagAlt != 0 }

// IsGt reports the alt-pointer comparison direction.
func (t Tag) IsGt() bool { return t&TagAltGt != 0 }

// IsRed reports the alt-pointer color bit.
func (t Tag) IsRed() bool { return t&TagAltRed != 0 }

// IsRemoved reports the terminal removed marker.
func (t Tag) IsRemoved() bool { return t&TagRm != 0 }

// IsCRCClass reports whether the tag is a crc record. Note that fcrc tags are
// not crc records, their payload folds into the running crc like any other.
func (t Tag) IsCRCClass() bool { return t&0x7f00 == TagCRC }

// IsNameClass reports whether the tag carries an entry name.
func (t Tag) IsNameClass() bool { return t&0x7f00 == TagName }

// Key returns the bits of the tag compared against an alt-pointer threshold.
func (t Tag) Key() Tag { return t & tagKeyMask }

// keyLess orders (id, tag) pairs lexicographically. Alt-pointer decisions
// compare masked key bits, the terminal done check compares full tags;
// callers mask as appropriate.
func keyLess(id int, tag Tag, id2 int, tag2 Tag) bool {
	if id != id2 {
		return id < id2
	}
	return tag < tag2
}

// Color is the display color of one edge of a node's embedded search tree.
type Color byte

const (
	ColorBlack  Color = 'b'
	ColorRed    Color = 'r'
	ColorYellow Color = 'y'
)
