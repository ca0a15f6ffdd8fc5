package rbyd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestContext carries the logger and scratch helpers shared by the engine
// tests. The engine has no write path; the builders below are the only
// writers in the repo and exist to synthesize fixture images.
type TestContext struct {
	T   *testing.T
	Log logger.Logger
}

func NewTestContext(t *testing.T) TestContext {
	logger.New("NOOP")
	return TestContext{T: t, Log: logger.Sugar.WithServiceName("rbydtest")}
}

// ScratchFile writes data to a uniquely named file under the test's temp
// dir, for exercising the file backed device.
func (c TestContext) ScratchFile(data []byte) string {
	path := filepath.Join(c.T.TempDir(), uuid.NewString()+".img")
	require.NoError(c.T, os.WriteFile(path, data, 0o644))
	return path
}

// BlockBuilder appends a well formed rbyd record stream to one block. Each
// appended entry is chained to the previous trunk with a single
// less-or-equal alt, producing a valid (if maximally unbalanced) embedded
// search structure; lookups and iteration behave exactly as they would over
// a balanced one.
type BlockBuilder struct {
	data []byte
	crc  uint32

	weight    int
	count     int
	lastTrunk int
	lastKey   NodeKey

	// LastCommitOff is the offset of the most recent commit record's
	// payload, for corruption fixtures.
	LastCommitOff int
}

func NewBlockBuilder(rev uint32) *BlockBuilder {
	b := &BlockBuilder{}
	b.data = ToLE32(nil, rev)
	b.crc = CRC32C(0, b.data)
	return b
}

func (b *BlockBuilder) Len() int { return len(b.data) }

// Trunk is the offset of the currently open trunk, what a fetch of the
// block as built so far reports.
func (b *BlockBuilder) Trunk() int { return b.lastTrunk }

// appendTag encodes a header with the parity bit the scanner expects and
// folds it into the running crc.
func (b *BlockBuilder) appendTag(tag Tag, weight, size int) int {
	start := len(b.data)
	b.data = EncodeTag(b.data, crcParity(b.crc), tag, weight, size)
	b.crc = CRC32C(b.crc, b.data[start:])
	return start
}

// AddEntry appends one terminal entry. weight 0 attaches an additional tag
// to the previous entry's id.
func (b *BlockBuilder) AddEntry(tag Tag, weight int, payload []byte) {
	if b.count > 0 {
		jump := len(b.data) - b.lastTrunk
		b.lastTrunk = b.appendTag(TagAlt|b.lastKey.Tag.Key(), b.weight, jump)
	}
	start := b.appendTag(tag, weight, len(payload))
	if b.count == 0 {
		b.lastTrunk = start
	}
	b.crc = CRC32C(b.crc, payload)
	b.data = append(b.data, payload...)

	b.weight += weight
	b.lastKey = NodeKey{ID: b.weight - 1, Tag: tag}
	b.count++
}

// AddAlt appends a raw alt-pointer whose jump lands on the record at target.
// The chained AddEntry path only ever emits black less-or-equal alts;
// greater-than and colored layouts are laid out by hand with AddAlt and
// AddTerminal, the caller owning the weight accounting and jump targets.
func (b *BlockBuilder) AddAlt(tag Tag, weight, target int) int {
	return b.appendTag(TagAlt|tag, weight, len(b.data)-target)
}

// AddTerminal appends one terminal record without chaining an alt to the
// previous entry, for hand built trunk layouts. Returns the record's offset.
func (b *BlockBuilder) AddTerminal(tag Tag, weight int, payload []byte) int {
	start := b.appendTag(tag, weight, len(payload))
	b.crc = CRC32C(b.crc, payload)
	b.data = append(b.data, payload...)
	b.weight += weight
	return start
}

// AddBranch appends a branch-pointer entry for child, recording the weight,
// trunk, block and crc expectations a writer would.
func (b *BlockBuilder) AddBranch(child Rbyd) {
	b.AddEntry(TagBTree, child.Weight, EncodeBranch(nil, BranchPtr{
		Weight: child.Weight,
		Trunk:  child.Trunk,
		Block:  child.Block,
		CRC:    child.CRC,
	}))
}

// Commit appends a crc record validating everything since the previous
// commit, making the entries appended so far durable.
func (b *BlockBuilder) Commit() {
	b.appendTag(TagCRC, 0, 4)
	b.LastCommitOff = len(b.data)
	// the crc record's payload does not fold into the running crc
	b.data = ToLE32(b.data, b.crc)
}

// Corrupt flips one bit at off.
func (b *BlockBuilder) Corrupt(off int) {
	b.data[off] ^= 0x01
}

// Image assembles built blocks into a device snapshot.
type Image struct {
	BlockSize int
	Data      []byte
}

func NewImage(blockSize int, blocks int) *Image {
	data := make([]byte, blockSize*blocks)
	// erased flash reads back all ones
	for i := range data {
		data[i] = 0xff
	}
	return &Image{BlockSize: blockSize, Data: data}
}

func (img *Image) SetBlock(block uint32, b *BlockBuilder) {
	copy(img.Data[int(block)*img.BlockSize:], b.data)
}

func (img *Image) Device() *MemDevice {
	return &MemDevice{Data: img.Data}
}
