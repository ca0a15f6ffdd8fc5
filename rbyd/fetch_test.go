package rbyd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 256

func testReader(t *testing.T, img *Image) *Reader {
	tc := NewTestContext(t)
	r, err := NewReader(tc.Log, img.Device(), WithBlockSize(img.BlockSize))
	require.NoError(t, err)
	return r
}

func TestFetchSingleCommit(t *testing.T) {
	b := NewBlockBuilder(7)
	b.AddEntry(TagReg, 1, []byte("hello"))
	b.Commit()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, uint32(7), node.Rev)
	assert.Equal(t, 1, node.Weight)
	// the trunk is the first (only) tag, directly after the revision
	assert.Equal(t, 4, node.Trunk)
	assert.Equal(t, b.LastCommitOff+4, node.Off)
}

func TestFetchLastCommitWins(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("one"))
	b.Commit()
	b.AddEntry(TagReg, 1, []byte("two"))
	b.Commit()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, 2, node.Weight)
	assert.Equal(t, b.Trunk(), node.Trunk)
}

func TestFetchGtAltWeight(t *testing.T) {
	// greater-than alts carry their weight on the upper side of the
	// candidate trunk; the committed weight sums both sides
	b := NewBlockBuilder(1)
	c := b.AddTerminal(TagReg, 1, []byte("c"))
	bb := b.AddTerminal(TagReg, 1, []byte("b"))
	alt1 := b.AddAlt(TagAltGt|TagAltRed|TagReg.Key(), 1, c)
	b.AddAlt(TagAltGt|TagAltRed|TagReg.Key(), 1, bb)
	b.AddTerminal(TagReg, 1, []byte("a"))
	b.Commit()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, 3, node.Weight)
	assert.Equal(t, alt1, node.Trunk, "the trunk opens at the first alt")
}

func TestFetchCorruptTailDiscarded(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("one"))
	b.Commit()
	trunk1 := b.Trunk()
	b.AddEntry(TagReg, 1, []byte("two"))
	b.Commit()
	b.Corrupt(b.LastCommitOff)
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	require.True(t, node.Ok(), "the first commit is still valid")
	assert.Equal(t, 1, node.Weight)
	assert.Equal(t, trunk1, node.Trunk)
}

func TestFetchNoCommitIsEmpty(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("uncommitted"))
	img := NewImage(testBlockSize, 2)
	img.SetBlock(0, b)

	r := testReader(t, img)

	node, err := r.Fetch(context.Background(), Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	assert.False(t, node.Ok())
	assert.Equal(t, 0, node.Weight)

	// erased block
	node, err = r.Fetch(context.Background(), Addr{Blocks: []uint32{1}})
	require.NoError(t, err)
	assert.False(t, node.Ok())
}

func TestFetchBlockTruncatedHeader(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("one"))
	b.Commit()

	// cut mid way through the second entry's header
	b.AddEntry(TagReg, 1, []byte("two"))
	node := fetchBlock(0, b.data[:b.Trunk()+1], 0)
	assert.True(t, node.Ok(), "the commit before the truncation stands")
	assert.Equal(t, 1, node.Weight)
}

func TestFetchMirrors(t *testing.T) {
	build := func(rev uint32, payloads ...string) *BlockBuilder {
		b := NewBlockBuilder(rev)
		for _, p := range payloads {
			b.AddEntry(TagReg, 1, []byte(p))
		}
		b.Commit()
		return b
	}

	tests := []struct {
		name      string
		rev0      uint32
		rev1      uint32
		wantBlock uint32
	}{
		{"later revision wins", 2, 3, 1},
		{"order independent", 3, 2, 0},
		{"wraparound", 0xffffffff, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := NewImage(testBlockSize, 2)
			img.SetBlock(0, build(tt.rev0, "a"))
			img.SetBlock(1, build(tt.rev1, "b"))

			node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{0, 1}})
			require.NoError(t, err)
			require.True(t, node.Ok())
			assert.Equal(t, tt.wantBlock, node.Block)
			assert.Len(t, node.OtherBlocks, 1)
			assert.NotEqual(t, node.Block, node.OtherBlocks[0])
		})
	}

	t.Run("equal revision prefers larger trunk", func(t *testing.T) {
		img := NewImage(testBlockSize, 2)
		img.SetBlock(0, build(5, "a", "b")) // two entries, later trunk
		img.SetBlock(1, build(5, "a"))

		for _, blocks := range [][]uint32{{0, 1}, {1, 0}} {
			node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: blocks})
			require.NoError(t, err)
			assert.Equal(t, uint32(0), node.Block)
		}
	})

	t.Run("corrupt mirror never wins", func(t *testing.T) {
		img := NewImage(testBlockSize, 2)
		img.SetBlock(0, build(1, "a"))
		// block 1 left erased, higher address listed first

		node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{1, 0}})
		require.NoError(t, err)
		require.True(t, node.Ok())
		assert.Equal(t, uint32(0), node.Block)
		assert.Equal(t, "0x{0,1}.4", node.Addr())
	})
}

func TestFetchRequestedTrunk(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("one"))
	b.Commit()
	trunk1 := b.Trunk()
	b.AddEntry(TagReg, 1, []byte("two"))
	b.Commit()
	trunk2 := b.Trunk()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)
	r := testReader(t, img)

	// requesting the old trunk recovers the first committed state
	node, err := r.Fetch(context.Background(), Addr{Blocks: []uint32{0}, Trunk: trunk1})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, trunk1, node.Trunk)
	assert.Equal(t, 1, node.Weight)

	// requesting the current trunk matches an unconstrained fetch
	node, err = r.Fetch(context.Background(), Addr{Blocks: []uint32{0}, Trunk: trunk2})
	require.NoError(t, err)
	assert.Equal(t, trunk2, node.Trunk)
	assert.Equal(t, 2, node.Weight)
}

func TestFetchPerMirrorTrunks(t *testing.T) {
	// the newer mirror carries two commits; its per-mirror trunk pins the
	// first one while the older mirror stays unconstrained
	b0 := NewBlockBuilder(2)
	b0.AddEntry(TagReg, 1, []byte("one"))
	b0.Commit()
	trunk1 := b0.Trunk()
	b0.AddEntry(TagReg, 1, []byte("two"))
	b0.Commit()

	b1 := NewBlockBuilder(1)
	b1.AddEntry(TagReg, 1, []byte("stale"))
	b1.Commit()

	img := NewImage(testBlockSize, 2)
	img.SetBlock(0, b0)
	img.SetBlock(1, b1)
	r := testReader(t, img)

	node, err := r.Fetch(context.Background(),
		Addr{Blocks: []uint32{0, 1}, Trunks: []int{trunk1, 0}})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, uint32(0), node.Block, "the newer mirror still wins arbitration")
	assert.Equal(t, trunk1, node.Trunk)
	assert.Equal(t, 1, node.Weight)

	// a zero per-mirror entry falls back to the shared trunk
	node, err = r.Fetch(context.Background(),
		Addr{Blocks: []uint32{0, 1}, Trunks: []int{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, node.Weight)
}

func TestFetchRequestedTrunkOnCommitBoundary(t *testing.T) {
	b := NewBlockBuilder(1)
	b.AddEntry(TagReg, 1, []byte("one"))
	b.Commit()
	trunk1 := b.Trunk()
	commit1 := b.LastCommitOff
	b.AddEntry(TagReg, 1, []byte("two"))
	b.Commit()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	// a request landing on the commit record itself selects the commit that
	// record closes, not the one after it
	node, err := testReader(t, img).Fetch(context.Background(), Addr{Blocks: []uint32{0}, Trunk: commit1})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, trunk1, node.Trunk)
	assert.Equal(t, 1, node.Weight)
}

func TestFetchFromDeviceFile(t *testing.T) {
	tc := NewTestContext(t)
	b := NewBlockBuilder(9)
	b.AddEntry(TagReg, 1, []byte("on disk"))
	b.Commit()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	dev, err := OpenDeviceFile(tc.ScratchFile(img.Data))
	require.NoError(t, err)
	defer dev.Close()

	// no block size configured: the device is one big block
	r, err := NewReader(tc.Log, dev)
	require.NoError(t, err)
	blockSize, err := r.BlockSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testBlockSize, blockSize)

	node, err := r.Fetch(context.Background(), Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, uint32(9), node.Rev)
	assert.Equal(t, 1, node.Weight)
}
