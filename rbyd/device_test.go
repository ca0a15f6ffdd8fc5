package rbyd

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDevice(t *testing.T) {
	ctx := context.Background()
	dev := &MemDevice{Data: []byte{0, 1, 2, 3, 4, 5, 6}}

	size, err := dev.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	data, err := dev.ReadBlock(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, data)

	// the tail block is short, not an error
	data, err = dev.ReadBlock(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5, 6}, data)

	data, err = dev.ReadBlock(ctx, 2, 4)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDeviceFile(t *testing.T) {
	tc := NewTestContext(t)
	ctx := context.Background()

	dev, err := OpenDeviceFile(tc.ScratchFile([]byte{0, 1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	defer dev.Close()

	size, err := dev.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	data, err := dev.ReadBlock(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5, 6}, data)

	data, err = dev.ReadBlock(ctx, 9, 4)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = OpenDeviceFile(tc.ScratchFile(nil) + ".missing")
	assert.Error(t, err)
}

type testImageReader struct {
	data  []byte
	reads int
	err   error
}

func (r *testImageReader) Reader(
	ctx context.Context,
	identity string,
	opts ...azblob.Option,
) (*azblob.ReaderResponse, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.reads++
	return &azblob.ReaderResponse{
		Reader: io.NopCloser(bytes.NewReader(r.data)),
	}, nil
}

func TestBlobDevice(t *testing.T) {
	ctx := context.Background()

	b := NewBlockBuilder(3)
	b.AddEntry(TagReg, 1, []byte("remote"))
	b.Commit()
	img := NewImage(testBlockSize, 1)
	img.SetBlock(0, b)

	store := &testImageReader{data: img.Data}
	dev := NewBlobDevice(store, "v1/images/dev.img")

	size, err := dev.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(testBlockSize), size)

	tc := NewTestContext(t)
	r, err := NewReader(tc.Log, dev, WithBlockSize(testBlockSize))
	require.NoError(t, err)
	node, err := r.Fetch(ctx, Addr{Blocks: []uint32{0}})
	require.NoError(t, err)
	require.True(t, node.Ok())
	assert.Equal(t, uint32(3), node.Rev)

	// the image is downloaded once and served from memory
	_, err = dev.ReadBlock(ctx, 0, testBlockSize)
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)
}

func TestBlobDeviceReadError(t *testing.T) {
	ctx := context.Background()
	dev := NewBlobDevice(&testImageReader{err: assert.AnError}, "v1/images/dev.img")

	_, err := dev.ReadBlock(ctx, 0, testBlockSize)
	assert.ErrorIs(t, err, assert.AnError)
	_, err = dev.Size(ctx)
	assert.ErrorIs(t, err, assert.AnError)
}
