package rbyd

import (
	"context"
	"fmt"
	"io"

	"github.com/datatrails/go-datatrails-common/azblob"
)

type imageBlobReader interface {
	Reader(
		ctx context.Context,
		identity string,
		opts ...azblob.Option,
	) (*azblob.ReaderResponse, error)
}

// BlobDevice reads a block device image stored as a single blob. The image
// is downloaded once on first access and served from memory from then on;
// the images this tool inspects are small and the snapshot must not change
// under us mid-run anyway.
type BlobDevice struct {
	store    imageBlobReader
	blobPath string
	mem      *MemDevice
}

// NewBlobDevice wraps a blob store and the path of the image blob.
func NewBlobDevice(store imageBlobReader, blobPath string) *BlobDevice {
	return &BlobDevice{store: store, blobPath: blobPath}
}

func (d *BlobDevice) download(ctx context.Context) error {
	if d.mem != nil {
		return nil
	}
	rr, err := d.store.Reader(ctx, d.blobPath)
	if err != nil {
		return fmt.Errorf("read image blob %s: %w", d.blobPath, err)
	}
	data, err := io.ReadAll(rr.Reader)
	if err != nil {
		return fmt.Errorf("read image blob %s: %w", d.blobPath, err)
	}
	d.mem = &MemDevice{Data: data}
	return nil
}

func (d *BlobDevice) ReadBlock(ctx context.Context, block uint32, blockSize int) ([]byte, error) {
	if err := d.download(ctx); err != nil {
		return nil, err
	}
	return d.mem.ReadBlock(ctx, block, blockSize)
}

func (d *BlobDevice) Size(ctx context.Context) (int64, error) {
	if err := d.download(ctx); err != nil {
		return 0, err
	}
	return d.mem.Size(ctx)
}
