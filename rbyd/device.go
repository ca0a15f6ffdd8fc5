package rbyd

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Device is a backing byte source holding an immutable snapshot of a block
// device image. Reads are positioned, one block at a time; a read past the
// end of the image returns the bytes that exist (possibly none) rather than
// an error, the fetch scan treats the shortfall as unwritten space.
type Device interface {
	// ReadBlock returns up to blockSize bytes starting at block*blockSize.
	ReadBlock(ctx context.Context, block uint32, blockSize int) ([]byte, error)

	// Size returns the total image length in bytes. Used to default the
	// block size to the whole device when none is configured.
	Size(ctx context.Context) (int64, error)
}

// DeviceFile is a file backed Device.
type DeviceFile struct {
	f *os.File
}

// OpenDeviceFile opens a block device image file read-only.
func OpenDeviceFile(path string) (*DeviceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device image: %w", err)
	}
	return &DeviceFile{f: f}, nil
}

func (d *DeviceFile) ReadBlock(ctx context.Context, block uint32, blockSize int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := make([]byte, blockSize)
	n, err := d.f.ReadAt(data, int64(block)*int64(blockSize))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

func (d *DeviceFile) Size(ctx context.Context) (int64, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (d *DeviceFile) Close() error { return d.f.Close() }

// MemDevice serves an image held in memory. Fixture images in tests and
// blob downloaded images both end up here.
type MemDevice struct {
	Data []byte
}

func (d *MemDevice) ReadBlock(ctx context.Context, block uint32, blockSize int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	off := int64(block) * int64(blockSize)
	if off >= int64(len(d.Data)) {
		return nil, nil
	}
	end := off + int64(blockSize)
	if end > int64(len(d.Data)) {
		end = int64(len(d.Data))
	}
	return d.Data[off:end], nil
}

func (d *MemDevice) Size(ctx context.Context) (int64, error) {
	return int64(len(d.Data)), nil
}
