package rbyd

import (
	"context"

	"github.com/datatrails/go-datatrails-common/logger"
)

// ReaderOptions configure a Reader. Values are private, set via options.
type ReaderOptions struct {
	// blockSize in bytes. 0 means the whole device is one block.
	blockSize int
}

type ReaderOption func(*ReaderOptions)

// WithBlockSize sets the block size. When it is not supplied the device is
// treated as one big block.
func WithBlockSize(blockSize int) ReaderOption {
	return func(opts *ReaderOptions) {
		opts.blockSize = blockSize
	}
}

// Reader fetches committed nodes from a block device image. It holds no
// cache: every query decodes fresh from raw bytes.
type Reader struct {
	log  logger.Logger
	dev  Device
	opts ReaderOptions
}

func NewReader(log logger.Logger, dev Device, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		log: log,
		dev: dev,
	}
	for _, o := range opts {
		o(&r.opts)
	}
	if r.opts.blockSize < 0 {
		return nil, ErrBlockSizeInvalid
	}
	return r, nil
}

// BlockSize resolves the effective block size, defaulting to the whole
// device length when none was configured.
func (r *Reader) BlockSize(ctx context.Context) (int, error) {
	if r.opts.blockSize > 0 {
		return r.opts.blockSize, nil
	}
	size, err := r.dev.Size(ctx)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, ErrDeviceSizeUnknown
	}
	return int(size), nil
}

// Fetch returns the current node for addr. For a mirrored set every block is
// fetched independently and the current one wins: the numerically later
// revision under wraparound sequence comparison, larger trunk on equal
// revisions. The losing mirrors are recorded as sibling alternates.
//
// The returned error reports device I/O failures only. Decode level
// corruption never errors; it yields the empty node (Trunk == 0) which
// callers must test with Ok.
func (r *Reader) Fetch(ctx context.Context, addr Addr) (Rbyd, error) {
	if len(addr.Blocks) == 0 {
		return Rbyd{}, ErrNoRoots
	}
	blockSize, err := r.BlockSize(ctx)
	if err != nil {
		return Rbyd{}, err
	}

	nodes := make([]Rbyd, 0, len(addr.Blocks))
	for i, block := range addr.Blocks {
		data, err := r.dev.ReadBlock(ctx, block, blockSize)
		if err != nil {
			return Rbyd{}, err
		}
		reqTrunk := addr.Trunk
		if i < len(addr.Trunks) && addr.Trunks[i] != 0 {
			reqTrunk = addr.Trunks[i]
		}
		nodes = append(nodes, fetchBlock(block, data, reqTrunk))
	}

	best := 0
	for i := 1; i < len(nodes); i++ {
		if !nodes[i].Ok() {
			continue
		}
		if !nodes[best].Ok() ||
			seqNewer(nodes[i].Rev, nodes[best].Rev) ||
			(nodes[i].Rev == nodes[best].Rev && nodes[i].Trunk > nodes[best].Trunk) {
			best = i
		}
	}

	node := nodes[best]
	for j := 1; j < len(nodes); j++ {
		node.OtherBlocks = append(node.OtherBlocks, nodes[(best+j)%len(nodes)].Block)
	}
	r.log.Debugf("fetch %s: rev %d, weight %d, off %d", node.Addr(), node.Rev, node.Weight, node.Off)
	return node, nil
}

// seqNewer reports whether revision a is strictly later than b under 32 bit
// wraparound sequence comparison.
func seqNewer(a, b uint32) bool {
	return a != b && (a-b)&0x80000000 == 0
}

// scanState is the bookkeeping threaded through a single block scan: the
// running crc, the last commit accepted, and the candidate trunk currently
// being accumulated. Keeping it explicit keeps the scan testable against
// partial input.
type scanState struct {
	crcRun uint32 // running crc over everything folded so far

	// last accepted commit
	off    int
	trunk  int
	weight int
	crc    uint32

	// open candidate trunk
	ctrunk       int
	lower, upper int
	cweight      int
	wasTrunk     bool

	// tightest offset satisfying a requested trunk
	trunkOff int
}

// fetchBlock scans one block's bytes for the last valid commit at or before
// the requested trunk offset (reqTrunk == 0 means no request: last commit
// wins). Malformed headers, parity mismatches and crc mismatches all simply
// stop the scan; whatever committed before them stands.
func fetchBlock(block uint32, data []byte, reqTrunk int) Rbyd {
	n := len(data)
	rev := FromLE32(data)

	s := scanState{}
	s.crcRun = CRC32C(0, data[:min(4, n)])

	j := 4
	for j < n && (reqTrunk == 0 || s.off <= reqTrunk) {
		v, tag, w, size, d := DecodeTag(data[j:])
		if d == 0 || v != crcParity(s.crcRun) {
			// truncated header or unwritten space
			break
		}
		s.crcRun = CRC32C(s.crcRun, data[j:j+d])
		j += d
		if !tag.IsAlt() && j+size > n {
			break
		}

		if !tag.IsAlt() {
			if !tag.IsCRCClass() {
				s.crcRun = CRC32C(s.crcRun, data[j:j+size])
			} else {
				// a crc record's payload is checked, never folded
				if FromLE32(data[j:min(j+4, n)]) != s.crcRun {
					break
				}
				s.off = j + size
				if s.trunkOff != 0 {
					s.off = s.trunkOff
				}
				s.crc = s.crcRun
				s.trunk = s.ctrunk
				s.weight = s.cweight
			}
		}

		// crc class tags never participate in trunks
		if tag&0x6000 != 0x2000 && (reqTrunk == 0 || reqTrunk >= j-d || s.wasTrunk) {
			if !s.wasTrunk {
				s.ctrunk = j - d
				s.lower, s.upper = 0, 0
				s.wasTrunk = true
			}
			if tag.IsAlt() {
				if tag.IsGt() {
					s.upper += w
				} else {
					s.lower += w
				}
			} else {
				// the first terminal closes the candidate
				s.cweight = s.lower + s.upper + w
				s.wasTrunk = false
				if reqTrunk != 0 && j+size > reqTrunk {
					s.trunkOff = j + size
				}
			}
		}

		if !tag.IsAlt() {
			j += size
		}
	}

	return Rbyd{
		Block:  block,
		Data:   data,
		Rev:    rev,
		Off:    s.off,
		Trunk:  s.trunk,
		Weight: s.weight,
		CRC:    s.crc,
	}
}
