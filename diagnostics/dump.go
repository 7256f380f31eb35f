// Package diagnostics implements the forensic block-image dump sidecar:
// an lz4-compressed file holding a small header followed by one
// (block number, contents) record per Record call.
package diagnostics

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pierrec/lz4"
)

const dumpMagic uint32 = 0x4f324455 // "O2DU"

// BlockDump accumulates (block number, contents) pairs and writes them to
// an lz4-framed file on Close, giving a support engineer a portable
// capture of exactly what the checker looked at without shipping the
// entire device image.
type BlockDump struct {
	w       *lz4.Writer
	bw      *bufio.Writer
	f       *os.File
	blockSz int
}

// Create opens path for writing and prepares the lz4 stream, recording
// blockSize so a reader can validate it decodes each frame correctly.
func Create(path string, blockSize int) (*BlockDump, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	lw := lz4.NewWriter(bw)

	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], dumpMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(blockSize))
	binary.LittleEndian.PutUint32(hdr[8:12], 1) // format version
	if _, err := lw.Write(hdr[:]); err != nil {
		lw.Close()
		f.Close()
		return nil, err
	}

	return &BlockDump{w: lw, bw: bw, f: f, blockSz: blockSize}, nil
}

// Record appends one block's contents, prefixed by its block number, to
// the stream.
func (d *BlockDump) Record(blkno uint64, data []byte) error {
	var rec [8]byte
	binary.LittleEndian.PutUint64(rec[:], blkno)
	if _, err := d.w.Write(rec[:]); err != nil {
		return err
	}
	_, err := d.w.Write(data)
	return err
}

// Close flushes the lz4 stream and the underlying file.
func (d *BlockDump) Close() error {
	if err := d.w.Close(); err != nil {
		d.f.Close()
		return err
	}
	if err := d.bw.Flush(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}

// Reader opens a previously captured dump and consumes its header,
// returning the open file, an lz4 reader positioned at the first (blkno,
// data) record, and the block size recorded in the header. Records are
// read from the returned reader in file order; the caller closes the file.
func Reader(path string) (*os.File, *lz4.Reader, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	lr := lz4.NewReader(f)

	var hdr [12]byte
	if _, err := io.ReadFull(lr, hdr[:]); err != nil {
		f.Close()
		return nil, nil, 0, err
	}
	blockSize := int(binary.LittleEndian.Uint32(hdr[4:8]))
	return f, lr, blockSize, nil
}
