package ocfs2

import (
	"encoding/binary"
	"fmt"
)

// XattrEntry is one decoded extended-attribute entry, whether it lives in
// an inode's inline xattr area or in an external xattr block/bucket.
type XattrEntry struct {
	NameHash  uint32
	NameLen   byte
	NameIndex byte
	ValueSize uint64
	// Local holds the value bytes when it fits inline after the entry
	// table; External, when non-zero, is the extent list offset holding
	// the value's out-of-line clusters.
	Local    []byte
	External *ExtentNode
	Name     string
}

const xattrHeaderSize = 4
const xattrEntrySize = 16

// XattrHeader decodes the fixed count/entries preamble shared by both the
// inline and external representations.
type XattrHeader struct {
	Count   uint16
	HasFree uint16
}

// ParseInlineXattr decodes the entry table embedded directly in a dinode's
// inline xattr area (present when HasInlineXattr is set and no external
// block is used).
func ParseInlineXattr(b []byte) ([]XattrEntry, error) {
	if len(b) < xattrHeaderSize {
		return nil, fmt.Errorf("ocfs2: inline xattr area too short")
	}
	count := binary.LittleEndian.Uint16(b[0:2])
	var entries []XattrEntry
	for i := 0; i < int(count); i++ {
		off := xattrHeaderSize + i*xattrEntrySize
		if off+xattrEntrySize > len(b) {
			return entries, fmt.Errorf("ocfs2: inline xattr entry %d out of range", i)
		}
		e := decodeXattrEntry(b[off : off+xattrEntrySize])
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeXattrEntry(rec []byte) XattrEntry {
	return XattrEntry{
		NameHash:  binary.LittleEndian.Uint32(rec[0:4]),
		NameLen:   rec[4],
		NameIndex: rec[5],
		ValueSize: binary.LittleEndian.Uint64(rec[8:16]),
	}
}

// HashName recomputes the name hash the same way the on-disk xe_name_hash
// field is defined, so Pass 1 can detect and repair a mismatch.
func HashName(nameIndex byte, name string) uint32 {
	h := uint32(nameIndex) * 0x9e3779b1
	for i := 0; i < len(name); i++ {
		h = (h << 5) + h + uint32(name[i])
	}
	return h
}

// XattrBlockHeader is the header of an external xattr block: either a flat
// entry table (same layout as the inline case, following this header) or,
// when IndexedTree is true, the root of a bucket tree addressed the same
// way an extent tree is.
type XattrBlockHeader struct {
	Signature   string
	Blkno       uint64
	Checksum    uint32
	IndexedTree bool
	Count       uint16
}

const xattrBlockHeaderSize = 0x40

func XattrBlockFromBytes(b []byte, blkno uint64, checksumSeed uint32) (*XattrBlockHeader, []XattrEntry, error) {
	if len(b) < xattrBlockHeaderSize {
		return nil, nil, fmt.Errorf("ocfs2: xattr block %d too short", blkno)
	}
	sig := string(b[0:7])
	if sig != XattrBlockSignature {
		return nil, nil, fmt.Errorf("ocfs2: xattr block %d bad signature %q", blkno, sig)
	}
	hdr := &XattrBlockHeader{
		Signature:   sig,
		Blkno:       binary.LittleEndian.Uint64(b[8:16]),
		Checksum:    binary.LittleEndian.Uint32(b[16:20]),
		IndexedTree: b[20] != 0,
	}

	verify := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(verify[16:20], 0)
	computed := chainChecksum(checksumSeed, verify)
	var chkErr error
	if computed != hdr.Checksum {
		chkErr = &ChecksumError{Kind: "xattr_block", Block: blkno, Want: hdr.Checksum, Got: computed}
	}

	if hdr.IndexedTree {
		return hdr, nil, chkErr
	}

	entries, err := ParseInlineXattr(b[xattrBlockHeaderSize:])
	if err != nil && chkErr == nil {
		return hdr, entries, err
	}
	hdr.Count = uint16(len(entries))
	return hdr, entries, chkErr
}
