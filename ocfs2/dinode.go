package ocfs2

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ocfs2-tools/ocfs2check/ocfs2/crc32c"
)

// Fixed byte offsets within a dinode block. The header occupies the first
// 0x80 bytes (DinodeHeaderSize) regardless of block size; the remainder of the block holds
// either the inline extent list, inline directory data, inline xattr data,
// or a fast symlink target, selected by i_flags/i_dyn_features.
const (
	dinodeOffSignature      = 0x00
	dinodeOffGeneration     = 0x08
	dinodeOffSuballocSlot   = 0x0c
	dinodeOffSuballocBit    = 0x0e
	dinodeOffSize           = 0x10
	dinodeOffClusters       = 0x18
	dinodeOffUID            = 0x1c
	dinodeOffGID            = 0x20
	dinodeOffMode           = 0x24
	dinodeOffLinksCount     = 0x26
	dinodeOffFlags          = 0x28
	dinodeOffDynFeatures    = 0x2c
	dinodeOffATime          = 0x30
	dinodeOffCTime          = 0x38
	dinodeOffMTime          = 0x40
	dinodeOffDTime          = 0x48
	dinodeOffBlkno          = 0x50
	dinodeOffLastEbBlk      = 0x58
	dinodeOffXattrLoc       = 0x60
	dinodeOffChecksum       = 0x68
	dinodeOffRefcountLoc    = 0x6c
	DinodeHeaderSize        = 0x80
	DinodeMinBlockSize      = 512
)

// Inode is the in-memory decoding of an on-disk dinode block.
type Inode struct {
	Blkno         uint64
	Generation    uint32
	SuballocSlot  uint16
	SuballocBit   uint16
	Size          uint64
	Clusters      uint32
	UID, GID      uint32
	Mode          uint16
	LinksCount    uint16
	Flags         uint32
	DynFeatures   uint16
	ATime, CTime  time.Time
	MTime, DTime  time.Time
	LastEbBlk     uint64
	XattrLoc      uint64
	RefcountLoc   uint32
	Checksum      uint32

	blockSize int
	raw       []byte // full block, header already decoded into the fields above
}

func (in *Inode) included(flag uint32) bool { return in.Flags&flag != 0 }

func (in *Inode) IsValid() bool     { return in.included(InodeFlagValid) }
func (in *Inode) IsSystem() bool    { return in.included(InodeFlagSystem) }
func (in *Inode) IsSuperBlock() bool { return in.included(InodeFlagSuperBlock) }
func (in *Inode) IsLocalAlloc() bool { return in.included(InodeFlagLocalAlloc) }
func (in *Inode) IsBitmap() bool    { return in.included(InodeFlagBitmap) }
func (in *Inode) IsChain() bool     { return in.included(InodeFlagChain) }
func (in *Inode) IsDealloc() bool   { return in.included(InodeFlagDealloc) }
func (in *Inode) IsJournalDirty() bool { return in.included(InodeFlagJournalDirty) }

func (in *Inode) HasInlineData() bool  { return in.DynFeatures&InodeDynFeatureInlineData != 0 }
func (in *Inode) HasXattr() bool       { return in.DynFeatures&InodeDynFeatureHasXattr != 0 }
func (in *Inode) HasInlineXattr() bool { return in.DynFeatures&InodeDynFeatureInlineXattr != 0 }
func (in *Inode) HasIndexedDir() bool  { return in.DynFeatures&InodeDynFeatureIndexedDir != 0 }
func (in *Inode) HasRefcount() bool    { return in.DynFeatures&InodeDynFeatureHasRefcount != 0 }

func (in *Inode) FileType() byte {
	// mode high bits reuse the POSIX S_IFMT convention, decoded the same
	// way the teacher's ext4 package derives fileType from mode.
	switch in.Mode & 0xf000 {
	case 0x4000:
		return FileTypeDir
	case 0x8000:
		return FileTypeRegular
	case 0xa000:
		return FileTypeSymlink
	case 0x2000:
		return FileTypeChardev
	case 0x6000:
		return FileTypeBlockdev
	case 0x1000:
		return FileTypeFifo
	case 0xc000:
		return FileTypeSocket
	default:
		return FileTypeUnknown
	}
}

// InodeFromBytes decodes a dinode block, verifying its signature and
// checksum. The checksum is computed the same way the teacher's ext4
// package computes an inode checksum: zero the checksum field, chain the
// block number and generation ahead of the full block, compare.
func InodeFromBytes(b []byte, blkno uint64, checksumSeed uint32) (*Inode, error) {
	if len(b) < DinodeHeaderSize {
		return nil, fmt.Errorf("ocfs2: dinode block %d too short: %d bytes", blkno, len(b))
	}
	sig := string(b[dinodeOffSignature : dinodeOffSignature+7])
	if sig != InodeSignature {
		return nil, fmt.Errorf("ocfs2: dinode block %d bad signature %q", blkno, sig)
	}

	in := &Inode{
		blockSize:    len(b),
		raw:          append([]byte(nil), b...),
		Generation:   binary.LittleEndian.Uint32(b[dinodeOffGeneration:]),
		SuballocSlot: binary.LittleEndian.Uint16(b[dinodeOffSuballocSlot:]),
		SuballocBit:  binary.LittleEndian.Uint16(b[dinodeOffSuballocBit:]),
		Size:         binary.LittleEndian.Uint64(b[dinodeOffSize:]),
		Clusters:     binary.LittleEndian.Uint32(b[dinodeOffClusters:]),
		UID:          binary.LittleEndian.Uint32(b[dinodeOffUID:]),
		GID:          binary.LittleEndian.Uint32(b[dinodeOffGID:]),
		Mode:         binary.LittleEndian.Uint16(b[dinodeOffMode:]),
		LinksCount:   binary.LittleEndian.Uint16(b[dinodeOffLinksCount:]),
		Flags:        binary.LittleEndian.Uint32(b[dinodeOffFlags:]),
		DynFeatures:  binary.LittleEndian.Uint16(b[dinodeOffDynFeatures:]),
		ATime:        decodeTimestamp(binary.LittleEndian.Uint64(b[dinodeOffATime:])),
		CTime:        decodeTimestamp(binary.LittleEndian.Uint64(b[dinodeOffCTime:])),
		MTime:        decodeTimestamp(binary.LittleEndian.Uint64(b[dinodeOffMTime:])),
		DTime:        decodeTimestamp(binary.LittleEndian.Uint64(b[dinodeOffDTime:])),
		Blkno:        binary.LittleEndian.Uint64(b[dinodeOffBlkno:]),
		LastEbBlk:    binary.LittleEndian.Uint64(b[dinodeOffLastEbBlk:]),
		XattrLoc:     binary.LittleEndian.Uint64(b[dinodeOffXattrLoc:]),
		RefcountLoc:  binary.LittleEndian.Uint32(b[dinodeOffRefcountLoc:]),
		Checksum:     binary.LittleEndian.Uint32(b[dinodeOffChecksum:]),
	}

	verify := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(verify[dinodeOffChecksum:], 0)
	computed := inodeChecksum(verify, checksumSeed, blkno, in.Generation)
	if computed != in.Checksum {
		return in, &ChecksumError{Kind: "dinode", Block: blkno, Want: in.Checksum, Got: computed}
	}
	return in, nil
}

// ToBytes re-serializes the header fields into raw, recomputes the
// checksum, and returns the full block.
func (in *Inode) ToBytes(checksumSeed uint32) []byte {
	b := append([]byte(nil), in.raw...)
	if len(b) < in.blockSize {
		b = make([]byte, in.blockSize)
	}
	copy(b[dinodeOffSignature:], InodeSignature)
	binary.LittleEndian.PutUint32(b[dinodeOffGeneration:], in.Generation)
	binary.LittleEndian.PutUint16(b[dinodeOffSuballocSlot:], in.SuballocSlot)
	binary.LittleEndian.PutUint16(b[dinodeOffSuballocBit:], in.SuballocBit)
	binary.LittleEndian.PutUint64(b[dinodeOffSize:], in.Size)
	binary.LittleEndian.PutUint32(b[dinodeOffClusters:], in.Clusters)
	binary.LittleEndian.PutUint32(b[dinodeOffUID:], in.UID)
	binary.LittleEndian.PutUint32(b[dinodeOffGID:], in.GID)
	binary.LittleEndian.PutUint16(b[dinodeOffMode:], in.Mode)
	binary.LittleEndian.PutUint16(b[dinodeOffLinksCount:], in.LinksCount)
	binary.LittleEndian.PutUint32(b[dinodeOffFlags:], in.Flags)
	binary.LittleEndian.PutUint16(b[dinodeOffDynFeatures:], in.DynFeatures)
	binary.LittleEndian.PutUint64(b[dinodeOffATime:], encodeTimestamp(in.ATime))
	binary.LittleEndian.PutUint64(b[dinodeOffCTime:], encodeTimestamp(in.CTime))
	binary.LittleEndian.PutUint64(b[dinodeOffMTime:], encodeTimestamp(in.MTime))
	binary.LittleEndian.PutUint64(b[dinodeOffDTime:], encodeTimestamp(in.DTime))
	binary.LittleEndian.PutUint64(b[dinodeOffBlkno:], in.Blkno)
	binary.LittleEndian.PutUint64(b[dinodeOffLastEbBlk:], in.LastEbBlk)
	binary.LittleEndian.PutUint64(b[dinodeOffXattrLoc:], in.XattrLoc)
	binary.LittleEndian.PutUint32(b[dinodeOffRefcountLoc:], in.RefcountLoc)
	binary.LittleEndian.PutUint32(b[dinodeOffChecksum:], 0)

	in.Checksum = inodeChecksum(b, checksumSeed, in.Blkno, in.Generation)
	binary.LittleEndian.PutUint32(b[dinodeOffChecksum:], in.Checksum)
	in.raw = b
	return b
}

// Data returns the inline payload area of the inode block (everything past
// the fixed header), used for inline data/inline dirent/fast-symlink/inline
// extent-list decoding.
func (in *Inode) Data() []byte {
	if len(in.raw) <= DinodeHeaderSize {
		return nil
	}
	return in.raw[DinodeHeaderSize:]
}

// SetData overwrites the inline payload area in place, used by repairs
// that rewrite an inline extent list, directory block, or xattr area
// before the inode is written back through WriteInode.
func (in *Inode) SetData(data []byte) {
	need := DinodeHeaderSize + len(data)
	if len(in.raw) < need {
		grown := make([]byte, need)
		copy(grown, in.raw)
		in.raw = grown
	}
	copy(in.raw[DinodeHeaderSize:], data)
}

func inodeChecksum(b []byte, checksumSeed uint32, blkno uint64, generation uint32) uint32 {
	var blkBytes [8]byte
	binary.LittleEndian.PutUint64(blkBytes[:], blkno)
	var genBytes [4]byte
	binary.LittleEndian.PutUint32(genBytes[:], generation)

	c := crc32c.Sum(checksumSeed, blkBytes[:])
	c = crc32c.Sum(c, genBytes[:])
	c = crc32c.Sum(c, b)
	return c
}

// decodeTimestamp / encodeTimestamp pack seconds in the high 32 bits and
// nanoseconds in the low 32 bits, the same two-field-in-one-word approach
// the teacher's ext4 package uses to extend a 32-bit timestamp.
func decodeTimestamp(v uint64) time.Time {
	sec := int64(v >> 32)
	nsec := int64(v & 0xffffffff)
	return time.Unix(sec, nsec).UTC()
}

func encodeTimestamp(t time.Time) uint64 {
	return uint64(t.Unix())<<32 | uint64(uint32(t.Nanosecond()))
}

// ChecksumError is returned when a block's recorded checksum does not match
// its recomputed value. Pass 1 and Pass 0 treat it as a signature-class
// corruption subject to a repair prompt, not as a fatal error.
type ChecksumError struct {
	Kind  string
	Block uint64
	Want  uint32
	Got   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("ocfs2: %s block %d checksum mismatch: on-disk=%08x computed=%08x", e.Kind, e.Block, e.Want, e.Got)
}
