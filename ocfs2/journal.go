package ocfs2

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/ocfs2-tools/ocfs2check/ocfs2/crc32c"
)

// journalBlockType enumerates the jbd2-compatible block kinds ocfs2's
// per-slot journals are built from, adapted from the teacher's ext4
// journal decoding.
type journalBlockType uint32

const (
	JournalBlockTypeDescriptor   journalBlockType = 1
	JournalBlockTypeCommit       journalBlockType = 2
	JournalBlockTypeSuperblockV1 journalBlockType = 3
	JournalBlockTypeSuperblockV2 journalBlockType = 4
	JournalBlockTypeRevoke       journalBlockType = 5
)

const journalMagic uint32 = 0xc03b3998

// JournalMagic exposes the block-header magic so checker's replay can
// restore it into a payload block that was escaped (its first four bytes
// zeroed in the log) because it happened to start with this value.
const JournalMagic = journalMagic

// Journal incompat feature flags.
const (
	JournalFeatureIncompatRevoke uint32 = 1 << iota
	JournalFeatureIncompat64Bit
	JournalFeatureIncompatAsyncCommit
	JournalFeatureIncompatChecksumV2
	JournalFeatureIncompatChecksumV3
)

// journalHeader is the 12-byte header prefixed to every journal block.
type journalHeader struct {
	Magic     uint32
	BlockType journalBlockType
	Sequence  uint32
}

const journalHeaderSize = 12

func journalHeaderFromBytes(b []byte) journalHeader {
	return journalHeader{
		Magic:     binary.BigEndian.Uint32(b[0:4]),
		BlockType: journalBlockType(binary.BigEndian.Uint32(b[4:8])),
		Sequence:  binary.BigEndian.Uint32(b[8:12]),
	}
}

func (h journalHeader) toBytes(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.Magic)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.BlockType))
	binary.BigEndian.PutUint32(b[8:12], h.Sequence)
}

// JournalSuperblock is the decoded journal superblock (block 0 of a slot's
// journal inode), carrying both the v1 fields every version has and the v2
// feature/UUID/checksum extension.
type JournalSuperblock struct {
	Header journalHeader

	BlockSize  uint32
	MaxLen     uint32
	First      uint32
	Sequence   uint32
	Start      uint32
	ErrNo      int32

	FeatureCompat   uint32
	FeatureIncompat uint32
	FeatureRWCompat uint32
	UUID            uuid.UUID
	NumUsers        uint32
	ChecksumType    byte
	Checksum        uint32
}

const JournalSuperblockSize = 1024
const journalSBv2Offset = 40

func JournalSuperblockFromBytes(b []byte) (*JournalSuperblock, error) {
	if len(b) < JournalSuperblockSize {
		return nil, fmt.Errorf("ocfs2: journal superblock block too short: %d", len(b))
	}
	hdr := journalHeaderFromBytes(b)
	if hdr.Magic != journalMagic {
		return nil, fmt.Errorf("ocfs2: journal superblock bad magic %#x", hdr.Magic)
	}
	if hdr.BlockType != JournalBlockTypeSuperblockV1 && hdr.BlockType != JournalBlockTypeSuperblockV2 {
		return nil, fmt.Errorf("ocfs2: block is not a journal superblock (type %d)", hdr.BlockType)
	}

	sb := &JournalSuperblock{
		Header:    hdr,
		BlockSize: binary.BigEndian.Uint32(b[12:16]),
		MaxLen:    binary.BigEndian.Uint32(b[16:20]),
		First:     binary.BigEndian.Uint32(b[20:24]),
		Sequence:  binary.BigEndian.Uint32(b[24:28]),
		Start:     binary.BigEndian.Uint32(b[28:32]),
		ErrNo:     int32(binary.BigEndian.Uint32(b[32:36])),
	}

	if hdr.BlockType == JournalBlockTypeSuperblockV2 {
		sb.FeatureCompat = binary.BigEndian.Uint32(b[36:40])
		sb.FeatureIncompat = binary.BigEndian.Uint32(b[40:44])
		sb.FeatureRWCompat = binary.BigEndian.Uint32(b[44:48])
		copy(sb.UUID[:], b[48:64])
		sb.NumUsers = binary.BigEndian.Uint32(b[64:68])
		if sb.SupportsFeature(JournalFeatureIncompatChecksumV3) {
			sb.ChecksumType = b[68]
			sb.Checksum = binary.BigEndian.Uint32(b[72:76])
		}
	}
	return sb, nil
}

func (sb *JournalSuperblock) SupportsFeature(flag uint32) bool {
	return sb.Header.BlockType == JournalBlockTypeSuperblockV2 && sb.FeatureIncompat&flag != 0
}

func (sb *JournalSuperblock) HasChecksums() bool {
	return sb.SupportsFeature(JournalFeatureIncompatChecksumV2) || sb.SupportsFeature(JournalFeatureIncompatChecksumV3)
}

func (sb *JournalSuperblock) Uses64BitBlockNumbers() bool {
	return sb.SupportsFeature(JournalFeatureIncompat64Bit)
}

func (sb *JournalSuperblock) ToBytes() []byte {
	b := make([]byte, JournalSuperblockSize)
	sb.Header.toBytes(b)
	binary.BigEndian.PutUint32(b[12:16], sb.BlockSize)
	binary.BigEndian.PutUint32(b[16:20], sb.MaxLen)
	binary.BigEndian.PutUint32(b[20:24], sb.First)
	binary.BigEndian.PutUint32(b[24:28], sb.Sequence)
	binary.BigEndian.PutUint32(b[28:32], sb.Start)
	binary.BigEndian.PutUint32(b[32:36], uint32(sb.ErrNo))

	if sb.Header.BlockType == JournalBlockTypeSuperblockV2 {
		binary.BigEndian.PutUint32(b[36:40], sb.FeatureCompat)
		binary.BigEndian.PutUint32(b[40:44], sb.FeatureIncompat)
		binary.BigEndian.PutUint32(b[44:48], sb.FeatureRWCompat)
		copy(b[48:64], sb.UUID[:])
		binary.BigEndian.PutUint32(b[64:68], sb.NumUsers)
		if sb.SupportsFeature(JournalFeatureIncompatChecksumV3) {
			b[68] = sb.ChecksumType
			binary.BigEndian.PutUint32(b[72:76], 0)
			sb.Checksum = crc32c.Sum(0xffffffff, b)
			binary.BigEndian.PutUint32(b[72:76], sb.Checksum)
		}
	}
	return b
}

// journalBlockTagFlag bits recorded on each descriptor tag.
const (
	TagFlagEscaped  uint16 = 1 << iota
	TagFlagSameUUID
	TagFlagDeleted
	TagFlagLast
)

// JournalBlockTag names the physical block a descriptor tag's following
// payload block must be written to.
type JournalBlockTag struct {
	BlockNr uint64
	Flags   uint16
}

func tagSize(sb *JournalSuperblock) int {
	if sb.Uses64BitBlockNumbers() {
		return 12
	}
	return 8
}

func parseBlockTag(b []byte, sb *JournalSuperblock) JournalBlockTag {
	tag := JournalBlockTag{BlockNr: uint64(binary.BigEndian.Uint32(b[0:4]))}
	if sb.Uses64BitBlockNumbers() {
		tag.Flags = binary.BigEndian.Uint16(b[4:6])
		tag.BlockNr |= uint64(binary.BigEndian.Uint32(b[8:12])) << 32
	} else {
		tag.Flags = binary.BigEndian.Uint16(b[4:6])
	}
	return tag
}

// JournalDescriptorBlock decodes the tag stream of one descriptor block,
// stopping at the first TagFlagLast tag or when the block is exhausted.
type JournalDescriptorBlock struct {
	Header journalHeader
	Tags   []JournalBlockTag
}

func JournalDescriptorBlockFromBytes(b []byte, sb *JournalSuperblock) (*JournalDescriptorBlock, error) {
	hdr := journalHeaderFromBytes(b)
	if hdr.Magic != journalMagic || hdr.BlockType != JournalBlockTypeDescriptor {
		return nil, fmt.Errorf("ocfs2: block is not a journal descriptor block")
	}
	db := &JournalDescriptorBlock{Header: hdr}
	ts := tagSize(sb)
	off := journalHeaderSize
	for off+ts <= len(b) {
		tag := parseBlockTag(b[off:off+ts], sb)
		db.Tags = append(db.Tags, tag)
		off += ts
		if tag.Flags&TagFlagSameUUID == 0 {
			off += 16
		}
		if tag.Flags&TagFlagLast != 0 {
			break
		}
	}
	return db, nil
}

// JournalCommitBlock marks the end of a transaction; only its header
// carries information the replay driver needs.
type JournalCommitBlock struct {
	Header journalHeader
}

func JournalCommitBlockFromBytes(b []byte) (*JournalCommitBlock, error) {
	hdr := journalHeaderFromBytes(b)
	if hdr.Magic != journalMagic || hdr.BlockType != JournalBlockTypeCommit {
		return nil, fmt.Errorf("ocfs2: block is not a journal commit block")
	}
	return &JournalCommitBlock{Header: hdr}, nil
}

// JournalRevokeBlock carries the list of blocks whose older logged writes
// must be suppressed on replay.
type JournalRevokeBlock struct {
	Header journalHeader
	Count  uint32
	Blocks []uint64
}

func JournalRevokeBlockFromBytes(b []byte, sb *JournalSuperblock) (*JournalRevokeBlock, error) {
	hdr := journalHeaderFromBytes(b)
	if hdr.Magic != journalMagic || hdr.BlockType != JournalBlockTypeRevoke {
		return nil, fmt.Errorf("ocfs2: block is not a journal revoke block")
	}
	if len(b) < journalHeaderSize+4 {
		return nil, fmt.Errorf("ocfs2: revoke block too short")
	}
	count := binary.BigEndian.Uint32(b[journalHeaderSize : journalHeaderSize+4])
	if int(count) < journalHeaderSize || int(count) > len(b) {
		return nil, fmt.Errorf("ocfs2: revoke block count %d out of range", count)
	}

	rb := &JournalRevokeBlock{Header: hdr, Count: count}
	entrySize := 4
	if sb.Uses64BitBlockNumbers() {
		entrySize = 8
	}
	off := journalHeaderSize + 4
	end := journalHeaderSize + int(count)
	for off+entrySize <= end && off+entrySize <= len(b) {
		var blk uint64
		if entrySize == 8 {
			blk = binary.BigEndian.Uint64(b[off : off+8])
		} else {
			blk = uint64(binary.BigEndian.Uint32(b[off : off+4]))
		}
		rb.Blocks = append(rb.Blocks, blk)
		off += entrySize
	}
	return rb, nil
}
