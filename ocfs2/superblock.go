package ocfs2

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// SuperBlock is the decoded filesystem superblock, embedded inside the
// dinode at SuperBlockBlockNumber the same way every ocfs2 structure lives
// inside a dinode-shaped wrapper.
type SuperBlock struct {
	MajorVersion, MinorVersion uint16
	BlockSize                  uint32
	ClusterSize                uint32
	ClustersCount              uint32
	RootInode                  uint64
	SystemDirInode             uint64
	FirstClusterGroup          uint64
	MaxSlots                   uint16
	UUID                       uuid.UUID
	Label                      string
	FeatureCompat              uint32
	FeatureIncompat            uint32
	FeatureRWIncompat          uint32
	ChecksumSeed               uint32
	CleanlyUnmounted           bool
}

// These offsets are relative to the start of the dinode's inline data area
// (i.e. DinodeHeaderSize bytes into the block), since the superblock is
// carried as the payload of a dinode whose i_blkno is SuperBlockBlockNumber.
const (
	sbOffMajorVersion    = 0x00
	sbOffMinorVersion    = 0x02
	sbOffBlockSize       = 0x04
	sbOffClusterSize     = 0x08
	sbOffClustersCount   = 0x0c
	sbOffRootInode       = 0x10
	sbOffSystemDirInode  = 0x18
	sbOffFirstClusterGrp = 0x20
	sbOffMaxSlots        = 0x28
	sbOffUUID            = 0x2a
	sbOffLabel           = 0x3a
	sbLabelLen           = 64
	sbOffFeatureCompat   = 0x7a
	sbOffFeatureIncompat = 0x7e
	sbOffFeatureRW       = 0x82
	sbOffChecksumSeed    = 0x86
	sbOffCleanlyUnmount  = 0x8a
)

func SuperBlockFromInode(in *Inode) (*SuperBlock, error) {
	data := in.Data()
	if len(data) < sbOffCleanlyUnmount+1 {
		return nil, fmt.Errorf("ocfs2: superblock inode payload too short")
	}
	sb := &SuperBlock{
		MajorVersion:       binary.LittleEndian.Uint16(data[sbOffMajorVersion:]),
		MinorVersion:       binary.LittleEndian.Uint16(data[sbOffMinorVersion:]),
		BlockSize:          binary.LittleEndian.Uint32(data[sbOffBlockSize:]),
		ClusterSize:        binary.LittleEndian.Uint32(data[sbOffClusterSize:]),
		ClustersCount:      binary.LittleEndian.Uint32(data[sbOffClustersCount:]),
		RootInode:          binary.LittleEndian.Uint64(data[sbOffRootInode:]),
		SystemDirInode:     binary.LittleEndian.Uint64(data[sbOffSystemDirInode:]),
		FirstClusterGroup:  binary.LittleEndian.Uint64(data[sbOffFirstClusterGrp:]),
		MaxSlots:           binary.LittleEndian.Uint16(data[sbOffMaxSlots:]),
		FeatureCompat:      binary.LittleEndian.Uint32(data[sbOffFeatureCompat:]),
		FeatureIncompat:    binary.LittleEndian.Uint32(data[sbOffFeatureIncompat:]),
		FeatureRWIncompat:  binary.LittleEndian.Uint32(data[sbOffFeatureRW:]),
		ChecksumSeed:       binary.LittleEndian.Uint32(data[sbOffChecksumSeed:]),
		CleanlyUnmounted:   data[sbOffCleanlyUnmount] != 0,
	}
	copy(sb.UUID[:], data[sbOffUUID:sbOffUUID+16])
	nameEnd := sbOffLabel
	for nameEnd < sbOffLabel+sbLabelLen && data[nameEnd] != 0 {
		nameEnd++
	}
	sb.Label = string(data[sbOffLabel:nameEnd])
	return sb, nil
}

func (sb *SuperBlock) HasFeatureIncompat(flag uint32) bool { return sb.FeatureIncompat&flag != 0 }
func (sb *SuperBlock) HasFeatureRWIncompat(flag uint32) bool {
	return sb.FeatureRWIncompat&flag != 0
}

// BlocksPerCluster returns the number of filesystem blocks covered by one
// allocation cluster, used throughout Pass 1 to translate between the two
// granularities.
func (sb *SuperBlock) BlocksPerCluster() uint32 {
	if sb.BlockSize == 0 {
		return 1
	}
	return sb.ClusterSize / sb.BlockSize
}
