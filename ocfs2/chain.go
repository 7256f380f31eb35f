package ocfs2

import (
	"encoding/binary"
	"fmt"
)

// ChainRecord is one entry in a chain allocator's inline chain array: the
// head group descriptor block of a singly-linked list of group
// descriptors, plus the cached totals pass 0 reconciles against the sum of
// the chain's actual group descriptors.
type ChainRecord struct {
	Total uint32
	Free  uint32
	Blkno uint64
}

const chainRecordSize = 16
const chainListOffset = DinodeHeaderSize

// ChainList is the inline array of chains inside a chain-allocator dinode
// (i_flags has InodeFlagChain set): count, next-free-rec, and the records
// themselves.
type ChainList struct {
	Count       uint16
	NextFreeRec uint16
	TotalBits   uint32
	UsedBits    uint32
	Records     []ChainRecord
}

// ParseChainList decodes the inline chain list from a chain-allocator
// dinode's data area.
func ParseChainList(data []byte, maxRecords int) (*ChainList, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("ocfs2: chain list area too short")
	}
	cl := &ChainList{
		Count:       binary.LittleEndian.Uint16(data[0:2]),
		NextFreeRec: binary.LittleEndian.Uint16(data[2:4]),
		TotalBits:   binary.LittleEndian.Uint32(data[4:8]),
		UsedBits:    binary.LittleEndian.Uint32(data[8:12]),
	}

	capacity := (len(data) - 16) / chainRecordSize
	if capacity < 0 {
		capacity = 0
	}
	if int(cl.Count) > capacity {
		cl.Count = uint16(capacity)
	}
	if int(cl.NextFreeRec) > int(cl.Count) {
		cl.NextFreeRec = cl.Count
	}
	if maxRecords > 0 && int(cl.Count) > maxRecords {
		cl.Count = uint16(maxRecords)
	}

	for i := 0; i < int(cl.Count); i++ {
		off := 16 + i*chainRecordSize
		if off+chainRecordSize > len(data) {
			break
		}
		rec := data[off : off+chainRecordSize]
		cl.Records = append(cl.Records, ChainRecord{
			Total: binary.LittleEndian.Uint32(rec[0:4]),
			Free:  binary.LittleEndian.Uint32(rec[4:8]),
			Blkno: binary.LittleEndian.Uint64(rec[8:16]),
		})
	}
	return cl, nil
}

// ToBytes re-serializes the chain list, honoring a (possibly shrunk)
// Records slice — used after Pass 0 compacts the array by dropping an
// unrepairable chain.
func (cl *ChainList) ToBytes(size int) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint16(b[0:2], uint16(len(cl.Records)))
	binary.LittleEndian.PutUint16(b[2:4], cl.NextFreeRec)
	binary.LittleEndian.PutUint32(b[4:8], cl.TotalBits)
	binary.LittleEndian.PutUint32(b[8:12], cl.UsedBits)
	for i, rec := range cl.Records {
		off := 16 + i*chainRecordSize
		if off+chainRecordSize > len(b) {
			break
		}
		binary.LittleEndian.PutUint32(b[off:], rec.Total)
		binary.LittleEndian.PutUint32(b[off+4:], rec.Free)
		binary.LittleEndian.PutUint64(b[off+8:], rec.Blkno)
	}
	return b
}

// GroupDescriptor is one node in a chain's singly-linked group-descriptor
// list: a bitmap of sub-unit allocation state plus the bookkeeping fields
// Pass 0 cross-checks against the owning allocator.
type GroupDescriptor struct {
	Blkno        uint64
	ParentInode  uint64
	Generation   uint32
	ChainNum     uint16
	FreeBitsCnt  uint32
	TotalBitsCnt uint32
	NextGroup    uint64
	Bitmap       []byte
	Checksum     uint32
}

const groupDescHeaderSize = 0x40

func GroupDescriptorFromBytes(b []byte, blkno uint64, checksumSeed uint32) (*GroupDescriptor, error) {
	if len(b) < groupDescHeaderSize {
		return nil, fmt.Errorf("ocfs2: group descriptor block %d too short", blkno)
	}
	sig := string(b[0:7])
	if sig != GroupDescSignature {
		return nil, fmt.Errorf("ocfs2: group descriptor block %d bad signature %q", blkno, sig)
	}
	gd := &GroupDescriptor{
		Blkno:        binary.LittleEndian.Uint64(b[8:16]),
		ParentInode:  binary.LittleEndian.Uint64(b[16:24]),
		Generation:   binary.LittleEndian.Uint32(b[24:28]),
		ChainNum:     binary.LittleEndian.Uint16(b[28:30]),
		FreeBitsCnt:  binary.LittleEndian.Uint32(b[32:36]),
		TotalBitsCnt: binary.LittleEndian.Uint32(b[36:40]),
		NextGroup:    binary.LittleEndian.Uint64(b[40:48]),
		Checksum:     binary.LittleEndian.Uint32(b[48:52]),
	}
	gd.Bitmap = append([]byte(nil), b[groupDescHeaderSize:]...)

	verify := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(verify[48:52], 0)
	computed := groupDescChecksum(verify, checksumSeed, blkno)
	if computed != gd.Checksum {
		return gd, &ChecksumError{Kind: "group_descriptor", Block: blkno, Want: gd.Checksum, Got: computed}
	}
	return gd, nil
}

func (gd *GroupDescriptor) ToBytes(size int, checksumSeed uint32) []byte {
	b := make([]byte, size)
	copy(b[0:7], GroupDescSignature)
	binary.LittleEndian.PutUint64(b[8:16], gd.Blkno)
	binary.LittleEndian.PutUint64(b[16:24], gd.ParentInode)
	binary.LittleEndian.PutUint32(b[24:28], gd.Generation)
	binary.LittleEndian.PutUint16(b[28:30], gd.ChainNum)
	binary.LittleEndian.PutUint32(b[32:36], gd.FreeBitsCnt)
	binary.LittleEndian.PutUint32(b[36:40], gd.TotalBitsCnt)
	binary.LittleEndian.PutUint64(b[40:48], gd.NextGroup)
	copy(b[groupDescHeaderSize:], gd.Bitmap)

	binary.LittleEndian.PutUint32(b[48:52], 0)
	gd.Checksum = groupDescChecksum(b, checksumSeed, gd.Blkno)
	binary.LittleEndian.PutUint32(b[48:52], gd.Checksum)
	return b
}

func groupDescChecksum(b []byte, seed uint32, blkno uint64) uint32 {
	var blkBytes [8]byte
	binary.LittleEndian.PutUint64(blkBytes[:], blkno)
	return chainChecksum(seed, blkBytes[:], b)
}
