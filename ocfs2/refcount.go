package ocfs2

import (
	"encoding/binary"
	"fmt"
)

// RefcountRecord is one leaf entry of a refcount tree: a run of clusters
// sharing a single reference count, the unit reflink uses to let several
// inodes point at the same physical extent.
type RefcountRecord struct {
	ClusterStart uint32
	ClusterCount uint32
	RefCount     uint32
}

const refcountRecordSize = 16
const refcountBlockHeaderSize = 0x40

// RefcountBlock is one node of a refcount tree, structured the same way an
// extent tree node is: a list header, then either leaf records or child
// block pointers, selected by TreeDepth.
type RefcountBlock struct {
	Blkno      uint64
	ParentBlk  uint64
	TreeDepth  uint16
	Count      uint16
	NextFree   uint16
	MaxRecords uint16
	Leaves     []RefcountRecord
	Children   []extentPtr
	Checksum   uint32
}

func RefcountBlockFromBytes(b []byte, blkno uint64, checksumSeed uint32) (*RefcountBlock, error) {
	if len(b) < refcountBlockHeaderSize {
		return nil, fmt.Errorf("ocfs2: refcount block %d too short", blkno)
	}
	sig := string(b[0:7])
	if sig != RefcountBlockSignature {
		return nil, fmt.Errorf("ocfs2: refcount block %d bad signature %q", blkno, sig)
	}
	rb := &RefcountBlock{
		Blkno:      binary.LittleEndian.Uint64(b[8:16]),
		ParentBlk:  binary.LittleEndian.Uint64(b[16:24]),
		TreeDepth:  binary.LittleEndian.Uint16(b[24:26]),
		Count:      binary.LittleEndian.Uint16(b[26:28]),
		NextFree:   binary.LittleEndian.Uint16(b[28:30]),
		MaxRecords: binary.LittleEndian.Uint16(b[30:32]),
		Checksum:   binary.LittleEndian.Uint32(b[32:36]),
	}

	capacity := (len(b) - refcountBlockHeaderSize) / refcountRecordSize
	count := int(rb.NextFree)
	if count > capacity {
		count = capacity
	}
	for i := 0; i < count; i++ {
		off := refcountBlockHeaderSize + i*refcountRecordSize
		rec := b[off : off+refcountRecordSize]
		if rb.TreeDepth == 0 {
			rb.Leaves = append(rb.Leaves, RefcountRecord{
				ClusterStart: binary.LittleEndian.Uint32(rec[0:4]),
				ClusterCount: binary.LittleEndian.Uint32(rec[4:8]),
				RefCount:     binary.LittleEndian.Uint32(rec[8:12]),
			})
		} else {
			rb.Children = append(rb.Children, extentPtr{
				ClusterOff: binary.LittleEndian.Uint32(rec[0:4]),
				Clusters:   binary.LittleEndian.Uint32(rec[4:8]),
				Blkno:      binary.LittleEndian.Uint64(rec[8:16]),
			})
		}
	}

	verify := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(verify[32:36], 0)
	computed := chainChecksum(checksumSeed, verify)
	if computed != rb.Checksum {
		return rb, &ChecksumError{Kind: "refcount_block", Block: blkno, Want: rb.Checksum, Got: computed}
	}
	return rb, nil
}

// Covers reports whether the leaf record covers the given cluster.
func (r RefcountRecord) Covers(cluster uint32) bool {
	return cluster >= r.ClusterStart && cluster < r.ClusterStart+r.ClusterCount
}
