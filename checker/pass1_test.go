package checker

import (
	"encoding/binary"
	"testing"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/ocfs2-tools/ocfs2check/ocfs2/crc32c"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// newPass1TestState builds a state whose superblock carries enough
// clusters for extent-range checks to pass on realistic block numbers,
// unlike newTestState's zero-cluster default.
func newPass1TestState(t *testing.T) (*State, *fakeFileSystem, *ScriptedPrompter) {
	t.Helper()
	fs := newFakeFileSystem(testBlockSize)
	log := logrus.New()
	log.SetOutput(nopWriter{})
	prompter := &ScriptedPrompter{Default: true}
	super := &ocfs2.SuperBlock{BlockSize: testBlockSize, ClusterSize: testBlockSize * 8, MaxSlots: 1, RootInode: 2, ClustersCount: 1000}
	s := NewState(fs, super, Options{}, log, prompter, nil)
	return s, fs, prompter
}

func fileTypeMode(ft byte) uint16 {
	switch ft {
	case ocfs2.FileTypeDir:
		return 0x4000
	default:
		return 0x8000
	}
}

// buildExtentInode constructs a checksummed dinode whose inline payload
// holds an extent list header plus the given leaf records.
func buildExtentInode(blkno uint64, fileType byte, clusters uint32, size uint64, maxRecords, nextFreeRec uint16, records []ocfs2.ExtentRecord) *ocfs2.Inode {
	b := make([]byte, testBlockSize)
	copy(b[0:7], ocfs2.InodeSignature)
	binary.LittleEndian.PutUint16(b[0x24:], fileTypeMode(fileType))
	binary.LittleEndian.PutUint32(b[0x28:], 1) // InodeFlagValid
	binary.LittleEndian.PutUint64(b[0x50:], blkno)
	binary.LittleEndian.PutUint64(b[0x10:], size)
	binary.LittleEndian.PutUint32(b[0x18:], clusters)

	payload := b[0x80:]
	binary.LittleEndian.PutUint16(payload[4:6], nextFreeRec)
	binary.LittleEndian.PutUint16(payload[6:8], maxRecords)
	for i, rec := range records {
		off := 8 + i*24
		binary.LittleEndian.PutUint32(payload[off:], rec.ClusterOff)
		binary.LittleEndian.PutUint32(payload[off+4:], rec.Clusters)
		binary.LittleEndian.PutUint64(payload[off+8:], rec.Blkno)
		payload[off+16] = rec.Flags
	}

	var blkBytes [8]byte
	binary.LittleEndian.PutUint64(blkBytes[:], blkno)
	var genBytes [4]byte
	c := crc32c.Sum(0, blkBytes[:])
	c = crc32c.Sum(c, genBytes[:])
	c = crc32c.Sum(c, b)
	binary.LittleEndian.PutUint32(b[0x68:], c)

	in, err := ocfs2.InodeFromBytes(b, blkno, 0)
	if err != nil {
		panic(err)
	}
	return in
}

// buildInlineDirInode constructs a dinode flagged as an inline-data
// directory, with the given size, for the zero-length clear-offer test.
func buildInlineDirInode(blkno uint64, size uint64) *ocfs2.Inode {
	b := make([]byte, testBlockSize)
	copy(b[0:7], ocfs2.InodeSignature)
	binary.LittleEndian.PutUint16(b[0x24:], fileTypeMode(ocfs2.FileTypeDir))
	binary.LittleEndian.PutUint32(b[0x28:], 1) // InodeFlagValid
	binary.LittleEndian.PutUint64(b[0x50:], blkno)
	binary.LittleEndian.PutUint64(b[0x10:], size)
	binary.LittleEndian.PutUint16(b[0x2c:], 1) // InodeDynFeatureInlineData

	var blkBytes [8]byte
	binary.LittleEndian.PutUint64(blkBytes[:], blkno)
	var genBytes [4]byte
	c := crc32c.Sum(0, blkBytes[:])
	c = crc32c.Sum(c, genBytes[:])
	c = crc32c.Sum(c, b)
	binary.LittleEndian.PutUint32(b[0x68:], c)

	in, err := ocfs2.InodeFromBytes(b, blkno, 0)
	if err != nil {
		panic(err)
	}
	return in
}

func buildDtimeInode(blkno uint64, dtimeSec int64) *ocfs2.Inode {
	b := make([]byte, testBlockSize)
	copy(b[0:7], ocfs2.InodeSignature)
	binary.LittleEndian.PutUint16(b[0x24:], fileTypeMode(ocfs2.FileTypeRegular))
	binary.LittleEndian.PutUint32(b[0x28:], 1) // InodeFlagValid
	binary.LittleEndian.PutUint64(b[0x50:], blkno)
	binary.LittleEndian.PutUint64(b[0x48:], uint64(dtimeSec)<<32)

	var blkBytes [8]byte
	binary.LittleEndian.PutUint64(blkBytes[:], blkno)
	var genBytes [4]byte
	c := crc32c.Sum(0, blkBytes[:])
	c = crc32c.Sum(c, genBytes[:])
	c = crc32c.Sum(c, b)
	binary.LittleEndian.PutUint32(b[0x68:], c)

	in, err := ocfs2.InodeFromBytes(b, blkno, 0)
	if err != nil {
		panic(err)
	}
	return in
}

func TestCheckInodeOffersToClearNonDirectoryRootInode(t *testing.T) {
	s, fs, _ := newPass1TestState(t)
	fs.inodes[2] = buildPlainInode(2, 0x8000, 1) // root inode, but a regular file

	err := checkInode(s, 2)
	require.NoError(t, err)
	require.True(t, s.Bad.Test(2))
}

func TestCheckInodeClearsNonZeroDeletionTime(t *testing.T) {
	s, fs, _ := newPass1TestState(t)
	fs.inodes[10] = buildDtimeInode(10, 12345)

	err := checkInode(s, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), fs.inodes[10].DTime.Unix())
	require.False(t, s.Bad.Test(10))
}

func TestCheckInodeClearsZeroLengthInlineDirectory(t *testing.T) {
	s, fs, _ := newPass1TestState(t)
	fs.inodes[11] = buildInlineDirInode(11, 0)

	err := checkInode(s, 11)
	require.NoError(t, err)
	require.True(t, s.Bad.Test(11))
}

func TestReconcileInodeSizeFixesClustersAndClearsEmptyDirectory(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	in := buildExtentInode(12, ocfs2.FileTypeDir, 5, 999999, 15, 0, nil)

	err := reconcileInodeSize(s, in, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), in.Clusters)
	require.Equal(t, uint64(0), in.Size)
	require.True(t, s.Bad.Test(12))
}

func TestWalkInodeExtentsClampsHeaderAndAccumulatesClusters(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	records := []ocfs2.ExtentRecord{{ClusterOff: 0, Clusters: 2, Blkno: 8}}
	// l_count and l_next_free_rec both deliberately wrong.
	in := buildExtentInode(20, ocfs2.FileTypeRegular, 2, 0, 99, 5, records)

	total, err := walkInodeExtents(s, in)
	require.NoError(t, err)
	require.Equal(t, uint32(2), total)

	node, perr := ocfs2.ParseExtentList(in.Data(), 0)
	require.NoError(t, perr)
	require.Equal(t, uint16(15), node.Header.MaxRecords)
	require.Equal(t, uint16(1), node.Header.NextFreeRec)
	require.True(t, s.FoundBlocks.Test(8))
	require.True(t, s.FoundBlocks.Test(23))
}

func TestWalkInodeExtentsRoundsMisalignedAndDropsOutOfRangeRecords(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	records := []ocfs2.ExtentRecord{
		{ClusterOff: 0, Clusters: 1, Blkno: 10},       // misaligned, rounds down to 8
		{ClusterOff: 1, Clusters: 1, Blkno: 9999999},  // far out of range, dropped
	}
	in := buildExtentInode(21, ocfs2.FileTypeRegular, 2, 0, 15, 2, records)

	total, err := walkInodeExtents(s, in)
	require.NoError(t, err)
	require.Equal(t, uint32(1), total)

	node, perr := ocfs2.ParseExtentList(in.Data(), 0)
	require.NoError(t, perr)
	require.Len(t, node.Leaves, 1)
	require.Equal(t, uint64(8), node.Leaves[0].Blkno)
	require.Equal(t, uint16(1), node.Header.NextFreeRec)
}

func TestWalkInodeExtentsTruncatesRecordExtendingPastClusters(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	records := []ocfs2.ExtentRecord{{ClusterOff: 0, Clusters: 4, Blkno: 8}}
	// i_clusters claims only 2, but the extent record covers 4.
	in := buildExtentInode(22, ocfs2.FileTypeRegular, 2, 0, 15, 1, records)

	total, err := walkInodeExtents(s, in)
	require.NoError(t, err)
	require.Equal(t, uint32(2), total)

	node, perr := ocfs2.ParseExtentList(in.Data(), 0)
	require.NoError(t, perr)
	require.Equal(t, uint32(2), node.Leaves[0].Clusters)
}
