package checker

import (
	"encoding/binary"
	"testing"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/ocfs2-tools/ocfs2check/ocfs2/crc32c"
	"github.com/stretchr/testify/require"
)

// buildPlainInode constructs a checksummed dinode block with the given
// mode and on-disk link count, no inline data payload.
func buildPlainInode(blkno uint64, mode, linksCount uint16) *ocfs2.Inode {
	b := make([]byte, testBlockSize)
	copy(b[0:7], ocfs2.InodeSignature)
	binary.LittleEndian.PutUint64(b[0x50:], blkno)
	binary.LittleEndian.PutUint32(b[0x28:], 1) // InodeFlagValid
	binary.LittleEndian.PutUint16(b[0x24:], mode)
	binary.LittleEndian.PutUint16(b[0x26:], linksCount)

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

func TestReconcileLinkCountFixesMismatch(t *testing.T) {
	s, fs, _ := newTestState(t)
	in := buildPlainInode(7, 0x8000, 3) // regular file, on-disk count 3
	fs.inodes[7] = in
	s.IcountInInodes.Set(7, 3)
	s.IcountRefs.Set(7, 1)

	err := reconcileLinkCount(s, 7)
	require.NoError(t, err)
	require.Equal(t, uint16(1), fs.inodes[7].LinksCount)
}

func TestReconcileLinkCountAppliesToDirectories(t *testing.T) {
	s, fs, _ := newTestState(t)
	in := buildPlainInode(8, 0x4000, 9) // directory, on-disk count 9
	fs.inodes[8] = in
	s.IcountInInodes.Set(8, 9)
	s.IcountRefs.Set(8, 2)

	err := reconcileLinkCount(s, 8)
	require.NoError(t, err)
	require.Equal(t, uint16(2), fs.inodes[8].LinksCount)
}

func TestReconcileLinkCountReconnectsZeroRefInode(t *testing.T) {
	s, fs, _ := newTestState(t)
	const orphanIno, orphanBlock = 50, 60
	fs.setSystemInode(ocfs2.OrphanDirSystemInode, 0, orphanIno)
	buf := make([]byte, 64)
	writeEmptyDirentSlot(buf, 64)
	fs.blocks[orphanBlock] = buf
	s.DirBlocks.Add(orphanIno, orphanBlock, 0)

	in := buildPlainInode(9, 0x8000, 1) // regular file, on-disk count 1, no refs
	fs.inodes[9] = in
	s.IcountInInodes.Set(9, 1)

	err := reconcileLinkCount(s, 9)
	require.NoError(t, err)
	require.Equal(t, uint16(1), fs.inodes[9].LinksCount)
	require.Equal(t, uint16(1), s.IcountRefs.Get(9))
}

func TestReconcileLinkCountLeavesAlreadyUnlinkedInode(t *testing.T) {
	s, fs, _ := newTestState(t)
	in := buildPlainInode(10, 0x8000, 0)
	fs.inodes[10] = in
	s.IcountInInodes.Set(10, 0)

	err := reconcileLinkCount(s, 10)
	require.NoError(t, err)
	require.Equal(t, uint16(0), fs.inodes[10].LinksCount)
}

func TestReconcileLinkCountFlagsInternalMismatch(t *testing.T) {
	s, fs, _ := newTestState(t)
	in := buildPlainInode(11, 0x8000, 4)
	fs.inodes[11] = in
	s.IcountInInodes.Set(11, 2) // disagrees with the on-disk value of 4

	err := reconcileLinkCount(s, 11)
	require.Error(t, err)
	res, ok := err.(*Result)
	require.True(t, ok)
	require.Equal(t, KindInternal, res.Kind)
}
