package checker

import (
	"encoding/binary"
	"testing"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/stretchr/testify/require"
)

// buildJournalSuperblock constructs a v1 journal superblock block, sized to
// match the 3*512-byte read that ReplayJournals issues against a 512-byte
// volume (JournalSuperblockSize/512 + 1 = 1024/512 + 1 = 3 blocks).
func buildJournalSuperblock(maxLen, first, sequence, start uint32) []byte {
	b := make([]byte, 3*testBlockSize)
	binary.BigEndian.PutUint32(b[0:4], ocfs2.JournalMagic)
	binary.BigEndian.PutUint32(b[4:8], uint32(ocfs2.JournalBlockTypeSuperblockV1))
	binary.BigEndian.PutUint32(b[12:16], testBlockSize)
	binary.BigEndian.PutUint32(b[16:20], maxLen)
	binary.BigEndian.PutUint32(b[20:24], first)
	binary.BigEndian.PutUint32(b[24:28], sequence)
	binary.BigEndian.PutUint32(b[28:32], start)
	return b
}

func buildDescriptorBlock(sequence uint32, targetBlock uint64) []byte {
	b := make([]byte, testBlockSize)
	binary.BigEndian.PutUint32(b[0:4], ocfs2.JournalMagic)
	binary.BigEndian.PutUint32(b[4:8], uint32(ocfs2.JournalBlockTypeDescriptor))
	binary.BigEndian.PutUint32(b[8:12], sequence)
	binary.BigEndian.PutUint32(b[12:16], uint32(targetBlock))
	binary.BigEndian.PutUint16(b[16:18], ocfs2.TagFlagSameUUID|ocfs2.TagFlagLast)
	return b
}

func buildCommitBlock(sequence uint32) []byte {
	b := make([]byte, testBlockSize)
	binary.BigEndian.PutUint32(b[0:4], ocfs2.JournalMagic)
	binary.BigEndian.PutUint32(b[4:8], uint32(ocfs2.JournalBlockTypeCommit))
	binary.BigEndian.PutUint32(b[8:12], sequence)
	return b
}

func buildRevokeBlock(sequence uint32, revokedBlock uint64) []byte {
	b := make([]byte, testBlockSize)
	binary.BigEndian.PutUint32(b[0:4], ocfs2.JournalMagic)
	binary.BigEndian.PutUint32(b[4:8], uint32(ocfs2.JournalBlockTypeRevoke))
	binary.BigEndian.PutUint32(b[8:12], sequence)
	binary.BigEndian.PutUint32(b[12:16], 20) // r_count: header(12)+count(4)+one 4-byte entry
	binary.BigEndian.PutUint32(b[16:20], uint32(revokedBlock))
	return b
}

func payloadBlock(fill byte) []byte {
	b := make([]byte, testBlockSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func buildJournalInode(blkno uint64, dirty bool) *ocfs2.Inode {
	flags := ocfs2.InodeFlagValid | ocfs2.InodeFlagJournal
	if dirty {
		flags |= ocfs2.InodeFlagJournalDirty
	}
	return &ocfs2.Inode{Blkno: blkno, Flags: flags}
}

func TestReplayJournalsAppliesCommittedTransaction(t *testing.T) {
	s, fs, _ := newTestState(t)

	const journalIno = 20
	fs.setSystemInode(ocfs2.JournalSystemInode, 0, journalIno)
	fs.inodes[journalIno] = buildJournalInode(journalIno, true)

	// Journal occupies logical/physical blocks 0..5 (identity-mapped by
	// fakeFileSystem.ExtentMapGetBlocks): 0 is the superblock, 1 a
	// descriptor naming target block 100, 2 its payload, 3 the commit.
	fs.blocks[0] = buildJournalSuperblock(6, 1, 5, 1)
	fs.blocks[1] = buildDescriptorBlock(7, 100)
	fs.blocks[2] = payloadBlock(0xAB)
	fs.blocks[3] = buildCommitBlock(7)

	fs.blocks[100] = payloadBlock(0x00)

	err := ReplayJournals(s)
	require.NoError(t, err)

	require.Equal(t, payloadBlock(0xAB), fs.blocks[100])

	gotInode := fs.inodes[journalIno]
	require.False(t, gotInode.IsJournalDirty())

	sb, serr := ocfs2.JournalSuperblockFromBytes(fs.blocks[0])
	require.NoError(t, serr)
	require.Equal(t, uint32(0), sb.Start)
	require.Equal(t, uint32(8), sb.Sequence)
}

func TestReplayJournalsHonorsRevokeRecords(t *testing.T) {
	s, fs, _ := newTestState(t)

	const journalIno = 21
	fs.setSystemInode(ocfs2.JournalSystemInode, 0, journalIno)
	fs.inodes[journalIno] = buildJournalInode(journalIno, true)

	// A transaction at sequence 3 writes block 200, then a later revoke
	// record at sequence 5 supersedes it; replay must leave block 200
	// untouched.
	fs.blocks[0] = buildJournalSuperblock(6, 1, 1, 1)
	fs.blocks[1] = buildDescriptorBlock(3, 200)
	fs.blocks[2] = payloadBlock(0xCD)
	fs.blocks[3] = buildCommitBlock(3)
	fs.blocks[4] = buildRevokeBlock(5, 200)

	original := payloadBlock(0xEE)
	fs.blocks[200] = append([]byte(nil), original...)

	err := ReplayJournals(s)
	require.NoError(t, err)

	require.Equal(t, original, fs.blocks[200])
}
