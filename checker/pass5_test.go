package checker

import (
	"encoding/binary"
	"testing"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/stretchr/testify/require"
)

func TestRunPass5SkippedWithoutQuotaFeature(t *testing.T) {
	s, _, _ := newTestState(t)
	// Neither quota feature is set on the superblock; RunPass5 must return
	// before looking up any system inode, which would otherwise fail since
	// none is registered on the fake filesystem.
	err := RunPass5(s)
	require.NoError(t, err)
}

func TestRebuildLocalQuotaFileWritesUsageRecords(t *testing.T) {
	s, fs, _ := newTestState(t)
	const quotaIno = 30
	fs.setSystemInode(ocfs2.LocalUserQuotaSystemInode, 0, quotaIno)
	fs.inodes[quotaIno] = buildPlainInode(quotaIno, 0x8000, 1)
	fs.blocks[0] = make([]byte, testBlockSize)

	usage := NewOrderedMap[*QuotaUsage]()
	usage.Set(5, &QuotaUsage{Blocks: 3, Inodes: 1})

	err := rebuildLocalQuotaFile(s, ocfs2.LocalUserQuotaSystemInode, 0, usage)
	require.NoError(t, err)

	got := fs.blocks[0]
	require.Equal(t, uint64(5), binary.LittleEndian.Uint64(got[0:8]))
	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(got[8:16]))
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(got[16:24]))
	for _, b := range got[quotaRecordSize:] {
		require.Equal(t, byte(0), b)
	}
}

func TestRebuildLocalQuotaFileSkippedWhenDeclined(t *testing.T) {
	s, fs, prompter := newTestState(t)
	prompter.Default = false

	const quotaIno = 31
	fs.setSystemInode(ocfs2.LocalUserQuotaSystemInode, 0, quotaIno)
	fs.inodes[quotaIno] = buildPlainInode(quotaIno, 0x8000, 1)
	original := make([]byte, testBlockSize)
	original[0] = 0xAA
	fs.blocks[0] = append([]byte(nil), original...)

	usage := NewOrderedMap[*QuotaUsage]()
	usage.Set(5, &QuotaUsage{Blocks: 3, Inodes: 1})

	err := rebuildLocalQuotaFile(s, ocfs2.LocalUserQuotaSystemInode, 0, usage)
	require.NoError(t, err)
	require.Equal(t, original, fs.blocks[0])
}

func TestRebuildLocalQuotaFileNoOpWhenSystemInodeMissing(t *testing.T) {
	s, _, _ := newTestState(t)
	err := rebuildLocalQuotaFile(s, ocfs2.LocalUserQuotaSystemInode, 0, NewOrderedMap[*QuotaUsage]())
	require.NoError(t, err)
}

func TestRunPass5RebuildsBothQuotaKinds(t *testing.T) {
	s, fs, _ := newTestState(t)
	s.Super.FeatureRWIncompat = ocfs2.FeatureRWIncompatUserQuota | ocfs2.FeatureRWIncompatGroupQuota
	s.Super.MaxSlots = 1

	fs.setSystemInode(ocfs2.LocalUserQuotaSystemInode, 0, 40)
	fs.inodes[40] = buildPlainInode(40, 0x8000, 1)
	fs.setSystemInode(ocfs2.LocalGroupQuotaSystemInode, 0, 41)
	fs.inodes[41] = buildPlainInode(41, 0x8000, 1)
	fs.blocks[0] = make([]byte, testBlockSize)

	s.UserQuotaUsage.Set(7, &QuotaUsage{Blocks: 2, Inodes: 1})
	s.GroupQuotaUsage.Set(9, &QuotaUsage{Blocks: 4, Inodes: 2})

	err := RunPass5(s)
	require.NoError(t, err)
	// Both quota files were rewritten from the same identity-mapped block 0;
	// the group quota file is written second, so its record is what remains.
	got := fs.blocks[0]
	require.Equal(t, uint64(9), binary.LittleEndian.Uint64(got[0:8]))
}
