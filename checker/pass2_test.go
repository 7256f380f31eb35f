package checker

import (
	"testing"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) (*State, *fakeFileSystem, *ScriptedPrompter) {
	t.Helper()
	fs := newFakeFileSystem(512)
	log := logrus.New()
	log.SetOutput(nopWriter{})
	prompter := &ScriptedPrompter{Default: true}
	super := &ocfs2.SuperBlock{BlockSize: 512, ClusterSize: 4096, MaxSlots: 1, RootInode: 2}
	s := NewState(fs, super, Options{}, log, prompter, nil)
	return s, fs, prompter
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestFixDirentLengthsClearsDanglingInode(t *testing.T) {
	s, _, _ := newTestState(t)
	s.FoundBlocks.Set(2) // only block 2 is known to exist

	entries := []ocfs2.DirEntry{
		{Inode: 2, RecLen: 16, NameLen: 1, Name: ".", FileType: ocfs2.FileTypeDir, Offset: 0},
		{Inode: 999, RecLen: 16, NameLen: 3, Name: "bad", FileType: ocfs2.FileTypeRegular, Offset: 16},
	}
	dirty := false
	fixed := fixDirentLengths(s, DirBlockEntry{Ino: 2, Blkno: 2}, entries, &dirty)

	require.True(t, dirty)
	require.Equal(t, uint64(0), fixed[1].Inode)
}

func TestFixDirentDotsCorrectsSelfReference(t *testing.T) {
	s, _, _ := newTestState(t)
	entries := []ocfs2.DirEntry{
		{Inode: 999, RecLen: 16, NameLen: 1, Name: ".", FileType: ocfs2.FileTypeDir, Offset: 0},
	}
	dirty := false
	fixed := fixDirentDots(s, DirBlockEntry{Ino: 5, Blkno: 5, BlkCount: 0}, entries, &dirty)

	require.True(t, dirty)
	require.Equal(t, uint64(5), fixed[0].Inode)
}

func TestFixDirentDotsSkipsNonFirstBlock(t *testing.T) {
	s, _, _ := newTestState(t)
	entries := []ocfs2.DirEntry{
		{Inode: 999, RecLen: 16, NameLen: 1, Name: ".", FileType: ocfs2.FileTypeDir, Offset: 0},
	}
	dirty := false
	fixed := fixDirentDots(s, DirBlockEntry{Ino: 5, Blkno: 9, BlkCount: 1}, entries, &dirty)

	require.False(t, dirty)
	require.Equal(t, uint64(999), fixed[0].Inode)
}
