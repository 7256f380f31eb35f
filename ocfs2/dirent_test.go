package ocfs2

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDirent(b []byte, off int, e DirEntry) {
	binary.LittleEndian.PutUint64(b[off:], e.Inode)
	binary.LittleEndian.PutUint16(b[off+8:], e.RecLen)
	b[off+10] = e.NameLen
	b[off+11] = e.FileType
	copy(b[off+12:], e.Name)
}

func TestParseDirBlock(t *testing.T) {
	b := make([]byte, 64)
	writeDirent(b, 0, DirEntry{Inode: 2, RecLen: 16, NameLen: 1, FileType: FileTypeDir, Name: "."})
	writeDirent(b, 16, DirEntry{Inode: 2, RecLen: 48, NameLen: 2, FileType: FileTypeDir, Name: ".."})

	entries, err := ParseDirBlock(b)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ".", entries[0].Name)
	require.Equal(t, "..", entries[1].Name)
	require.Equal(t, 16, entries[1].Offset)
}

func TestParseDirBlockInvalidRecLen(t *testing.T) {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint16(b[8:10], 4) // below MinDirRecLen
	_, err := ParseDirBlock(b)
	require.Error(t, err)
}

func TestDirRecLenAlignment(t *testing.T) {
	require.Equal(t, uint16(16), DirRecLen(1))
	require.Equal(t, uint16(16), DirRecLen(2))
	require.Equal(t, uint16(20), DirRecLen(5))
}

func TestPutDirEntryPreservesRecLen(t *testing.T) {
	b := make([]byte, 32)
	writeDirent(b, 0, DirEntry{Inode: 5, RecLen: 32, NameLen: 4, FileType: FileTypeRegular, Name: "test"})
	entries, err := ParseDirBlock(b)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries[0].Inode = 9
	PutDirEntry(b, entries[0])

	reparsed, err := ParseDirBlock(b)
	require.NoError(t, err)
	require.Equal(t, uint64(9), reparsed[0].Inode)
	require.Equal(t, uint16(32), reparsed[0].RecLen)
}
