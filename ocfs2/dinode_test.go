package ocfs2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func blankInodeBlock(blockSize int) []byte {
	b := make([]byte, blockSize)
	copy(b[dinodeOffSignature:], InodeSignature)
	return b
}

func TestInodeFromBytesRoundTrip(t *testing.T) {
	const blockSize = 4096
	const seed = uint32(0xabad1dea)

	in := &Inode{
		blockSize:  blockSize,
		raw:        blankInodeBlock(blockSize),
		Generation: 7,
		Blkno:      42,
		Flags:      InodeFlagValid,
		Mode:       0o100644,
		LinksCount: 1,
		Size:       1024,
		Clusters:   1,
	}
	encoded := in.ToBytes(seed)

	decoded, err := InodeFromBytes(encoded, 42, seed)
	require.NoError(t, err)
	require.Equal(t, in.Blkno, decoded.Blkno)
	require.Equal(t, in.Generation, decoded.Generation)
	require.True(t, decoded.IsValid())
	require.Equal(t, FileTypeRegular, decoded.FileType())
}

func TestInodeFromBytesBadSignature(t *testing.T) {
	b := make([]byte, 512)
	copy(b[dinodeOffSignature:], "NOPE0000")
	_, err := InodeFromBytes(b, 1, 0)
	require.Error(t, err)
}

func TestInodeFromBytesChecksumMismatch(t *testing.T) {
	const blockSize = 512
	in := &Inode{blockSize: blockSize, raw: blankInodeBlock(blockSize), Blkno: 5, Flags: InodeFlagValid}
	encoded := in.ToBytes(1)
	// Corrupt one payload byte after the checksum has been baked in.
	encoded[dinodeOffMode] ^= 0xff

	_, err := InodeFromBytes(encoded, 5, 1)
	require.Error(t, err)
	var checksumErr *ChecksumError
	require.ErrorAs(t, err, &checksumErr)
}

func TestFileTypeMapping(t *testing.T) {
	cases := []struct {
		mode uint16
		want byte
	}{
		{0o040000, FileTypeDir},
		{0o100000, FileTypeRegular},
		{0o120000, FileTypeSymlink},
		{0o020000, FileTypeChardev},
		{0o060000, FileTypeBlockdev},
		{0o010000, FileTypeFifo},
		{0o140000, FileTypeSocket},
	}
	for _, c := range cases {
		in := &Inode{Mode: c.mode}
		require.Equal(t, c.want, in.FileType())
	}
}
