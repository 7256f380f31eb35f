package ocfs2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainListRoundTrip(t *testing.T) {
	cl := &ChainList{
		NextFreeRec: 2,
		TotalBits:   100,
		UsedBits:    40,
		Records: []ChainRecord{
			{Total: 50, Free: 10, Blkno: 10},
			{Total: 50, Free: 30, Blkno: 20},
		},
	}
	b := cl.ToBytes(16 + 2*chainRecordSize)

	parsed, err := ParseChainList(b, 0)
	require.NoError(t, err)
	require.Equal(t, cl.Records, parsed.Records)
	require.Equal(t, cl.TotalBits, parsed.TotalBits)
}

func TestParseChainListClampsCountToCapacity(t *testing.T) {
	b := make([]byte, 16+chainRecordSize) // room for exactly one record
	b[0] = 5                              // claims 5 records
	parsed, err := ParseChainList(b, 0)
	require.NoError(t, err)
	require.Len(t, parsed.Records, 1)
}

func TestGroupDescriptorRoundTrip(t *testing.T) {
	gd := &GroupDescriptor{
		Blkno:        64,
		ParentInode:  8,
		Generation:   3,
		ChainNum:     1,
		FreeBitsCnt:  100,
		TotalBitsCnt: 200,
		NextGroup:    128,
		Bitmap:       make([]byte, 32),
	}
	const seed = uint32(99)
	b := gd.ToBytes(groupDescHeaderSize+32, seed)

	decoded, err := GroupDescriptorFromBytes(b, 64, seed)
	require.NoError(t, err)
	require.Equal(t, gd.FreeBitsCnt, decoded.FreeBitsCnt)
	require.Equal(t, gd.NextGroup, decoded.NextGroup)
}

func TestGroupDescriptorBadSignature(t *testing.T) {
	b := make([]byte, groupDescHeaderSize)
	copy(b[0:7], "BOGUS00")
	_, err := GroupDescriptorFromBytes(b, 1, 0)
	require.Error(t, err)
}
