package checker

import (
	"testing"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/stretchr/testify/require"
)

func TestRunDuplicateClusterPassesSkipsWhenNoneFound(t *testing.T) {
	s, _, _ := newTestState(t)
	// No system inode registered; if RunDuplicateClusterPasses tried to walk
	// the allocator it would fail looking it up.
	err := RunDuplicateClusterPasses(s)
	require.NoError(t, err)
}

func TestRecordDuplicateOwnershipTracksBothClaimants(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	s.DuplicateBlocks.Set(9)

	dc := newDuplicateContext()
	first := buildExtentInode(10, ocfs2.FileTypeRegular, 1, 0, 15, 1,
		[]ocfs2.ExtentRecord{{ClusterOff: 0, Clusters: 1, Blkno: 8}})
	second := buildExtentInode(11, ocfs2.FileTypeRegular, 1, 0, 15, 1,
		[]ocfs2.ExtentRecord{{ClusterOff: 0, Clusters: 1, Blkno: 8}})

	require.NoError(t, recordDuplicateOwnership(s, dc, first))
	require.NoError(t, recordDuplicateOwnership(s, dc, second))

	claimants, ok := dc.owners.Get(9)
	require.True(t, ok)
	require.Equal(t, 2, claimants.Len())
	require.True(t, claimants.Has(10))
	require.True(t, claimants.Has(11))
}

func TestRecordDuplicateOwnershipIgnoresInlineDataInode(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	s.DuplicateBlocks.Set(9)

	dc := newDuplicateContext()
	in := buildInlineDirInode(12, 0)
	require.NoError(t, recordDuplicateOwnership(s, dc, in))
	require.Equal(t, 0, dc.owners.Len())
}

func TestPass1cNameOwnersFallsBackToBlockNumber(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	dc := newDuplicateContext()
	claimants := NewOrderedMap[struct{}]()
	claimants.Set(42, struct{}{})
	dc.owners.Set(9, claimants)

	names := pass1cNameOwners(s, dc)
	require.Equal(t, "#42", names[42])
}

func TestPass1cNameOwnersUsesDirParentHint(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	require.NoError(t, s.DirParents.Add(42, 2, 2))

	dc := newDuplicateContext()
	claimants := NewOrderedMap[struct{}]()
	claimants.Set(42, struct{}{})
	dc.owners.Set(9, claimants)

	names := pass1cNameOwners(s, dc)
	require.Equal(t, "#2/#42", names[42])
}

func TestPass1dReconcileLeavesSawErrorClearWhenClonesApproved(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	dc := newDuplicateContext()
	claimants := NewOrderedMap[struct{}]()
	claimants.Set(10, struct{}{})
	claimants.Set(11, struct{}{})
	dc.owners.Set(9, claimants)

	err := pass1dReconcile(s, dc, map[uint64]string{10: "#10", 11: "#11"})
	require.NoError(t, err)
	require.False(t, s.SawError)
}

func TestPass1dReconcileSetsSawErrorWhenCloneDeclined(t *testing.T) {
	s, _, prompter := newPass1TestState(t)
	prompter.Default = false

	dc := newDuplicateContext()
	claimants := NewOrderedMap[struct{}]()
	claimants.Set(10, struct{}{})
	claimants.Set(11, struct{}{})
	dc.owners.Set(9, claimants)

	err := pass1dReconcile(s, dc, map[uint64]string{10: "#10", 11: "#11"})
	require.NoError(t, err)
	require.True(t, s.SawError)
}

func TestPass1dReconcileSkipsBlockWithSingleClaimant(t *testing.T) {
	s, _, _ := newPass1TestState(t)
	dc := newDuplicateContext()
	claimants := NewOrderedMap[struct{}]()
	claimants.Set(10, struct{}{})
	dc.owners.Set(9, claimants)

	err := pass1dReconcile(s, dc, map[uint64]string{10: "#10"})
	require.NoError(t, err)
	require.False(t, s.SawError)
}
