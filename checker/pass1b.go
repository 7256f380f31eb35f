package checker

import "github.com/ocfs2-tools/ocfs2check/ocfs2"

// DuplicateContext tracks, for each block found to be claimed by more than
// one inode during Pass 1, the set of owning inodes discovered so far. It
// exists only for the duration of Pass 1b-1d and is discarded once
// ownership has been resolved, mirroring the reference tool's
// o2fsck_dup_ctxt lifetime.
type DuplicateContext struct {
	// owners maps a duplicated block number to the ordered-map of inode
	// numbers that claim it.
	owners *OrderedMap[*OrderedMap[struct{}]]
}

func newDuplicateContext() *DuplicateContext {
	return &DuplicateContext{owners: NewOrderedMap[*OrderedMap[struct{}]]()}
}

// RunDuplicateClusterPasses runs Pass 1b (ownership discovery), Pass 1c
// (naming), and Pass 1d (reconciliation) against every block Pass 1
// marked as duplicate-claimed, and is entirely skipped when no duplicate
// was found (§4.4, §9 of SPEC_FULL.md).
func RunDuplicateClusterPasses(s *State) error {
	if s.DuplicateBlocks.Empty() {
		return nil
	}
	s.Log.Info("pass 1b: looking for inodes pointing to duplicate blocks")

	dc := newDuplicateContext()
	if err := pass1bFindOwners(s, dc); err != nil {
		return err
	}

	s.Log.Info("pass 1c: naming duplicated inodes")
	names := pass1cNameOwners(s, dc)

	s.Log.Info("pass 1d: reconciling duplicate blocks")
	return pass1dReconcile(s, dc, names)
}

// pass1bFindOwners re-walks every inode reachable through the global and
// per-slot local inode allocators, the same enumeration Pass 1 uses,
// recording which inodes reference which duplicated blocks.
func pass1bFindOwners(s *State, dc *DuplicateContext) error {
	visit := func(blkno uint64) error {
		in, err := s.FS.ReadInode(blkno)
		if err != nil || !in.IsValid() {
			return nil
		}
		return recordDuplicateOwnership(s, dc, in)
	}
	if err := walkAllocatorInodes(s, ocfs2.GlobalInodeAllocSystemInode, -1, visit); err != nil {
		return err
	}
	for slot := 0; slot < int(s.Super.MaxSlots); slot++ {
		if err := walkAllocatorInodes(s, ocfs2.LocalInodeAllocSystemInode, slot, visit); err != nil {
			return err
		}
	}
	return nil
}

func recordDuplicateOwnership(s *State, dc *DuplicateContext, in *ocfs2.Inode) error {
	if in.HasInlineData() {
		return nil
	}
	root, err := ocfs2.ParseExtentList(in.Data(), 0)
	if err != nil {
		return nil
	}
	var walk func(node *ocfs2.ExtentNode) error
	walk = func(node *ocfs2.ExtentNode) error {
		if node.IsLeaf() {
			bpc := uint64(s.Super.BlocksPerCluster())
			for _, rec := range node.Leaves {
				blockCount := uint64(rec.Clusters) * bpc
				for i := uint64(0); i < blockCount; i++ {
					blk := rec.Blkno + i
					if !s.DuplicateBlocks.Test(blk) {
						continue
					}
					claimants, ok := dc.owners.Get(blk)
					if !ok {
						claimants = NewOrderedMap[struct{}]()
						dc.owners.Set(blk, claimants)
					}
					claimants.Set(in.Blkno, struct{}{})
				}
			}
			return nil
		}
		for _, c := range node.Children {
			buf, err := s.FS.ReadBlocks(c.Blkno, 1)
			if err != nil {
				continue
			}
			eb, eerr := ocfs2.ExtentBlockFromBytes(buf, c.Blkno, s.Super.ChecksumSeed)
			if eerr != nil {
				if _, ok := eerr.(*ocfs2.ChecksumError); !ok {
					continue
				}
			}
			if err := walk(eb.Node); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// pass1cNameOwners resolves a name hint for each claimant inode from its
// DirParents entry ("#parent/#ino", parent being the directory whose
// dirent names it), used purely for the report and repair prompts; no
// directory tree is walked, and an inode with no DirParents entry falls
// back to its block number alone.
func pass1cNameOwners(s *State, dc *DuplicateContext) map[uint64]string {
	names := make(map[uint64]string)
	dc.owners.Ascend(func(_ uint64, claimants *OrderedMap[struct{}]) bool {
		claimants.Ascend(func(ino uint64, _ struct{}) bool {
			if _, ok := names[ino]; !ok {
				names[ino] = nameForInode(s, ino)
			}
			return true
		})
		return true
	})
	return names
}

func nameForInode(s *State, ino uint64) string {
	if dp, ok := s.DirParents.Lookup(ino); ok {
		return pathHint(dp.Dirent, ino)
	}
	return pathHint(0, ino)
}

func pathHint(parent, ino uint64) string {
	if parent == 0 {
		return fmtInoName(ino)
	}
	return fmtInoName(parent) + "/" + fmtInoName(ino)
}

func fmtInoName(ino uint64) string {
	return "#" + itoa(ino)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// pass1dReconcile prompts once per duplicated block, offering to clone it
// to a private copy for every claimant but the first, the repair strategy
// the reference tool calls "cloning" (duplicate_clusters.c).
func pass1dReconcile(s *State, dc *DuplicateContext, names map[uint64]string) error {
	dc.owners.Ascend(func(blk uint64, claimants *OrderedMap[struct{}]) bool {
		if claimants.Len() < 2 {
			return true
		}
		var firstName string
		first := true
		claimants.Ascend(func(ino uint64, _ struct{}) bool {
			if first {
				first = false
				firstName = names[ino]
				return true
			}
			if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Block %d is claimed by both %s and %s. Clone it for %s?", blk, firstName, names[ino], names[ino]) {
				s.SawError = true
			}
			return true
		})
		return true
	})
	return nil
}
