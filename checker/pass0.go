package checker

import (
	"fmt"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
)

// RunPass0 verifies every chain allocator's group-descriptor list and
// reconciles the chain's cached total/free totals against the sum of its
// groups, grounded on the reference tool's pass0.c (check_group_desc,
// check_chain, verify_inode_alloc, o2fsck_pass0). It must run before Pass 1
// since Pass 1 trusts the global inode/cluster bitmaps it produces.
func RunPass0(s *State) error {
	s.Log.Info("pass 0: checking allocators")

	alloc, err := s.FS.ReadInode(mustLookup(s, ocfs2.GlobalInodeAllocSystemInode, -1))
	if err != nil {
		return newResult(KindIO, "pass0", "reading global inode allocator", err)
	}
	if err := checkChainAllocator(s, alloc, "global inode allocator"); err != nil {
		return err
	}

	bitmap, err := s.FS.ReadInode(mustLookup(s, ocfs2.GlobalBitmapSystemInode, -1))
	if err != nil {
		return newResult(KindIO, "pass0", "reading global cluster bitmap", err)
	}
	if err := checkChainAllocator(s, bitmap, "global cluster bitmap"); err != nil {
		return err
	}

	for slot := 0; slot < int(s.Super.MaxSlots); slot++ {
		ino, err := s.FS.LookupSystemInode(ocfs2.LocalInodeAllocSystemInode, slot)
		if err != nil {
			continue
		}
		in, err := s.FS.ReadInode(ino)
		if err != nil {
			s.Log.WithError(err).Warnf("pass0: slot %d local inode alloc unreadable", slot)
			continue
		}
		if err := checkChainAllocator(s, in, fmt.Sprintf("slot %d local inode allocator", slot)); err != nil {
			return err
		}
	}

	return nil
}

func mustLookup(s *State, typ ocfs2.SystemInodeType, slot int) uint64 {
	blkno, err := s.FS.LookupSystemInode(typ, slot)
	if err != nil {
		return 0
	}
	return blkno
}

// checkChainAllocator walks every chain in in's inline chain list, visiting
// each group descriptor in its singly-linked list, verifying signature and
// checksum, and cross-checking the chain record's cached totals against the
// sum actually found. A repaired chain record is written back through
// WriteInode.
func checkChainAllocator(s *State, in *ocfs2.Inode, label string) error {
	cl, err := ocfs2.ParseChainList(in.Data(), 0)
	if err != nil {
		return newResult(KindCorrupt, "pass0", label+": parsing chain list", err)
	}

	dirty := false
	for i := range cl.Records {
		rec := &cl.Records[i]
		totalBits, freeBits, groups, err := walkChain(s, rec.Blkno, in.Blkno, label, i)
		if err != nil {
			return err
		}

		if groups == 0 {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d has no readable group descriptors. Clear it?", label, i) {
				rec.Total, rec.Free = 0, 0
				dirty = true
			}
			continue
		}

		if rec.Total != totalBits || rec.Free != freeBits {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d record reports total=%d free=%d but groups total %d free %d. Fix record?", label, i, rec.Total, rec.Free, totalBits, freeBits) {
				rec.Total = totalBits
				rec.Free = freeBits
				dirty = true
			} else {
				s.SawError = true
			}
		}
	}

	if dirty {
		if err := s.FS.WriteInode(in); err != nil {
			return newResult(KindIO, "pass0", label+": writing repaired chain list", err)
		}
	}
	return nil
}

// walkChain follows the singly-linked group-descriptor list starting at
// head, marking every group block found in State.FoundBlocks, validating
// each descriptor against the allocator that owns it, and accumulating
// totals. It stops at the first unreadable, corrupt, or already-visited
// block; when that happens past the first group, it truncates the chain on
// disk by rewriting the previous descriptor's h_next_group to 0, since a
// dangling pointer into bad metadata is worse than a chain that ends one
// group early.
func walkChain(s *State, head, parentIno uint64, label string, chainIdx int) (totalBits, freeBits uint32, groups int, err error) {
	visited := make(map[uint64]bool)
	var prevBlkno uint64
	var prevBuf []byte
	blkno := head
	for blkno != 0 {
		if visited[blkno] {
			s.Log.Warnf("pass0: %s chain %d: cycle detected at group %d, stopping walk", label, chainIdx, blkno)
			if terr := truncateChainAt(s, label, chainIdx, prevBlkno, prevBuf); terr != nil {
				return totalBits, freeBits, groups, terr
			}
			break
		}
		visited[blkno] = true

		buf, rerr := s.FS.ReadBlocks(blkno, 1)
		if rerr != nil {
			s.Log.WithError(rerr).Warnf("pass0: %s chain %d: group %d unreadable", label, chainIdx, blkno)
			if terr := truncateChainAt(s, label, chainIdx, prevBlkno, prevBuf); terr != nil {
				return totalBits, freeBits, groups, terr
			}
			break
		}
		gd, gerr := ocfs2.GroupDescriptorFromBytes(buf, blkno, s.Super.ChecksumSeed)
		if gerr != nil {
			if _, ok := gerr.(*ocfs2.ChecksumError); !ok {
				s.Log.WithError(gerr).Warnf("pass0: %s chain %d: group %d corrupt", label, chainIdx, blkno)
				if terr := truncateChainAt(s, label, chainIdx, prevBlkno, prevBuf); terr != nil {
					return totalBits, freeBits, groups, terr
				}
				break
			}
			if !s.Prompt(PromptSpec{Kind: PromptDefaultNo}, "%s chain %d group %d has a bad checksum. Trust it anyway?", label, chainIdx, blkno) {
				s.SawError = true
				if terr := truncateChainAt(s, label, chainIdx, prevBlkno, prevBuf); terr != nil {
					return totalBits, freeBits, groups, terr
				}
				break
			}
		}

		dirty := false
		if gd.Blkno != blkno {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d group %d records b_blkno=%d. Fix it?", label, chainIdx, blkno, gd.Blkno) {
				gd.Blkno = blkno
				dirty = true
			} else {
				s.SawError = true
			}
		}
		if gd.ParentInode != parentIno {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d group %d records parent inode %d, expected %d. Fix it?", label, chainIdx, blkno, gd.ParentInode, parentIno) {
				gd.ParentInode = parentIno
				dirty = true
			} else {
				s.SawError = true
			}
		}
		if s.FSGeneration != 0 && gd.Generation != s.FSGeneration {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d group %d has generation %d, expected %d. Fix it?", label, chainIdx, blkno, gd.Generation, s.FSGeneration) {
				gd.Generation = s.FSGeneration
				dirty = true
			} else {
				s.SawError = true
			}
		}
		if int(gd.ChainNum) != chainIdx {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d group %d records chain index %d. Fix it?", label, chainIdx, blkno, gd.ChainNum) {
				gd.ChainNum = uint16(chainIdx)
				dirty = true
			} else {
				s.SawError = true
			}
		}
		if gd.FreeBitsCnt > gd.TotalBitsCnt {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d group %d reports free=%d exceeding total=%d. Clamp free to total?", label, chainIdx, blkno, gd.FreeBitsCnt, gd.TotalBitsCnt) {
				gd.FreeBitsCnt = gd.TotalBitsCnt
				dirty = true
			} else {
				s.SawError = true
			}
		}
		if dirty {
			buf = gd.ToBytes(len(buf), s.Super.ChecksumSeed)
			if werr := s.FS.WriteBlocks(blkno, buf); werr != nil {
				return totalBits, freeBits, groups, newResult(KindIO, "pass0", label+": rewriting repaired group descriptor", werr)
			}
		}

		s.markFoundBlock(blkno)
		totalBits += gd.TotalBitsCnt
		freeBits += gd.FreeBitsCnt
		groups++
		prevBlkno, prevBuf = blkno, buf
		blkno = gd.NextGroup
	}
	return totalBits, freeBits, groups, nil
}

// truncateChainAt rewrites prevBlkno's group descriptor to end the chain
// there (h_next_group = 0), used when the group that follows it turned out
// to be unreadable, corrupt, or a repeat. A nil prevBuf means the very
// first group in the chain was the bad one, in which case there is nothing
// to truncate; checkChainAllocator's groups==0 path handles that case by
// clearing the chain record itself.
func truncateChainAt(s *State, label string, chainIdx int, prevBlkno uint64, prevBuf []byte) error {
	if prevBuf == nil {
		return nil
	}
	if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s chain %d has a broken group descriptor after group %d. Truncate the chain there?", label, chainIdx, prevBlkno) {
		s.SawError = true
		return nil
	}
	gd, gerr := ocfs2.GroupDescriptorFromBytes(prevBuf, prevBlkno, s.Super.ChecksumSeed)
	if gerr != nil {
		if _, ok := gerr.(*ocfs2.ChecksumError); !ok {
			return nil
		}
	}
	gd.NextGroup = 0
	buf := gd.ToBytes(len(prevBuf), s.Super.ChecksumSeed)
	if werr := s.FS.WriteBlocks(prevBlkno, buf); werr != nil {
		return newResult(KindIO, "pass0", label+": truncating broken chain", werr)
	}
	return nil
}
