package checker

import (
	"fmt"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
)

// RunPass4 reconciles every inode's on-disk i_links_count against the
// dirent references Pass 2 actually tallied into IcountRefs: a zero-
// reference inode is reconnected via reconnectFile (shared with Pass 3), a
// non-zero mismatch has its link count corrected in place, grounded on
// pass4.c.
func RunPass4(s *State) error {
	s.Log.Info("pass 4: checking link counts")

	visit := func(blkno uint64) error { return reconcileLinkCount(s, blkno) }
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

func reconcileLinkCount(s *State, blkno uint64) error {
	in, err := s.FS.ReadInode(blkno)
	if err != nil || !in.IsValid() {
		return nil
	}

	if recorded := s.IcountInInodes.Get(blkno); recorded != in.LinksCount {
		return newResult(KindInternal, "pass4", fmt.Sprintf("inode %d on-disk i_links_count=%d disagrees with %d recorded by pass 1", blkno, in.LinksCount, recorded), nil)
	}

	refs := s.IcountRefs.Get(blkno)
	if refs == 0 {
		if in.LinksCount == 0 {
			// Already unreferenced and unlinked; nothing to reconnect.
			return nil
		}
		if err := reconnectFile(s, blkno, false); err != nil {
			return err
		}
		refs = s.IcountRefs.Get(blkno)
	}

	if uint16(refs) != in.LinksCount {
		if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has link count %d but %d dirents reference it. Fix it?", blkno, in.LinksCount, refs) {
			s.SawError = true
			return nil
		}
		in.LinksCount = uint16(refs)
		if err := s.FS.WriteInode(in); err != nil {
			return newResult(KindIO, "pass4", "writing corrected link count", err)
		}
	}
	return nil
}
