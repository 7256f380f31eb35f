package checker

import "github.com/ocfs2-tools/ocfs2check/ocfs2"

// RunPass2 walks every directory block Pass 1 recorded in DirBlocks,
// validating and repairing its dirent chain, building up DirParents and
// IcountRefs as it goes, grounded on the reference tool's pass2.c
// (fix_dirent_lengths, fix_dirent_dots) and dirblocks.c's coalesced-read
// iteration order.
func RunPass2(s *State) error {
	s.Log.Info("pass 2: checking directory entries")

	var err error
	s.DirBlocks.Each(func(e DirBlockEntry) bool {
		err = checkDirBlock(s, e)
		return err == nil
	})
	return err
}

func checkDirBlock(s *State, e DirBlockEntry) error {
	buf, rerr := s.FS.ReadBlocks(e.Blkno, 1)
	if rerr != nil {
		s.Log.WithError(rerr).Warnf("pass2: directory block %d of inode %d unreadable", e.Blkno, e.Ino)
		return nil
	}

	dirty := false
	entries, perr := ocfs2.ParseDirBlock(buf)
	if perr != nil {
		if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Directory inode %d block %d has a corrupt dirent chain. Rebuild it as empty?", e.Ino, e.Blkno) {
			s.SawError = true
			return nil
		}
		// One unused entry spanning the whole block.
		entries = []ocfs2.DirEntry{{RecLen: uint16(len(buf))}}
		dirty = true
	}

	fixed := fixDirentLengths(s, e, entries, &dirty)
	fixed = fixDirentDots(s, e, fixed, &dirty)

	for _, entry := range fixed {
		if entry.Inode == 0 {
			continue
		}
		s.IcountRefs.Delta(entry.Inode, 1)

		switch entry.Name {
		case ".":
			// self-reference, not a parent/child edge.
		case "..":
			if existing, ok := s.DirParents.Lookup(e.Ino); ok {
				existing.DotDot = entry.Inode
			} else if err := s.DirParents.Add(e.Ino, entry.Inode, 0); err != nil {
				return err
			}
		default:
			if entry.FileType == ocfs2.FileTypeDir {
				if existing, ok := s.DirParents.Lookup(entry.Inode); ok {
					existing.Dirent = e.Ino
				} else if err := s.DirParents.Add(entry.Inode, 0, e.Ino); err != nil {
					return err
				}
			}
		}
	}

	if dirty {
		for _, entry := range fixed {
			ocfs2.PutDirEntry(buf, entry)
		}
		if err := s.FS.WriteBlocks(e.Blkno, buf); err != nil {
			return newResult(KindIO, "pass2", "writing repaired directory block", err)
		}
	}
	return nil
}

// fixDirentLengths clears, in place, an entry whose inode number refers to
// a block outside FoundBlocks (a dangling reference) and an entry whose
// rec_len is smaller than its name_len needs. A rec_len that would overrun
// the block is not repaired here: ParseDirBlock rejects such a block, and
// checkDirBlock then offers to rebuild it as empty.
func fixDirentLengths(s *State, e DirBlockEntry, entries []ocfs2.DirEntry, dirty *bool) []ocfs2.DirEntry {
	out := entries[:0:0]
	for _, entry := range entries {
		if entry.Inode != 0 && !s.FoundBlocks.Test(entry.Inode) {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Directory inode %d has an entry %q pointing to non-existent inode %d. Clear it?", e.Ino, entry.Name, entry.Inode) {
				entry.Inode = 0
				entry.NameLen = 0
				entry.Name = ""
				*dirty = true
			} else {
				s.SawError = true
			}
		}
		minLen := ocfs2.DirRecLen(int(entry.NameLen))
		if entry.RecLen < minLen {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Directory inode %d has a dirent with rec_len smaller than its name. Clear it?", e.Ino) {
				entry.Inode = 0
				entry.NameLen = 0
				entry.Name = ""
				*dirty = true
			} else {
				s.SawError = true
			}
		}
		out = append(out, entry)
	}
	return out
}

// fixDirentDots checks the first block of a directory: when its first
// entry is ".", it must point at the directory itself, and a mismatch is
// offered for repair. A missing "." or ".." entry is not created, "." or
// ".." entries at other positions are not looked for, and the ".." target
// is not checked here.
func fixDirentDots(s *State, e DirBlockEntry, entries []ocfs2.DirEntry, dirty *bool) []ocfs2.DirEntry {
	if e.BlkCount != 0 {
		// Not the first block of the directory; dot entries only live in
		// the first block.
		return entries
	}
	if len(entries) > 0 && entries[0].Name == "." {
		if entries[0].Inode != e.Ino {
			if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Directory inode %d's \".\" entry points to %d instead of itself. Fix it?", e.Ino, entries[0].Inode) {
				entries[0].Inode = e.Ino
				*dirty = true
			} else {
				s.SawError = true
			}
		}
	}
	return entries
}
