package checker

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/ocfs2-tools/ocfs2check/ocfs2/crc32c"
	"github.com/ocfs2-tools/ocfs2check/util"
	"github.com/sirupsen/logrus"
)

// debugDumpBlock logs the raw bytes of a block under suspicion at Debug
// level, so a -v run leaves enough evidence to diagnose a checksum
// mismatch after the fact without a separate forensic tool.
func debugDumpBlock(s *State, blkno uint64, buf []byte) {
	if !s.Log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	s.Log.Debugf("block %d raw contents:\n%s", blkno, util.DumpByteSlice(buf, 16, true, true, false, nil))
}

// RunPass1 walks every inode reachable through the global and per-slot
// local inode allocators, validates it structurally, and recursively walks
// its extent tree, xattrs, and refcount tree. It is the largest pass,
// grounded on pass1.c's inode iteration together with the extent-tree
// walking helpers in extent.c (§4.3, §9 of SPEC_FULL.md: extent-tree
// metadata blocks are marked in FoundBlocks exactly like data blocks).
func RunPass1(s *State) error {
	s.Log.Info("pass 1: checking inodes and blocks")

	visit := func(blkno uint64) error { return checkInode(s, blkno) }
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

// walkAllocatorInodes visits every candidate inode block reachable through
// the chain allocator at (typ, slot), calling visit for each. Pass 1 uses
// it to check inodes in place; Pass 1b reuses it with a different visitor
// to discover which inodes claim a duplicated block, avoiding a second
// copy of the chain-walking logic.
func walkAllocatorInodes(s *State, typ ocfs2.SystemInodeType, slot int, visit func(blkno uint64) error) error {
	allocBlk, err := s.FS.LookupSystemInode(typ, slot)
	if err != nil {
		if slot < 0 {
			return newResult(KindIO, "pass1", "locating inode allocator", err)
		}
		return nil
	}
	alloc, err := s.FS.ReadInode(allocBlk)
	if err != nil {
		return newResult(KindIO, "pass1", "reading inode allocator", err)
	}
	cl, err := ocfs2.ParseChainList(alloc.Data(), 0)
	if err != nil {
		return newResult(KindCorrupt, "pass1", "parsing inode allocator chain list", err)
	}

	for _, rec := range cl.Records {
		if err := walkInodeChain(s, rec.Blkno, visit); err != nil {
			return err
		}
	}
	return nil
}

func walkInodeChain(s *State, head uint64, visit func(blkno uint64) error) error {
	visited := map[uint64]bool{}
	blkno := head
	for blkno != 0 && !visited[blkno] {
		visited[blkno] = true
		buf, err := s.FS.ReadBlocks(blkno, 1)
		if err != nil {
			return nil
		}
		gd, gerr := ocfs2.GroupDescriptorFromBytes(buf, blkno, s.Super.ChecksumSeed)
		if gerr != nil {
			if _, ok := gerr.(*ocfs2.ChecksumError); !ok {
				return nil
			}
		}
		if err := walkInodeGroup(s, gd, visit); err != nil {
			return err
		}
		blkno = gd.NextGroup
	}
	return nil
}

// walkInodeGroup inspects every bit a group descriptor marks used, treating
// each as a candidate inode block at gd.Blkno+bit (this repository's flat
// one-inode-per-bit layout).
func walkInodeGroup(s *State, gd *ocfs2.GroupDescriptor, visit func(blkno uint64) error) error {
	for bit := 0; bit < int(gd.TotalBitsCnt); bit++ {
		byteIdx, mask := bit/8, byte(1<<uint(bit%8))
		if byteIdx >= len(gd.Bitmap) || gd.Bitmap[byteIdx]&mask == 0 {
			continue
		}
		blkno := gd.Blkno + uint64(bit)
		if err := visit(blkno); err != nil {
			return err
		}
	}
	return nil
}

// checkInode reads, validates, and (if it passes or is repaired in place)
// fully walks a single candidate inode block.
func checkInode(s *State, blkno uint64) error {
	in, err := s.FS.ReadInode(blkno)
	if err != nil {
		if _, ok := err.(*ocfs2.ChecksumError); ok {
			if !s.Prompt(PromptSpec{Kind: PromptDefaultNo}, "Inode %d has a bad checksum. Clear it?", blkno) {
				s.SawError = true
				return nil
			}
			s.Bad.Set(blkno)
			return nil
		}
		// Not a dinode at all (signature mismatch) — the allocator bitmap
		// bit is simply wrong about this block's contents.
		s.Log.WithError(err).Debugf("pass1: block %d claimed by inode allocator is not a dinode", blkno)
		return nil
	}

	if !in.IsValid() {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d is marked in-use by the allocator but has no VALID flag. Clear allocator bit?", blkno) {
			s.Bad.Set(blkno)
		} else {
			s.SawError = true
		}
		return nil
	}

	if in.Blkno != blkno {
		if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode at block %d records i_blkno=%d. Fix it?", blkno, in.Blkno) {
			s.SawError = true
			return nil
		}
		in.Blkno = blkno
		if err := s.FS.WriteInode(in); err != nil {
			return newResult(KindIO, "pass1", "rewriting inode blkno", err)
		}
	}

	if blkno == s.Super.RootInode && in.FileType() != ocfs2.FileTypeDir {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Root inode %d is not a directory. Clear allocator bit?", blkno) {
			s.Bad.Set(blkno)
			return nil
		}
		s.SawError = true
	}

	// A non-zero i_dtime on an inode the allocator still calls live means
	// either an interrupted unlink or stale metadata left behind by an
	// earlier bug; either way the inode is in use and should not carry a
	// deletion time.
	if in.DTime.Unix() != 0 {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d is in use but has a non-zero deletion time. Clear it?", blkno) {
			in.DTime = time.Unix(0, 0).UTC()
			if err := s.FS.WriteInode(in); err != nil {
				return newResult(KindIO, "pass1", "clearing inode dtime", err)
			}
		} else {
			s.SawError = true
		}
	}

	s.markFoundBlock(blkno)
	s.Used.Set(blkno)
	s.IcountInInodes.Set(blkno, in.LinksCount)

	switch in.FileType() {
	case ocfs2.FileTypeDir:
		s.Dir.Set(blkno)
		s.Counters.Dirs++
		if in.HasInlineData() {
			s.Counters.InlineDirs++
		}
	case ocfs2.FileTypeRegular:
		s.Regular.Set(blkno)
		s.Counters.Files++
		if in.HasInlineData() {
			s.Counters.InlineFiles++
		}
		if in.HasRefcount() {
			s.Counters.Reflinks++
		}
	case ocfs2.FileTypeSymlink:
		s.Counters.Symlinks++
		if in.HasInlineData() {
			s.Counters.FastSymlinks++
		}
	case ocfs2.FileTypeChardev:
		s.Counters.Chardevs++
	case ocfs2.FileTypeBlockdev:
		s.Counters.Blockdevs++
	case ocfs2.FileTypeFifo:
		s.Counters.Fifos++
	case ocfs2.FileTypeSocket:
		s.Counters.Sockets++
	}

	accumulateQuotaUsage(s, in)

	if !in.HasInlineData() {
		totalClusters, err := walkInodeExtents(s, in)
		if err != nil {
			return err
		}
		if err := reconcileInodeSize(s, in, totalClusters); err != nil {
			return err
		}
	} else if in.FileType() == ocfs2.FileTypeDir && in.Size == 0 {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Directory inode %d has zero length. Clear allocator bit?", in.Blkno) {
			s.Bad.Set(in.Blkno)
			return nil
		}
		s.SawError = true
	}

	if in.HasXattr() {
		if err := walkInodeXattrs(s, in); err != nil {
			return err
		}
	}

	if in.HasRefcount() {
		if err := walkRefcountTree(s, in); err != nil {
			return err
		}
	}

	return nil
}

// reconcileInodeSize is step 5 of pass1.c's per-inode checks: recompute
// i_clusters from what the (possibly just-repaired) extent tree actually
// covers, clamp i_size to what those clusters can hold, and offer to clear
// a directory that ends up with nothing left.
func reconcileInodeSize(s *State, in *ocfs2.Inode, expectedClusters uint32) error {
	dirty := false
	if in.Clusters != expectedClusters {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d claims %d clusters but its extent tree covers %d. Fix i_clusters?", in.Blkno, in.Clusters, expectedClusters) {
			in.Clusters = expectedClusters
			dirty = true
		} else {
			s.SawError = true
		}
	}

	maxSize := uint64(expectedClusters) * uint64(s.Super.ClusterSize)
	if in.Size > maxSize {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d claims size %d but only has %d clusters allocated. Truncate i_size?", in.Blkno, in.Size, maxSize) {
			in.Size = maxSize
			dirty = true
		} else {
			s.SawError = true
		}
	}

	if dirty {
		if err := s.FS.WriteInode(in); err != nil {
			return newResult(KindIO, "pass1", "writing corrected inode size/clusters", err)
		}
	}

	if in.FileType() == ocfs2.FileTypeDir && expectedClusters == 0 {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Directory inode %d has zero length. Clear allocator bit?", in.Blkno) {
			s.Bad.Set(in.Blkno)
		} else {
			s.SawError = true
		}
	}
	return nil
}

// accumulateQuotaUsage adds in's block count to its owning uid's and gid's
// running totals, the raw material Pass 5 reconstructs the local quota
// files from.
func accumulateQuotaUsage(s *State, in *ocfs2.Inode) {
	blocks := uint64(in.Clusters) * uint64(s.Super.BlocksPerCluster())
	addQuota(s.UserQuotaUsage, uint64(in.UID), blocks)
	addQuota(s.GroupQuotaUsage, uint64(in.GID), blocks)
}

func addQuota(m *OrderedMap[*QuotaUsage], id uint64, blocks uint64) {
	u, ok := m.Get(id)
	if !ok {
		u = &QuotaUsage{}
		m.Set(id, u)
	}
	u.Inodes++
	u.Blocks += blocks
}

// extentNodeRef bundles an in-memory extent-list node with the capacity it
// was parsed from and a way to persist it, so walkInodeExtents's recursion
// doesn't need to special-case the inline root against an out-of-line
// extent block at every repair site.
type extentNodeRef struct {
	node     *ocfs2.ExtentNode
	capacity uint16
	owner    string
	write    func(*ocfs2.ExtentNode) error
}

// clampExtentListHeader enforces that l_count matches the record capacity
// the node was actually parsed from and that l_next_free_rec matches the
// record count walkInodeExtents ends up keeping. Either disagreeing is a
// fatal inconsistency for ToBytes/ParseExtentList if left on disk.
func clampExtentListHeader(s *State, node *ocfs2.ExtentNode, capacity uint16, owner string) bool {
	dirty := false
	if node.Header.MaxRecords != capacity {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s reports l_count=%d but has room for %d records. Fix it?", owner, node.Header.MaxRecords, capacity) {
			node.Header.MaxRecords = capacity
			dirty = true
		} else {
			s.SawError = true
		}
	}
	n := uint16(len(node.Leaves) + len(node.Children))
	if node.Header.NextFreeRec != n {
		if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "%s reports l_next_free_rec=%d but holds %d records. Fix it?", owner, node.Header.NextFreeRec, n) {
			node.Header.NextFreeRec = n
			dirty = true
		} else {
			s.SawError = true
		}
	}
	return dirty
}

// walkInodeExtents recursively descends an inode's extent tree, applying
// the repair rules of SPEC_FULL.md §4.3: an l_count/l_next_free_rec that
// disagrees with the list's actual capacity or contents, out-of-order
// records, a physical start outside the volume, a physical start that
// isn't cluster-aligned, an extent running past i_clusters, and a child
// whose own h_blkno disagrees with its parent's pointer. Every block
// visited, metadata or data, is marked in FoundBlocks. It returns the
// cluster count the (possibly repaired) tree ends up covering, used by
// reconcileInodeSize for the i_clusters/i_size cross-check.
func walkInodeExtents(s *State, in *ocfs2.Inode) (uint32, error) {
	root, err := ocfs2.ParseExtentList(in.Data(), 0)
	if err != nil {
		if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an unparsable extent list (%v). Truncate to empty?", in.Blkno, err) {
			s.SawError = true
			return 0, nil
		}
		return 0, nil
	}

	isDir := in.FileType() == ocfs2.FileTypeDir
	bpc := uint64(s.Super.BlocksPerCluster())
	maxBlkno := uint64(s.Super.ClustersCount) * bpc
	var lastOff, totalClusters uint32
	var blkIdx uint64

	var walk func(ref extentNodeRef, depth int) error
	walk = func(ref extentNodeRef, depth int) error {
		node := ref.node
		dirty := clampExtentListHeader(s, node, ref.capacity, ref.owner)

		if node.IsLeaf() {
			kept := node.Leaves[:0:0]
			for _, rec := range node.Leaves {
				if rec.ClusterOff < lastOff {
					if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an out-of-order extent record. Drop it?", in.Blkno) {
						s.SawError = true
						kept = append(kept, rec)
					} else {
						dirty = true
					}
					continue
				}

				if rec.Blkno%bpc != 0 {
					rounded := (rec.Blkno / bpc) * bpc
					if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an extent record starting at non-cluster-aligned block %d. Round down to %d?", in.Blkno, rec.Blkno, rounded) {
						rec.Blkno = rounded
						dirty = true
					} else {
						s.SawError = true
					}
				}

				if rec.Clusters == 0 || rec.Blkno >= maxBlkno {
					if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an extent record with physical start %d out of range. Drop it?", in.Blkno, rec.Blkno) {
						s.SawError = true
						kept = append(kept, rec)
					} else {
						dirty = true
					}
					continue
				}
				if rec.Blkno+uint64(rec.Clusters)*bpc > maxBlkno {
					fit := uint32((maxBlkno - rec.Blkno) / bpc)
					if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an extent record running past the end of the volume. Truncate it to %d clusters?", in.Blkno, fit) {
						rec.Clusters = fit
						dirty = true
					} else {
						s.SawError = true
					}
				}

				lastOff = rec.ClusterOff + rec.Clusters
				if rec.ClusterOff+rec.Clusters > in.Clusters {
					if s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an extent extending past i_clusters. Truncate it?", in.Blkno) {
						if rec.ClusterOff >= in.Clusters {
							dirty = true
							continue
						}
						rec.Clusters = in.Clusters - rec.ClusterOff
						lastOff = rec.ClusterOff + rec.Clusters
						dirty = true
					} else {
						s.SawError = true
					}
				}

				blockCount := uint64(rec.Clusters) * bpc
				for i := uint64(0); i < blockCount; i++ {
					blk := rec.Blkno + i
					s.markFoundBlock(blk)
					if isDir {
						s.DirBlocks.Add(in.Blkno, blk, blkIdx)
					}
					blkIdx++
				}
				totalClusters += rec.Clusters
				kept = append(kept, rec)
			}
			if len(kept) != len(node.Leaves) {
				dirty = true
			}
			node.Leaves = kept
			if uint16(len(node.Leaves)) != node.Header.NextFreeRec {
				node.Header.NextFreeRec = uint16(len(node.Leaves))
				dirty = true
			}
			if dirty {
				if err := ref.write(node); err != nil {
					return err
				}
			}
			return nil
		}

		keptChildren := node.Children[:0:0]
		for _, c := range node.Children {
			buf, err := s.FS.ReadBlocks(c.Blkno, 1)
			if err != nil {
				if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an unreadable extent block %d. Drop this branch?", in.Blkno, c.Blkno) {
					s.SawError = true
					keptChildren = append(keptChildren, c)
				} else {
					dirty = true
				}
				continue
			}
			eb, eerr := ocfs2.ExtentBlockFromBytes(buf, c.Blkno, s.Super.ChecksumSeed)
			if eerr != nil {
				if _, ok := eerr.(*ocfs2.ChecksumError); !ok {
					if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has a corrupt extent block %d (%v). Drop this branch?", in.Blkno, c.Blkno, eerr) {
						s.SawError = true
						keptChildren = append(keptChildren, c)
					} else {
						dirty = true
					}
					continue
				}
				debugDumpBlock(s, c.Blkno, buf)
				if !s.Prompt(PromptSpec{Kind: PromptDefaultNo}, "Extent block %d has a bad checksum. Trust it anyway?", c.Blkno) {
					s.SawError = true
					keptChildren = append(keptChildren, c)
					continue
				}
			}
			if eb.Blkno != c.Blkno {
				if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Extent block %d records h_blkno=%d, disagreeing with its parent pointer. Fix it?", c.Blkno, eb.Blkno) {
					s.SawError = true
				} else {
					binary.LittleEndian.PutUint64(buf[8:16], c.Blkno)
					binary.LittleEndian.PutUint32(buf[24:28], 0)
					binary.LittleEndian.PutUint32(buf[24:28], crc32c.Sum(s.Super.ChecksumSeed, buf))
					if err := s.FS.WriteBlocks(c.Blkno, buf); err != nil {
						return newResult(KindIO, "pass1", "rewriting extent block h_blkno", err)
					}
					eb.Blkno = c.Blkno
				}
			}
			s.markFoundBlock(c.Blkno)

			childBuf := buf
			childBlkno := c.Blkno
			writeChild := func(n *ocfs2.ExtentNode) error {
				spliced := n.ToBytes(len(childBuf) - ocfs2.ExtentBlockListOffset)
				copy(childBuf[ocfs2.ExtentBlockListOffset:], spliced)
				binary.LittleEndian.PutUint32(childBuf[24:28], 0)
				sum := crc32c.Sum(s.Super.ChecksumSeed, childBuf)
				binary.LittleEndian.PutUint32(childBuf[24:28], sum)
				return s.FS.WriteBlocks(childBlkno, childBuf)
			}
			childCapacity := uint16((len(childBuf) - ocfs2.ExtentBlockListOffset - ocfs2.ExtentListHeaderSize) / ocfs2.ExtentRecordSize)
			if err := walk(extentNodeRef{eb.Node, childCapacity, fmt.Sprintf("extent block %d", c.Blkno), writeChild}, depth+1); err != nil {
				return err
			}
			keptChildren = append(keptChildren, c)
		}
		if len(keptChildren) != len(node.Children) {
			dirty = true
		}
		node.Children = keptChildren
		if dirty {
			if err := ref.write(node); err != nil {
				return err
			}
		}
		return nil
	}

	if int(root.Header.TreeDepth) > ocfs2.MaxPathDepth {
		return 0, newResult(KindBadRange, "pass1", fmt.Sprintf("inode %d tree_depth %d exceeds max", in.Blkno, root.Header.TreeDepth), nil)
	}
	if root.Header.TreeDepth > 0 {
		s.Counters.TreeDepth[root.Header.TreeDepth]++
	}

	rootCapacity := uint16((len(in.Data()) - ocfs2.ExtentListHeaderSize) / ocfs2.ExtentRecordSize)
	writeRoot := func(n *ocfs2.ExtentNode) error {
		in.SetData(n.ToBytes(len(in.Data())))
		return s.FS.WriteInode(in)
	}
	if err := walk(extentNodeRef{root, rootCapacity, fmt.Sprintf("inode %d extent list", in.Blkno), writeRoot}, 0); err != nil {
		return 0, err
	}
	return totalClusters, nil
}

// walkInodeXattrs validates inline and external extended attributes,
// checking each entry's recomputed name hash against the recorded value.
func walkInodeXattrs(s *State, in *ocfs2.Inode) error {
	if in.HasInlineXattr() {
		entries, err := ocfs2.ParseInlineXattr(in.Data())
		if err != nil {
			if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an unparsable inline xattr area. Clear it?", in.Blkno) {
				s.SawError = true
			}
			return nil
		}
		checkXattrEntries(s, in.Blkno, entries)
	}

	if in.XattrLoc == 0 {
		return nil
	}
	buf, err := s.FS.ReadBlocks(in.XattrLoc, 1)
	if err != nil {
		if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d's external xattr block %d is unreadable. Clear xt_loc?", in.Blkno, in.XattrLoc) {
			s.SawError = true
			return nil
		}
		in.XattrLoc = 0
		if err := s.FS.WriteInode(in); err != nil {
			return newResult(KindIO, "pass1", "clearing xt_loc", err)
		}
		return nil
	}
	hdr, entries, xerr := ocfs2.XattrBlockFromBytes(buf, in.XattrLoc, s.Super.ChecksumSeed)
	if xerr != nil {
		if _, ok := xerr.(*ocfs2.ChecksumError); !ok {
			if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d's external xattr block %d is corrupt. Clear xt_loc?", in.Blkno, in.XattrLoc) {
				s.SawError = true
				return nil
			}
			in.XattrLoc = 0
			if err := s.FS.WriteInode(in); err != nil {
				return newResult(KindIO, "pass1", "clearing xt_loc", err)
			}
			return nil
		}
		debugDumpBlock(s, in.XattrLoc, buf)
		if !s.Prompt(PromptSpec{Kind: PromptDefaultNo}, "Xattr block %d has a bad checksum. Trust it anyway?", in.XattrLoc) {
			s.SawError = true
			return nil
		}
	}
	s.markFoundBlock(in.XattrLoc)
	if !hdr.IndexedTree {
		checkXattrEntries(s, in.Blkno, entries)
	}
	return nil
}

func checkXattrEntries(s *State, owner uint64, entries []ocfs2.XattrEntry) {
	for _, e := range entries {
		want := ocfs2.HashName(e.NameIndex, e.Name)
		if want != e.NameHash && e.NameLen > 0 {
			if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Inode %d has an xattr entry with a mismatched name hash. Repair it?", owner) {
				s.SawError = true
			}
		}
	}
}

// walkRefcountTree descends a reflink-capable inode's refcount tree,
// accumulating per-cluster reference counts into State.RefcountTrees so
// they can be cross-checked once every sharing inode has been visited.
func walkRefcountTree(s *State, in *ocfs2.Inode) error {
	if in.RefcountLoc == 0 {
		return nil
	}
	tree, ok := s.RefcountTrees.Get(uint64(in.RefcountLoc))
	if !ok {
		tree = &RefcountTreeState{RootBlkno: uint64(in.RefcountLoc), ObservedRefs: map[uint32]uint32{}}
		s.RefcountTrees.Set(uint64(in.RefcountLoc), tree)
	}

	var walk func(blkno uint64) error
	walk = func(blkno uint64) error {
		buf, err := s.FS.ReadBlocks(blkno, 1)
		if err != nil {
			return nil
		}
		rb, rerr := ocfs2.RefcountBlockFromBytes(buf, blkno, s.Super.ChecksumSeed)
		if rerr != nil {
			if _, ok := rerr.(*ocfs2.ChecksumError); !ok {
				return nil
			}
		}
		s.markFoundBlock(blkno)
		if rb.TreeDepth == 0 {
			for _, rec := range rb.Leaves {
				for c := rec.ClusterStart; c < rec.ClusterStart+rec.ClusterCount; c++ {
					tree.ObservedRefs[c]++
				}
			}
			return nil
		}
		for _, c := range rb.Children {
			if err := walk(c.Blkno); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(uint64(in.RefcountLoc))
}
