// Package ocfs2 is the on-disk format library: it knows how to read and
// write individual dinodes, extent blocks, group descriptors, directory
// entries, xattr structures, refcount blocks, and journal records, but it
// has no opinion about whether any of it is consistent. That judgment
// belongs to the checker package built on top of it.
package ocfs2

import (
	"fmt"

	"github.com/ocfs2-tools/ocfs2check/backend"
)

// FileSystem is a handle to an opened ocfs2 image. It owns no checker
// state; it is the thin, stateless-except-for-caching layer the checker
// core binds against, mirroring the layering of the teacher's
// disk/backend packages beneath filesystem/ext4.
type FileSystem struct {
	Backend    backend.Storage
	Super      *SuperBlock
	SuperInode *Inode
	BlockSize  int
}

// Open reads the superblock (carried inside the dinode at
// SuperBlockBlockNumber) and returns a FileSystem handle ready for block
// I/O. blockSizeHint is used only to read the superblock dinode itself,
// before the recorded block size is known; ocfs2 images store their real
// block size in the superblock, and all subsequent I/O uses that value.
func Open(b backend.Storage, blockSizeHint int) (*FileSystem, error) {
	if blockSizeHint <= 0 {
		blockSizeHint = DinodeMinBlockSize
	}
	fs := &FileSystem{Backend: b, BlockSize: blockSizeHint}

	buf := make([]byte, blockSizeHint)
	if _, err := b.ReadAt(buf, int64(SuperBlockBlockNumber)*int64(blockSizeHint)); err != nil {
		return nil, fmt.Errorf("ocfs2: reading superblock block: %w", err)
	}
	in, err := InodeFromBytes(buf, SuperBlockBlockNumber, 0)
	if err != nil {
		if _, ok := err.(*ChecksumError); !ok {
			return nil, err
		}
	}
	sb, err := SuperBlockFromInode(in)
	if err != nil {
		return nil, err
	}
	fs.Super = sb
	fs.SuperInode = in

	if int(sb.BlockSize) != blockSizeHint && sb.BlockSize != 0 {
		fs.BlockSize = int(sb.BlockSize)
	}
	return fs, nil
}

// ReadBlocks reads count consecutive blocks starting at blkno.
func (fs *FileSystem) ReadBlocks(blkno uint64, count int) ([]byte, error) {
	buf := make([]byte, count*fs.BlockSize)
	_, err := fs.Backend.ReadAt(buf, int64(blkno)*int64(fs.BlockSize))
	if err != nil {
		return nil, fmt.Errorf("ocfs2: read_blocks(%d, %d): %w", blkno, count, err)
	}
	return buf, nil
}

// WriteBlocks writes buf (a multiple of the block size) starting at blkno.
func (fs *FileSystem) WriteBlocks(blkno uint64, buf []byte) error {
	w, err := fs.Backend.Writable()
	if err != nil {
		return fmt.Errorf("ocfs2: write_blocks(%d): %w", blkno, err)
	}
	if _, err := w.WriteAt(buf, int64(blkno)*int64(fs.BlockSize)); err != nil {
		return fmt.Errorf("ocfs2: write_blocks(%d): %w", blkno, err)
	}
	return nil
}

// ReadInode reads and decodes the dinode at blkno.
func (fs *FileSystem) ReadInode(blkno uint64) (*Inode, error) {
	b, err := fs.ReadBlocks(blkno, 1)
	if err != nil {
		return nil, err
	}
	in, err := InodeFromBytes(b, blkno, fs.Super.ChecksumSeed)
	if err != nil {
		if _, ok := err.(*ChecksumError); ok {
			return in, err
		}
		return nil, err
	}
	return in, nil
}

// WriteInode serializes and writes in back to its own block number. The
// caller asserts in.Blkno already matches the target block, the same
// invariant the teacher's o2fsck_write_inode helper enforces.
func (fs *FileSystem) WriteInode(in *Inode) error {
	b := in.ToBytes(fs.Super.ChecksumSeed)
	return fs.WriteBlocks(in.Blkno, b)
}

// LookupSystemInode resolves a well known system inode's block number.
// Global types (bitmap, global inode alloc) ignore slot; per-slot types
// (journal, orphan dir, local alloc) use it. This repository keeps a
// simple flat reserved-block layout: system inodes occupy the blocks
// immediately following the superblock, one per (type, slot) pair, in the
// order SystemInodeType is declared.
func (fs *FileSystem) LookupSystemInode(typ SystemInodeType, slot int) (uint64, error) {
	const reservedBase = 8
	const perSlotTypes = 6 // LocalInodeAlloc, LocalAlloc, Journal, OrphanDir, LocalUserQuota, LocalGroupQuota
	switch typ {
	case GlobalInodeAllocSystemInode:
		return reservedBase, nil
	case GlobalBitmapSystemInode:
		return reservedBase + 1, nil
	case UserQuotaSystemInode:
		return reservedBase + 2, nil
	case GroupQuotaSystemInode:
		return reservedBase + 3, nil
	case LocalInodeAllocSystemInode, LocalAllocSystemInode, JournalSystemInode,
		OrphanDirSystemInode, LocalUserQuotaSystemInode, LocalGroupQuotaSystemInode:
		if slot < 0 || slot >= int(fs.Super.MaxSlots) {
			return 0, fmt.Errorf("ocfs2: slot %d out of range (max %d)", slot, fs.Super.MaxSlots)
		}
		idx := int(typ) - int(LocalInodeAllocSystemInode)
		return reservedBase + 4 + uint64(slot)*perSlotTypes + uint64(idx), nil
	default:
		return 0, fmt.Errorf("ocfs2: unknown system inode type %d", typ)
	}
}

// ExtentMapGetBlocks translates a logical block offset within an inode's
// extent tree to its physical block, walking from the inline root and
// descending into extent blocks only as far as needed. It is the
// collaborator journal replay uses to turn a slot's journal's logical
// block stream into physical block numbers.
func (fs *FileSystem) ExtentMapGetBlocks(in *Inode, logicalBlock uint64) (uint64, error) {
	bpc := uint64(fs.Super.BlocksPerCluster())
	if bpc == 0 {
		bpc = 1
	}
	logicalCluster := uint32(logicalBlock / bpc)
	blockWithinCluster := logicalBlock % bpc

	root, err := ParseExtentList(in.Data(), 0)
	if err != nil {
		return 0, err
	}
	node := root
	for !node.IsLeaf() {
		child, err := fs.findChild(node, logicalCluster)
		if err != nil {
			return 0, err
		}
		b, err := fs.ReadBlocks(child.Blkno, 1)
		if err != nil {
			return 0, err
		}
		node, err = ParseExtentList(b[extentBlockListOffset:], child.Blkno)
		if err != nil {
			return 0, err
		}
	}
	for _, rec := range node.Leaves {
		if logicalCluster >= rec.ClusterOff && logicalCluster < rec.ClusterOff+rec.Clusters {
			clusterIdx := uint64(logicalCluster - rec.ClusterOff)
			return rec.Blkno + clusterIdx*bpc + blockWithinCluster, nil
		}
	}
	return 0, fmt.Errorf("ocfs2: logical block %d not mapped in inode %d's extent tree", logicalBlock, in.Blkno)
}

func (fs *FileSystem) findChild(node *ExtentNode, logicalCluster uint32) (extentPtr, error) {
	var best *extentPtr
	for i := range node.Children {
		c := &node.Children[i]
		if c.ClusterOff <= logicalCluster {
			best = c
		}
	}
	if best == nil {
		return extentPtr{}, fmt.Errorf("ocfs2: no child covers logical cluster %d", logicalCluster)
	}
	return *best, nil
}
