package checker

import (
	"fmt"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
)

// fakeFileSystem is an in-memory implementation of the FileSystem
// collaborator interface, letting pass-level tests exercise repair logic
// without a real backend.Storage-backed image.
type fakeFileSystem struct {
	blockSize int
	blocks    map[uint64][]byte
	inodes    map[uint64]*ocfs2.Inode
	system    map[ocfs2.SystemInodeType]map[int]uint64
}

func newFakeFileSystem(blockSize int) *fakeFileSystem {
	return &fakeFileSystem{
		blockSize: blockSize,
		blocks:    map[uint64][]byte{},
		inodes:    map[uint64]*ocfs2.Inode{},
		system:    map[ocfs2.SystemInodeType]map[int]uint64{},
	}
}

func (f *fakeFileSystem) ReadBlocks(blkno uint64, count int) ([]byte, error) {
	b, ok := f.blocks[blkno]
	if !ok {
		return make([]byte, count*f.blockSize), nil
	}
	return append([]byte(nil), b...), nil
}

func (f *fakeFileSystem) WriteBlocks(blkno uint64, buf []byte) error {
	f.blocks[blkno] = append([]byte(nil), buf...)
	return nil
}

func (f *fakeFileSystem) ReadInode(blkno uint64) (*ocfs2.Inode, error) {
	in, ok := f.inodes[blkno]
	if !ok {
		return nil, fmt.Errorf("fake: no inode at %d", blkno)
	}
	return in, nil
}

func (f *fakeFileSystem) WriteInode(in *ocfs2.Inode) error {
	f.inodes[in.Blkno] = in
	return nil
}

func (f *fakeFileSystem) LookupSystemInode(typ ocfs2.SystemInodeType, slot int) (uint64, error) {
	m, ok := f.system[typ]
	if !ok {
		return 0, fmt.Errorf("fake: no system inode of type %d", typ)
	}
	blkno, ok := m[slot]
	if !ok {
		return 0, fmt.Errorf("fake: no system inode of type %d slot %d", typ, slot)
	}
	return blkno, nil
}

func (f *fakeFileSystem) ExtentMapGetBlocks(in *ocfs2.Inode, logicalBlock uint64) (uint64, error) {
	return logicalBlock, nil
}

func (f *fakeFileSystem) setSystemInode(typ ocfs2.SystemInodeType, slot int, blkno uint64) {
	if f.system[typ] == nil {
		f.system[typ] = map[int]uint64{}
	}
	f.system[typ][slot] = blkno
}
