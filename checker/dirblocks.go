package checker

// DirBlockEntry records one directory block discovered while walking an
// inode's extent tree in Pass 1: which directory owns it and its logical
// position within that directory (grounded on the reference tool's
// o2fsck_dirblock_entry / dirblocks.c).
type DirBlockEntry struct {
	Ino      uint64
	Blkno    uint64
	BlkCount uint64
}

// DirBlocks is the ordered map keyed by directory-block-number, populated
// by Pass 1 and iterated by Pass 2.
type DirBlocks struct {
	byBlkno *OrderedMap[DirBlockEntry]
}

func NewDirBlocks() *DirBlocks {
	return &DirBlocks{byBlkno: NewOrderedMap[DirBlockEntry]()}
}

func (d *DirBlocks) Add(ino, blkno, blkcount uint64) {
	d.byBlkno.Set(blkno, DirBlockEntry{Ino: ino, Blkno: blkno, BlkCount: blkcount})
}

// Each visits every recorded directory block in ascending block-number
// order, the iteration order that lets Pass 2 issue coalesced reads for
// adjacent blocks the way the reference tool's pre-cache logic does.
func (d *DirBlocks) Each(fn func(e DirBlockEntry) bool) {
	d.byBlkno.Ascend(func(_ uint64, e DirBlockEntry) bool {
		return fn(e)
	})
}

func (d *DirBlocks) Len() int { return d.byBlkno.Len() }
