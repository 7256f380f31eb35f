package checker

// DirParent is one entry of the dir-parents ordered map, keyed by the
// directory inode's block number: the inode recorded in that directory's
// ".." entry, the inode of the directory that actually contains a dirent
// pointing at this one, a connectivity flag, and the transient loop-number
// Pass 3's cycle detection stamps (§3, §4.6, §9 of SPEC_FULL.md).
type DirParent struct {
	Ino       uint64
	DotDot    uint64
	Dirent    uint64
	Connected bool
	LoopNo    uint64
}

// DirParents is the ordered map keyed by directory inode number, populated
// by Pass 2 and consumed by Pass 3.
type DirParents struct {
	byIno *OrderedMap[*DirParent]
}

func NewDirParents() *DirParents {
	return &DirParents{byIno: NewOrderedMap[*DirParent]()}
}

// Add inserts a new entry, returning a KindInternal Result if one already
// exists for ino — mirroring the reference tool's "caller must ensure
// uniqueness" contract, which this implementation enforces instead of
// silently overwriting.
func (dp *DirParents) Add(ino, dotdot, dirent uint64) error {
	entry := &DirParent{Ino: ino, DotDot: dotdot, Dirent: dirent}
	if !dp.byIno.Insert(ino, entry) {
		return newResult(KindInternal, "dirparents", "duplicate dir-parent tracking for inode", nil)
	}
	return nil
}

func (dp *DirParents) Lookup(ino uint64) (*DirParent, bool) {
	return dp.byIno.Get(ino)
}

func (dp *DirParents) Each(fn func(e *DirParent) bool) {
	dp.byIno.Ascend(func(_ uint64, e *DirParent) bool {
		return fn(e)
	})
}

func (dp *DirParents) Len() int { return dp.byIno.Len() }
