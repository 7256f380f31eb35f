package checker

import (
	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/sirupsen/logrus"
)

// State is the process-wide singleton owned by the driver, the Go
// analogue of the reference tool's o2fsck_state (§3 of SPEC_FULL.md).
// Destroyed (garbage collected) when the run completes; it is never
// shared outside a single Run.
type State struct {
	FS      FileSystem
	Super   *ocfs2.SuperBlock
	Options Options

	// Inode bitmaps, one bit per block.
	Used        *SparseBitmap
	Bad         *SparseBitmap
	Dir         *SparseBitmap
	Regular     *SparseBitmap
	RebuildDirs *SparseBitmap

	// Block bitmaps.
	FoundBlocks     *SparseBitmap
	DuplicateBlocks *SparseBitmap

	// Cluster bitmap.
	AllocatedClusters *SparseBitmap

	IcountInInodes *ICount
	IcountRefs     *ICount

	DirBlocks  *DirBlocks
	DirParents *DirParents

	RefcountTrees *OrderedMap[*RefcountTreeState]

	// UserQuotaUsage and GroupQuotaUsage accumulate per-id inode/block
	// tallies as Pass 1 visits every inode, the data Pass 5 reconstructs
	// each slot's local quota file from (§4.8, §9 of SPEC_FULL.md: local
	// quota files are rebuilt from observed usage, not simply zeroed).
	UserQuotaUsage  *OrderedMap[*QuotaUsage]
	GroupQuotaUsage *OrderedMap[*QuotaUsage]

	LostFoundIno uint64
	NumClusters  uint32
	FSGeneration uint32

	SawError bool

	// nextLoopNo hands out Pass 3's monotonically increasing per-walk
	// cycle-detection stamp; it starts at 1 so the zero value of
	// DirParent.LoopNo never collides with a real walk.
	nextLoopNo uint64

	Log      *logrus.Logger
	Prompter Prompter
	Cluster  ClusterStack

	// Counters, mirroring the reference tool's ost_* tallies, surfaced in
	// the end-of-run report.
	Counters Counters
}

// Counters accumulates the per-type tallies Pass 1 produces.
type Counters struct {
	Files          uint32
	InlineFiles    uint32
	Dirs           uint32
	InlineDirs     uint32
	Reflinks       uint32
	Links          uint32
	Chardevs       uint32
	Sockets        uint32
	Fifos          uint32
	Blockdevs      uint32
	Symlinks       uint32
	FastSymlinks   uint32
	Orphans        uint32
	OrphansDeleted uint32
	TreeDepth      [ocfs2.MaxPathDepth + 1]uint32
}

// QuotaUsage is one id's accumulated usage: how many inodes it owns and
// how many blocks they occupy in total.
type QuotaUsage struct {
	Inodes uint64
	Blocks uint64
}

// RefcountTreeState accumulates the clusters a refcount-capable inode
// references, reconciled at the end of Pass 1 against the refcount tree's
// own recorded counts.
type RefcountTreeState struct {
	RootBlkno    uint64
	ObservedRefs map[uint32]uint32 // cluster -> observed reference count
}

// NewState constructs an empty State ready for journal replay and Pass 0.
func NewState(fs FileSystem, super *ocfs2.SuperBlock, opts Options, log *logrus.Logger, prompter Prompter, cluster ClusterStack) *State {
	if cluster == nil {
		cluster = noopClusterStack{}
	}
	return &State{
		FS:                fs,
		Super:             super,
		Options:           opts,
		Used:              NewSparseBitmap("used"),
		Bad:               NewSparseBitmap("bad"),
		Dir:               NewSparseBitmap("dir"),
		Regular:           NewSparseBitmap("regular"),
		RebuildDirs:       NewSparseBitmap("rebuild-dirs"),
		FoundBlocks:       NewSparseBitmap("found-blocks"),
		DuplicateBlocks:   NewSparseBitmap("duplicate-blocks"),
		AllocatedClusters: NewSparseBitmap("allocated-clusters"),
		IcountInInodes:    NewICount("icount-in-inodes"),
		IcountRefs:        NewICount("icount-refs"),
		DirBlocks:         NewDirBlocks(),
		DirParents:        NewDirParents(),
		RefcountTrees:     NewOrderedMap[*RefcountTreeState](),
		UserQuotaUsage:    NewOrderedMap[*QuotaUsage](),
		GroupQuotaUsage:   NewOrderedMap[*QuotaUsage](),
		nextLoopNo:        1,
		Log:               log,
		Prompter:          prompter,
		Cluster:           cluster,
	}
}

// NextLoopNo hands out the next monotonic cycle-detection stamp for Pass
// 3's connectivity walk.
func (s *State) NextLoopNo() uint64 {
	n := s.nextLoopNo
	s.nextLoopNo++
	return n
}

// Prompt is a thin wrapper that fills in the ask/default-answer policy
// from Options before delegating to the configured Prompter.
func (s *State) Prompt(spec PromptSpec, format string, args ...any) bool {
	ask := s.Options.Ask()
	def := spec.defaultAnswer()
	if !ask {
		def = s.Options.DefaultAnswer()
	}
	return s.Prompter.Prompt(ask, def, spec.Fatal, format, args...)
}

// markFoundBlock marks blkno used in FoundBlocks, and DuplicateBlocks if it
// was already set — the core bookkeeping operation Pass 1 and Pass 1b
// apply to every block reference they observe, whether from a data extent
// or from extent/xattr/refcount metadata (Open Question 1 of SPEC_FULL.md
// §9: metadata blocks are marked exactly like data blocks).
func (s *State) markFoundBlock(blkno uint64) {
	if s.FoundBlocks.TestAndSet(blkno) {
		s.DuplicateBlocks.Set(blkno)
	}
}

// markAllocatedClusters marks every cluster in [start, start+count) as
// allocated.
func (s *State) markAllocatedClusters(start, count uint32) {
	for c := start; c < start+count; c++ {
		s.AllocatedClusters.Set(uint64(c))
	}
}
