package ocfs2

// On-disk signatures. Every metadata block that carries one is checked
// against the expected signature before its fields are trusted.
const (
	SuperBlockSignature    = "OCFSV2"
	InodeSignature         = "INODE01"
	ExtentBlockSignature   = "EXBLK01"
	GroupDescSignature     = "GROUP01"
	DirIndexSignature      = "DIRIDX01"
	DirIndexLeafSignature  = "DXLEAF01"
	XattrBlockSignature    = "XATTR01"
	RefcountBlockSignature = "REFCNT01"
)

// Inode flags (i_flags).
const (
	InodeFlagValid uint32 = 1 << iota
	InodeFlagSystem
	InodeFlagSuperBlock
	InodeFlagLocalAlloc
	InodeFlagBitmap
	InodeFlagJournal
	InodeFlagHeartBeat
	InodeFlagChain
	InodeFlagDealloc
	InodeFlagJournalDirty
)

// Dynamic inode features (i_dyn_features), separate bit space from i_flags.
const (
	InodeDynFeatureInlineData uint16 = 1 << iota
	InodeDynFeatureHasXattr
	InodeDynFeatureInlineXattr
	InodeDynFeatureIndexedDir
	InodeDynFeatureHasRefcount
)

// File types recorded in both the dinode and in directory entries.
const (
	FileTypeUnknown byte = iota
	FileTypeRegular
	FileTypeDir
	FileTypeChardev
	FileTypeBlockdev
	FileTypeFifo
	FileTypeSocket
	FileTypeSymlink
)

// Extent-tree node constants.
const (
	ExtentNodeSignature = "EXBLK01"
	MaxPathDepth        = 5
)

// Extent record unwritten/refcounted flag bits (e_flags), relevant to
// refcount-capable inodes.
const (
	ExtentFlagUnwritten byte = 1 << iota
	ExtentFlagRefcounted
)

// Fixed system inode numbers within a slot's reserved range, mirroring the
// teacher's ext4 fixed-inode-number constants adapted to ocfs2's layout.
const (
	SuperBlockBlockNumber = 2
)

// Well known system inode types, looked up per-slot via LookupSystemInode.
type SystemInodeType int

const (
	GlobalInodeAllocSystemInode SystemInodeType = iota
	LocalInodeAllocSystemInode
	GlobalBitmapSystemInode
	LocalAllocSystemInode
	JournalSystemInode
	OrphanDirSystemInode
	LocalUserQuotaSystemInode
	LocalGroupQuotaSystemInode
	UserQuotaSystemInode
	GroupQuotaSystemInode
)

// Superblock incompat feature flags relevant to the checker.
const (
	FeatureIncompatLocalMount uint32 = 1 << iota
	FeatureIncompatSparseAlloc
	FeatureIncompatInlineData
	FeatureIncompatExtendedSlotMap
	FeatureIncompatXattr
	FeatureIncompatIndexedDirs
	FeatureIncompatRefcountTree
	FeatureIncompatDiscontiguousBG
)

const (
	FeatureRWIncompatUserQuota uint32 = 1 << iota
	FeatureRWIncompatGroupQuota
)

// OrphanDirNameHex is the base of the synthetic lost+found/orphan directory
// entry name used when reconnecting an inode whose original name is lost.
const OrphanDirNameHex = "%016x"
