package checker

import "github.com/ocfs2-tools/ocfs2check/ocfs2"

// Prompter is the interactive-prompt collaborator (§6). The core is
// testable by substituting a scripted responder that never touches a
// terminal.
type Prompter interface {
	// Prompt asks the user a yes/no question. defaultAnswer is used when
	// the prompter is running non-interactively (preen/read-only mode,
	// or EOF on stdin). fatal, when true, means a "no" answer aborts the
	// run (PROMPT-FATAL semantics from SPEC_FULL.md §4.2/§4.3).
	Prompt(ask bool, defaultAnswer bool, fatal bool, format string, args ...any) bool
}

// ClusterStack is the cluster-membership query collaborator (§6): it
// reports whether this volume is currently active on another node, so the
// driver can refuse to run against a mounted, actively-clustered volume.
type ClusterStack interface {
	IsVolumeActiveElsewhere(uuid string) (bool, error)
}

// noopClusterStack is the default collaborator used when
// Options.SkipClusterCheck is set or no ClusterStack was supplied; it
// always reports the volume as available.
type noopClusterStack struct{}

func (noopClusterStack) IsVolumeActiveElsewhere(string) (bool, error) { return false, nil }

// FileSystem is the subset of ocfs2.FileSystem's surface the checker core
// depends on, named here so call sites document their actual requirement
// rather than depending on the concrete type directly.
type FileSystem interface {
	ReadBlocks(blkno uint64, count int) ([]byte, error)
	WriteBlocks(blkno uint64, buf []byte) error
	ReadInode(blkno uint64) (*ocfs2.Inode, error)
	WriteInode(in *ocfs2.Inode) error
	LookupSystemInode(typ ocfs2.SystemInodeType, slot int) (uint64, error)
	ExtentMapGetBlocks(in *ocfs2.Inode, logicalBlock uint64) (uint64, error)
}
