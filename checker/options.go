package checker

// Options configures a single checker run, the Go analogue of the
// reference tool's command-line-derived o2fsck_state flag bits. It is
// passed by value into the driver the way the teacher passes
// disk.FilesystemSpec into CreateFilesystem — a plain struct, no config
// file or environment-variable layer, because a single-shot CLI checker
// has no standing configuration to load.
type Options struct {
	// ReadOnly corresponds to -n: never prompt, default every answer "no".
	ReadOnly bool
	// Preen corresponds to -p: never prompt, default every answer "yes".
	Preen bool
	// Force corresponds to -f: run even if the volume looks cleanly
	// unmounted.
	Force bool
	// SkipClusterCheck corresponds to -F: skip the cluster-membership
	// query collaborator.
	SkipClusterCheck bool
	// Verbose corresponds to -v: raise the logger to Debug level.
	Verbose bool
	// ExtendedStats makes cmd/fsckocfs2 create the forensic lz4
	// block-image dump file (§4.9 of SPEC_FULL.md); no extended
	// resource-tracking report is produced.
	ExtendedStats bool

	// SuperBlockOverride and BlockSizeOverride correspond to -b/-B.
	SuperBlockOverride uint64
	BlockSizeOverride  int
}

// Ask reports whether the interactive prompt layer should actually be
// consulted, versus auto-answering from the Preen/ReadOnly defaults.
func (o Options) Ask() bool {
	return !o.Preen && !o.ReadOnly
}

// DefaultAnswer is the answer used when Ask() is false.
func (o Options) DefaultAnswer() bool {
	return o.Preen
}
