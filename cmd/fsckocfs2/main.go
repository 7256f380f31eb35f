// Command fsckocfs2 checks and repairs an ocfs2 volume image or block
// device, the CLI entry point wiring the checker package's pass pipeline
// to a real backend.Storage. Flag parsing follows the teacher's own
// example programs (examples/iso_create.go, examples/bootable_iso.go),
// which use the standard library's flag package rather than a third-party
// CLI framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocfs2-tools/ocfs2check/backend"
	"github.com/ocfs2-tools/ocfs2check/backend/file"
	"github.com/ocfs2-tools/ocfs2check/checker"
	"github.com/ocfs2-tools/ocfs2check/diagnostics"
	"github.com/ocfs2-tools/ocfs2check/ocfs2"
	"github.com/ocfs2-tools/ocfs2check/util/timestamp"

	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) checker.ExitCode {
	fs := flag.NewFlagSet("fsck.ocfs2", flag.ContinueOnError)
	readOnly := fs.Bool("n", false, "never repair, answer every question no")
	preen := fs.Bool("p", false, "automatically repair without prompting, answer every question yes")
	force := fs.Bool("f", false, "force checking even if the volume appears clean")
	skipCluster := fs.Bool("F", false, "skip the cluster-membership check")
	verbose := fs.Bool("v", false, "verbose logging")
	extStats := fs.Bool("ExtendedStats", false, "write an lz4-compressed forensic block dump alongside the report")
	superBlockOverride := fs.Uint64("b", 0, "superblock block number override")
	blockSizeOverride := fs.Int("B", 0, "block size override")
	dumpPath := fs.String("dump-path", "", "path for the extended-stats block dump (defaults next to the device)")

	if err := fs.Parse(args); err != nil {
		return checker.ExitUsageOrSyntax
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fsck.ocfs2 [options] device")
		return checker.ExitUsageOrSyntax
	}
	devicePath := fs.Arg(0)

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	log.WithField("generated_at", timestamp.GetTime()).Debug("fsck.ocfs2 starting")

	b, err := file.OpenFromPath(devicePath, *readOnly)
	if err != nil {
		log.WithError(err).Error("opening device")
		return checker.ExitOperationError
	}
	defer b.Close()

	blockSizeHint := *blockSizeOverride
	if blockSizeHint == 0 {
		if osFile, sysErr := b.Sys(); sysErr == nil {
			if probed, probeErr := backend.ProbeBlockSize(osFile); probeErr == nil {
				blockSizeHint = probed
				log.WithField("block_size", probed).Debug("probed block device sector size")
			}
		}
	}

	vol := b
	if *superBlockOverride != 0 {
		probeSize := blockSizeHint
		if probeSize == 0 {
			probeSize = 4096
		}
		vol = backend.Sub(b, int64(*superBlockOverride)*int64(probeSize), 0)
		log.WithField("block", *superBlockOverride).Info("reading superblock from alternate backup location")
	}

	fsys, err := ocfs2.Open(vol, blockSizeHint)
	if err != nil {
		log.WithError(err).Error("reading superblock")
		return checker.ExitOperationError
	}

	if !*force && fsys.Super.CleanlyUnmounted {
		log.Info("volume is cleanly unmounted, skipping (use -f to force)")
		return checker.ExitOK
	}

	opts := checker.Options{
		ReadOnly:           *readOnly,
		Preen:              *preen,
		Force:              *force,
		SkipClusterCheck:   *skipCluster,
		Verbose:            *verbose,
		ExtendedStats:      *extStats,
		SuperBlockOverride: *superBlockOverride,
		BlockSizeOverride:  *blockSizeOverride,
	}

	prompter := checker.NewTerminalPrompter(os.Stdin, os.Stdout, log)
	state := checker.NewState(fsys, fsys.Super, opts, log, prompter, nil)

	var dump *diagnostics.BlockDump
	if *extStats {
		path := *dumpPath
		if path == "" {
			path = devicePath + ".fsckdump.lz4"
		}
		dump, err = diagnostics.Create(path, fsys.BlockSize)
		if err != nil {
			log.WithError(err).Warn("could not open block dump, continuing without it")
		} else {
			defer dump.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	code, err := checker.Run(ctx, state)
	if err != nil {
		log.WithError(err).Error("check failed")
	}
	printReport(log, state)
	return code
}

func printReport(log *logrus.Logger, s *checker.State) {
	log.WithFields(logrus.Fields{
		"files":    s.Counters.Files,
		"dirs":     s.Counters.Dirs,
		"symlinks": s.Counters.Symlinks,
		"reflinks": s.Counters.Reflinks,
	}).Info("check complete")
}
