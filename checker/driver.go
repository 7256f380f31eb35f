package checker

import (
	"context"
	"fmt"
)

// ExitCode mirrors the reference tool's fsck(8) exit status bits so
// cmd/fsckocfs2 can return them unchanged.
type ExitCode int

const (
	ExitOK              ExitCode = 0
	ExitErrorsCorrected ExitCode = 1
	ExitRebootSuggested ExitCode = 2
	ExitErrorsLeft      ExitCode = 4
	ExitOperationError  ExitCode = 8
	ExitUsageOrSyntax   ExitCode = 16
	ExitCancelled       ExitCode = 32
	ExitSharedLibError  ExitCode = 128
)

// Run executes every pass in order against an already-open filesystem:
// journal replay, Pass 0, Pass 1, the conditional duplicate-block passes,
// Pass 2, Pass 3, Pass 4, and the conditional Pass 5, stopping at the first
// fatal Result (§5, §9 of SPEC_FULL.md).
func Run(ctx context.Context, s *State) (ExitCode, error) {
	type step struct {
		name string
		fn   func(*State) error
	}
	steps := []step{
		{"journal replay", ReplayJournals},
		{"pass 0", RunPass0},
		{"pass 1", RunPass1},
		{"pass 1b-1d", RunDuplicateClusterPasses},
		{"pass 2", RunPass2},
		{"pass 3", RunPass3},
		{"pass 4", RunPass4},
		{"pass 5", RunPass5},
	}

	for _, st := range steps {
		select {
		case <-ctx.Done():
			s.Log.Warn("run cancelled")
			return ExitCancelled, ctx.Err()
		default:
		}

		rt := startResourceTrack(st.name)
		err := st.fn(s)
		fin := rt.finish()
		s.Log.WithField("elapsed", fin.Real).Debugf("%s complete", st.name)

		if err != nil {
			res, ok := err.(*Result)
			if !ok {
				return ExitOperationError, fmt.Errorf("%s: %w", st.name, err)
			}
			s.Log.WithField("pass", st.name).Error(res.Error())
			switch res.Kind {
			case KindUserCancelled:
				return ExitCancelled, res
			case KindNoMem, KindInternal:
				return ExitOperationError, res
			default:
				// Ordinary IO/Corrupt/Range failures encountered inside a
				// single pass are not fatal to the run as a whole (§7 of
				// SPEC_FULL.md): log it, note that errors were seen, and
				// move on to the next pass instead of abandoning
				// everything that follows. Only an allocation failure
				// (NoMem), a violated internal postcondition (Internal),
				// or an explicit user cancellation unwinds the whole run.
				s.SawError = true
			}
		}
	}

	if s.SawError {
		return ExitErrorsLeft, nil
	}
	return ExitOK, nil
}
