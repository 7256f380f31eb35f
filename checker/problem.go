package checker

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// PromptKind carries a prompt's default-answer policy, the re-architected
// form of the reference tool's PY/PN/PF flag bits (§9 of SPEC_FULL.md).
type PromptKind int

const (
	// PromptNone asks the user with no suggested default.
	PromptNone PromptKind = iota
	// PromptDefaultYes suggests yes (space/return accepts it).
	PromptDefaultYes
	// PromptDefaultNo suggests no.
	PromptDefaultNo
)

// PromptSpec wraps a PromptKind; Fatal additionally marks it as
// program-ending on a "no" answer (the reference tool's PF flag).
type PromptSpec struct {
	Kind  PromptKind
	Fatal bool
}

func (s PromptSpec) defaultAnswer() bool { return s.Kind == PromptDefaultYes }

// TerminalPrompter is the concrete, interactive Prompter implementation
// used by cmd/fsckocfs2: it prints the question, reads a single line from
// in, and interprets y/n/space/return, treating EOF as "no" per §7 of
// SPEC_FULL.md.
type TerminalPrompter struct {
	In     io.Reader
	Out    io.Writer
	reader *bufio.Reader
	log    *logrus.Logger
}

func NewTerminalPrompter(in io.Reader, out io.Writer, log *logrus.Logger) *TerminalPrompter {
	return &TerminalPrompter{In: in, Out: out, reader: bufio.NewReader(in), log: log}
}

func (p *TerminalPrompter) Prompt(ask bool, defaultAnswer bool, fatal bool, format string, args ...any) bool {
	question := fmt.Sprintf(format, args...)

	if !ask {
		ans := defaultAnswer
		if p.log != nil {
			p.log.WithFields(logrus.Fields{"ask": false, "answer": ans}).Warn(question)
		}
		if !ans && fatal {
			fmt.Fprintln(p.Out, question)
			fmt.Fprintln(p.Out, "fsck cannot continue.  Exiting.")
		}
		return ans
	}

	suffix := " <n> "
	if defaultAnswer {
		suffix = " <y> "
	}
	fmt.Fprint(p.Out, question+suffix)

	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		// EOF on stdin is treated as "no".
		fmt.Fprintln(p.Out, "\ninput failed, assuming no.")
		if p.log != nil {
			p.log.WithField("reason", "eof").Warn(question)
		}
		return false
	}

	line = strings.TrimSpace(strings.ToLower(line))
	var ans bool
	switch {
	case line == "":
		ans = defaultAnswer
	case strings.HasPrefix(line, "y"):
		ans = true
	case strings.HasPrefix(line, "n"):
		ans = false
	default:
		ans = defaultAnswer
	}

	if p.log != nil {
		p.log.WithFields(logrus.Fields{"ask": true, "answer": ans}).Warn(question)
	}
	if !ans && fatal {
		fmt.Fprintln(p.Out, "fsck cannot continue.  Exiting.")
	}
	return ans
}

// ScriptedPrompter is a substitutable collaborator for tests: every
// question is recorded and answered from Answers in order (or from
// Default if Answers is exhausted).
type ScriptedPrompter struct {
	Answers []bool
	Default bool
	asked   int
	Log     []string
}

func (p *ScriptedPrompter) Prompt(ask bool, defaultAnswer bool, fatal bool, format string, args ...any) bool {
	p.Log = append(p.Log, fmt.Sprintf(format, args...))
	if !ask {
		return defaultAnswer
	}
	if p.asked < len(p.Answers) {
		ans := p.Answers[p.asked]
		p.asked++
		return ans
	}
	return p.Default
}
