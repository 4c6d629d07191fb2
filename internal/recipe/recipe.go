// Package recipe implements the Recipe Executor (spec.md component G):
// per-command modifier handling (@, -), echo suppression, dry-run, and
// shell dispatch, reporting non-zero exits through the Status Writer in
// GNU make's "basename: *** [file:line: target] Error N" shape.
//
// Grounded on friedelschoen-mk/recipe.go's runRecipe (modifier stripping
// then os/exec dispatch through SHELL), generalized to carry the
// file:line:target location spec.md §4.G's error format requires.
package recipe

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/loc"
)

// Target is the context one recipe command runs under, for error
// formatting and per-node silence.
type Target struct {
	Name   string
	Where  loc.Location
	Silent bool
}

// Executor runs already-expanded recipe command lines.
type Executor struct {
	Eng          *expand.Engine
	Diag         diag.Sink
	DryRun       bool
	IgnoreErrors bool // global -i
	KeepGoing    bool
	progName     string
}

// New builds an Executor. progName (e.g. "make" or the binary's basename)
// prefixes the "*** [file:line: target] Error N" line.
func New(eng *expand.Engine, sink diag.Sink, dryRun, ignoreErrors, keepGoing bool) *Executor {
	return &Executor{
		Eng: eng, Diag: sink, DryRun: dryRun, IgnoreErrors: ignoreErrors, KeepGoing: keepGoing,
		progName: filepath.Base(os.Args[0]),
	}
}

// Run executes one already-expanded, possibly multi-command (newline or ;
// joined at the caller's discretion — a makefile recipe line is one
// command string after expansion) recipe line under t. An error is
// returned only when the command's own failure must abort the whole run
// (no "-" prefix, no global/keep-going override).
func (x *Executor) Run(cmdline string, t Target) error {
	ignore := false
	echo := !t.Silent
	text := cmdline
	for {
		text = strings.TrimLeft(text, " \t")
		if text == "" {
			break
		}
		switch text[0] {
		case '@':
			echo = false
			text = text[1:]
			continue
		case '-':
			ignore = true
			text = text[1:]
			continue
		}
		break
	}

	if echo || x.DryRun {
		x.Diag.Echo(text)
	}
	if x.DryRun {
		return nil
	}

	shell := x.Eng.Vars.Get("SHELL")
	shellPath := "/bin/sh"
	if shell != nil && shell.Value != "" {
		shellPath = shell.Value
	}
	flags := "-c"
	if f := x.Eng.Vars.Get(".SHELLFLAGS"); f != nil && f.Value != "" {
		flags = f.Value
	}
	args := append(strings.Fields(flags), text)
	cmd := exec.Command(shellPath, args...)
	cmd.Env = x.Eng.Vars.Environ()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	code := 1
	if ee, ok := err.(*exec.ExitError); ok {
		code = ee.ExitCode()
	}

	tolerated := ignore || x.IgnoreErrors
	suffix := ""
	if tolerated {
		suffix = " (ignored)"
	}
	// formatRecipeError already renders the full "basename: *** [file:line:
	// target] Error N" line, so it goes through WarnRaw, not Warn, to avoid
	// a duplicated location/program-name prefix.
	x.Diag.WarnRaw(formatRecipeError(x.progName, t.Where, t.Name, code, suffix))

	if tolerated || x.KeepGoing {
		return nil
	}
	return &Error{Target: t.Name, Where: t.Where, Code: code}
}

func formatRecipeError(progName string, where loc.Location, target string, code int, suffix string) string {
	return progName + ": *** [" + where.String() + ": " + target + "] Error " + strconv.Itoa(code) + suffix
}

// Error reports a recipe command's unignored non-zero exit, per spec.md
// §4.G: the scheduler treats this as fatal unless --keep-going/--ignore
// already handled it (in which case Run never returns one).
type Error struct {
	Target string
	Where  loc.Location
	Code   int
}

func (e *Error) Error() string {
	return "recipe for target '" + e.Target + "' failed"
}
