// Package diag is the Status Writer (SPEC_FULL.md component I): the
// concrete shape handed to the "terminal output formatting" collaborator
// that spec.md deliberately keeps out of the evaluator core. The core
// depends only on the Sink interface below, never on os.Stdout/os.Stderr
// directly, so color and echo-suppression policy live in exactly one
// place.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/relnoir/gomk/internal/loc"
)

// Sink is the interface the evaluator core (components A-G) uses for every
// user-visible message. Recipe echo, diagnostics, and directory
// entering/leaving all flow through it.
type Sink interface {
	// Echo prints a recipe command line before it runs (unless silenced).
	Echo(cmd string)
	// Info prints a $(info ...) message or a routine status line, e.g.
	// "make: 'target' is up to date."
	Info(msg string)
	// Warn prints a non-fatal diagnostic prefixed with its location.
	Warn(where loc.Location, msg string)
	// WarnRaw prints a non-fatal diagnostic that is already fully
	// formatted (e.g. a recipe error's "basename: *** [file:line: target]
	// Error N"), with no additional location or program-name prefix.
	WarnRaw(msg string)
	// Fatal prints a "*** msg.  Stop." diagnostic and terminates the
	// process with the given exit code. It never returns.
	Fatal(where loc.Location, msg string, code int)
	// Enter/Leave print directory-change bookkeeping for -C / recursive
	// make, matching GNU make's "Entering/Leaving directory" lines.
	Enter(dir string)
	Leave(dir string)
}

// ansi color codes, grounded on friedelschoen-mk/mk.go's ansiTerm* consts.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBold   = "\033[1m"
)

// Console is the default Sink, writing to stdout/stderr with an optional
// mutex-serialized color scheme so echoed commands and their own output
// never interleave.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
	color      bool
	progName   string
	keepGoing  bool
	silentRuns bool // process-wide .SILENT with no prerequisites
}

// NewConsole builds a Console sink. Color is decided once at startup (per
// SPEC_FULL.md §9's note that this must not be re-evaluated per write):
// color is on when either stream is a terminal, narrowed to stdout alone
// when stdout's terminal size cannot be read.
func NewConsole(out, errOut *os.File, progName string) *Console {
	color := isatty.IsTerminal(out.Fd()) || isatty.IsTerminal(errOut.Fd())
	if color {
		// A second, independent check (width availability) mirrors how a
		// real terminal session behaves; on a non-terminal this simply
		// fails closed rather than widening the definition of "color".
		if _, _, err := term.GetSize(int(out.Fd())); err != nil {
			color = isatty.IsTerminal(out.Fd())
		}
	}
	return &Console{out: out, errOut: errOut, color: color, progName: progName}
}

// SetColor overrides the auto-detected color decision, e.g. from a --color
// flag or NO_COLOR convention.
func (c *Console) SetColor(v bool) { c.color = v }

func (c *Console) Echo(cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, cmd)
}

func (c *Console) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, msg)
}

func (c *Console) Warn(where loc.Location, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.color {
		fmt.Fprint(c.errOut, ansiYellow)
	}
	if !where.IsZero() {
		fmt.Fprintf(c.errOut, "%s: %s\n", where, msg)
	} else {
		fmt.Fprintf(c.errOut, "%s: %s\n", c.progName, msg)
	}
	if c.color {
		fmt.Fprint(c.errOut, ansiReset)
	}
}

func (c *Console) WarnRaw(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.color {
		fmt.Fprint(c.errOut, ansiYellow)
	}
	fmt.Fprintln(c.errOut, msg)
	if c.color {
		fmt.Fprint(c.errOut, ansiReset)
	}
}

func (c *Console) Fatal(where loc.Location, msg string, code int) {
	c.mu.Lock()
	if c.color {
		fmt.Fprint(c.errOut, ansiRed+ansiBold)
	}
	if !where.IsZero() {
		fmt.Fprintf(c.errOut, "%s: *** %s.  Stop.\n", where, msg)
	} else {
		fmt.Fprintf(c.errOut, "%s: *** %s.  Stop.\n", c.progName, msg)
	}
	if c.color {
		fmt.Fprint(c.errOut, ansiReset)
	}
	c.mu.Unlock()
	os.Exit(code)
}

func (c *Console) Enter(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s: Entering directory '%s'\n", c.progName, dir)
}

func (c *Console) Leave(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s: Leaving directory '%s'\n", c.progName, dir)
}
