// Package schedule implements the Target Scheduler (spec.md component F):
// the recursive, depth-first, single-threaded update algorithm that
// decides what needs rebuilding and in what order, driven by file
// modification times.
//
// Grounded on friedelschoen-mk/mk.go's make1/mkdep walk (depth-first
// recursion over a Node's prerequisites, an explicit "in progress" marker
// for cycle detection, and pushing @/</? before running a recipe),
// generalized to the flag set spec.md §6 requires (--always-make,
// --keep-going, --dry-run, --ignore-errors).
package schedule

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/graph"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/recipe"
	"github.com/relnoir/gomk/internal/variables"
)

// FileSystem is the "filesystem queries" external collaborator spec.md §1
// keeps out of the evaluator core: existence and modification time. The
// default implementation wraps os.Stat; tests substitute a fake so the
// update algorithm is exercised without touching disk.
type FileSystem interface {
	Stat(path string) (modTime time.Time, exists bool)
}

// OSFileSystem is the production FileSystem, backed by os.Stat.
type OSFileSystem struct{}

func (OSFileSystem) Stat(path string) (time.Time, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Options carries the command-line switches spec.md §6 lists that bear on
// scheduling (parsing them is the CLI Frontend's job; Scheduler only
// consumes the resulting booleans).
type Options struct {
	AlwaysMake   bool
	KeepGoing    bool
	DryRun       bool
	IgnoreErrors bool // global -i
}

// Scheduler runs the update algorithm against one built Graph.
type Scheduler struct {
	Graph *graph.Graph
	Vars  *variables.Store
	Eng   *expand.Engine
	Diag  diag.Sink
	FS    FileSystem
	Exec  *recipe.Executor
	Opts  Options
}

// New builds a Scheduler. fs may be nil, defaulting to OSFileSystem.
func New(g *graph.Graph, vars *variables.Store, eng *expand.Engine, sink diag.Sink, fs FileSystem, opts Options) *Scheduler {
	if fs == nil {
		fs = OSFileSystem{}
	}
	return &Scheduler{
		Graph: g, Vars: vars, Eng: eng, Diag: sink, FS: fs, Opts: opts,
		Exec: recipe.New(eng, sink, opts.DryRun, opts.IgnoreErrors, opts.KeepGoing),
	}
}

// Update runs spec.md §4.F's six-step algorithm for name, returning
// whether anything was (re)built and the first fatal error encountered
// (nil if none, or if --keep-going swallowed it).
func (s *Scheduler) Update(name string) (rebuilt bool, err error) {
	nodes := s.Graph.Get(name)
	if len(nodes) == 0 {
		return s.updateLeaf(name)
	}

	any := false
	for _, n := range nodes {
		built, err := s.updateNode(name, n)
		if err != nil {
			return any, err
		}
		any = any || built
	}
	return any, nil
}

// updateLeaf handles step 1's non-node cases: phony-by-name-only, a
// source file that exists, or "no rule to make target".
func (s *Scheduler) updateLeaf(name string) (bool, error) {
	if s.Graph.PhonyNames[name] {
		return true, nil
	}
	if _, exists := s.FS.Stat(name); exists {
		return false, nil
	}
	return false, fmt.Errorf("No rule to make target '%s'.  Stop", name)
}

func (s *Scheduler) updateNode(name string, n *graph.Node) (bool, error) {
	switch n.UpdateState {
	case graph.Updated:
		return false, nil // single-colon nodes are idempotent once visited
	case graph.InProgress:
		s.Diag.Warn(n.Where, fmt.Sprintf("Circular %s <- %s dependency dropped.", name, name))
		return false, nil
	}
	n.UpdateState = graph.InProgress

	anyPrereqBuilt := false
	anyPrereqPhony := false
	var outOfDate []string
	firstPrereq := ""
	for i, p := range n.Prerequisites {
		if i == 0 {
			firstPrereq = p
		}
		built, err := s.Update(p)
		if err != nil {
			n.UpdateState = graph.Failed
			return anyPrereqBuilt, err
		}
		anyPrereqBuilt = anyPrereqBuilt || built
		if s.Graph.PhonyNames[p] {
			anyPrereqPhony = true
		}
		if s.prereqNewerOrMissing(name, p) {
			outOfDate = append(outOfDate, p)
		}
	}

	mustRemake := s.decideRemake(name, n, anyPrereqPhony, outOfDate)

	if !mustRemake {
		n.UpdateState = graph.Updated
		return anyPrereqBuilt, nil
	}

	s.Vars.PushFrame(map[string]string{
		"@": name,
		"<": firstPrereq,
		"?": joinWords(outOfDate),
	})
	err := s.runRecipes(name, n)
	s.Vars.PopFrame()

	if err != nil {
		n.UpdateState = graph.Failed
		return true, err
	}
	n.UpdateState = graph.Updated
	return true, nil
}

// decideRemake implements step 5's rebuild decision. outOfDate already
// holds every prerequisite found missing or newer than name's own file,
// so the "newer or missing" clauses collapse to one check against it.
func (s *Scheduler) decideRemake(name string, n *graph.Node, anyPrereqPhony bool, outOfDate []string) bool {
	if s.Opts.AlwaysMake {
		return true
	}
	if n.Phony {
		return true
	}
	if _, exists := s.FS.Stat(name); !exists {
		return true
	}
	if anyPrereqPhony {
		return true
	}
	return len(outOfDate) > 0
}

// prereqNewerOrMissing reports whether p belongs in the automatic "?"
// variable: missing, or newer than name's own file.
func (s *Scheduler) prereqNewerOrMissing(name, p string) bool {
	pm, pexists := s.FS.Stat(p)
	if !pexists {
		return true
	}
	nm, nexists := s.FS.Stat(name)
	if !nexists {
		return true
	}
	return pm.After(nm)
}

// pushTargetVars installs the node's target-scoped assignments (spec.md
// §4.D's "targets: VAR op RHS" fragments) as a frame that shadows globals
// for the duration of this target's recipe expansion; the caller pops it
// with Vars.PopFrame. += reads the variable's current (pre-target-scope) value;
// ?= only takes effect if the name is not already defined.
func (s *Scheduler) pushTargetVars(n *graph.Node) {
	cells := make(map[string]*variables.Cell, len(n.TargetVars))
	for _, f := range n.TargetVars {
		name := strings.TrimSpace(s.Eng.Expand(f.VarName))
		switch f.VarOp {
		case ":=", "::=":
			cells[name] = &variables.Cell{Name: name, Value: s.Eng.Expand(f.VarValue), Flavor: variables.Simple, Origin: variables.File}
		case "+=":
			prev := ""
			if c := s.Vars.Get(name); c != nil {
				prev = c.Value
			}
			sep := ""
			if prev != "" {
				sep = " "
			}
			cells[name] = &variables.Cell{Name: name, Value: prev + sep + f.VarValue, Flavor: variables.Recursive, Origin: variables.File}
		case "?=":
			if c := s.Vars.Get(name); c != nil {
				cells[name] = c
				continue
			}
			cells[name] = &variables.Cell{Name: name, Value: f.VarValue, Flavor: variables.Recursive, Origin: variables.File}
		case "!=":
			out, _ := s.Eng.RunShell(s.Eng.Expand(f.VarValue))
			cells[name] = &variables.Cell{Name: name, Value: out, Flavor: variables.Simple, Origin: variables.File}
		default: // "="
			cells[name] = &variables.Cell{Name: name, Value: f.VarValue, Flavor: variables.Recursive, Origin: variables.File}
		}
	}
	s.Vars.PushNamedFrame(cells)
}

func (s *Scheduler) runRecipes(name string, n *graph.Node) error {
	s.pushTargetVars(n)
	defer s.Vars.PopFrame()
	for _, r := range n.Recipes {
		text := s.Eng.ExpandAt(r.Text, r.Where)
		if isBlankRecipe(text) {
			continue
		}
		if err := s.Exec.Run(text, target(name, r.Where, n.Silent || s.Graph.GlobalSilent)); err != nil {
			return err
		}
	}
	return nil
}

func target(name string, where loc.Location, silent bool) recipe.Target {
	return recipe.Target{Name: name, Where: where, Silent: silent}
}

func isBlankRecipe(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return false
		}
	}
	return true
}

func joinWords(ws []string) string {
	out := ""
	for i, w := range ws {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}
