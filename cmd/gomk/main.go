// Command gomk is the CLI Frontend (SPEC_FULL.md component H): flag and
// positional-argument parsing, makefile discovery, environment seeding,
// and wiring the Variable Store through the Directive Parser, Rule Graph,
// Target Scheduler and Recipe Executor, mapping outcomes to process exit
// codes.
//
// Grounded on friedelschoen-mk/mk.go's main() (pflag registration style,
// default-makefile open, NAME=VALUE / target positional-arg split), with
// the concurrency-specific flags (-j, --depth, exclusive rules) dropped:
// spec.md's Non-goals exclude parallel execution, so -j is accepted and
// ignored per spec.md §6 rather than wired to a worker pool.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/dump"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/graph"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/parse"
	"github.com/relnoir/gomk/internal/recipe"
	"github.com/relnoir/gomk/internal/remote"
	"github.com/relnoir/gomk/internal/schedule"
	"github.com/relnoir/gomk/internal/variables"
)

const version = "gomk 0.1.0 (GNU make-dialect evaluator)"

var defaultMakefileNames = []string{"GNUmakefile", "makefile", "Makefile"}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	flags := pflag.NewFlagSet("gomk", pflag.ContinueOnError)
	flags.Usage = func() {}

	var (
		directory        string
		file             string
		alwaysMake       bool
		ignoreErrors     bool
		showVersion      bool
		silent           bool
		dryRun           bool
		keepGoing        bool
		jobs             int
		noPrintDirectory bool
		printDataBase    bool
		rcFile           string
	)

	flags.StringVarP(&directory, "directory", "C", "", "chdir before parsing")
	flags.StringVarP(&file, "file", "f", "", "use FILE instead of the default makefile search")
	flags.BoolVarP(&alwaysMake, "always-make", "B", false, "always treat every target as out-of-date")
	flags.BoolVarP(&ignoreErrors, "ignore-errors", "i", false, "non-zero recipe exits do not stop the build")
	flags.BoolVarP(&showVersion, "version", "v", false, "print version and exit")
	flags.BoolVarP(&silent, "silent", "s", false, "suppress recipe echoing")
	flags.BoolVar(&silent, "quiet", false, "alias for --silent")
	flags.BoolVarP(&dryRun, "just-print", "n", false, "print commands without executing")
	flags.BoolVar(&dryRun, "dry-run", false, "alias for --just-print")
	flags.BoolVar(&dryRun, "recon", false, "alias for --just-print")
	flags.BoolVarP(&keepGoing, "keep-going", "k", false, "continue independent targets after a failure")
	flags.IntVarP(&jobs, "jobs", "j", 1, "accepted, currently ignored (single-threaded)")
	flags.BoolP("b", "b", false, "accepted for compatibility")
	flags.BoolP("m", "m", false, "accepted for compatibility")
	flags.BoolP("e", "e", false, "accepted for compatibility")
	flags.BoolVar(&noPrintDirectory, "no-print-directory", false, "accepted for compatibility")
	flags.BoolVarP(&printDataBase, "print-data-base", "p", false, "dump variables and rules before scheduling")
	flags.StringVarP(&rcFile, "rc-file", "R", "", "rc-profile path override")

	if err := flags.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	sink := diag.NewConsole(os.Stdout, os.Stderr, "gomk")

	if showVersion {
		sink.Info(version)
		return 0
	}

	if directory != "" {
		sink.Enter(directory)
		if err := os.Chdir(directory); err != nil {
			sink.Fatal(zeroLoc(), fmt.Sprintf("%s: %v", directory, err), 2)
		}
		defer sink.Leave(directory)
	}

	var names []string
	var targets []string
	for _, a := range flags.Args() {
		if isAssignment(a) {
			names = append(names, a)
		} else {
			targets = append(targets, a)
		}
	}

	makefilePath, ok := resolveMakefile(file)
	if !ok {
		sink.Fatal(zeroLoc(), "No makefile found", 2)
		return 2
	}

	vars := variables.NewFromEnviron(os.Environ())
	seedBuiltins(vars, makefilePath, argv)
	applyRCProfile(vars, rcFile)
	applyCommandLineVars(vars, names)

	eng := expand.New(vars, sink)

	var includer parse.RemoteIncluder
	if s3, err := remote.NewS3Includer(); err == nil {
		includer = s3
	}
	p := parse.New(vars, eng, sink, includer)

	if err := p.ParseFile(makefilePath); err != nil {
		sink.Fatal(zeroLoc(), err.Error(), 2)
		return 2
	}

	g, err := graph.Build(p.Fragments, eng, sink)
	if err != nil {
		sink.Fatal(zeroLoc(), err.Error(), 2)
		return 2
	}

	if silent {
		g.GlobalSilent = true
	}

	if printDataBase {
		dump.PrintDataBase(sink, vars, g)
	}

	if len(targets) == 0 {
		def, ok := g.DefaultTarget()
		if !ok {
			sink.Info("gomk: nothing to be done")
			return 0
		}
		targets = []string{def}
	}

	sched := schedule.New(g, vars, eng, sink, nil, schedule.Options{
		AlwaysMake:   alwaysMake,
		KeepGoing:    keepGoing,
		DryRun:       dryRun,
		IgnoreErrors: ignoreErrors,
	})

	for _, t := range targets {
		built, err := sched.Update(t)
		if err != nil {
			return exitCodeFor(err)
		}
		if !built {
			sink.Info(fmt.Sprintf("gomk: '%s' is up to date.", t))
		}
	}
	return 0
}

func zeroLoc() loc.Location { return loc.Location{} }

func isAssignment(a string) bool {
	eq := strings.IndexByte(a, '=')
	if eq <= 0 {
		return false
	}
	name := a[:eq]
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func applyCommandLineVars(vars *variables.Store, assignments []string) {
	for _, a := range assignments {
		eq := strings.IndexByte(a, '=')
		name, value := a[:eq], a[eq+1:]
		vars.Set(name, variables.Recursive, variables.CommandLine, value, loc.Location{})
	}
}

func resolveMakefile(explicit string) (string, bool) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, true
		}
		return "", false
	}
	for _, name := range defaultMakefileNames {
		if _, err := os.Stat(name); err == nil {
			return name, true
		}
	}
	return "", false
}

func seedBuiltins(vars *variables.Store, makefilePath string, argv []string) {
	self, err := os.Executable()
	if err != nil {
		self = "gomk"
	}
	vars.Set("MAKE", variables.Simple, variables.Default, self, loc.Location{})
	if vars.Get("SHELL") == nil {
		vars.Set("SHELL", variables.Simple, variables.Default, "/bin/sh", loc.Location{})
	}
	vars.Set(".SHELLFLAGS", variables.Simple, variables.Default, "-c", loc.Location{})

	level := 0
	if c := vars.Get("MAKELEVEL"); c != nil {
		level, _ = strconv.Atoi(c.Value)
	}
	vars.Set("MAKELEVEL", variables.Simple, variables.Environment, strconv.Itoa(level+1), loc.Location{})
	vars.Set("MAKEFLAGS", variables.Simple, variables.Default, strings.Join(argv, " "), loc.Location{})
	vars.Set("CURDIR", variables.Simple, variables.Default, mustAbs(makefilePath), loc.Location{})
}

func mustAbs(path string) string {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	return dir
}

func applyRCProfile(vars *variables.Store, rcFile string) {
	path := rcFile
	if path == "" {
		path = ".gomkrc.json"
	}
	profileName := os.Getenv("MAKE_PROFILE")
	if profileName == "" {
		profileName = "default"
	}
	profile, ok, err := remote.LoadProfile(path, profileName)
	if err != nil || !ok {
		return
	}
	if profile.Shell != "" {
		vars.Set("SHELL", variables.Simple, variables.Default, profile.Shell, loc.Location{})
	}
	if profile.ShellFlags != "" {
		vars.Set(".SHELLFLAGS", variables.Simple, variables.Default, profile.ShellFlags, loc.Location{})
	}
	for k, v := range profile.Env {
		vars.Set(k, variables.Simple, variables.Default, v, loc.Location{})
	}
}

// exitCodeFor maps a scheduler failure to spec.md §6's exit codes: 130 for
// "no rule to make target" propagation, 2 for an unignored recipe
// failure or any other scheduling error.
func exitCodeFor(err error) int {
	if _, ok := err.(*recipe.Error); ok {
		return 2
	}
	if strings.Contains(err.Error(), "No rule to make target") {
		return 130
	}
	return 2
}
