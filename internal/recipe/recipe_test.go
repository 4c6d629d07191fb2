package recipe

import (
	"os"
	"testing"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/variables"
)

func newTestExecutor(dryRun, ignoreErrors, keepGoing bool) *Executor {
	vars := variables.New()
	devNull, _ := os.Open(os.DevNull)
	sink := diag.NewConsole(devNull, devNull, "gomk-test")
	eng := expand.New(vars, sink)
	return New(eng, sink, dryRun, ignoreErrors, keepGoing)
}

func TestRunDryRunNeverExecutes(t *testing.T) {
	x := newTestExecutor(true, false, false)
	if err := x.Run("touch /should/never/be/created", Target{Name: "t"}); err != nil {
		t.Fatalf("dry-run Run returned error: %v", err)
	}
}

func TestRunSucceeds(t *testing.T) {
	x := newTestExecutor(false, false, false)
	if err := x.Run("true", Target{Name: "t"}); err != nil {
		t.Fatalf("Run(true) returned %v, want nil", err)
	}
}

func TestRunFailurePropagatesError(t *testing.T) {
	x := newTestExecutor(false, false, false)
	err := x.Run("false", Target{Name: "t", Where: loc.Location{File: "Makefile", Line: 3}})
	if err == nil {
		t.Fatal("expected an error from a failing recipe command")
	}
	rerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if rerr.Target != "t" || rerr.Code != 1 {
		t.Errorf("Error = %+v, want Target=t Code=1", rerr)
	}
}

func TestRunDashPrefixIgnoresFailure(t *testing.T) {
	x := newTestExecutor(false, false, false)
	if err := x.Run("-false", Target{Name: "t"}); err != nil {
		t.Errorf("a '-'-prefixed command's failure must be tolerated, got %v", err)
	}
}

func TestRunIgnoreErrorsFlagTolerates(t *testing.T) {
	x := newTestExecutor(false, true, false)
	if err := x.Run("false", Target{Name: "t"}); err != nil {
		t.Errorf("global --ignore-errors must tolerate failure, got %v", err)
	}
}

func TestRunKeepGoingTolerates(t *testing.T) {
	x := newTestExecutor(false, false, true)
	if err := x.Run("false", Target{Name: "t"}); err != nil {
		t.Errorf("--keep-going must tolerate a single recipe's failure, got %v", err)
	}
}

// fakeSink records Warn/WarnRaw calls so tests can assert on the exact
// diagnostic text a failing recipe produces, without needing a real stream.
type fakeSink struct {
	diag.Sink
	warnRawMsgs []string
}

func (f *fakeSink) WarnRaw(msg string) { f.warnRawMsgs = append(f.warnRawMsgs, msg) }

func TestRunFailureWarnsWithoutDuplicatingLocation(t *testing.T) {
	vars := variables.New()
	devNull, _ := os.Open(os.DevNull)
	sink := &fakeSink{Sink: diag.NewConsole(devNull, devNull, "gomk-test")}
	eng := expand.New(vars, sink)
	x := New(eng, sink, false, false, false)
	x.progName = "gomk"

	where := loc.Location{File: "Makefile", Line: 3}
	if err := x.Run("false", Target{Name: "all", Where: where}); err == nil {
		t.Fatal("expected an error from a failing recipe command")
	}

	if len(sink.warnRawMsgs) != 1 {
		t.Fatalf("warnRawMsgs = %v, want exactly one pre-formatted warning", sink.warnRawMsgs)
	}
	want := "gomk: *** [Makefile:3: all] Error 1"
	if sink.warnRawMsgs[0] != want {
		t.Errorf("warnRawMsgs[0] = %q, want %q (no duplicated location/program-name prefix)", sink.warnRawMsgs[0], want)
	}
}

func TestFormatRecipeError(t *testing.T) {
	got := formatRecipeError("gomk", loc.Location{File: "Makefile", Line: 5}, "all", 2, "")
	want := "gomk: *** [Makefile:5: all] Error 2"
	if got != want {
		t.Errorf("formatRecipeError() = %q, want %q", got, want)
	}
}
