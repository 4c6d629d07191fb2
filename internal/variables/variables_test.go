package variables

import (
	"testing"

	"github.com/relnoir/gomk/internal/loc"
)

func TestSetPrecedence(t *testing.T) {
	s := New()
	s.Set("cc", Recursive, Default, "gcc", loc.Location{})
	s.Set("cc", Recursive, File, "clang", loc.Location{})
	if got := s.Get("cc").Value; got != "clang" {
		t.Errorf("cc = %q, want %q", got, "clang")
	}

	// A File assignment never beats a CommandLine one.
	s.Set("opt", Recursive, CommandLine, "-O3", loc.Location{})
	s.Set("opt", Recursive, File, "-O0", loc.Location{})
	if got := s.Get("opt").Value; got != "-O3" {
		t.Errorf("opt = %q, want %q (command-line should survive)", got, "-O3")
	}

	// Override always wins, even over CommandLine.
	s.Set("opt", Recursive, Override, "-Os", loc.Location{})
	if got := s.Get("opt").Value; got != "-Os" {
		t.Errorf("opt = %q, want %q (override should win)", got, "-Os")
	}
}

func TestSetIfUndefined(t *testing.T) {
	s := New()
	s.Set("cc", Recursive, File, "clang", loc.Location{})
	s.SetIfUndefined("cc", File, "gcc", loc.Location{})
	if got := s.Get("cc").Value; got != "clang" {
		t.Errorf("cc = %q, want %q (?= must not overwrite)", got, "clang")
	}
	s.SetIfUndefined("ld", File, "ld.lld", loc.Location{})
	if got := s.Get("ld").Value; got != "ld.lld" {
		t.Errorf("ld = %q, want %q (?= should set an unset var)", got, "ld.lld")
	}
}

func TestAppendFlavors(t *testing.T) {
	s := New()
	s.Set("cflags", Simple, File, "-Wall", loc.Location{})
	s.Append("cflags", "-Werror", "-Werror", File, loc.Location{})
	if got := s.Get("cflags").Value; got != "-Wall -Werror" {
		t.Errorf("cflags = %q, want %q", got, "-Wall -Werror")
	}

	s.Set("greeting", Recursive, File, "hello", loc.Location{})
	s.Append("greeting", "$(who)", "EXPANDED_WOULD_GO_HERE", File, loc.Location{})
	if got := s.Get("greeting").Value; got != "hello $(who)" {
		t.Errorf("greeting = %q, want %q (recursive append keeps raw text)", got, "hello $(who)")
	}
}

func TestFrameShadowing(t *testing.T) {
	s := New()
	s.Set("@", Recursive, File, "global-at", loc.Location{})
	s.PushFrame(map[string]string{"@": "target.o"})
	if got := s.Get("@").Value; got != "target.o" {
		t.Errorf("@ = %q inside frame, want %q", got, "target.o")
	}
	if got := s.Get("@").Origin; got != Automatic {
		t.Errorf("@ origin = %v, want Automatic", got)
	}
	s.PopFrame()
	if got := s.Get("@").Value; got != "global-at" {
		t.Errorf("@ = %q after pop, want %q", got, "global-at")
	}
}

func TestPushNamedFrameKeepsFlavor(t *testing.T) {
	s := New()
	cell := &Cell{Name: "CFLAGS", Value: "-O2", Flavor: Simple, Origin: File}
	s.PushNamedFrame(map[string]*Cell{"CFLAGS": cell})
	got := s.Get("CFLAGS")
	if got.Flavor != Simple || got.Value != "-O2" {
		t.Errorf("CFLAGS = %+v, want Simple/-O2", got)
	}
	s.PopFrame()
	if s.Get("CFLAGS") != nil {
		t.Error("CFLAGS should be gone after popping its target-scoped frame")
	}
}

func TestExportUnexportDefault(t *testing.T) {
	s := New()
	s.Unexport(nil)
	s.Set("FOO", Recursive, File, "bar", loc.Location{})
	if s.Get("FOO").Exported {
		t.Error("FOO should not be exported under a standing unexport default")
	}

	s.Export(nil)
	s.Set("BAZ", Recursive, File, "qux", loc.Location{})
	if !s.Get("BAZ").Exported {
		t.Error("BAZ should be exported under a standing export default")
	}
}

func TestEnumerateSorted(t *testing.T) {
	s := New()
	s.Set("zeta", Recursive, File, "1", loc.Location{})
	s.Set("alpha", Recursive, File, "2", loc.Location{})
	cells := s.Enumerate()
	if len(cells) != 2 || cells[0].Name != "alpha" || cells[1].Name != "zeta" {
		t.Errorf("Enumerate() = %+v, want sorted [alpha zeta]", cells)
	}
}
