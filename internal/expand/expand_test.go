package expand

import (
	"os"
	"testing"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/variables"
)

func newTestEngine() *Engine {
	vars := variables.New()
	devNull, _ := os.Open(os.DevNull)
	sink := diag.NewConsole(devNull, devNull, "gomk-test")
	return New(vars, sink)
}

func TestExpandPlainVariable(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("CC", variables.Recursive, variables.File, "gcc", loc.Location{})
	if got := e.Expand("$(CC) -o out"); got != "gcc -o out" {
		t.Errorf("Expand() = %q, want %q", got, "gcc -o out")
	}
}

func TestExpandRecursiveReexpandsOnRead(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("BASE", variables.Recursive, variables.File, "1", loc.Location{})
	e.Vars.Set("DERIVED", variables.Recursive, variables.File, "$(BASE)-x", loc.Location{})
	if got := e.Expand("$(DERIVED)"); got != "1-x" {
		t.Errorf("Expand() = %q, want %q", got, "1-x")
	}
	e.Vars.Set("BASE", variables.Recursive, variables.File, "2", loc.Location{})
	if got := e.Expand("$(DERIVED)"); got != "2-x" {
		t.Errorf("Expand() after BASE changed = %q, want %q (recursive re-expands)", got, "2-x")
	}
}

func TestExpandSimpleSnapshotsAtAssignment(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("BASE", variables.Recursive, variables.File, "1", loc.Location{})
	e.Vars.Set("DERIVED", variables.Simple, variables.File, e.Expand("$(BASE)-x"), loc.Location{})
	e.Vars.Set("BASE", variables.Recursive, variables.File, "2", loc.Location{})
	if got := e.Expand("$(DERIVED)"); got != "1-x" {
		t.Errorf("Expand() = %q, want %q (simple flavor snapshots at assignment time)", got, "1-x")
	}
}

func TestSubstitutionReference(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("SRCS", variables.Recursive, variables.File, "a.c b.c", loc.Location{})
	if got := e.Expand("$(SRCS:.c=.o)"); got != "a.o b.o" {
		t.Errorf("Expand() = %q, want %q", got, "a.o b.o")
	}
}

func TestExpandBalancedDelimitersOfSameKind(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("X", variables.Recursive, variables.File, "inner", loc.Location{})
	if got := e.Expand("${subst in,out,$(X)}"); got != "outner" {
		t.Errorf("Expand() = %q, want %q ($( inside ${ must match its own close)", got, "outner")
	}
}

func TestFnSubst(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(subst ee,EE,feet on the street)"); got != "fEEt on the strEEt" {
		t.Errorf("subst = %q, want %q", got, "fEEt on the strEEt")
	}
}

func TestFnPatsubst(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(patsubst %.c,%.o,a.c b.c main.c)"); got != "a.o b.o main.o" {
		t.Errorf("patsubst = %q, want %q", got, "a.o b.o main.o")
	}
}

func TestFnPatsubstWithoutPercentRequiresWholeWordMatch(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(patsubst abc,xyz,fooabc bar)"); got != "fooabc bar" {
		t.Errorf("patsubst = %q, want %q (no-%% patsubst replaces on word equality only, not a suffix match)", got, "fooabc bar")
	}
	if got := e.Expand("$(patsubst abc,xyz,abc bar)"); got != "xyz bar" {
		t.Errorf("patsubst = %q, want %q (whole word equal to pat is replaced)", got, "xyz bar")
	}
}

func TestSubstitutionReferenceWithoutPercentIsSuffixMatch(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("SRCS", variables.Recursive, variables.File, "fooabc bar", loc.Location{})
	if got := e.Expand("$(SRCS:abc=xyz)"); got != "fooxyz bar" {
		t.Errorf("Expand() = %q, want %q (substitution references use a trailing-match replace, unlike patsubst)", got, "fooxyz bar")
	}
}

func TestFnFilterAndFilterOut(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(filter %.c,a.c b.o c.c)"); got != "a.c c.c" {
		t.Errorf("filter = %q, want %q", got, "a.c c.c")
	}
	if got := e.Expand("$(filter-out %.o,a.c b.o c.c)"); got != "a.c c.c" {
		t.Errorf("filter-out = %q, want %q", got, "a.c c.c")
	}
}

func TestFnIfOrAnd(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(if yes,then,else)"); got != "then" {
		t.Errorf("if(truthy) = %q, want %q", got, "then")
	}
	if got := e.Expand("$(if ,then,else)"); got != "else" {
		t.Errorf("if(empty) = %q, want %q", got, "else")
	}
	if got := e.Expand("$(or ,,third)"); got != "third" {
		t.Errorf("or = %q, want %q", got, "third")
	}
	if got := e.Expand("$(and a,b,c)"); got != "c" {
		t.Errorf("and = %q, want %q", got, "c")
	}
	if got := e.Expand("$(and a,,c)"); got != "" {
		t.Errorf("and(short-circuit) = %q, want empty", got)
	}
}

func TestFnForeach(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(foreach w,a b c,[$(w)])"); got != "[a] [b] [c]" {
		t.Errorf("foreach = %q, want %q", got, "[a] [b] [c]")
	}
}

func TestFnWordsAndWord(t *testing.T) {
	e := newTestEngine()
	if got := e.Expand("$(words one two three)"); got != "3" {
		t.Errorf("words = %q, want %q", got, "3")
	}
	if got := e.Expand("$(word 2,one two three)"); got != "two" {
		t.Errorf("word = %q, want %q", got, "two")
	}
}

func TestFnOriginAndFlavor(t *testing.T) {
	e := newTestEngine()
	e.Vars.Set("CC", variables.Simple, variables.File, "gcc", loc.Location{})
	if got := e.Expand("$(origin CC)"); got != "file" {
		t.Errorf("origin = %q, want %q", got, "file")
	}
	if got := e.Expand("$(flavor CC)"); got != "simple" {
		t.Errorf("flavor = %q, want %q", got, "simple")
	}
	if got := e.Expand("$(origin NEVER_SET)"); got != "undefined" {
		t.Errorf("origin(undefined) = %q, want %q", got, "undefined")
	}
}

func TestRunShellTrimsAndFoldsNewlines(t *testing.T) {
	e := newTestEngine()
	out, code := e.RunShell("printf 'a\\nb\\n'")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if out != "a b" {
		t.Errorf("RunShell output = %q, want %q", out, "a b")
	}
}
