package lineread

import (
	"strings"
	"testing"
)

func TestNextJoinsContinuations(t *testing.T) {
	r := New(strings.NewReader("foo = bar \\\n    baz\nqux = 1\n"))
	line, ok := r.Next()
	if !ok {
		t.Fatal("expected a line")
	}
	if got, want := line.Text, "foo = bar baz"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	if line.StartLine != 1 {
		t.Errorf("StartLine = %d, want 1", line.StartLine)
	}

	line2, ok := r.Next()
	if !ok || line2.Text != "qux = 1" {
		t.Errorf("second line = %+v, ok=%v", line2, ok)
	}
}

func TestNextRecipeLine(t *testing.T) {
	r := New(strings.NewReader("\techo hi\n"))
	line, ok := r.Next()
	if !ok {
		t.Fatal("expected a line")
	}
	if !line.IsRecipe {
		t.Error("expected IsRecipe = true")
	}
	if line.Text != "echo hi" {
		t.Errorf("Text = %q, want %q (leading tab stripped)", line.Text, "echo hi")
	}
}

func TestNextDropsColumnZeroComment(t *testing.T) {
	r := New(strings.NewReader("#comment\nfoo = bar\n"))
	line, ok := r.Next()
	if !ok || line.Text != "foo = bar" {
		t.Errorf("got %+v, ok=%v, want 'foo = bar' (comment line dropped)", line, ok)
	}
}

func TestNextStripsTrailingComment(t *testing.T) {
	r := New(strings.NewReader("foo = bar # trailing note\n"))
	line, ok := r.Next()
	if !ok || line.Text != "foo = bar " {
		t.Errorf("got %q, ok=%v, want %q", line.Text, ok, "foo = bar ")
	}
}

func TestNextKeepsHashInsideBalancedParens(t *testing.T) {
	r := New(strings.NewReader("foo = $(shell echo '#') bar\n"))
	line, ok := r.Next()
	if !ok {
		t.Fatal("expected a line")
	}
	if strings.Contains(line.Text, "bar") == false {
		t.Errorf("Text = %q, want trailing 'bar' preserved (# was inside $(...))", line.Text)
	}
}

func TestStripTrailingContinuationEscapedBackslash(t *testing.T) {
	got, continues := stripTrailingContinuation(`foo\\`)
	if continues {
		t.Error("a literal escaped backslash pair must not count as a continuation")
	}
	if got != `foo\\` {
		t.Errorf("got %q, want input unchanged", got)
	}

	got, continues = stripTrailingContinuation(`foo\`)
	if !continues {
		t.Error("a single trailing backslash must continue")
	}
	if got != "foo" {
		t.Errorf("got %q, want %q", got, "foo")
	}
}

func TestNextRawBypassesProcessing(t *testing.T) {
	r := New(strings.NewReader("\t#define-body-line\nendef\n"))
	raw, start, ok := r.NextRaw()
	if !ok {
		t.Fatal("expected a line")
	}
	if raw != "\t#define-body-line" {
		t.Errorf("raw = %q, want leading tab and '#' preserved verbatim", raw)
	}
	if start != 1 {
		t.Errorf("start = %d, want 1", start)
	}
}
