package dump

import (
	"os"
	"strings"
	"testing"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/graph"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/variables"
)

// capturingSink records every Info() call instead of writing to a stream,
// so the test can assert on the rendered dump without touching stdout.
type capturingSink struct {
	diag.Sink
	lines []string
}

func (c *capturingSink) Info(msg string) { c.lines = append(c.lines, msg) }

func TestPrintDataBaseRendersVariablesAndRules(t *testing.T) {
	vars := variables.New()
	vars.Set("CC", variables.Simple, variables.File, "gcc", loc.Location{})

	devNull, _ := os.Open(os.DevNull)
	eng := expand.New(vars, diag.NewConsole(devNull, devNull, "gomk-test"))
	g, err := graph.Build([]graph.Fragment{
		{Targets: []string{"all"}, Kind: graph.FragPrereq, PrereqText: "main.o"},
	}, eng, diag.NewConsole(devNull, devNull, "gomk-test"))
	if err != nil {
		t.Fatal(err)
	}

	sink := &capturingSink{}
	PrintDataBase(sink, vars, g)

	joined := strings.Join(sink.lines, "\n")
	if !strings.Contains(joined, "CC") || !strings.Contains(joined, "gcc") {
		t.Errorf("dump missing variable row, got:\n%s", joined)
	}
	if !strings.Contains(joined, "all") {
		t.Errorf("dump missing rule row, got:\n%s", joined)
	}
	if !strings.Contains(joined, "# Variables") || !strings.Contains(joined, "# Rule database") {
		t.Errorf("dump missing section headers, got:\n%s", joined)
	}
}
