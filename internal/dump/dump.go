// Package dump implements SPEC_FULL.md §4.F's -p/--print-data-base
// debugging dump: every variable cell and every graph node, rendered
// through sanity-io/litter for readable nested-struct output instead of a
// hand-rolled formatter.
package dump

import (
	"github.com/sanity-io/litter"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/graph"
	"github.com/relnoir/gomk/internal/variables"
)

// variableRow and nodeRow are litter-friendly projections of the internal
// Cell/Node types: plain values only, no unexported fields or pointers
// litter would otherwise render as addresses.
type variableRow struct {
	Name   string
	Value  string
	Flavor string
	Origin string
}

type nodeRow struct {
	Name          string
	Prerequisites []string
	RecipeCount   int
	Phony         bool
	Silent        bool
	DoubleColon   bool
}

// PrintDataBase writes the database dump to sink, one litter-rendered
// block for variables and one for rule nodes, matching GNU make's
// `-p`/`--print-data-base` in spirit (full state visible, not byte-exact
// GNU make's own dump format).
func PrintDataBase(sink diag.Sink, vars *variables.Store, g *graph.Graph) {
	var rows []variableRow
	for _, c := range vars.Enumerate() {
		rows = append(rows, variableRow{
			Name: c.Name, Value: c.Value, Flavor: c.Flavor.String(), Origin: c.Origin.String(),
		})
	}
	sink.Info("# Variables")
	sink.Info(litter.Sdump(rows))

	var nodes []nodeRow
	for name, instances := range g.Nodes {
		for _, n := range instances {
			nodes = append(nodes, nodeRow{
				Name: name, Prerequisites: n.Prerequisites, RecipeCount: len(n.Recipes),
				Phony: n.Phony, Silent: n.Silent, DoubleColon: n.DoubleColon,
			})
		}
	}
	sink.Info("# Rule database")
	sink.Info(litter.Sdump(nodes))
}
