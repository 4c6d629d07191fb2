// Package graph implements the Rule Graph (spec.md component E):
// aggregating the Fragments the Directive Parser emits into per-target
// nodes, enforcing the single-colon/double-colon discipline, and applying
// the .PHONY/.SILENT/.DEFAULT meta-rules.
//
// Grounded on friedelschoen-mk/rules.go's ruleSet.add (merge-or-append
// logic for repeated rule declarations) and friedelschoen-mk/graph.go's
// Target pattern compilation, though this package drops pattern/suffix
// matching entirely: spec.md's Non-goals exclude inference-rule chaining,
// and the Rule fragment data model (spec.md §3) carries only plain target
// names, never patterns.
package graph

import (
	"fmt"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/loc"
)

// FragmentKind tags which of the three payloads a Fragment carries,
// mirroring spec.md §3's Rule fragment sum type.
type FragmentKind int

const (
	FragPrereq FragmentKind = iota
	FragRecipe
	FragTargetVar
)

// Fragment is what the Directive Parser emits before graph building, one
// per rule-bearing or target-scoped-assignment line (spec.md §3).
type Fragment struct {
	Where   loc.Location
	Targets []string
	Kind    FragmentKind

	// FragPrereq
	DoubleColon bool
	PrereqText  string // unexpanded

	// FragRecipe
	RecipeText string // unexpanded
	// RecipeStart is true for the first FragRecipe fragment of a rule's
	// recipe (an inline ";"-recipe, or the first tab-prefixed line after
	// the rule's declaration), and false for every later recipe line that
	// continues the same block. It is what lets applyFragment tell a
	// genuine "target redeclared with a new recipe" occurrence apart from
	// an ordinary multi-line recipe continuation.
	RecipeStart bool

	// FragTargetVar
	VarName  string
	VarOp    string // "=", ":=", "::=", "+=", "?=", "!="
	VarValue string // unexpanded
}

// Recipe pairs a recipe's unexpanded text with the location it came from,
// for §4.G's error messages.
type Recipe struct {
	Where loc.Location
	Text  string
}

// UpdateState tracks a Node's position in the Target Scheduler's
// depth-first walk (spec.md §3's Graph node / §4.F).
type UpdateState int

const (
	Unvisited UpdateState = iota
	InProgress
	Updated
	Failed
)

// Node is one rule instance for a target name. Single-colon targets have
// exactly one Node in Graph.Nodes[name]; double-colon targets have one
// Node per independent rule, each built separately (spec.md §3/§4.E).
type Node struct {
	Name          string
	Prerequisites []string
	Recipes       []Recipe
	TargetVars    []Fragment // FragTargetVar fragments scoped to this node
	Phony         bool
	Silent        bool
	DoubleColon   bool
	Where         loc.Location
	UpdateState   UpdateState
}

// Graph is the fully built rule graph. Its rules do not change once Build
// returns (spec.md §5); afterwards only each Node's UpdateState (written by
// the scheduler) and GlobalSilent (set by the CLI for -s) are modified.
type Graph struct {
	Nodes map[string][]*Node

	// order records first-appearance order of rule-fragment target names,
	// for default-target selection (spec.md §4.E).
	order []string

	DefaultPrereqs  []string // from .DEFAULT
	GlobalSilent    bool     // .SILENT with no prerequisites
	PhonyNames      map[string]bool
}

// Build aggregates fragments into a Graph. eng expands prerequisite text
// (spec.md §4.E: "expanded once during graph build"); recipe text and
// target-scoped assignment fragments are kept unexpanded, expanded later
// per-target by the scheduler with automatic variables bound.
func Build(fragments []Fragment, eng *expand.Engine, sink diag.Sink) (*Graph, error) {
	g := &Graph{
		Nodes:      make(map[string][]*Node),
		PhonyNames: make(map[string]bool),
	}

	var phonyFragPrereqs, silentFragPrereqs []string

	for _, f := range fragments {
		if len(f.Targets) == 1 {
			switch f.Targets[0] {
			case ".PHONY":
				if f.Kind == FragPrereq {
					phonyFragPrereqs = append(phonyFragPrereqs, tokenize(eng.Expand(f.PrereqText))...)
					continue
				}
			case ".SILENT":
				if f.Kind == FragPrereq {
					words := tokenize(eng.Expand(f.PrereqText))
					if len(words) == 0 {
						g.GlobalSilent = true
					} else {
						silentFragPrereqs = append(silentFragPrereqs, words...)
					}
					continue
				}
			case ".DEFAULT":
				if f.Kind == FragPrereq {
					g.DefaultPrereqs = append(g.DefaultPrereqs, tokenize(eng.Expand(f.PrereqText))...)
					continue
				}
			}
		}

		for _, name := range f.Targets {
			isMeta := len(name) > 0 && name[0] == '.'
			isNew := len(g.Nodes[name]) == 0
			if err := g.applyFragment(name, f, eng, sink); err != nil {
				return nil, err
			}
			if !isMeta && isNew {
				g.order = append(g.order, name)
			}
		}
	}

	for _, name := range phonyFragPrereqs {
		g.PhonyNames[name] = true
		for _, n := range g.Nodes[name] {
			n.Phony = true
		}
	}
	for _, name := range silentFragPrereqs {
		for _, n := range g.Nodes[name] {
			n.Silent = true
		}
	}

	return g, nil
}

// applyFragment folds one fragment's effect on a single target name into
// the graph, enforcing the single-colon/double-colon discipline from
// spec.md §3.
func (g *Graph) applyFragment(name string, f Fragment, eng *expand.Engine, sink diag.Sink) error {
	existing := g.Nodes[name]

	if f.Kind == FragTargetVar {
		if len(existing) == 0 {
			existing = []*Node{{Name: name, Where: f.Where}}
			g.Nodes[name] = existing
		}
		for _, n := range existing {
			n.TargetVars = append(n.TargetVars, f)
		}
		return nil
	}

	// A FragPrereq fragment states the colon discipline directly; a
	// FragRecipe fragment carries none of its own and inherits whatever
	// discipline the target's existing rule instance(s) already settled
	// on (a recipe line can never itself be the thing that conflicts).
	doubleColon := f.Kind == FragPrereq && f.DoubleColon
	if f.Kind == FragRecipe && len(existing) > 0 {
		doubleColon = existing[0].DoubleColon
	}
	if f.Kind == FragPrereq && len(existing) > 0 && existing[0].DoubleColon != f.DoubleColon {
		return fmt.Errorf("%s: target file '%s' has both : and :: entries.  Stop", f.Where, name)
	}

	if doubleColon {
		// Only a FragPrereq fragment starts a new double-colon rule
		// instance; every FragRecipe fragment (inline or tab-prefixed,
		// block-start or continuation) belongs to whichever instance was
		// most recently opened, since the parser always emits a target's
		// FragPrereq before any of its recipe lines.
		if f.Kind == FragRecipe && len(existing) > 0 {
			n := existing[len(existing)-1]
			n.Recipes = append(n.Recipes, Recipe{Where: f.Where, Text: f.RecipeText})
			return nil
		}
		n := &Node{Name: name, DoubleColon: true, Where: f.Where}
		g.applyPrereqOrRecipe(n, f, eng)
		g.Nodes[name] = append(existing, n)
		return nil
	}

	var n *Node
	if len(existing) == 0 {
		n = &Node{Name: name, Where: f.Where}
		g.Nodes[name] = []*Node{n}
	} else {
		n = existing[0]
	}
	if f.Kind == FragRecipe && f.RecipeStart && len(n.Recipes) > 0 {
		sink.Warn(f.Where, fmt.Sprintf("overriding recipe for target '%s'", name))
		n.Recipes = nil
	}
	g.applyPrereqOrRecipe(n, f, eng)
	return nil
}

func (g *Graph) applyPrereqOrRecipe(n *Node, f Fragment, eng *expand.Engine) {
	switch f.Kind {
	case FragPrereq:
		n.Prerequisites = append(n.Prerequisites, tokenize(eng.ExpandAt(f.PrereqText, f.Where))...)
	case FragRecipe:
		n.Recipes = append(n.Recipes, Recipe{Where: f.Where, Text: f.RecipeText})
	}
}

func tokenize(s string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(s); i++ {
		isSpace := i == len(s) || s[i] == ' ' || s[i] == '\t'
		if isSpace {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	return out
}

// DefaultTarget implements spec.md §4.E's default-target selection: a
// non-empty .DEFAULT prerequisite list wins, else the first target of the
// first non-meta rule in source order.
func (g *Graph) DefaultTarget() (string, bool) {
	if len(g.DefaultPrereqs) > 0 {
		return g.DefaultPrereqs[0], true
	}
	if len(g.order) > 0 {
		return g.order[0], true
	}
	return "", false
}

// Get returns the rule instance(s) registered for name, or nil if the
// graph has no rule for it (it may still exist as a source file).
func (g *Graph) Get(name string) []*Node {
	return g.Nodes[name]
}
