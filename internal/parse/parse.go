// Package parse implements the Directive Parser (spec.md component D):
// classifying each logical line from the Logical Line Reader into a
// define/conditional/include/export/assignment/rule, maintaining the
// in_rule and conditional-stack state that classification depends on, and
// emitting graph.Fragment values for the Rule Graph to aggregate.
//
// Grounded on friedelschoen-mk/parse.go's parserStateFun state machine
// (parseLine dispatching to parseAssign/parseRule/parseInclude by
// inspecting the line's shape), generalized from Plan9 mk's simpler grammar
// to GNU make's conditional stack, define blocks, and target-scoped
// assignments.
package parse

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/expand"
	"github.com/relnoir/gomk/internal/graph"
	"github.com/relnoir/gomk/internal/lineread"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/variables"
)

// RemoteIncluder resolves an s3:// (or other non-local scheme) include URI
// to its body. internal/remote supplies the concrete implementation; parse
// only depends on this interface so it never imports an AWS SDK.
type RemoteIncluder interface {
	Fetch(uri string) (io.ReadCloser, error)
}

// Parser accumulates graph.Fragments while walking a makefile and its
// includes. One Parser is used for an entire run (root file plus every
// transitive include), since conditional/define state never crosses a file
// boundary but the fragment list and variable store do.
type Parser struct {
	Vars   *variables.Store
	Eng    *expand.Engine
	Diag   diag.Sink
	Remote RemoteIncluder

	Fragments []graph.Fragment

	// in_rule / define / conditional state resets per file (spec.md §4.D
	// scopes them to "one logical line plus location" within one file's
	// stream), so these live on a per-file frame, pushed/popped by
	// parseFile across includes.
	stack []fileState
}

type fileState struct {
	path        string
	lastTargets []string
	inRule      bool
	// freshRecipeBlock is true from the moment a rule line is parsed until
	// the first recipe-prefixed line for it is emitted, so that line alone
	// can be tagged as a new recipe block's start (graph.Fragment.RecipeStart).
	// Every later recipe-prefixed line is a continuation of the same block.
	freshRecipeBlock bool
	conds            []condFrame

	defining    bool
	defineName  string
	defineOp    string
	defineWhere loc.Location
	defineBuf   []string
}

// New builds a Parser sharing vars/eng/sink with the rest of the run. eng's
// Eval field is wired to this Parser so $(eval ...) can feed text back in.
func New(vars *variables.Store, eng *expand.Engine, sink diag.Sink, remote RemoteIncluder) *Parser {
	p := &Parser{Vars: vars, Eng: eng, Diag: sink, Remote: remote}
	eng.Eval = p
	return p
}

func (p *Parser) top() *fileState {
	return &p.stack[len(p.stack)-1]
}

// ParseFile opens path (relative to cwd) and parses it depth-first.
func (p *Parser) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.parseReader(path, f)
}

func (p *Parser) parseReader(path string, r io.Reader) error {
	p.stack = append(p.stack, fileState{path: path})
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	lr := lineread.New(r)
	for {
		if p.top().defining {
			// define bodies are captured from completely raw physical
			// lines (spec.md §4.D point 1: "accumulate verbatim"), so a
			// line that happens to start with the recipe prefix is kept
			// intact here rather than routed through lr.Next(), which
			// would strip its leading tab and misclassify it as an
			// actual recipe attachment.
			raw, _, ok := lr.NextRaw()
			if !ok {
				break
			}
			if strings.TrimSpace(raw) == "endef" {
				if err := p.closeDefine(); err != nil {
					return err
				}
				continue
			}
			fs := p.top()
			fs.defineBuf = append(fs.defineBuf, raw)
			continue
		}

		line, ok := lr.Next()
		if !ok {
			break
		}
		where := loc.Location{File: path, Line: line.StartLine}
		if err := p.processLine(lr, line, where); err != nil {
			return err
		}
	}
	if p.top().defining {
		p.Diag.Fatal(p.top().defineWhere, "missing 'endef', unterminated 'define'", 2)
	}
	if len(p.top().conds) > 0 {
		p.Diag.Fatal(where0(path), "missing 'endif'", 2)
	}
	return nil
}

func where0(path string) loc.Location { return loc.Location{File: path} }

// EvalDirectiveText implements expand.DirectiveEvaluator for $(eval ...):
// the already-expanded text is re-parsed as if it were one more logical
// line (or several, newline-separated) of the current file.
func (p *Parser) EvalDirectiveText(text string, where loc.Location) error {
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		if err := p.processLine(nil, lineread.Line{Text: ln, StartLine: where.Line}, where); err != nil {
			return err
		}
	}
	return nil
}

// processLine classifies and dispatches one logical line, per spec.md
// §4.D's first-match-wins order. lr is nil when called from $(eval ...),
// in which case define/recipe attachment that needs further raw physical
// lines is not available (eval'd text cannot itself open a define block
// spanning beyond its own text).
func (p *Parser) processLine(lr *lineread.Reader, line lineread.Line, where loc.Location) error {
	fs := p.top()

	// 1. define accumulation in progress: every line is raw content until
	// a bare "endef".
	if fs.defining {
		if strings.TrimSpace(line.Text) == "endef" {
			return p.closeDefine()
		}
		fs.defineBuf = append(fs.defineBuf, line.Text)
		return nil
	}

	if line.IsRecipe {
		// 3. recipe-prefixed line.
		if !fs.inRule || !p.active() {
			if p.active() {
				p.Diag.Fatal(where, "recipe commences before first target", 2)
			}
			return nil
		}
		start := fs.freshRecipeBlock
		fs.freshRecipeBlock = false
		p.Fragments = append(p.Fragments, graph.Fragment{
			Where: where, Targets: fs.lastTargets, Kind: graph.FragRecipe, RecipeText: line.Text,
			RecipeStart: start,
		})
		return nil
	}

	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil
	}

	// 1 (continued). define NAME [op] opener. Opened even when the
	// current branch is inactive, so its body is still consumed up to
	// endef; closeDefine discards the accumulated text in that case.
	if name, op, ok := matchDefine(text); ok {
		fs.defining = true
		fs.defineName, fs.defineOp, fs.defineWhere = name, op, where
		return nil
	}

	// 2. conditional directives.
	if kind, rest, ok := matchConditionalKeyword(text); ok {
		return p.handleConditional(kind, rest, where)
	}

	if !p.active() {
		return nil
	}

	// 4. include / -include / sinclude.
	if kind, rest, ok := matchInclude(text); ok {
		return p.handleInclude(kind, rest, where)
	}

	// 5. export / unexport.
	if kind, rest, ok := matchExportKeyword(text); ok {
		return p.handleExport(kind, rest, where)
	}

	// 6/7: operator-driven dispatch between assignment, target-scoped
	// assignment, and rule line. "override" (not in spec.md §4.D's list,
	// but required by §3's Override origin) forces the resulting
	// assignment's origin regardless of precedence.
	if rest, ok := cutKeyword(text, "override"); ok {
		return p.handleOperatorLine(rest, where, true)
	}
	return p.handleOperatorLine(text, where, false)
}

func (p *Parser) active() bool {
	fs := p.top()
	if len(fs.conds) == 0 {
		return true
	}
	top := fs.conds[len(fs.conds)-1]
	return top.active && top.enclosingActive
}

// closeDefine assigns the accumulated body per define's op (default "="),
// per spec.md §4.D point 1.
func (p *Parser) closeDefine() error {
	fs := p.top()
	body := strings.Join(fs.defineBuf, "\n")
	name, op, where := fs.defineName, fs.defineOp, fs.defineWhere
	fs.defining, fs.defineName, fs.defineOp, fs.defineBuf = false, "", "", nil
	if !p.active() {
		return nil
	}
	if op == "" {
		op = "="
	}
	p.assign(name, op, body, where, false)
	return nil
}

func matchDefine(text string) (name, op string, ok bool) {
	rest, found := cutKeyword(text, "define")
	if !found {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	for _, o := range []string{"::=", ":=", "+=", "?=", "!=", "="} {
		if strings.HasSuffix(rest, o) {
			return strings.TrimSpace(strings.TrimSuffix(rest, o)), o, true
		}
	}
	return rest, "", true
}

// cutKeyword reports whether text starts with keyword followed by
// whitespace (or end of string), returning the remainder.
func cutKeyword(text, keyword string) (rest string, ok bool) {
	if !strings.HasPrefix(text, keyword) {
		return "", false
	}
	after := text[len(keyword):]
	if after == "" {
		return "", true
	}
	if after[0] != ' ' && after[0] != '\t' {
		return "", false
	}
	return strings.TrimLeft(after, " \t"), true
}

func matchInclude(text string) (kind, rest string, ok bool) {
	for _, kw := range []string{"include", "-include", "sinclude"} {
		if r, found := cutKeyword(text, kw); found {
			return kw, r, true
		}
	}
	return "", "", false
}

func (p *Parser) handleInclude(kind, rest string, where loc.Location) error {
	expanded := p.Eng.ExpandAt(rest, where)
	lenient := kind != "include"
	for _, path := range strings.Fields(expanded) {
		if err := p.includeOne(path, where, lenient); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) includeOne(path string, where loc.Location, lenient bool) error {
	if strings.HasPrefix(path, "s3://") {
		if p.Remote == nil {
			p.Diag.Fatal(where, fmt.Sprintf("no remote loader configured for '%s'", path), 2)
			return nil
		}
		body, err := p.Remote.Fetch(path)
		if err != nil {
			if lenient {
				return nil
			}
			p.Diag.Fatal(where, fmt.Sprintf("%s: %v", path, err), 2)
			return nil
		}
		defer body.Close()
		return p.parseReader(path, body)
	}

	dir := filepath.Dir(p.top().path)
	full := path
	if !filepath.IsAbs(path) && dir != "." {
		full = filepath.Join(dir, path)
	}
	f, err := os.Open(full)
	if err != nil {
		if lenient {
			return nil
		}
		p.Diag.Fatal(where, fmt.Sprintf("%s: No such file or directory", path), 2)
		return nil
	}
	defer f.Close()
	return p.parseReader(full, f)
}

func matchExportKeyword(text string) (kind, rest string, ok bool) {
	if r, found := cutKeyword(text, "export"); found {
		return "export", r, true
	}
	if r, found := cutKeyword(text, "unexport"); found {
		return "unexport", r, true
	}
	if text == "export" {
		return "export", "", true
	}
	if text == "unexport" {
		return "unexport", "", true
	}
	return "", "", false
}

func (p *Parser) handleExport(kind, rest string, where loc.Location) error {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		if kind == "export" {
			p.Vars.Export(nil)
		} else {
			p.Vars.Unexport(nil)
		}
		return nil
	}
	// "export FOO = bar" both assigns and exports; "export FOO BAR" just
	// flags existing names.
	if _, op, _, isRule := classifyOperator(rest); !isRule && op != "" {
		if err := p.handleOperatorLine(rest, where, false); err != nil {
			return err
		}
		name := firstWord(rest)
		if kind == "export" {
			p.Vars.Export([]string{name})
		} else {
			p.Vars.Unexport([]string{name})
		}
		return nil
	}
	names := strings.Fields(p.Eng.ExpandAt(rest, where))
	if kind == "export" {
		p.Vars.Export(names)
	} else {
		p.Vars.Unexport(names)
	}
	return nil
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			return s[:i]
		}
	}
	return s
}

// handleOperatorLine implements classification points 6 and 7: find the
// first top-level operator in text; a colon found before any assignment
// operator makes this a rule line (or a target-scoped assignment if what
// follows the colon is itself "VAR op RHS"), otherwise it's a plain global
// assignment. forceOverride is set when an "override" keyword preceded
// this line, forcing Override origin instead of the usual File origin.
func (p *Parser) handleOperatorLine(text string, where loc.Location, forceOverride bool) error {
	name, op, rhs, isRule := classifyOperator(text)
	if !isRule {
		p.assign(name, op, rhs, where, forceOverride)
		return nil
	}
	return p.handleRuleLine(text, where)
}

// assign applies one VAR op RHS per spec.md §4.D point 6. origin is
// normally File; an "override VAR = value" line forces Override so it
// outranks a prior command-line assignment per §3's precedence ladder.
func (p *Parser) assign(name, op, rhs string, where loc.Location, forceOverride bool) {
	name = strings.TrimSpace(p.Eng.ExpandAt(name, where))
	origin := variables.File
	if forceOverride {
		origin = variables.Override
	}
	switch op {
	case "=":
		p.Vars.Set(name, variables.Recursive, origin, rhs, where)
	case ":=", "::=":
		p.Vars.Set(name, variables.Simple, origin, p.Eng.ExpandAt(rhs, where), where)
	case "+=":
		p.Vars.Append(name, rhs, p.Eng.ExpandAt(rhs, where), origin, where)
	case "?=":
		p.Vars.SetIfUndefined(name, origin, rhs, where)
	case "!=":
		out, _ := p.Eng.RunShell(p.Eng.ExpandAt(rhs, where))
		p.Vars.Set(name, variables.Simple, origin, out, where)
	}
}

// handleRuleLine splits "targets: prereqs[; recipe]" (or, for a
// target-scoped assignment, "targets: VAR op RHS") and emits fragments.
func (p *Parser) handleRuleLine(text string, where loc.Location) error {
	colon := findTopLevelColon(text)
	if colon < 0 {
		return fmt.Errorf("%s: missing separator", where)
	}
	left := text[:colon]
	rest := text[colon+1:]
	doubleColon := false
	if len(rest) > 0 && rest[0] == ':' {
		doubleColon = true
		rest = rest[1:]
	}

	targetsExpanded := p.Eng.ExpandAt(left, where)
	targets := fieldsOf(targetsExpanded)
	if len(targets) == 0 {
		return fmt.Errorf("%s: *** missing target", where)
	}

	if vname, vop, vrhs, ok := matchTargetScopedAssignment(rest); ok {
		p.Fragments = append(p.Fragments, graph.Fragment{
			Where: where, Targets: targets, Kind: graph.FragTargetVar,
			VarName: strings.TrimSpace(vname), VarOp: vop, VarValue: vrhs,
		})
		return nil
	}

	prereqText := rest
	var inlineRecipe string
	hasInline := false
	if semi := findTopLevelSemicolon(rest); semi >= 0 {
		prereqText = rest[:semi]
		inlineRecipe = rest[semi+1:]
		hasInline = true
	}

	p.Fragments = append(p.Fragments, graph.Fragment{
		Where: where, Targets: targets, Kind: graph.FragPrereq,
		DoubleColon: doubleColon, PrereqText: prereqText,
	})
	if hasInline {
		p.Fragments = append(p.Fragments, graph.Fragment{
			Where: where, Targets: targets, Kind: graph.FragRecipe, RecipeText: inlineRecipe,
			RecipeStart: true,
		})
	}

	fs := p.top()
	fs.inRule = true
	fs.lastTargets = targets
	// The inline recipe above (if any) already consumed this rule's block
	// start; otherwise the first subsequent recipe-prefixed line should.
	fs.freshRecipeBlock = !hasInline
	return nil
}

func fieldsOf(s string) []string {
	return strings.Fields(s)
}

func findTopLevelSemicolon(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ';':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchTargetScopedAssignment reports whether rest (the text after a
// rule-line's colon) is actually "VAR op RHS": a single bare identifier
// immediately followed by an assignment operator, with no further
// top-level colon in between (spec.md §4.D point 6's final clause).
func matchTargetScopedAssignment(rest string) (name, op, rhs string, ok bool) {
	trimmed := strings.TrimLeft(rest, " \t")
	name, op, rhs, isRule := classifyOperator(trimmed)
	if isRule {
		return "", "", "", false
	}
	candidate := strings.TrimSpace(name)
	if candidate == "" || strings.ContainsAny(candidate, " \t:") {
		return "", "", "", false
	}
	return candidate, op, rhs, true
}
