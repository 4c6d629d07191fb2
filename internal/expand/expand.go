// Package expand implements the Expansion Engine (spec.md component C,
// ~38% of the core): recursive left-to-right evaluation of $(...) / ${...}
// references and the ~30 built-in functions, plus the substitution
// reference shorthand $(VAR:pat=repl).
//
// Grounded on friedelschoen-mk/expand.go's expandSigil/expandSuffixes
// scanning style (walk the string, IndexAny to the next special rune,
// dispatch, splice, continue), generalized from Plan9 mk's $foo/${foo:a%b}
// syntax to GNU make's $(name)/function-call syntax. Substitution
// references are split by a hand-written scanner (splitSubstRef) rather
// than by a regex like friedelschoen-mk's expandSigil_namelist_pattern.
package expand

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/relnoir/gomk/internal/diag"
	"github.com/relnoir/gomk/internal/loc"
	"github.com/relnoir/gomk/internal/variables"
)

// DirectiveEvaluator lets $(eval ...) feed freshly expanded text back into
// the Directive Parser without internal/expand importing internal/parse
// (which imports internal/expand). Parse supplies the implementation.
type DirectiveEvaluator interface {
	EvalDirectiveText(text string, where loc.Location) error
}

// Engine evaluates expansion text against a Store and a Sink. It carries
// no per-call state beyond the two optional "current location" and
// "current directive evaluator" hooks, so a single Engine is reused across
// an entire parse+build run.
type Engine struct {
	Vars  *variables.Store
	Diag  diag.Sink
	Eval  DirectiveEvaluator // may be nil until the parser wires itself in
	where loc.Location
}

// New builds an Engine bound to a store and a diagnostic sink.
func New(vars *variables.Store, sink diag.Sink) *Engine {
	return &Engine{Vars: vars, Diag: sink}
}

// ExpandAt expands text, attributing any $(error)/$(warning) diagnostics
// to where. It is the entry point directive parsing and recipe expansion
// both use.
func (e *Engine) ExpandAt(text string, where loc.Location) string {
	prev := e.where
	e.where = where
	defer func() { e.where = prev }()
	return e.Expand(text)
}

// Expand evaluates text left to right, copying literal characters and
// dispatching on '$'. Per spec.md §4.C there is no memoization: shell(),
// info(), warning() and assignments embedded in expansions all have side
// effects that must occur exactly once, in order.
func (e *Engine) Expand(text string) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		i++
		if i >= len(text) {
			out.WriteByte('$')
			break
		}
		val, consumed := e.expandDollar(text[i:])
		out.WriteString(val)
		i += consumed
	}
	return out.String()
}

// expandDollar handles everything after a '$', returning the expansion and
// how many bytes of rest were consumed.
func (e *Engine) expandDollar(rest string) (string, int) {
	c := rest[0]
	switch c {
	case '$':
		return "$", 1
	case '(', '{':
		open, close := byte('('), byte(')')
		if c == '{' {
			open, close = '{', '}'
		}
		content, n, ok := scanBalanced(rest[1:], open, close)
		if !ok {
			e.fatal("unterminated variable reference")
		}
		return e.expandReference(content), n + 1
	default:
		// $X: single-character variable name, including automatic
		// variables @ < ? and positional 1..9.
		name := rest[:1]
		return e.lookup(name), 1
	}
}

// scanBalanced reads s up to (and past) the matching close, honoring
// nested open/close pairs of the *same* kind only — spec.md §4.C requires
// $( and ${ to each close with their own kind, so a $( opened inside a
// ${ } body still needs its own matching ).
func scanBalanced(s string, open, close byte) (content string, consumedAfterOpen int, ok bool) {
	depth := 1
	i := 0
	for i < len(s) {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i], i + 1, true
			}
		}
		i++
	}
	return "", 0, false
}

// fatal reports a parse/function-arity error through the Sink and
// terminates the process (spec.md §7: these are immediate, exit code 2).
func (e *Engine) fatal(msg string) {
	e.Diag.Fatal(e.where, msg, 2)
}

// expandReference handles the body of a $(...)/${...} once balanced
// delimiters have been stripped: substitution references, function calls,
// or a plain variable name.
func (e *Engine) expandReference(content string) string {
	if name, pat, repl, ok := splitSubstRef(content); ok {
		return e.substRef(name, pat, repl)
	}

	fname, body, isCall := splitFunctionCall(content)
	if isCall {
		if fn, ok := builtins[fname]; ok {
			return fn(e, body)
		}
	}

	// Plain variable reference: the whole content, once expanded, is the
	// variable name (spec.md §4.C point 3's "after expansion" clause).
	name := e.Expand(content)
	return e.lookup(name)
}

// splitSubstRef detects VAR:pat=repl — an unbracketed ':' followed
// eventually by an unbracketed '=', per spec.md §4.C point 2.
func splitSubstRef(content string) (name, pat, repl string, ok bool) {
	depth := 0
	colon := -1
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ':':
			if depth == 0 && colon == -1 {
				colon = i
			}
		case '=':
			if depth == 0 && colon != -1 {
				return content[:colon], content[colon+1 : i], content[i+1:], true
			}
		}
	}
	return "", "", "", false
}

// splitFunctionCall splits "name body" on the first unbracketed space,
// per spec.md §4.C point 3. A function with no recognized name falls
// through to the caller, which treats the whole content as a variable.
func splitFunctionCall(content string) (name, body string, ok bool) {
	depth := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ' ', '\t':
			if depth == 0 {
				return content[:i], content[i+1:], true
			}
		}
	}
	return content, "", false
}

// splitArgs splits a function body on top-level commas, per spec.md
// §4.C's argument-splitting rule: commas nested inside $(...)/${...} are
// literal.
func splitArgs(body string) []string {
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, body[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, body[start:])
	return args
}

// requireArgs expands every element of args and fatally errors if fewer
// than n were supplied — spec.md §4.C / §7's function-arity error.
func (e *Engine) requireArgs(name string, raw []string, n int) []string {
	if len(raw) < n {
		e.fatal(fmt.Sprintf("insufficient number of arguments (%d) to function '%s'", len(raw), name))
	}
	out := make([]string, len(raw))
	for i, a := range raw {
		out[i] = e.Expand(a)
	}
	return out
}

// lookup resolves a variable by name: automatic/global cells first, then
// a Simple cell's stored value verbatim, or a Recursive cell's text
// re-expanded in the current frame (spec.md §3's core invariant).
func (e *Engine) lookup(name string) string {
	cell := e.Vars.Get(name)
	if cell == nil {
		return ""
	}
	if cell.Flavor == variables.Simple || cell.Origin == variables.Automatic {
		return cell.Value
	}
	return e.Expand(cell.Value)
}

// substRef implements $(VAR:pat=repl): fetch and expand VAR, split into
// words, and apply a patsubst-like transform to each (spec.md §4.C).
func (e *Engine) substRef(rawName, pat, repl string) string {
	name := e.Expand(rawName)
	val := e.lookup(name)
	pat = e.Expand(pat)
	repl = e.Expand(repl)
	words := strings.Fields(val)
	for i, w := range words {
		words[i] = substRefWord(pat, repl, w)
	}
	return strings.Join(words, " ")
}

// patsubstPercent is the '%'-pattern branch shared by $(patsubst) and
// substitution references: match prefix+suffix around a stem and splice
// it into repl's '%'. ok is false when word doesn't match pat.
func patsubstPercent(pat, repl, word string) (out string, ok bool) {
	idx := strings.IndexByte(pat, '%')
	prefix, suffix := pat[:idx], pat[idx+1:]
	if strings.HasPrefix(word, prefix) && strings.HasSuffix(word, suffix) &&
		len(word) >= len(prefix)+len(suffix) {
		stem := word[len(prefix) : len(word)-len(suffix)]
		return strings.Replace(repl, "%", stem, 1), true
	}
	return word, false
}

// patsubstWord applies $(patsubst pat,repl,text)'s per-word rule (spec.md
// §4.C): with a '%' in pat, prefix/suffix match around a stem; without
// one, replace only on an exact whole-word match.
func patsubstWord(pat, repl, word string) string {
	if strings.IndexByte(pat, '%') >= 0 {
		out, _ := patsubstPercent(pat, repl, word)
		return out
	}
	if word == pat {
		return repl
	}
	return word
}

// substRefWord applies a substitution reference's ($(VAR:pat=repl))
// per-word rule: with a '%' in pat, the same prefix/suffix match as
// patsubst; without one, a trailing-match replace — spec.md's
// substitution-reference rule, distinct from patsubst's word-equality
// rule for the no-% case.
func substRefWord(pat, repl, word string) string {
	if strings.IndexByte(pat, '%') >= 0 {
		out, _ := patsubstPercent(pat, repl, word)
		return out
	}
	if strings.HasSuffix(word, pat) {
		return word[:len(word)-len(pat)] + repl
	}
	return word
}

// RunShell executes cmd under SHELL/.SHELLFLAGS (used by spec.md §4.C's
// shell() function and by != assignments; recipe commands are launched
// separately by internal/recipe), capturing stdout,
// trimming the trailing newline and folding inner ones to spaces, and
// recording the exit code.
func (e *Engine) RunShell(cmdline string) (output string, exitCode int) {
	shell := e.lookup("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	flags := e.lookup(".SHELLFLAGS")
	if flags == "" {
		flags = "-c"
	}
	args := append(strings.Fields(flags), cmdline)
	cmd := exec.Command(shell, args...)
	cmd.Env = e.Vars.Environ()
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	code := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		} else {
			code = 127
		}
	}
	text := strings.TrimRight(string(out), "\n")
	text = strings.ReplaceAll(text, "\n", " ")
	return text, code
}
