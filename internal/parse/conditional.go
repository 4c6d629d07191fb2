package parse

import (
	"strings"

	"github.com/relnoir/gomk/internal/loc"
)

// condFrame is one level of the conditional stack (spec.md §4.D point 2):
// taken records whether some branch at this level has already been
// selected (so a later else/else-if is skipped even if its own condition
// would be true); active is whether the branch currently open at this
// level is the visible one; enclosingActive freezes whatever the outer
// context's visibility was when this level was pushed, so a dead outer
// branch keeps everything nested inside it dead regardless of its own
// conditions (which are never even evaluated, to avoid spurious
// $(error)/$(shell) side effects).
type condFrame struct {
	taken           bool
	active          bool
	enclosingActive bool
}

func matchConditionalKeyword(text string) (kind, rest string, ok bool) {
	for _, kw := range []string{"ifeq", "ifneq", "ifdef", "ifndef"} {
		if r, found := cutKeyword(text, kw); found {
			return kw, r, true
		}
	}
	if text == "else" || strings.HasPrefix(text, "else ") || strings.HasPrefix(text, "else\t") {
		return "else", strings.TrimSpace(strings.TrimPrefix(text, "else")), true
	}
	if text == "endif" {
		return "endif", "", true
	}
	return "", "", false
}

func (p *Parser) handleConditional(kind, rest string, where loc.Location) error {
	fs := p.top()
	switch kind {
	case "endif":
		if len(fs.conds) == 0 {
			p.Diag.Fatal(where, "extraneous 'endif'", 2)
			return nil
		}
		fs.conds = fs.conds[:len(fs.conds)-1]
		return nil

	case "else":
		if len(fs.conds) == 0 {
			p.Diag.Fatal(where, "extraneous 'else'", 2)
			return nil
		}
		top := &fs.conds[len(fs.conds)-1]
		if !top.enclosingActive || top.taken {
			top.active = false
			return nil
		}
		if rest == "" {
			top.active = true
			top.taken = true
			return nil
		}
		subKind, subRest, ok := matchConditionalKeyword(rest)
		if !ok || (subKind != "ifeq" && subKind != "ifneq" && subKind != "ifdef" && subKind != "ifndef") {
			p.Diag.Fatal(where, "extraneous text after 'else'", 2)
			return nil
		}
		cond := p.evalCondition(subKind, subRest, where)
		top.active = cond
		if cond {
			top.taken = true
		}
		return nil

	default: // ifeq, ifneq, ifdef, ifndef
		enclosing := p.active()
		cond := false
		if enclosing {
			cond = p.evalCondition(kind, rest, where)
		}
		fs.conds = append(fs.conds, condFrame{taken: cond, active: cond, enclosingActive: enclosing})
		return nil
	}
}

// evalCondition evaluates the test expression for ifeq/ifneq/ifdef/ifndef
// (spec.md §4.D point 2's two ifeq/ifneq forms plus the simpler ifdef
// forms).
func (p *Parser) evalCondition(kind, rest string, where loc.Location) bool {
	switch kind {
	case "ifeq", "ifneq":
		a, b := splitCondArgs(rest)
		a = p.Eng.ExpandAt(a, where)
		b = p.Eng.ExpandAt(b, where)
		eq := a == b
		if kind == "ifneq" {
			return !eq
		}
		return eq
	case "ifdef", "ifndef":
		name := strings.TrimSpace(p.Eng.ExpandAt(strings.TrimSpace(rest), where))
		defined := p.Vars.Get(name) != nil
		if kind == "ifndef" {
			return !defined
		}
		return defined
	}
	return false
}

// splitCondArgs parses ifeq/ifneq's two forms: "(a,b)" (parenthesized,
// comma-separated, with the comma found at paren depth 1) or "a b"
// (whitespace-separated, each side optionally single- or double-quoted).
func splitCondArgs(rest string) (a, b string) {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		inner := rest[1 : len(rest)-1]
		depth := 0
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '(', '{':
				depth++
			case ')', '}':
				depth--
			case ',':
				if depth == 0 {
					return strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i+1:])
				}
			}
		}
		return strings.TrimSpace(inner), ""
	}
	// Whitespace-separated, quoted form: "arg1" "arg2".
	parts := splitQuotedPair(rest)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return "", ""
}

func splitQuotedPair(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] == '\'' || s[i] == '"' {
			q := s[i]
			j := i + 1
			for j < len(s) && s[j] != q {
				j++
			}
			out = append(out, s[i+1:j])
			if j < len(s) {
				j++
			}
			i = j
			continue
		}
		j := i
		for j < len(s) && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		out = append(out, s[i:j])
		i = j
	}
	return out
}
