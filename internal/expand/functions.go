package expand

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/relnoir/gomk/internal/variables"
)

// builtinFunc implements one $(name ...) call. body is the unexpanded
// text after the function name; each builtin decides when to expand its
// arguments (spec.md §4.C: "all arguments are expanded before use unless
// noted" — call/foreach/eval/if/or/and note the exceptions explicitly).
type builtinFunc func(e *Engine, body string) string

// builtins is the ~30-entry table from spec.md §4.C plus the SPEC_FULL.md
// additions (filter, filter-out, if, or, and, eval). Function-name spelling
// (hyphen in filter-out) matches GNU make and is cross-checked against
// gagin-make-lite/cmd/make-lite/config.go's unsupportedMakeFunctions list,
// which enumerates the same GNU builtin set this engine implements.
var builtins = map[string]builtinFunc{
	"subst":      fnSubst,
	"patsubst":   fnPatsubst,
	"strip":      fnStrip,
	"findstring": fnFindstring,
	"filter":     fnFilter,
	"filter-out": fnFilterOut,
	"firstword":  fnFirstword,
	"lastword":   fnLastword,
	"words":      fnWords,
	"word":       fnWord,
	"wordlist":   fnWordlist,
	"dir":        fnDir,
	"notdir":     fnNotdir,
	"basename":   fnBasename,
	"suffix":     fnSuffix,
	"addprefix":  fnAddprefix,
	"addsuffix":  fnAddsuffix,
	"sort":       fnSort,
	"join":       fnJoin,
	"abspath":    fnAbspath,
	"wildcard":   fnWildcard,
	"shell":      fnShell,
	"info":       fnInfo,
	"warning":    fnWarning,
	"error":      fnError,
	"call":       fnCall,
	"flavor":     fnFlavor,
	"origin":     fnOrigin,
	"value":      fnValue,
	"foreach":    fnForeach,
	"if":         fnIf,
	"or":         fnOr,
	"and":        fnAnd,
	"eval":       fnEval,
}

func fnSubst(e *Engine, body string) string {
	a := e.requireArgs("subst", splitArgs(body), 3)
	return strings.ReplaceAll(a[2], a[0], a[1])
}

func fnPatsubst(e *Engine, body string) string {
	a := e.requireArgs("patsubst", splitArgs(body), 3)
	pat, repl, text := a[0], a[1], a[2]
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = patsubstWord(pat, repl, w)
	}
	return strings.Join(words, " ")
}

func fnStrip(e *Engine, body string) string {
	a := e.requireArgs("strip", splitArgs(body), 1)
	return strings.Join(strings.Fields(a[0]), " ")
}

func fnFindstring(e *Engine, body string) string {
	a := e.requireArgs("findstring", splitArgs(body), 2)
	if strings.Contains(a[1], a[0]) {
		return a[0]
	}
	return ""
}

// matchFilterPattern reports whether word matches a single filter/
// filter-out pattern, which may contain at most one '%'.
func matchFilterPattern(pat, word string) bool {
	idx := strings.IndexByte(pat, '%')
	if idx < 0 {
		return pat == word
	}
	prefix, suffix := pat[:idx], pat[idx+1:]
	return strings.HasPrefix(word, prefix) && strings.HasSuffix(word, suffix) &&
		len(word) >= len(prefix)+len(suffix)
}

func fnFilter(e *Engine, body string) string {
	a := e.requireArgs("filter", splitArgs(body), 2)
	pats := strings.Fields(a[0])
	var out []string
	for _, w := range strings.Fields(a[1]) {
		for _, p := range pats {
			if matchFilterPattern(p, w) {
				out = append(out, w)
				break
			}
		}
	}
	return strings.Join(out, " ")
}

func fnFilterOut(e *Engine, body string) string {
	a := e.requireArgs("filter-out", splitArgs(body), 2)
	pats := strings.Fields(a[0])
	var out []string
	for _, w := range strings.Fields(a[1]) {
		matched := false
		for _, p := range pats {
			if matchFilterPattern(p, w) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func fnFirstword(e *Engine, body string) string {
	a := e.requireArgs("firstword", splitArgs(body), 1)
	words := strings.Fields(a[0])
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

func fnLastword(e *Engine, body string) string {
	a := e.requireArgs("lastword", splitArgs(body), 1)
	words := strings.Fields(a[0])
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

func fnWords(e *Engine, body string) string {
	a := e.requireArgs("words", splitArgs(body), 1)
	return strconv.Itoa(len(strings.Fields(a[0])))
}

func fnWord(e *Engine, body string) string {
	a := e.requireArgs("word", splitArgs(body), 2)
	n, err := strconv.Atoi(strings.TrimSpace(a[0]))
	if err != nil || n < 1 {
		e.fatal(fmt.Sprintf("non-numeric first argument to 'word' function: '%s'", a[0]))
	}
	words := strings.Fields(a[1])
	if n > len(words) {
		return ""
	}
	return words[n-1]
}

func fnWordlist(e *Engine, body string) string {
	a := e.requireArgs("wordlist", splitArgs(body), 3)
	s, errS := strconv.Atoi(strings.TrimSpace(a[0]))
	end, errE := strconv.Atoi(strings.TrimSpace(a[1]))
	if errS != nil || s < 1 {
		e.fatal(fmt.Sprintf("invalid first argument to 'wordlist' function: '%s'", a[0]))
	}
	if errE != nil {
		e.fatal(fmt.Sprintf("invalid second argument to 'wordlist' function: '%s'", a[1]))
	}
	words := strings.Fields(a[2])
	if end < s {
		return ""
	}
	if s > len(words) {
		return ""
	}
	if end > len(words) {
		end = len(words)
	}
	return strings.Join(words[s-1:end], " ")
}

func wordwiseSplit(text string, fn func(string) string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = fn(w)
	}
	return strings.Join(words, " ")
}

func fnDir(e *Engine, body string) string {
	a := e.requireArgs("dir", splitArgs(body), 1)
	return wordwiseSplit(a[0], func(w string) string {
		idx := strings.LastIndexByte(w, '/')
		if idx < 0 {
			return "./"
		}
		return w[:idx+1]
	})
}

func fnNotdir(e *Engine, body string) string {
	a := e.requireArgs("notdir", splitArgs(body), 1)
	return wordwiseSplit(a[0], func(w string) string {
		idx := strings.LastIndexByte(w, '/')
		if idx < 0 {
			return w
		}
		return w[idx+1:]
	})
}

// splitBasenameSuffix finds the trailing ".ext" that occurs after the last
// '/', per spec.md's basename/suffix rule.
func splitBasenameSuffix(w string) (base, suffix string) {
	slash := strings.LastIndexByte(w, '/')
	dot := strings.LastIndexByte(w, '.')
	if dot <= slash {
		return w, ""
	}
	return w[:dot], w[dot:]
}

func fnBasename(e *Engine, body string) string {
	a := e.requireArgs("basename", splitArgs(body), 1)
	return wordwiseSplit(a[0], func(w string) string {
		base, _ := splitBasenameSuffix(w)
		return base
	})
}

func fnSuffix(e *Engine, body string) string {
	a := e.requireArgs("suffix", splitArgs(body), 1)
	words := strings.Fields(a[0])
	var out []string
	for _, w := range words {
		if _, suf := splitBasenameSuffix(w); suf != "" {
			out = append(out, suf)
		}
	}
	return strings.Join(out, " ")
}

func fnAddprefix(e *Engine, body string) string {
	a := e.requireArgs("addprefix", splitArgs(body), 2)
	return wordwiseSplit(a[1], func(w string) string { return a[0] + w })
}

func fnAddsuffix(e *Engine, body string) string {
	a := e.requireArgs("addsuffix", splitArgs(body), 2)
	return wordwiseSplit(a[1], func(w string) string { return w + a[0] })
}

func fnSort(e *Engine, body string) string {
	a := e.requireArgs("sort", splitArgs(body), 1)
	words := strings.Fields(a[0])
	sort.Strings(words)
	words = dedupSorted(words)
	return strings.Join(words, " ")
}

func dedupSorted(words []string) []string {
	out := words[:0]
	var prev string
	first := true
	for _, w := range words {
		if first || w != prev {
			out = append(out, w)
			prev = w
			first = false
		}
	}
	return out
}

func fnJoin(e *Engine, body string) string {
	a := e.requireArgs("join", splitArgs(body), 2)
	aw, bw := strings.Fields(a[0]), strings.Fields(a[1])
	n := len(aw)
	if len(bw) > n {
		n = len(bw)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		var av, bv string
		if i < len(aw) {
			av = aw[i]
		}
		if i < len(bw) {
			bv = bw[i]
		}
		out[i] = av + bv
	}
	return strings.Join(out, " ")
}

func fnAbspath(e *Engine, body string) string {
	a := e.requireArgs("abspath", splitArgs(body), 1)
	return wordwiseSplit(a[0], func(w string) string {
		abs, err := filepath.Abs(w)
		if err != nil {
			return w
		}
		return filepath.ToSlash(abs)
	})
}

func fnWildcard(e *Engine, body string) string {
	a := e.requireArgs("wildcard", splitArgs(body), 1)
	var out []string
	for _, pat := range strings.Fields(a[0]) {
		matches, err := filepath.Glob(pat)
		if err == nil {
			out = append(out, matches...)
		}
	}
	return strings.Join(out, " ")
}

func fnShell(e *Engine, body string) string {
	a := e.requireArgs("shell", splitArgs(body), 1)
	out, code := e.RunShell(a[0])
	e.Vars.Set(".SHELLSTATUS", variables.Simple, variables.Default, strconv.Itoa(code), e.where)
	return out
}

func fnInfo(e *Engine, body string) string {
	a := e.requireArgs("info", splitArgs(body), 1)
	e.Diag.Info(a[0])
	return ""
}

func fnWarning(e *Engine, body string) string {
	a := e.requireArgs("warning", splitArgs(body), 1)
	e.Diag.Warn(e.where, a[0])
	return ""
}

func fnError(e *Engine, body string) string {
	a := e.requireArgs("error", splitArgs(body), 1)
	e.fatal(a[0])
	return "" // unreachable: Diag.Fatal never returns
}

// fnCall implements $(call var,args...): binds positional variables 1..K
// to the (unexpanded-until-now) arguments, evaluates var's value in that
// frame, then pops it. Bindings above K are cleared for the duration of
// the call so a stale outer $(5) doesn't leak in (spec.md §4.C).
func fnCall(e *Engine, body string) string {
	raw := splitArgs(body)
	if len(raw) == 0 {
		return ""
	}
	name := e.Expand(raw[0])
	frame := make(map[string]string)
	for i := 1; i < len(raw); i++ {
		frame[strconv.Itoa(i)] = e.Expand(raw[i])
	}
	for i := len(raw); i <= 9; i++ {
		frame[strconv.Itoa(i)] = ""
	}
	e.Vars.PushFrame(frame)
	defer e.Vars.PopFrame()
	return e.lookup(name)
}

func fnFlavor(e *Engine, body string) string {
	a := e.requireArgs("flavor", splitArgs(body), 1)
	return e.Vars.FlavorOf(a[0]).String()
}

func fnOrigin(e *Engine, body string) string {
	a := e.requireArgs("origin", splitArgs(body), 1)
	return e.Vars.OriginOf(a[0]).String()
}

func fnValue(e *Engine, body string) string {
	a := e.requireArgs("value", splitArgs(body), 1)
	cell := e.Vars.Get(a[0])
	if cell == nil {
		return ""
	}
	return cell.Value
}

// fnForeach implements $(foreach name,list,body): list is expanded once;
// body is expanded fresh per word with name bound (spec.md §4.C — body is
// explicitly NOT pre-expanded).
func fnForeach(e *Engine, body string) string {
	raw := splitArgs(body)
	if len(raw) < 3 {
		e.fatal(fmt.Sprintf("insufficient number of arguments (%d) to function 'foreach'", len(raw)))
	}
	name := e.Expand(raw[0])
	list := e.Expand(raw[1])
	bodyExpr := strings.Join(raw[2:], ",")
	var out []string
	for _, w := range strings.Fields(list) {
		e.Vars.PushFrame(map[string]string{name: w})
		out = append(out, e.Expand(bodyExpr))
		e.Vars.PopFrame()
	}
	return strings.Join(out, " ")
}

// fnIf implements $(if cond,then[,else]): cond is expanded to decide the
// branch; only the selected branch is expanded (spec.md EXPANDED).
func fnIf(e *Engine, body string) string {
	raw := splitArgs(body)
	if len(raw) < 2 {
		e.fatal(fmt.Sprintf("insufficient number of arguments (%d) to function 'if'", len(raw)))
	}
	cond := e.Expand(raw[0])
	if strings.TrimSpace(cond) != "" {
		return e.Expand(raw[1])
	}
	if len(raw) >= 3 {
		return e.Expand(strings.Join(raw[2:], ","))
	}
	return ""
}

// fnOr implements $(or a,b,...): first non-empty argument wins, later
// ones unevaluated (spec.md EXPANDED, GNU make semantics).
func fnOr(e *Engine, body string) string {
	for _, a := range splitArgs(body) {
		v := e.Expand(a)
		if v != "" {
			return v
		}
	}
	return ""
}

// fnAnd implements $(and a,b,...): last argument's value if every
// argument so far is non-empty, else empty at the first empty one.
func fnAnd(e *Engine, body string) string {
	var last string
	for _, a := range splitArgs(body) {
		v := e.Expand(a)
		if v == "" {
			return ""
		}
		last = v
	}
	return last
}

// fnEval implements $(eval text): expand text, then feed it back through
// the Directive Parser as additional makefile lines (spec.md EXPANDED).
func fnEval(e *Engine, body string) string {
	if e.Eval == nil {
		e.fatal("$(eval) is not available in this context")
	}
	text := e.Expand(body)
	if err := e.Eval.EvalDirectiveText(text, e.where); err != nil {
		e.fatal(err.Error())
	}
	return ""
}
