package parse

// classifyOperator scans text left to right at top level (skipping
// balanced $(...)/${...} spans) for the first occurrence of any
// assignment operator or rule colon, per spec.md §4.D point 6's ordering.
// Longer operators are checked first at each position so "::=" isn't
// misread as "::" followed by "=". When the first thing found is a colon
// (single or double), isRule is true and name holds everything to its
// left verbatim (the caller treats it as the rule line's target text, or
// re-scans the right-hand side for a target-scoped assignment); otherwise
// name/op/rhs describe a plain global assignment.
func classifyOperator(text string) (name, op, rhs string, isRule bool) {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '{':
			depth++
			continue
		case ')', '}':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		switch {
		case hasAt(text, i, "::="):
			return text[:i], "::=", text[i+3:], false
		case hasAt(text, i, ":="):
			return text[:i], ":=", text[i+2:], false
		case hasAt(text, i, "+="):
			return text[:i], "+=", text[i+2:], false
		case hasAt(text, i, "?="):
			return text[:i], "?=", text[i+2:], false
		case hasAt(text, i, "!="):
			return text[:i], "!=", text[i+2:], false
		case hasAt(text, i, "::"):
			return text[:i], "", text[i+2:], true
		case text[i] == ':':
			return text[:i], "", text[i+1:], true
		case text[i] == '=':
			return text[:i], "=", text[i+1:], false
		}
	}
	return text, "", "", false
}

func hasAt(s string, i int, op string) bool {
	return i+len(op) <= len(s) && s[i:i+len(op)] == op
}

// findTopLevelColon locates the rule line's separating colon: the first
// ':' at depth 0 that classifyOperator would also pick as the line's
// first operator (so rule-line splitting and assignment classification
// agree on where the target list ends).
func findTopLevelColon(text string) int {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '{':
			depth++
			continue
		case ')', '}':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		switch {
		case hasAt(text, i, "::="), hasAt(text, i, ":="):
			return -1
		case text[i] == ':':
			return i
		case text[i] == '=', hasAt(text, i, "+="), hasAt(text, i, "?="), hasAt(text, i, "!="):
			return -1
		}
	}
	return -1
}
