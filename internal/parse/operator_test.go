package parse

import "testing"

func TestClassifyOperator(t *testing.T) {
	cases := []struct {
		text             string
		wantName, wantOp string
		wantRHS          string
		wantIsRule       bool
	}{
		{"CC = gcc", "CC ", "=", " gcc", false},
		{"CC := gcc", "CC ", ":=", " gcc", false},
		{"CC ::= gcc", "CC ", "::=", " gcc", false},
		{"CFLAGS += -O2", "CFLAGS ", "+=", " -O2", false},
		{"CC ?= gcc", "CC ", "?=", " gcc", false},
		{"VER != git describe", "VER ", "!=", " git describe", false},
		{"all: a.o b.o", "all", "", " a.o b.o", true},
		{"all:: a.o", "all", "", " a.o", true},
		{"all: CFLAGS = -O2", "all", "", " CFLAGS = -O2", true},
	}
	for _, c := range cases {
		name, op, rhs, isRule := classifyOperator(c.text)
		if name != c.wantName || op != c.wantOp || rhs != c.wantRHS || isRule != c.wantIsRule {
			t.Errorf("classifyOperator(%q) = (%q, %q, %q, %v), want (%q, %q, %q, %v)",
				c.text, name, op, rhs, isRule, c.wantName, c.wantOp, c.wantRHS, c.wantIsRule)
		}
	}
}

func TestClassifyOperatorIgnoresOperatorsInsideReferences(t *testing.T) {
	name, op, _, isRule := classifyOperator("X = $(subst a,b,c)")
	if name != "X " || op != "=" || isRule {
		t.Errorf("classifyOperator with embedded call = (%q, %q, isRule=%v)", name, op, isRule)
	}
}

func TestFindTopLevelColon(t *testing.T) {
	if got := findTopLevelColon("all: a.o"); got != 3 {
		t.Errorf("findTopLevelColon = %d, want 3", got)
	}
	if got := findTopLevelColon("CC = gcc"); got != -1 {
		t.Errorf("findTopLevelColon(assignment) = %d, want -1", got)
	}
}
