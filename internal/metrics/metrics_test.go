package metrics

import (
	"testing"

	"github.com/sevigo/codesentry/internal/core"
)

func TestAnalyze_Python(t *testing.T) {
	source := []byte(`def add(a, b):
    """Adds two numbers."""
    if a > 0 and b > 0:
        return a + b
    return 0
`)
	sym := &core.Symbol{LineStart: 1, LineEnd: 5}
	New().Analyze(core.LangPython, source, sym)

	if sym.CyclomaticComplexity < 2 {
		t.Errorf("expected complexity >= 2 for a branching function, got %d", sym.CyclomaticComplexity)
	}
	if !sym.HasDocstring {
		t.Error("expected docstring to be detected")
	}
	if sym.Docstring != "Adds two numbers." {
		t.Errorf("unexpected docstring: %q", sym.Docstring)
	}
	if sym.LOC == 0 {
		t.Error("expected non-zero LOC")
	}
}

func TestAnalyze_CBlockComment(t *testing.T) {
	source := []byte(`/**
 * Computes the sum.
 */
int add(int a, int b) {
    // only positive inputs are summed
    if (a > 0 && b > 0) {
        return a + b;
    }
    return 0;
}
`)
	sym := &core.Symbol{LineStart: 4, LineEnd: 10}
	New().Analyze(core.LangC, source, sym)

	if !sym.HasDocstring {
		t.Error("expected preceding block comment to be picked up as docstring")
	}
	if sym.CommentLines == 0 {
		t.Error("expected comment lines inside the body to be counted")
	}
}

func TestAnalyze_COBOLParagraph(t *testing.T) {
	source := []byte(`       IDENTIFICATION DIVISION.
       PROGRAM-ID. DEMO.
       PROCEDURE DIVISION.
       MAIN-PARA.
      * Runs the main logic.
           IF X > 0
               PERFORM UNTIL Y = 0
                   SUBTRACT 1 FROM Y
               END-PERFORM
           END-IF.
`)
	sym := &core.Symbol{LineStart: 4, LineEnd: 10}
	New().Analyze(core.LangCOBOL, source, sym)

	if sym.CyclomaticComplexity < 3 {
		t.Errorf("expected IF + PERFORM UNTIL to raise complexity, got %d", sym.CyclomaticComplexity)
	}
}

func TestAnalyze_PythonMatchCaseArms(t *testing.T) {
	source := []byte(`def dispatch(cmd):
    match cmd:
        case "start":
            return start()
        case "stop":
            return stop()
        case _:
            return usage()
`)
	sym := &core.Symbol{LineStart: 1, LineEnd: 8}
	New().Analyze(core.LangPython, source, sym)

	// 1 base + one per case arm; the match header and the case _ default
	// arm contribute nothing.
	if sym.CyclomaticComplexity != 3 {
		t.Errorf("expected complexity 3 for two case arms plus a default, got %d", sym.CyclomaticComplexity)
	}
}

func TestAnalyze_EmptyBodyDoesNotPanic(t *testing.T) {
	sym := &core.Symbol{LineStart: 1, LineEnd: 1}
	New().Analyze(core.LangAssembly, []byte(""), sym)
	if sym.MaintainabilityIndex < 0 || sym.MaintainabilityIndex > 100 {
		t.Errorf("maintainability index out of range: %f", sym.MaintainabilityIndex)
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		name             string
		start, end, n    int
		wantS, wantE     int
	}{
		{"normal", 2, 4, 10, 2, 4},
		{"end beyond n", 2, 20, 10, 2, 10},
		{"start below 1", -1, 4, 10, 1, 4},
		{"start beyond n", 15, 20, 10, 10, 10},
		{"empty file", 1, 1, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := clampRange(tt.start, tt.end, tt.n)
			if s != tt.wantS || e != tt.wantE {
				t.Errorf("clampRange(%d,%d,%d) = (%d,%d), want (%d,%d)", tt.start, tt.end, tt.n, s, e, tt.wantS, tt.wantE)
			}
		})
	}
}
