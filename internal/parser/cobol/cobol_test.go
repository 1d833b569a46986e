package cobol

import (
	"testing"

	"github.com/sevigo/codesentry/internal/core"
)

func symbolNamed(symbols []core.Symbol, name string) (core.Symbol, bool) {
	for _, s := range symbols {
		if s.Name == name {
			return s, true
		}
	}
	return core.Symbol{}, false
}

func TestParse_ParagraphsAndPerformCallSite(t *testing.T) {
	source := []byte(`       IDENTIFICATION DIVISION.
       PROGRAM-ID. DEMO.
       PROCEDURE DIVISION.
       MAIN-PARA.
           PERFORM SUB-PARA.
           STOP RUN.
       SUB-PARA.
           DISPLAY 'HELLO'.
`)

	result, err := New().Parse(source, "demo.cbl")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	mainPara, ok := symbolNamed(result.Symbols, "MAIN-PARA")
	if !ok {
		t.Fatal("expected MAIN-PARA procedure symbol")
	}
	if mainPara.Kind != core.KindProcedure {
		t.Errorf("expected KindProcedure, got %s", mainPara.Kind)
	}
	if _, ok := symbolNamed(result.Symbols, "SUB-PARA"); !ok {
		t.Fatal("expected SUB-PARA procedure symbol")
	}

	var sawPerform bool
	for _, c := range result.CallSites {
		if c.FromSymbolName == "MAIN-PARA" && c.CalleeName == "SUB-PARA" {
			sawPerform = true
		}
	}
	if !sawPerform {
		t.Errorf("expected a PERFORM call site from MAIN-PARA to SUB-PARA, got %+v", result.CallSites)
	}
}

func TestParse_CopyDirective(t *testing.T) {
	source := []byte(`       IDENTIFICATION DIVISION.
       PROGRAM-ID. DEMO.
       DATA DIVISION.
       COPY CUSTREC.
       PROCEDURE DIVISION.
       MAIN-PARA.
           STOP RUN.
`)
	result, err := New().Parse(source, "demo.cbl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawCopy bool
	for _, i := range result.ImportSites {
		if i.ModuleOrFile == "CUSTREC" {
			sawCopy = true
		}
	}
	if !sawCopy {
		t.Errorf("expected a COPY CUSTREC import site, got %+v", result.ImportSites)
	}
}

func TestParse_CommentLinesIgnored(t *testing.T) {
	source := []byte(`       PROCEDURE DIVISION.
      * This is a comment, not a paragraph.
       MAIN-PARA.
           STOP RUN.
`)
	result, err := New().Parse(source, "demo.cbl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Symbols) != 1 {
		t.Fatalf("expected exactly 1 paragraph symbol (comment line excluded), got %d: %+v", len(result.Symbols), result.Symbols)
	}
}

func TestLanguage(t *testing.T) {
	if New().Language() != core.LangCOBOL {
		t.Errorf("expected LangCOBOL")
	}
}
