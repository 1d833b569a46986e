package asm

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

func TestParse_LabelsAndCallSite(t *testing.T) {
	source := []byte(`.include "macros.inc"

_start:
    call print_message
    jmp _exit

print_message:
    ret

_exit:
    ret
`)

	result, err := New().Parse(source, "main.s")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if _, ok := symbolNamed(result.Symbols, "_start"); !ok {
		t.Error("expected _start label symbol")
	}
	if _, ok := symbolNamed(result.Symbols, "print_message"); !ok {
		t.Error("expected print_message label symbol")
	}

	var sawCall, sawJump bool
	for _, c := range result.CallSites {
		if c.FromSymbolName == "_start" && c.CalleeName == "print_message" {
			sawCall = true
		}
		if c.FromSymbolName == "_start" && c.CalleeName == "_exit" {
			sawJump = true
		}
	}
	if !sawCall {
		t.Errorf("expected a call site to print_message, got %+v", result.CallSites)
	}
	if !sawJump {
		t.Errorf("expected a jmp-derived call site to _exit, got %+v", result.CallSites)
	}

	if len(result.ImportSites) != 1 || result.ImportSites[0].ModuleOrFile != "macros.inc" {
		t.Errorf("expected macros.inc include site, got %+v", result.ImportSites)
	}
}

func TestParse_CommentsIgnored(t *testing.T) {
	source := []byte(`; this whole file is a comment
// so is this line
`)
	result, err := New().Parse(source, "empty.s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Symbols) != 0 {
		t.Errorf("expected no symbols from an all-comment file, got %+v", result.Symbols)
	}
}

func TestLanguage(t *testing.T) {
	if New().Language() != core.LangAssembly {
		t.Errorf("expected LangAssembly")
	}
}
