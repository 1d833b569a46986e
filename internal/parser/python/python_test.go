package python

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

func TestParse_FunctionAndClass(t *testing.T) {
	source := []byte(`import os

CONFIG_PATH = "/etc/app.conf"

class Greeter:
    def greet(self, name):
        return format_greeting(name)

def format_greeting(name):
    return "hello " + name
`)

	result, err := New().Parse(source, "greet.py")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if _, ok := symbolNamed(result.Symbols, "Greeter"); !ok {
		t.Error("expected Greeter class symbol")
	}
	greet, ok := symbolNamed(result.Symbols, "greet")
	if !ok {
		t.Fatal("expected greet method symbol")
	}
	if greet.Kind != core.KindMethod {
		t.Errorf("expected greet to be classified as a method, got %s", greet.Kind)
	}
	fmtFn, ok := symbolNamed(result.Symbols, "format_greeting")
	if !ok {
		t.Fatal("expected format_greeting function symbol")
	}
	if fmtFn.Kind != core.KindFunction {
		t.Errorf("expected format_greeting to be classified as a function, got %s", fmtFn.Kind)
	}
	if _, ok := symbolNamed(result.Symbols, "CONFIG_PATH"); !ok {
		t.Error("expected module-level CONFIG_PATH variable symbol")
	}

	var sawCall bool
	for _, c := range result.CallSites {
		if c.CalleeName == "format_greeting" && c.FromSymbolName == "greet" {
			sawCall = true
		}
	}
	if !sawCall {
		t.Errorf("expected a call site from greet to format_greeting, got %+v", result.CallSites)
	}

	var sawImport bool
	for _, i := range result.ImportSites {
		if i.ModuleOrFile == "os" {
			sawImport = true
		}
	}
	if !sawImport {
		t.Errorf("expected an import site for os, got %+v", result.ImportSites)
	}
}

func TestParse_EmptySourceReturnsNoSymbols(t *testing.T) {
	result, err := New().Parse([]byte(""), "empty.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Symbols) != 0 {
		t.Errorf("expected no symbols for empty source, got %+v", result.Symbols)
	}
}

func TestLanguage(t *testing.T) {
	if New().Language() != core.LangPython {
		t.Errorf("expected LangPython")
	}
}
