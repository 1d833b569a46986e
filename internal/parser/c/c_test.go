package c

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

func TestParse_FunctionIncludeAndCall(t *testing.T) {
	source := []byte(`#include <stdio.h>
#include "local.h"

int add(int a, int b) {
    return helper(a, b);
}

int helper(int a, int b) {
    return a + b;
}
`)

	result, err := New().Parse(source, "main.c")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if _, ok := symbolNamed(result.Symbols, "add"); !ok {
		t.Error("expected add function symbol")
	}
	if _, ok := symbolNamed(result.Symbols, "helper"); !ok {
		t.Error("expected helper function symbol")
	}

	var sawSystemInclude, sawLocalInclude bool
	for _, i := range result.ImportSites {
		if i.ModuleOrFile == "stdio.h" {
			sawSystemInclude = true
		}
		if i.ModuleOrFile == "local.h" {
			sawLocalInclude = true
		}
	}
	if !sawSystemInclude || !sawLocalInclude {
		t.Errorf("expected both system and local includes, got %+v", result.ImportSites)
	}

	var sawCall bool
	for _, c := range result.CallSites {
		if c.CalleeName == "helper" && c.FromSymbolName == "add" {
			sawCall = true
		}
	}
	if !sawCall {
		t.Errorf("expected a call site from add to helper, got %+v", result.CallSites)
	}
}

func TestParse_TypedefStruct(t *testing.T) {
	source := []byte(`typedef struct {
    int x;
    int y;
} Point;
`)
	result, err := New().Parse(source, "point.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sym, ok := symbolNamed(result.Symbols, "Point")
	if !ok {
		t.Fatal("expected a Point typedef symbol")
	}
	if sym.Kind != core.KindClass {
		t.Errorf("expected typedef struct to be classified as KindClass, got %s", sym.Kind)
	}
}

func TestLanguage(t *testing.T) {
	if New().Language() != core.LangC {
		t.Errorf("expected LangC")
	}
}
