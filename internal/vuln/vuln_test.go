package vuln

import (
	"context"
	"errors"
	"testing"

	"github.com/sevigo/codesentry/internal/core"
)

type fakeLLMProvider struct {
	findings []core.LLMSmellFinding
	err      error
}

func (f *fakeLLMProvider) DetectSmells(_ context.Context, _, _ string, _ core.Language) ([]core.LLMSmellFinding, error) {
	return f.findings, f.err
}

func TestScanFile_DetectsSQLInjection(t *testing.T) {
	scanner := New(DefaultRules(), nil)
	source := []byte(`query = "SELECT * FROM users WHERE id = '" + user_id`)

	findings := scanner.ScanFile(core.LangPython, source)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].RuleID != "sql-injection-concat" {
		t.Errorf("expected sql-injection-concat, got %s", findings[0].RuleID)
	}
	if findings[0].CWE != "CWE-89" {
		t.Errorf("expected CWE-89, got %s", findings[0].CWE)
	}
}

func TestScanFile_DetectsHardcodedSecret(t *testing.T) {
	scanner := New(DefaultRules(), nil)
	source := []byte(`api_key = "sk_live_abcdefgh12345678"`)

	findings := scanner.ScanFile(core.LangPython, source)
	if len(findings) != 1 || findings[0].RuleID != "hardcoded-secret" {
		t.Fatalf("expected a hardcoded-secret finding, got %+v", findings)
	}
}

func TestScanFile_CleanSourceHasNoFindings(t *testing.T) {
	scanner := New(DefaultRules(), nil)
	source := []byte("def add(a, b):\n    return a + b\n")

	findings := scanner.ScanFile(core.LangPython, source)
	if len(findings) != 0 {
		t.Errorf("expected no findings for clean source, got %+v", findings)
	}
}

func TestScanFile_CoalescesNearbyMatches(t *testing.T) {
	scanner := New(DefaultRules(), nil)
	source := []byte("shell=True\nx = 1\nshell=True\n")

	findings := scanner.ScanFile(core.LangPython, source)
	if len(findings) != 1 {
		t.Fatalf("expected matches within 2 lines of each other to coalesce, got %d findings", len(findings))
	}
	if findings[0].Line != 1 {
		t.Errorf("expected the coalesced finding to keep the earliest line, got %d", findings[0].Line)
	}
}

func TestScanFile_DetectsUnsafeDeserialization(t *testing.T) {
	scanner := New(DefaultRules(), nil)
	source := []byte("obj = pickle.loads(payload)\n")

	findings := scanner.ScanFile(core.LangPython, source)
	if len(findings) != 1 || findings[0].RuleID != "unsafe-deserialization" {
		t.Fatalf("expected an unsafe-deserialization finding, got %+v", findings)
	}
}

func TestScanFile_SafeLoaderExcludedFromUnsafeDeserialization(t *testing.T) {
	scanner := New(DefaultRules(), nil)
	source := []byte("obj = yaml.load(f, Loader=yaml.SafeLoader)\n")

	findings := scanner.ScanFile(core.LangPython, source)
	if len(findings) != 0 {
		t.Errorf("expected yaml.load with SafeLoader to be excluded, got %+v", findings)
	}
}

func TestDetectSmells_NilProviderReturnsNil(t *testing.T) {
	scanner := New(nil, nil)
	got := scanner.DetectSmells(context.Background(), "source", "fn", core.LangPython)
	if got != nil {
		t.Errorf("expected nil findings with no LLM provider configured, got %+v", got)
	}
}

func TestDetectSmells_ProviderErrorDegradesToNil(t *testing.T) {
	scanner := New(nil, &fakeLLMProvider{err: errors.New("unavailable")})
	got := scanner.DetectSmells(context.Background(), "source", "fn", core.LangPython)
	if got != nil {
		t.Errorf("expected provider errors to degrade to nil findings, got %+v", got)
	}
}

func TestDetectSmells_ReturnsProviderFindings(t *testing.T) {
	want := []core.LLMSmellFinding{{SmellType: "long-method", Severity: core.SeverityMedium}}
	scanner := New(nil, &fakeLLMProvider{findings: want})

	got := scanner.DetectSmells(context.Background(), "source", "fn", core.LangPython)
	if len(got) != 1 || got[0].SmellType != "long-method" {
		t.Errorf("expected provider findings to pass through, got %+v", got)
	}
}
