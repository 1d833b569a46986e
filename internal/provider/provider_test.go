package provider

import (
	"context"
	"testing"

	"github.com/sevigo/codesentry/internal/config"
)

func TestExtractJSONArray_TrimsSurroundingProse(t *testing.T) {
	in := "Sure, here you go:\n[{\"smell_type\":\"long_method\"}]\nHope that helps!"
	want := `[{"smell_type":"long_method"}]`
	if got := extractJSONArray(in); got != want {
		t.Errorf("extractJSONArray() = %q, want %q", got, want)
	}
}

func TestExtractJSONArray_EmptyArray(t *testing.T) {
	if got := extractJSONArray("[]"); got != "[]" {
		t.Errorf("extractJSONArray(%q) = %q, want []", "[]", got)
	}
}

func TestExtractJSONArray_NoBracketsFallsBackToEmpty(t *testing.T) {
	if got := extractJSONArray("no array here"); got != "[]" {
		t.Errorf("extractJSONArray() = %q, want []", got)
	}
}

func TestNewEmbeddingProvider_UnsupportedProviderErrors(t *testing.T) {
	_, err := NewEmbeddingProvider(context.Background(), config.EmbeddingConfig{Provider: "unknown"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unsupported embedding provider")
	}
}

func TestNewLLMProvider_UnsupportedProviderErrors(t *testing.T) {
	_, err := NewLLMProvider(context.Background(), config.LLMConfig{Provider: "unknown"}, nil)
	if err == nil {
		t.Fatal("expected an error for an unsupported LLM provider")
	}
}
