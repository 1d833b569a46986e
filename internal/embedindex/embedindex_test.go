package embedindex

import (
	"context"
	"math"
	"testing"

	"github.com/sevigo/goframe/schema"

	"github.com/sevigo/codesentry/internal/core"
)

func TestBuildEmbedText_IncludesSignatureDocstringAndBody(t *testing.T) {
	sym := core.Symbol{Name: "add", Signature: "func add(a, b int) int", Docstring: "adds two ints"}
	body := "return a + b\nunused line"

	text := BuildEmbedText(sym, body, 1)
	if got := text; got == "" {
		t.Fatal("expected non-empty embed text")
	}
	if !contains(text, "add") || !contains(text, "adds two ints") || !contains(text, "return a + b") {
		t.Errorf("expected embed text to include name/docstring/body, got %q", text)
	}
	if contains(text, "unused line") {
		t.Errorf("expected body to be truncated to bodyLimit lines, got %q", text)
	}
}

func TestBuildEmbedText_NoDocstring(t *testing.T) {
	sym := core.Symbol{Name: "run", Signature: "func run()"}
	text := BuildEmbedText(sym, "body", 5)
	if !contains(text, "run") || !contains(text, "func run()") {
		t.Errorf("expected name and signature in embed text, got %q", text)
	}
}

func TestFullName_RemoteRepoUsesOwnerSlashName(t *testing.T) {
	repo := &core.Repository{ID: 1, Source: core.SourceRemote, OriginURL: "https://github.com/acme/widgets.git"}
	if got := FullName(repo); got != "acme/widgets" {
		t.Errorf("expected acme/widgets, got %q", got)
	}
}

func TestFullName_UploadFallsBackToRepoID(t *testing.T) {
	repo := &core.Repository{ID: 42, Source: core.SourceUpload}
	if got := FullName(repo); got != "repo-42" {
		t.Errorf("expected repo-42 fallback, got %q", got)
	}
}

func TestCosine_IdenticalVectorsAreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosine(v, v); math.Abs(got-1) > 1e-9 {
		t.Errorf("expected cosine(v, v) == 1, got %f", got)
	}
}

func TestCosine_OrthogonalVectorsAreZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := cosine(a, b); got != 0 {
		t.Errorf("expected orthogonal vectors to have cosine 0, got %f", got)
	}
}

func TestCosine_MismatchedLengthsAreZero(t *testing.T) {
	if got := cosine([]float32{1, 2}, []float32{1}); got != 0 {
		t.Errorf("expected mismatched-length vectors to return 0, got %f", got)
	}
}

func TestNormalize_ScalesToUnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})
	mag := math.Sqrt(float64(v[0])*float64(v[0]) + float64(v[1])*float64(v[1]))
	if math.Abs(mag-1) > 1e-6 {
		t.Errorf("expected unit length, got magnitude %f", mag)
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	got := Normalize(v)
	for _, x := range got {
		if x != 0 {
			t.Errorf("expected zero vector to remain unchanged, got %v", got)
		}
	}
}

func TestSymbolIDOf(t *testing.T) {
	doc := schema.NewDocument("text", map[string]any{"symbol_id": float64(7)})
	id, ok := symbolIDOf(doc)
	if !ok || id != 7 {
		t.Errorf("expected symbol id 7 decoded from float64 metadata, got (%d,%v)", id, ok)
	}

	missing := schema.NewDocument("text", map[string]any{})
	if _, ok := symbolIDOf(missing); ok {
		t.Error("expected missing symbol_id metadata to report not-ok")
	}
}

type fakeEmbeddingProvider struct {
	vec []float32
	err error
}

func (f *fakeEmbeddingProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbeddingProvider) Dim() int { return len(f.vec) }

func TestEmbedderAdapter_EmbedDocuments(t *testing.T) {
	adapter := &embedderAdapter{provider: &fakeEmbeddingProvider{vec: []float32{0.1, 0.2}}}
	out, err := adapter.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(out))
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
