package duplication

import (
	"strings"
	"testing"

	"github.com/sevigo/codesentry/internal/core"
)

func repeatedSource(body string, times int) []byte {
	return []byte(strings.Repeat(body+"\n", times))
}

func TestDetect_IdenticalFilesAreDuplicates(t *testing.T) {
	cfg := Config{ShingleSize: 5, HashCount: 32, Bands: 8, MinSimilarity: 0.8}
	body := "def handler(req):\n    validate(req)\n    process(req)\n    return ok(req)\n"
	files := []FileSource{
		{FileID: 1, Path: "a.py", Language: core.LangPython, Source: repeatedSource(body, 3)},
		{FileID: 2, Path: "b.py", Language: core.LangPython, Source: repeatedSource(body, 3)},
	}

	pairs := Detect(cfg, files)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 duplication pair for identical files, got %d", len(pairs))
	}
	p := pairs[0]
	if p.File1ID != 1 || p.File2ID != 2 {
		t.Errorf("expected canonicalized (1,2) ordering, got (%d,%d)", p.File1ID, p.File2ID)
	}
	if p.Similarity < cfg.MinSimilarity {
		t.Errorf("expected similarity >= %f, got %f", cfg.MinSimilarity, p.Similarity)
	}
	if p.DuplicateTokens == 0 {
		t.Error("expected a non-zero duplicate token run")
	}
}

func TestDetect_UnrelatedFilesAreNotDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	files := []FileSource{
		{FileID: 1, Path: "a.py", Source: repeatedSource("x = 1\ny = 2\nz = 3\n", 10)},
		{FileID: 2, Path: "b.py", Source: repeatedSource("def totally_different():\n    pass\n", 10)},
	}

	pairs := Detect(cfg, files)
	for _, p := range pairs {
		if p.Similarity >= cfg.MinSimilarity {
			t.Errorf("unrelated files should not exceed the similarity floor, got %f", p.Similarity)
		}
	}
}

func TestDetect_FilesSmallerThanShingleSizeAreSkipped(t *testing.T) {
	cfg := Config{ShingleSize: 40, HashCount: 64, Bands: 16, MinSimilarity: 0.8}
	files := []FileSource{
		{FileID: 1, Path: "a.py", Source: []byte("x = 1")},
		{FileID: 2, Path: "b.py", Source: []byte("x = 1")},
	}

	pairs := Detect(cfg, files)
	if len(pairs) != 0 {
		t.Errorf("expected no pairs when files are shorter than the shingle size, got %d", len(pairs))
	}
}

func TestTokenize_NormalizesLiterals(t *testing.T) {
	tokens, lines := tokenize([]byte(`x = "hello"
y = 42`))
	if len(tokens) != len(lines) {
		t.Fatalf("tokens/lines length mismatch: %d vs %d", len(tokens), len(lines))
	}
	var sawStringLit, sawNumLit bool
	for _, tok := range tokens {
		if tok == "<LIT>" {
			sawStringLit = true
		}
	}
	for i, tok := range tokens {
		if tok == "<LIT>" && lines[i] == 2 {
			sawNumLit = true
		}
	}
	if !sawStringLit || !sawNumLit {
		t.Error("expected both string and numeric literals to normalize to <LIT>")
	}
}

func TestEstimateJaccard(t *testing.T) {
	a := []uint64{1, 2, 3, 4}
	b := []uint64{1, 2, 9, 9}
	if got := estimateJaccard(a, b); got != 0.5 {
		t.Errorf("expected 0.5 similarity for 2/4 matches, got %f", got)
	}
	if got := estimateJaccard(a, []uint64{1}); got != 0 {
		t.Errorf("expected 0 similarity for mismatched signature lengths, got %f", got)
	}
}

func TestLongestCommonRun(t *testing.T) {
	a := []string{"a", "b", "c", "d", "e"}
	b := []string{"x", "b", "c", "d", "y"}
	run := longestCommonRun(a, b)
	if run.length != 3 {
		t.Fatalf("expected common run length 3, got %d", run.length)
	}
	if run.startA != 1 || run.startB != 1 {
		t.Errorf("expected run to start at index 1 in both streams, got (%d,%d)", run.startA, run.startB)
	}
}
