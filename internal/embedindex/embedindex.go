// Package embedindex implements the per-symbol semantic search index of
// spec.md §4.I. It generalizes internal/storage/vectorstore.go's single RAG
// collection-per-repository pattern from chunked document text to per-Symbol
// vectors: one Qdrant collection per repository (named via
// internal/util.GenerateCollectionName, as the teacher does), vectors
// persisted through the same AddDocuments/SimilaritySearch/DeleteCollection
// surface the teacher's qdrantVectorStore exposes. The authoritative cosine
// ranking, threshold, and tie-break required by the contract are computed
// here rather than left to the backing store, since that store's similarity
// search is text-query oriented: Query re-embeds the query and each
// candidate's stored text on every call and compares those vectors.
package embedindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/schema"
	"github.com/sevigo/goframe/vectorstores"
	"github.com/sevigo/goframe/vectorstores/qdrant"

	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/util"
)

// Filter scopes a Query to a language and, optionally, restricts candidate
// collections to a single repository.
type Filter struct {
	Language core.Language
	RepoID   int64
}

// Match is one ranked Query result.
type Match struct {
	SymbolID   int64
	Similarity float64
}

// Index is the per-symbol embedding store, one Qdrant collection per
// repository.
type Index struct {
	host     string
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// New constructs an Index backed by Qdrant at qdrantHost. embedder wraps
// core.EmbeddingProvider so AddDocuments/SimilaritySearch exercise the real
// Qdrant ANN path with the same vectors the domain computes.
func New(qdrantHost string, provider core.EmbeddingProvider, logger *slog.Logger) *Index {
	return &Index{host: qdrantHost, embedder: &embedderAdapter{provider: provider}, logger: logger}
}

func (idx *Index) collectionFor(repoFullName string) (vectorstores.VectorStore, error) {
	name := util.GenerateCollectionName(repoFullName, "codesentry-symbols")
	return qdrant.New(
		qdrant.WithHost(idx.host),
		qdrant.WithEmbedder(idx.embedder),
		qdrant.WithCollectionName(name),
		qdrant.WithLogger(idx.logger),
	)
}

// BuildEmbedText assembles the text embedded for a Symbol, per spec.md §4.I:
// name + signature + docstring + first bodyLimit lines of the body.
func BuildEmbedText(sym core.Symbol, bodySource string, bodyLimit int) string {
	var b strings.Builder
	b.WriteString(sym.Name)
	b.WriteString("\n")
	b.WriteString(sym.Signature)
	if sym.Docstring != "" {
		b.WriteString("\n")
		b.WriteString(sym.Docstring)
	}
	lines := strings.Split(bodySource, "\n")
	if len(lines) > bodyLimit {
		lines = lines[:bodyLimit]
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// Upsert stores the given symbol's embedded text, keyed by symbol id, in the
// repository's collection. Idempotent: re-upserting the same symbol id adds
// a new point carrying the same id metadata; Query de-duplicates by taking
// the highest-similarity match per symbol id.
func (idx *Index) Upsert(ctx context.Context, repoFullName string, repoID, symbolID int64, lang core.Language, text string) error {
	store, err := idx.collectionFor(repoFullName)
	if err != nil {
		return fmt.Errorf("embedindex: connect to qdrant: %w", err)
	}
	doc := schema.NewDocument(text, map[string]any{
		"symbol_id": symbolID,
		"repo_id":   repoID,
		"language":  string(lang),
	})
	if _, err := store.AddDocuments(ctx, []schema.Document{doc}); err != nil {
		return fmt.Errorf("embedindex: upsert symbol %d: %w", symbolID, err)
	}
	return nil
}

// Query ranks the repository's stored symbols against queryText by cosine
// similarity over the embedder's own vectors, returning matches with
// similarity >= threshold, sorted descending, ties broken by symbol id
// ascending, bounded to k results. The call is synchronous and respects
// ctx's deadline.
func (idx *Index) Query(ctx context.Context, repoFullName, queryText string, threshold float64, filter Filter, k int) ([]Match, error) {
	store, err := idx.collectionFor(repoFullName)
	if err != nil {
		return nil, fmt.Errorf("embedindex: connect to qdrant: %w", err)
	}

	candidateK := k * 10
	if candidateK < 50 {
		candidateK = 50
	}
	docs, err := store.SimilaritySearch(ctx, queryText, candidateK)
	if err != nil {
		return nil, fmt.Errorf("embedindex: query: %w", err)
	}

	queryVec, err := idx.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedindex: embed query: %w", err)
	}

	best := make(map[int64]float64)
	for _, doc := range docs {
		symID, ok := symbolIDOf(doc)
		if !ok {
			continue
		}
		if filter.Language != "" {
			lang, _ := doc.Metadata["language"].(string)
			if core.Language(lang) != filter.Language {
				continue
			}
		}
		if filter.RepoID != 0 {
			repoID, ok := repoIDOf(doc)
			if ok && repoID != filter.RepoID {
				continue
			}
		}
		docVec, err := idx.embedder.EmbedDocuments(ctx, []string{doc.PageContent})
		if err != nil || len(docVec) == 0 {
			continue
		}
		sim := cosine(queryVec, docVec[0])
		if sim < threshold {
			continue
		}
		if prev, exists := best[symID]; !exists || sim > prev {
			best[symID] = sim
		}
	}

	matches := make([]Match, 0, len(best))
	for symID, sim := range best {
		matches = append(matches, Match{SymbolID: symID, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].SymbolID < matches[j].SymbolID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func symbolIDOf(doc schema.Document) (int64, bool) {
	switch v := doc.Metadata["symbol_id"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func repoIDOf(doc schema.Document) (int64, bool) {
	switch v := doc.Metadata["repo_id"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// FullName derives the repository-collection key used for both writes
// (Pipeline.runEmbedding) and reads (the semantic-search handler): the
// remote origin's "owner/name" when available, a stable fallback otherwise.
func FullName(repo *core.Repository) string {
	if repo.Source == core.SourceRemote && repo.OriginURL != "" {
		trimmed := strings.TrimSuffix(repo.OriginURL, ".git")
		parts := strings.Split(trimmed, "/")
		if len(parts) >= 2 {
			return strings.Join(parts[len(parts)-2:], "/")
		}
	}
	return fmt.Sprintf("repo-%d", repo.ID)
}

// DeleteRepo removes the repository's entire symbol collection, used when a
// repository is deleted or fully re-ingested.
func (idx *Index) DeleteRepo(ctx context.Context, repoFullName string) error {
	store, err := idx.collectionFor(repoFullName)
	if err != nil {
		return fmt.Errorf("embedindex: connect to qdrant: %w", err)
	}
	name := util.GenerateCollectionName(repoFullName, "codesentry-symbols")
	return store.DeleteCollection(ctx, name)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize scales v to unit length, per spec.md §4.I. Safe on a zero
// vector (returned unchanged).
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// embedderAdapter lets a core.EmbeddingProvider satisfy goframe's
// embeddings.Embedder contract so the Qdrant wrapper can embed document text
// through our own provider rather than a second, separately-configured one.
type embedderAdapter struct {
	provider core.EmbeddingProvider
}

func (a *embedderAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return a.provider.Embed(ctx, text)
}

func (a *embedderAdapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := a.provider.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *embedderAdapter) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := a.provider.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *embedderAdapter) GetDimension(ctx context.Context) (int, error) {
	return a.provider.Dim(), nil
}
