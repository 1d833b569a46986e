// Package duplication tokenises source files, sketches them with MinHash
// over rolling k-shingles, prunes candidates with LSH banding, and confirms
// near-duplicate pairs by estimated Jaccard similarity, per spec.md §4.G.
// cespare/xxhash/v2 is the hash family, the same fast-hash dependency the
// reference pack uses for cache-style keys, repurposed here as the sketch's
// hashing primitive.
package duplication

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/sevigo/codesentry/internal/core"
)

// Config bounds the shingle size, sketch width, LSH banding, and similarity
// floor used by Detect.
type Config struct {
	ShingleSize   int
	HashCount     int
	Bands         int
	MinSimilarity float64
}

// DefaultConfig returns the spec.md §4.G defaults: k=40, 64 hash functions,
// 16 bands (4 rows/band), Jaccard floor 0.8.
func DefaultConfig() Config {
	return Config{ShingleSize: 40, HashCount: 64, Bands: 16, MinSimilarity: 0.8}
}

// FileSource is one file's raw content, the minimal input Detect needs.
type FileSource struct {
	FileID   int64
	Path     string
	Language core.Language
	Source   []byte
}

type sketch struct {
	fileID  int64
	tokens  []string
	lines   []int
	minhash []uint64
}

var tokenPattern = regexp.MustCompile(`"[^"\n]*"|'[^'\n]*'|\d+\.\d+|\d+|[A-Za-z_][A-Za-z0-9_]*|[^\sA-Za-z0-9_]`)

// tokenize splits source into a flat token stream (identifiers, keywords,
// punctuation kept verbatim; string/numeric literals normalised to <LIT>)
// alongside the 1-based source line each token came from. The same
// tokenizer is used for every language: the grammar differences that
// matter for duplication detection are lexical, not structural.
func tokenize(source []byte) ([]string, []int) {
	var tokens []string
	var lines []int
	for i, lineText := range strings.Split(string(source), "\n") {
		lineNo := i + 1
		for _, m := range tokenPattern.FindAllString(lineText, -1) {
			tokens = append(tokens, normalizeToken(m))
			lines = append(lines, lineNo)
		}
	}
	return tokens, lines
}

func normalizeToken(tok string) string {
	if len(tok) >= 2 && (tok[0] == '"' || tok[0] == '\'') {
		return "<LIT>"
	}
	if isNumeric(tok) {
		return "<LIT>"
	}
	return tok
}

func isNumeric(tok string) bool {
	if tok == "" || tok[0] < '0' || tok[0] > '9' {
		return false
	}
	for _, r := range tok {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// Detect builds a MinHash sketch per file, prunes candidate pairs with LSH
// banding, and confirms duplicates by estimated Jaccard similarity >=
// cfg.MinSimilarity. Materialized pairs are canonicalized file1_id <
// file2_id, satisfying the symmetry property of spec.md §8.7.
func Detect(cfg Config, files []FileSource) []core.DuplicationPair {
	sketches := make([]*sketch, 0, len(files))
	for _, f := range files {
		toks, lines := tokenize(f.Source)
		if len(toks) < cfg.ShingleSize {
			continue
		}
		sketches = append(sketches, &sketch{
			fileID:  f.FileID,
			tokens:  toks,
			lines:   lines,
			minhash: minhashSignature(toks, cfg.ShingleSize, cfg.HashCount),
		})
	}

	var pairs []core.DuplicationPair
	for _, c := range lshCandidates(sketches, cfg.Bands, cfg.HashCount) {
		a, b := sketches[c[0]], sketches[c[1]]
		sim := estimateJaccard(a.minhash, b.minhash)
		if sim < cfg.MinSimilarity {
			continue
		}
		f1, f2 := a, b
		if f1.fileID > f2.fileID {
			f1, f2 = f2, f1
		}
		r := longestCommonRun(f1.tokens, f2.tokens)
		if r.length == 0 {
			continue
		}
		pairs = append(pairs, core.DuplicationPair{
			File1ID:         f1.fileID,
			File2ID:         f2.fileID,
			File1Range:      rangeString(f1, r.startA, r.length),
			File2Range:      rangeString(f2, r.startB, r.length),
			Similarity:      sim,
			DuplicateLines:  lineSpan(f1, r.startA, r.length),
			DuplicateTokens: r.length,
			Snippet:         strings.Join(f1.tokens[r.startA:r.startA+r.length], " "),
		})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].File1ID != pairs[j].File1ID {
			return pairs[i].File1ID < pairs[j].File1ID
		}
		return pairs[i].File2ID < pairs[j].File2ID
	})
	return pairs
}

// minhashSignature computes one MinHash value per hash function over every
// k-token shingle, keeping the minimum per function.
func minhashSignature(tokens []string, k, h int) []uint64 {
	sig := make([]uint64, h)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	if len(tokens) < k {
		return sig
	}
	for start := 0; start+k <= len(tokens); start++ {
		shingle := strings.Join(tokens[start:start+k], "\x1f")
		base := xxhash.Sum64String(shingle)
		for i := 0; i < h; i++ {
			hv := mixSeed(base, uint64(i))
			if hv < sig[i] {
				sig[i] = hv
			}
		}
	}
	return sig
}

func mixSeed(base, seed uint64) uint64 {
	return base ^ (seed*0x9E3779B97F4A7C15 + 0xC2B2AE3D27D4EB4F)
}

func estimateJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(len(a))
}

// lshCandidates bands each signature into Bands groups of H/Bands rows and
// buckets files whose band matches exactly; any shared bucket in any band
// nominates the pair for the O(F^2) confirmation pass.
func lshCandidates(sketches []*sketch, bands, h int) [][2]int {
	if bands <= 0 || h < bands {
		bands = 1
	}
	rows := h / bands

	seen := make(map[[2]int]bool)
	var pairs [][2]int
	for bnd := 0; bnd < bands; bnd++ {
		start := bnd * rows
		end := start + rows
		if end > h {
			end = h
		}
		buckets := make(map[uint64][]int)
		for idx, sk := range sketches {
			key := bandKey(sk.minhash[start:end])
			buckets[key] = append(buckets[key], idx)
		}
		for _, idxs := range buckets {
			for i := 0; i < len(idxs); i++ {
				for j := i + 1; j < len(idxs); j++ {
					a, b := idxs[i], idxs[j]
					if a > b {
						a, b = b, a
					}
					key := [2]int{a, b}
					if !seen[key] {
						seen[key] = true
						pairs = append(pairs, key)
					}
				}
			}
		}
	}
	return pairs
}

func bandKey(rows []uint64) uint64 {
	buf := make([]byte, 0, len(rows)*8)
	for _, v := range rows {
		buf = append(buf,
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
	return xxhash.Sum64(buf)
}

type tokenRun struct {
	startA, startB, length int
}

// longestCommonRun finds the longest contiguous matching token run between
// two token streams (classic LCS-of-substrings DP, row-reduced to O(len(b))
// space). Run bounded by the O(F^2) candidate count after LSH pruning.
func longestCommonRun(a, b []string) tokenRun {
	n, m := len(a), len(b)
	prev := make([]int, m+1)
	curr := make([]int, m+1)
	var best tokenRun
	bestLen := 0
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > bestLen {
					bestLen = curr[j]
					best = tokenRun{startA: i - curr[j], startB: j - curr[j], length: curr[j]}
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return best
}

func rangeString(sk *sketch, tokenStart, length int) string {
	if length == 0 || tokenStart >= len(sk.lines) {
		return ""
	}
	endIdx := tokenStart + length - 1
	if endIdx >= len(sk.lines) {
		endIdx = len(sk.lines) - 1
	}
	return fmt.Sprintf("L%d-L%d", sk.lines[tokenStart], sk.lines[endIdx])
}

func lineSpan(sk *sketch, tokenStart, length int) int {
	if length == 0 || tokenStart >= len(sk.lines) {
		return 0
	}
	endIdx := tokenStart + length - 1
	if endIdx >= len(sk.lines) {
		endIdx = len(sk.lines) - 1
	}
	return sk.lines[endIdx] - sk.lines[tokenStart] + 1
}
