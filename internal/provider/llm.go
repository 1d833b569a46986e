package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/core"
)

// llmProvider adapts a goframe llms.Model into core.LLMProvider's
// DetectSmells, prompting for a JSON array of findings and parsing the
// model's reply. A malformed or failed reply degrades to (nil, err) so the
// caller (vuln.Scanner) can fall back to rule-only output, per spec.md §7's
// tolerance for LLM-assisted findings.
type llmProvider struct {
	model llms.Model
}

// NewLLMProvider builds the llms.Model selected by cfg.LLM.Provider ("ollama"
// or "gemini") and wraps it as a core.LLMProvider.
func NewLLMProvider(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*llmProvider, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "gemini":
		model, err = gemini.New(ctx,
			gemini.WithModel(cfg.Model),
			gemini.WithAPIKey(cfg.GeminiAPIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("provider: create gemini model: %w", err)
		}
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("provider: create ollama model: %w", err)
		}
	default:
		return nil, fmt.Errorf("provider: unsupported LLM provider %q", cfg.Provider)
	}

	return &llmProvider{model: model}, nil
}

type smellFindingJSON struct {
	SmellType  string `json:"smell_type"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion"`
}

const smellPromptTemplate = `You review %s source code for maintainability smells.
Symbol under review: %s

Source:
%s

Reply with a JSON array only, no prose, each element shaped as:
{"smell_type": "...", "severity": "low|medium|high|critical", "suggestion": "..."}
If there are no smells, reply with an empty array: []`

// DetectSmells asks the wrapped model for maintainability findings on one
// symbol's source and parses its reply as a JSON array.
func (p *llmProvider) DetectSmells(ctx context.Context, source, symbolName string, lang core.Language) ([]core.LLMSmellFinding, error) {
	prompt := fmt.Sprintf(smellPromptTemplate, lang, symbolName, source)

	reply, err := p.model.Call(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("provider: llm call: %w", err)
	}

	var raw []smellFindingJSON
	if err := json.Unmarshal([]byte(extractJSONArray(reply)), &raw); err != nil {
		return nil, fmt.Errorf("provider: parse llm reply: %w", err)
	}

	findings := make([]core.LLMSmellFinding, 0, len(raw))
	for _, r := range raw {
		findings = append(findings, core.LLMSmellFinding{
			SmellType:  r.SmellType,
			Severity:   core.Severity(strings.ToLower(r.Severity)),
			Suggestion: r.Suggestion,
		})
	}
	return findings, nil
}

// extractJSONArray trims any prose a model adds around the requested array,
// keeping only the outermost [...] span.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "[]"
	}
	return s[start : end+1]
}
